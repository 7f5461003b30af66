package middleware

import (
	"net/http"

	"nfc-card-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuditLog writes one audit line per successful balance or card mutation.
func AuditLog(log zerolog.Logger) gin.HandlerFunc {
	audit := log.With().Str("log_type", "audit").Logger()
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		action := auditAction(c.Request.Method, c.FullPath())
		if action == "" {
			return
		}

		audit.Info().
			Str("action", action).
			Str("operator_id", c.GetString(CtxOperatorID)).
			Str("token_id", c.GetString(CtxTokenID)).
			Str("request_id", c.GetString(response.CtxRequestID)).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Msg("audit")
	}
}

func auditAction(method, route string) string {
	switch {
	case method == http.MethodPost && route == "/api/v1/payments":
		return "card.pay"
	case method == http.MethodPost && route == "/api/v1/topups":
		return "card.topup"
	case method == http.MethodPost && route == "/api/v1/taps":
		return "card.tap"
	case method == http.MethodPost && route == "/api/v1/cards":
		return "card.register"
	case method == http.MethodPatch && route == "/api/v1/cards/:tag_id/status":
		return "card.status"
	}
	return ""
}
