package dto

import (
	"regexp"

	"nfc-card-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("tag_id", validateTagID)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateTagID accepts identifiers that are valid once normalized, so
// lower-case and padded reads pass.
func validateTagID(fl validator.FieldLevel) bool {
	return domain.ValidTagID(domain.NormalizeTagID(fl.Field().String()))
}
