package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nfc-card-ledger/internal/adapter/http/dto"
	httpHandler "nfc-card-ledger/internal/adapter/http/handler"
	"nfc-card-ledger/internal/adapter/storage/gateway"
	"nfc-card-ledger/internal/adapter/storage/memory"
	redisStorage "nfc-card-ledger/internal/adapter/storage/redis"
	"nfc-card-ledger/internal/service"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp wires the real HTTP layer, services and Redis adapters over the
// in-memory store with demo data.
type testApp struct {
	server *httptest.Server
	token  string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()
	store := gateway.Wrap(gateway.ModeMemory, memory.New(memory.WithDemoData()), memory.NewHealthCheck())

	directory := service.NewCardDirectory(store, log)
	ledger := service.NewLedgerService(store, 1, 5*time.Second, log)
	payments := service.NewPaymentService(directory, ledger, store.Shops(), redisStorage.NewIdempotencyCache(rdb), service.PaymentPolicy{
		AutoRegister:          true,
		DefaultOpeningBalance: service.DefaultOpeningBalance,
		IdempotencyTTL:        time.Hour,
	}, log)
	taps := service.NewTapService(payments, service.NewDebouncer(3*time.Second), log)
	reporting := service.NewReportingService(directory, store.Transactions(), store.Shops())
	tokens := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", time.Hour, "test-issuer")

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     payments,
		TapSvc:         taps,
		ReportingSvc:   reporting,
		TokenSvc:       tokens,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: append(store.HealthCheckers(), redisStorage.NewHealthCheck(rdb)),
		StoreMode:      string(store.Mode()),
		Presenter:      dto.Presenter{Exponent: 2},
		Logger:         log,
	})

	token, _, err := tokens.Generate("till-1")
	require.NoError(t, err)

	app := &testApp{server: httptest.NewServer(router), token: token}
	t.Cleanup(app.server.Close)
	return app
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "no data in %v", body)
	return d
}

func balanceOf(t *testing.T, app *testApp, tag string) int64 {
	t.Helper()
	status, body := app.do(t, http.MethodGet, "/api/v1/cards/"+tag, nil)
	require.Equal(t, http.StatusOK, status)
	return int64(data(t, body)["balance"].(float64))
}

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["store"])
}

func TestIntegration_Unauthorized(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/api/v1/cards/NFC001")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_PayThenTopUp(t *testing.T) {
	app := newTestApp(t)

	status, body := app.do(t, http.MethodPost, "/api/v1/payments", dto.PayRequest{TagID: "NFC001", ShopID: 1, Amount: 120})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(380), data(t, body)["remaining_balance"])

	status, body = app.do(t, http.MethodPost, "/api/v1/topups", dto.TopUpRequest{TagID: "NFC001", Amount: 200})
	require.Equal(t, http.StatusCreated, status, body)
	tx := data(t, body)["transaction"].(map[string]any)
	assert.Equal(t, float64(380), tx["previous_balance"])
	assert.Equal(t, float64(580), tx["new_balance"])
	assert.Equal(t, "topup", tx["kind"])

	status, body = app.do(t, http.MethodGet, "/api/v1/cards/NFC001/transactions", nil)
	require.Equal(t, http.StatusOK, status)
	items := data(t, body)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "purchase", items[0].(map[string]any)["kind"])
	assert.Equal(t, "topup", items[1].(map[string]any)["kind"])

	status, body = app.do(t, http.MethodGet, "/api/v1/shops/1/stats", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(120), data(t, body)["purchase_total"])
}

func TestIntegration_InsufficientBalanceLeavesCardUntouched(t *testing.T) {
	app := newTestApp(t)

	status, body := app.do(t, http.MethodPost, "/api/v1/payments", dto.PayRequest{TagID: "NFC004", ShopID: 1, Amount: 1})
	require.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "PAY_001", body["error_code"])

	assert.Equal(t, int64(0), balanceOf(t, app, "NFC004"))
	status, body = app.do(t, http.MethodGet, "/api/v1/cards/NFC004/transactions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, data(t, body)["items"])
}

func TestIntegration_UnknownTagAutoRegistersOnPay(t *testing.T) {
	app := newTestApp(t)

	status, _ := app.do(t, http.MethodGet, "/api/v1/cards/NEWTAG", nil)
	require.Equal(t, http.StatusNotFound, status, "probing must not register")

	status, body := app.do(t, http.MethodPost, "/api/v1/payments", dto.PayRequest{TagID: "newtag", ShopID: 2, Amount: 30})
	require.Equal(t, http.StatusCreated, status, body)
	d := data(t, body)
	assert.Equal(t, true, d["registered"])
	assert.Equal(t, float64(service.DefaultOpeningBalance-30), d["remaining_balance"])
}

func TestIntegration_InactiveShopRejected(t *testing.T) {
	app := newTestApp(t)

	status, body := app.do(t, http.MethodPost, "/api/v1/payments", dto.PayRequest{TagID: "NFC001", ShopID: 3, Amount: 10})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "SHOP_001", body["error_code"])
	assert.Equal(t, int64(500), balanceOf(t, app, "NFC001"))
}

func TestIntegration_ReferenceIDReplay(t *testing.T) {
	app := newTestApp(t)
	req := dto.PayRequest{TagID: "NFC003", ShopID: 1, Amount: 100, ReferenceID: "order-77"}

	status, first := app.do(t, http.MethodPost, "/api/v1/payments", req)
	require.Equal(t, http.StatusCreated, status)
	status, second := app.do(t, http.MethodPost, "/api/v1/payments", req)
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, data(t, first)["transaction"], data(t, second)["transaction"])
	assert.Equal(t, int64(900), balanceOf(t, app, "NFC003"), "replay must not charge twice")
}

func TestIntegration_DuplicateTapSuppressed(t *testing.T) {
	app := newTestApp(t)
	shopID := int64(1)
	tap := dto.TapRequest{TagID: "NFC002", Mode: "pay", ShopID: &shopID, Amount: 10}

	status, body := app.do(t, http.MethodPost, "/api/v1/taps", tap)
	require.Equal(t, http.StatusCreated, status, body)

	status, body = app.do(t, http.MethodPost, "/api/v1/taps", tap)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "TAP_001", body["error_code"])

	assert.Equal(t, int64(240), balanceOf(t, app, "NFC002"))
}

func TestIntegration_CardLifecycle(t *testing.T) {
	app := newTestApp(t)

	status, _ := app.do(t, http.MethodPost, "/api/v1/cards", dto.RegisterCardRequest{TagID: "NFC100", OpeningBalance: 50})
	require.Equal(t, http.StatusCreated, status)

	status, body := app.do(t, http.MethodPost, "/api/v1/cards", dto.RegisterCardRequest{TagID: "NFC100"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CARD_002", body["error_code"])

	status, _ = app.do(t, http.MethodPatch, "/api/v1/cards/NFC100/status", map[string]any{"active": false})
	require.Equal(t, http.StatusOK, status)

	status, body = app.do(t, http.MethodPost, "/api/v1/payments", dto.PayRequest{TagID: "NFC100", ShopID: 1, Amount: 5})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "CARD_003", body["error_code"])
}

// TestIntegration_ConcurrentPayments fires more debits than the balance
// covers; exactly the affordable number succeed.
func TestIntegration_ConcurrentPayments(t *testing.T) {
	app := newTestApp(t)

	const workers = 40
	var wg sync.WaitGroup
	var ok, declined atomic.Int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"tag_id":"NFC002","shop_id":1,"amount":20,"reference_id":"conc-%d"}`, idx)
			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/payments", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+app.token)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			_, _ = io.ReadAll(resp.Body)

			switch resp.StatusCode {
			case http.StatusCreated:
				ok.Add(1)
			case http.StatusPaymentRequired:
				declined.Add(1)
			}
		}(i)
	}
	wg.Wait()

	// 250 / 20 = 12 debits fit, leaving 10.
	assert.Equal(t, int64(12), ok.Load())
	assert.Equal(t, int64(workers-12), declined.Load())
	assert.Equal(t, int64(10), balanceOf(t, app, "NFC002"))

	status, body := app.do(t, http.MethodGet, "/api/v1/cards/NFC002/transactions?page_size=100", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, data(t, body)["items"], 12)
}
