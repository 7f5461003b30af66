package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nfc-card-ledger/config"
	"nfc-card-ledger/internal/adapter/http/dto"
	httpHandler "nfc-card-ledger/internal/adapter/http/handler"
	"nfc-card-ledger/internal/adapter/http/middleware"
	"nfc-card-ledger/internal/adapter/nfc"
	"nfc-card-ledger/internal/adapter/storage/gateway"
	redisStorage "nfc-card-ledger/internal/adapter/storage/redis"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/internal/service"
	"nfc-card-ledger/internal/terminal"
	"nfc-card-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("POS_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Msg("Starting NFC card ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backing store: bound once, memory fallback if PostgreSQL is unreachable.
	store := gateway.Open(ctx, cfg, gateway.DefaultConnector, logger.Component(log, "store"))
	defer store.Close()
	healthCheckers := store.HealthCheckers()

	// Redis is optional: without it reference ids are not deduplicated and
	// the API is not rate limited.
	var (
		idempCache ports.IdempotencyCache
		rateLimits middleware.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, idempotency cache and rate limiting disabled")
		} else {
			defer rdb.Close()
			idempCache = redisStorage.NewIdempotencyCache(rdb)
			rateLimits = redisStorage.NewRateLimitStore(rdb)
			healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
		}
	}

	var tokenSvc ports.TokenService
	if cfg.JWT.Secret != "" {
		tokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	} else {
		log.Warn().Msg("jwt.secret is empty, operator authentication disabled")
	}

	serviceLog := logger.Component(log, "ledger")
	directory := service.NewCardDirectory(store, serviceLog)
	ledger := service.NewLedgerService(store, cfg.Ledger.ReadRetries, cfg.Ledger.OperationTimeout, serviceLog)
	paymentSvc := service.NewPaymentService(directory, ledger, store.Shops(), idempCache, service.PaymentPolicy{
		AutoRegister:          cfg.Ledger.AutoRegister,
		DefaultOpeningBalance: cfg.Ledger.DefaultOpeningBalance,
		IdempotencyTTL:        cfg.Redis.IdempotencyTTL,
		SettleTimeout:         cfg.Ledger.OperationTimeout,
	}, serviceLog)
	tapSvc := service.NewTapService(paymentSvc, service.NewDebouncer(cfg.Ledger.DebounceCooldown), serviceLog)
	reportingSvc := service.NewReportingService(directory, store.Transactions(), store.Shops())

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     paymentSvc,
		TapSvc:         tapSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimits,
		HealthCheckers: healthCheckers,
		StoreMode:      string(store.Mode()),
		Presenter:      dto.Presenter{Exponent: cfg.Ledger.CurrencyExponent},
		Mode:           cfg.Server.Mode,
		Logger:         logger.Component(log, "http"),
	})

	if cfg.Terminal.Enabled {
		go runTerminal(ctx, cfg.Terminal, tapSvc, logger.Component(log, "terminal"))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func runTerminal(ctx context.Context, cfg config.TerminalConfig, taps ports.TapService, log zerolog.Logger) {
	scanner, err := nfc.OpenDevice(cfg.Device)
	if err != nil {
		log.Error().Err(err).Str("device", cfg.Device).Msg("tag reader unavailable, terminal disabled")
		return
	}

	action := terminal.Action{Mode: ports.TapMode(cfg.Mode), Amount: cfg.Amount}
	if cfg.ShopID > 0 {
		shopID := cfg.ShopID
		action.ShopID = &shopID
	}

	term, err := terminal.New(nfc.NewReader(scanner, log), taps, action, nil, log)
	if err != nil {
		_ = scanner.Close()
		log.Error().Err(err).Msg("invalid terminal configuration")
		return
	}
	if err := term.Run(ctx); err != nil {
		log.Error().Err(err).Msg("terminal stopped")
	}
}
