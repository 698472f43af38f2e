package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	emailPkg "studio/internal/adapters/email"
	"studio/internal/adapters/events"
	web "studio/internal/adapters/http"
	"studio/internal/adapters/http/middleware"
	"studio/internal/adapters/payment"
	"studio/internal/adapters/session"
	"studio/internal/adapters/storage"
	accountStore "studio/internal/adapters/storage/account"
	actionStore "studio/internal/adapters/storage/actionrequest"
	auditStore "studio/internal/adapters/storage/audit"
	bookingStore "studio/internal/adapters/storage/booking"
	catalogStore "studio/internal/adapters/storage/catalog"
	outboxStore "studio/internal/adapters/storage/outbox"
	"studio/internal/adapters/storage/records"
	"studio/internal/adapters/storage/setting"
	simulationStore "studio/internal/adapters/storage/simulation"
	slotStore "studio/internal/adapters/storage/slot"
	"studio/internal/application/orchestrators"
	"studio/internal/application/payments"
	"studio/internal/config"
	"studio/internal/domain/outbox"
	"studio/internal/logging"
	"studio/internal/metrics"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = version
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(cfg, *logger); err != nil {
		logger.Error().Err(err).Msg("server_exit")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := storage.InitDB(db); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	timedDB := storage.NewTimedDB(db, logger, time.Duration(cfg.Database.SlowQueryMs)*time.Millisecond)
	logger.Info().Str("path", cfg.Database.Path).Msg("database_ready")

	stores := web.Stores{
		Accounts:    accountStore.NewSQLiteStore(timedDB),
		Bookings:    bookingStore.NewSQLiteStore(timedDB),
		Catalog:     catalogStore.NewSQLiteStore(timedDB),
		Slots:       slotStore.NewSQLiteStore(timedDB),
		Outbox:      outboxStore.NewSQLiteStore(timedDB),
		Audit:       auditStore.NewSQLiteStore(timedDB),
		Requests:    actionStore.NewSQLiteStore(timedDB),
		Simulations: simulationStore.NewSQLiteStore(timedDB),
		Records:     records.NewSQLiteStore(timedDB),
	}

	seedDeps := orchestrators.CreateAccountDeps{
		AccountStore: stores.Accounts,
		Logger:       logger,
		GenerateID:   uuid.NewString,
		Now:          time.Now,
	}
	if err := orchestrators.ExecuteSeedAdmin(ctx, seedDeps, os.Getenv("STUDIO_ADMIN_EMAIL"), os.Getenv("STUDIO_ADMIN_PASSWORD")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Payments
	processor := payment.NewStripeProcessor(
		payment.Account{SecretKey: cfg.Stripe.LiveSecretKey, WebhookSecret: cfg.Stripe.LiveWebhookSecret},
		payment.Account{SecretKey: cfg.Stripe.TestSecretKey, WebhookSecret: cfg.Stripe.TestWebhookSecret},
		cfg.Stripe.RequestTimeout,
	)
	gateway := payments.NewGateway(processor, setting.NewSQLiteStore(timedDB), payments.Config{
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
		Currency:   cfg.Stripe.Currency,
		Timeout:    cfg.Stripe.RequestTimeout,
	}, logger)

	// Email
	var sender emailPkg.Sender
	if cfg.Email.ResendAPIKey != "" {
		sender = emailPkg.NewResendSender(emailPkg.ResendConfig{
			APIKey:  cfg.Email.ResendAPIKey,
			From:    cfg.Email.From,
			ReplyTo: cfg.Email.ReplyTo,
		}, logger)
		logger.Info().Msg("email_sender_resend")
	} else {
		sender = emailPkg.NewNoopSender(logger)
		if !cfg.IsDevelopment() {
			logger.Warn().Msg("email_delivery_disabled")
		}
	}

	// Purchase notifications: confirmation email plus broker events
	notifiers := orchestrators.FanoutNotifier{&orchestrators.ConfirmationMailer{
		Accounts:   stores.Accounts,
		Sender:     sender,
		Outbox:     stores.Outbox,
		Logger:     logger,
		GenerateID: uuid.NewString,
		Now:        time.Now,
	}}
	if cfg.AMQP.URL != "" {
		publisher := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		defer publisher.Close()
		notifiers = append(notifiers, &orchestrators.EventNotifier{Publisher: publisher})
	}
	notifier := &orchestrators.AsyncNotifier{Next: notifiers, Timeout: cfg.Workers.NotificationTimeout, Logger: logger}
	defer notifier.Wait()

	// Background workers
	stopCh := make(chan struct{})
	outboxProcessor := orchestrators.NewOutboxProcessor(stores.Outbox, map[string]orchestrators.ActionExecutor{
		outbox.ActionTypeRefund: &orchestrators.RefundExecutor{Refunder: gateway},
		outbox.ActionTypeEmail:  &orchestrators.EmailExecutor{Sender: sender},
	}, logger)
	outboxDone := orchestrators.StartBackgroundWorker(outboxProcessor, cfg.Workers.OutboxInterval, stopCh)
	sweeperDone := orchestrators.StartSimulationSweeper(
		web.ReversalDeps(stores, gateway, logger, time.Now),
		cfg.Workers.SimulationSweepInterval,
		stopCh,
	)

	// Login sessions
	var sessions session.Store
	if cfg.Redis.Enabled {
		client, err := session.NewRedisClient(ctx, session.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		sessions = session.NewRedisStore(client, session.DefaultTTL)
	} else {
		sessions = session.NewMemoryStore(session.DefaultTTL)
	}

	csrfKey, err := cfg.CSRFKey()
	if err != nil {
		return err
	}
	srv := web.NewServer(web.Deps{
		Stores:   stores,
		Gateway:  gateway,
		Verifier: processor,
		Notifier: notifier,
		Outbox:   outboxProcessor,
		Sessions: sessions,
		Tokens:   middleware.NewOverlayTokens([]byte(cfg.Security.OverlaySigningKey), time.Now),
		Logger:   logger,
		Now:      time.Now,
	}, web.Config{
		SecureCookies:  cfg.Security.SecureCookies,
		CSRFKey:        csrfKey,
		TrustedOrigins: cfg.Security.TrustedOrigins,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		SlowRequest:    time.Duration(cfg.HTTP.SlowRequestMs) * time.Millisecond,
	})
	srv.Limiter().StartSweeper(time.Minute, 10*time.Minute, stopCh)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	var metricsServer *http.Server
	if cfg.Monitoring.PrometheusEnabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
			Handler:           mux,
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics_server_failed")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("env", cfg.App.Environment).Msg("server_starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown_signal_received")
	case err := <-serveErr:
		if err != nil {
			close(stopCh)
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http_shutdown_incomplete")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics_shutdown_incomplete")
		}
	}
	close(stopCh)
	<-outboxDone
	<-sweeperDone
	logger.Info().Msg("server_stopped")
	return nil
}
