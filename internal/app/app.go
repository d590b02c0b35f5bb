package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"confession-service/internal/auth"
	"confession-service/internal/config"
	"confession-service/internal/db"
	"confession-service/internal/events"
	"confession-service/internal/health"
	"confession-service/internal/logger"
	"confession-service/internal/mailer"
	"confession-service/internal/message"
	"confession-service/internal/metrics"
	"confession-service/internal/middleware"
	"confession-service/internal/moderation"
	"confession-service/internal/payment"
	"confession-service/internal/quota"
	"confession-service/internal/redemption"
	"confession-service/internal/user"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
)

type App struct {
	config   *config.Config
	router   chi.Router
	server   *http.Server
	logger   *slog.Logger
	producer events.Producer
}

func New() *App {
	slogLogger := logger.NewWithServiceContext("confession-service", Version)

	// Set as default logger so slog.Info() uses JSON format
	slog.SetDefault(slogLogger)

	slogLogger.Info("initializing application")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	slogLogger.Info("config loaded", "env", cfg.Env)

	app := &App{
		config: cfg,
		router: chi.NewRouter(),
		logger: slogLogger,
	}

	database := db.New(cfg.Database)

	ctx := context.Background()
	if err := db.RunMigrations(ctx, database,
		(*user.User)(nil),
		(*auth.RefreshToken)(nil),
		(*message.Message)(nil),
		(*message.Response)(nil),
		(*redemption.Code)(nil),
	); err != nil {
		log.Fatal("failed to run migrations:", err)
	}

	m, err := metrics.New(otel.Meter("confession-service"))
	if err != nil {
		slogLogger.Warn("failed to initialize metrics", "error", err)
		m = metrics.NewMock()
	}

	// Apply CORS middleware globally
	app.router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Health endpoints (no auth required)
	healthHandler := health.NewHandler()
	healthHandler.RegisterRoutes(app.router)

	// Auth setup
	userRepo := user.NewRepository(database)
	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, userRepo)
	authHandler := auth.NewHandler(authService, slogLogger)
	authHandler.RegisterRoutes(app.router)

	// Quota ledger: single source of truth for remaining sends
	ledger := quota.NewLedger(userRepo, slogLogger)

	// Moderation gate: fail-open when the classifier credential is missing
	moderationClient := moderation.NewClient(
		cfg.Moderation.APIURL,
		cfg.Moderation.APIKey,
		time.Duration(cfg.Moderation.TimeoutSeconds)*time.Second,
	)
	gate := moderation.NewGate(moderationClient, cfg.Moderation.Threshold, cfg.Moderation.APIKey != "", slogLogger)

	// Transactional email (best-effort delivery)
	var mailClient mailer.Mailer
	if cfg.Mailer.APIKey != "" {
		mailClient = mailer.NewResendClient(
			cfg.Mailer.APIURL,
			cfg.Mailer.APIKey,
			cfg.Mailer.From,
			time.Duration(cfg.Mailer.TimeoutSeconds)*time.Second,
		)
		slogLogger.Info("mail client initialized")
	} else {
		slogLogger.Warn("no mail API key configured, notifications disabled")
	}

	// Domain events producer (optional: events are skipped when the broker
	// is unavailable)
	app.producer = newProducer(cfg.Events, slogLogger)

	// Redemption vault
	codeRepo := redemption.NewRepository(database)
	vault := redemption.NewVault(codeRepo, ledger, app.producer, slogLogger)
	redemptionHandler := redemption.NewHandler(vault, slogLogger, m)

	// Send pipeline
	messageRepo := message.NewRepository(database)
	messageService := message.NewService(messageRepo, userRepo, ledger, gate, mailClient, app.producer, cfg.Server.BaseURL, slogLogger)
	messageHandler := message.NewHandler(messageService, slogLogger, m)

	// Payment bridge
	paymentClient := payment.NewClient(
		cfg.Payment.BaseURL,
		cfg.Payment.ClientID,
		cfg.Payment.ClientSecret,
		time.Duration(cfg.Payment.TimeoutSeconds)*time.Second,
	)
	paymentBridge := payment.NewBridge(paymentClient, vault, slogLogger)
	paymentHandler := payment.NewHandler(paymentBridge, slogLogger, m)

	// Profile endpoints
	userHandler := user.NewHandler(userRepo, slogLogger)

	// One-time reply link endpoints: the recipient has no account
	app.router.Route("/respond-api", func(r chi.Router) {
		messageHandler.RegisterPublicRoutes(r)
	})

	// Protected routes group for /api endpoints
	app.router.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(slogLogger))
		messageHandler.RegisterRoutes(r)
		userHandler.RegisterRoutes(r)
		redemptionHandler.RegisterRoutes(r)
		paymentHandler.RegisterRoutes(r)
	})

	slogLogger.Info("application initialized successfully")

	return app
}

func newProducer(cfg config.EventsConfig, slogLogger *slog.Logger) events.Producer {
	switch cfg.Backend {
	case "kafka":
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, slogLogger)
		if err != nil {
			slogLogger.Warn("failed to initialize kafka producer", "error", err)
			return nil
		}
		return producer
	case "nats":
		producer, err := events.NewNATSProducer(cfg.NATSURL, cfg.Subject, slogLogger)
		if err != nil {
			slogLogger.Warn("failed to initialize NATS producer", "error", err)
			return nil
		}
		return producer
	default:
		slogLogger.Info("no events backend configured")
		return nil
	}
}

func (a *App) Run() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(a.config.Server.IdleTimeout) * time.Second,
	}

	a.logger.Info("server starting", "port", a.config.Server.Port)
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down server")
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close events producer", "error", err)
		}
	}
	return a.server.Shutdown(ctx)
}
