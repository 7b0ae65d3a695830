package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/config"
	"github.com/aosbot/portal-server-go/internal/database"
	"github.com/aosbot/portal-server-go/internal/handler"
	"github.com/aosbot/portal-server-go/internal/jobs"
	"github.com/aosbot/portal-server-go/internal/middleware"
	"github.com/aosbot/portal-server-go/internal/redis"
	"github.com/aosbot/portal-server-go/internal/repository"
	"github.com/aosbot/portal-server-go/internal/service"
	"github.com/aosbot/portal-server-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	migrateCancel()

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	accountRepo := repository.NewAccountRepository(db.DB)
	webhookRepo := repository.NewWebhookRepository(db.DB)
	logRepo := repository.NewLogEntryRepository(db.DB)
	requestRepo := repository.NewRequestRepository(db.DB)
	notificationRepo := repository.NewNotificationRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	quotaService := service.NewQuotaService(accountRepo)
	relayService := service.NewRelayService()
	messageService := service.NewMessageService(
		accountRepo, logRepo, webhookRepo, quotaService, relayService, broker,
	)
	creditService := service.NewCreditService(db, accountRepo, broker)
	accountService := service.NewAccountService(
		db, accountRepo, webhookRepo, logRepo, requestRepo, notificationRepo, sessionRepo, broker,
	)
	webhookService := service.NewWebhookService(accountRepo, webhookRepo, broker)
	workflowService := service.NewWorkflowService(db, requestRepo, notificationRepo, accountRepo, broker)
	sessionService := service.NewSessionService(accountRepo, sessionRepo, quotaService, cfg.SessionSecret)

	sessionMiddleware := middleware.NewSessionMiddleware(sessionService)
	loginLimiter := middleware.NewLoginRateLimiter(redisClient.Client)
	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	eventsHandler := handler.NewEventsHandler(broker)
	usersHandler := handler.NewUsersHandler(accountService)
	portalHandler := handler.NewPortalHandler(
		sessionService, accountService, webhookService, messageService,
		creditService, workflowService, eventsHandler,
		sessionMiddleware.Handler, loginLimiter.Handler, isProduction,
	)
	adminHandler := handler.NewAdminHandler(
		accountService, workflowService, creditService, messageService,
		broker, sessionMiddleware.Handler,
	)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Any path that no API route claims serves the client shell.
	r.NotFound(handler.StaticFileServer(cfg.StaticDir, "/").ServeHTTP)

	r.Route("/api/users", func(r chi.Router) {
		r.Mount("/", usersHandler.Routes())
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Use(csrfMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	r.Route("/portal", func(r chi.Router) {
		r.Use(securityHeadersMiddleware.Handler)
		r.Use(csrfMiddleware.Handler)
		r.Mount("/", portalHandler.Routes())
		r.NotFound(handler.StaticFileServer(cfg.StaticDir, "/portal").ServeHTTP)
	})

	cleanupJob := jobs.NewCleanupJob(sessionRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
