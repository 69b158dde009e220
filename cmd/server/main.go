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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskviewer/relay-server-go/internal/config"
	"github.com/deskviewer/relay-server-go/internal/database"
	"github.com/deskviewer/relay-server-go/internal/handler"
	"github.com/deskviewer/relay-server-go/internal/jobs"
	"github.com/deskviewer/relay-server-go/internal/middleware"
	"github.com/deskviewer/relay-server-go/internal/redis"
	"github.com/deskviewer/relay-server-go/internal/repository"
	"github.com/deskviewer/relay-server-go/internal/service"
	"github.com/deskviewer/relay-server-go/internal/signaling"
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

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	recentSessionRepo := repository.NewRecentSessionRepository(db.DB)

	sessionCodeService := service.NewSessionCodeService(
		userRepo, redisClient, cfg.SessionCodeLength, config.SessionCodeMaxAttempts,
	)
	authService := service.NewAuthService(
		userRepo, sessionCodeService, cfg.JWTSecret, config.AuthTokenTTL,
	)
	recentSessionService := service.NewRecentSessionService(
		db, recentSessionRepo, cfg.SessionCodeLength,
	)

	store := signaling.NewStore()
	registry := signaling.NewRegistry()
	broker := signaling.NewBroker(redisClient, registry)
	defer broker.Close()

	router := signaling.NewRouter(store, registry, broker, signaling.Options{
		RolePolicy: cfg.RolePolicy,
		JoinPolicy: cfg.JoinPolicy,
	})
	wsServer := signaling.NewServer(router, registry, cfg.SignalingMsgsPerSec)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	loginLimiter := middleware.NewLoginRateLimiter()
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	authHandler := handler.NewAuthHandler(authService)
	recentSessionsHandler := handler.NewRecentSessionsHandler(recentSessionService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"sessions":  store.Len(),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	// The websocket endpoint stays outside the request-logging and timeout
	// middleware: connections are long-lived.
	r.Get("/ws", wsServer.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestLogger)
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)

		r.Route("/auth", func(r chi.Router) {
			r.Use(loginLimiter.Handler)
			r.Mount("/", authHandler.Routes())
		})

		r.Route("/recentSessions", func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Mount("/", recentSessionsHandler.Routes())
		})
	})

	cleanupJob := jobs.NewCleanupJob(
		recentSessionRepo, config.CleanupJobInterval, config.RecentSessionRetention,
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	if cfg.SessionSweepEnabled {
		sweeper := signaling.NewSweeper(store, router, cfg.SweepInterval(), cfg.SessionTimeout())
		sweeper.Start()
		defer sweeper.Stop()
	}

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: 0, // websocket connections are long-lived
		IdleTimeout: config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("rolePolicy", cfg.RolePolicy).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	registry.CloseAll()

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
