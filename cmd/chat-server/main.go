package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yamo-chat/internal/config"
	"yamo-chat/internal/conversation"
	"yamo-chat/internal/handler"
	"yamo-chat/internal/messaging"
	"yamo-chat/internal/middleware"
	"yamo-chat/internal/observability"
	"yamo-chat/internal/ratelimit"
	"yamo-chat/internal/realtime"
	"yamo-chat/internal/repository/postgres"
	"yamo-chat/internal/validate"
	"yamo-chat/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting chat server")

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(connCtx); err != nil {
		slog.Error("database ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to postgresql")

	broker, err := messaging.NewBrokerWithRetry(cfg.RabbitMQURL, 10, 3*time.Second)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer broker.Close()
	slog.Info("connected to rabbitmq")

	messageRepo := postgres.NewMessageRepository(db)
	conversationRepo := postgres.NewConversationRepository(db)
	profileRepo := postgres.NewProfileRepository(db)

	// Writes go through the publishing decorator so every committed insert and
	// read-state flip lands on the change feed.
	messages := realtime.NewPublishingRepository(messageRepo, broker)

	validator := validate.NewValidator(profileRepo, conversationRepo)
	limiter := ratelimit.New()
	sender := conversation.NewSender(messages, conversationRepo, validator, limiter)

	hub := websocket.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && err != context.Canceled {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	relay := websocket.NewRelay(broker, messageRepo, hub)
	go func() {
		if err := relay.Run(hubCtx); err != nil && err != context.Canceled {
			slog.Error("relay error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("broker relay started")

	conversationHandler := handler.NewConversationHandler(conversationRepo, messages, validator, sender, broker)
	wsHandler := handler.NewWebSocketHandler(hub, conversationRepo, broker, middleware.ParseOrigins(cfg.AllowedOrigins))

	apiLimiter := middleware.NewRateLimiter(20, 50)
	defer apiLimiter.Stop()

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())
	r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig()))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, broker))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(cfg.AuthTokenSecret, profileRepo))
		r.Use(apiLimiter.Middleware())

		r.Post("/conversations", conversationHandler.Open)
		r.Get("/conversations/{id}", conversationHandler.Get)
		r.Get("/conversations/{id}/messages", conversationHandler.GetMessages)
		r.Post("/conversations/{id}/messages", conversationHandler.SendMessage)
		r.Post("/conversations/{id}/read", conversationHandler.MarkRead)
		r.Post("/conversations/{id}/typing", conversationHandler.Typing)
	})

	// Upgrades authenticate via the access_token query param fallback
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(cfg.AuthTokenSecret, profileRepo))
		r.Get("/ws/conversations/{id}", wsHandler.HandleConnection)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}
