package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/composer"
	"chat-sync/internal/config"
	"chat-sync/internal/controller"
	"chat-sync/internal/db"
	"chat-sync/internal/feed"
	"chat-sync/internal/handlers"
	"chat-sync/internal/logging"
	"chat-sync/internal/metadata"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/readstate"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat, nil)
	log := logging.Component("main")

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, "chat-sync")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	var messageFeed feed.Feed
	switch cfg.FeedBackend {
	case "memory":
		messageFeed = feed.NewMemoryFeed()
		log.Info().Msg("using in-memory feed")
	default:
		database, err := db.Connect(cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to db")
		}
		messageFeed = feed.NewPostgresFeed(database, cfg.DBDSN)
	}

	if cfg.AMQPURL != "" {
		amqpPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Warn().Err(err).Msg("amqp unavailable, ws events disabled")
		} else {
			observability.SetPublisher(amqpPublisher)
			defer amqpPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange+"_audit")
	defer auditPublisher.Close()
	emitter := telemetry.NewAuditEmitter(auditPublisher, "audit.chat_sync", "chat-sync", cfg.Env)

	metaClient := metadata.NewClient(cfg.MetadataBaseURL, cfg.MetadataTimeout)
	tracker := readstate.NewTracker(messageFeed, cfg.AggregateWorkers, cfg.SettleTimeout)
	registry := controller.NewRegistry(metaClient, messageFeed, tracker)
	defer registry.Close()
	cp := composer.New(messageFeed, metaClient)

	syncHandler := handlers.NewSyncHandler(registry, cp, metaClient, emitter, cfg.SettleTimeout)
	hub := ws.NewHub()
	streamHandler := ws.NewStreamHandler(hub, messageFeed, metaClient)

	if cfg.Env != "dev" && cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-sync"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(metaClient)

	router.GET("/conversations", authMiddleware, syncHandler.ListConversations)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, syncHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, syncHandler.PostMessage)
	router.POST("/conversations/:conversation_id/exit", authMiddleware, syncHandler.ExitConversation)
	router.GET("/badge", authMiddleware, syncHandler.Badge)

	router.GET("/ws/conversations/:conversation_id", streamHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	log.Info().Str("addr", cfg.HTTPAddr).Str("feed", cfg.FeedBackend).Msg("chat-sync listening")
	if err := router.Run(cfg.HTTPAddr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
