package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-realtime/internal/config"
	"chat-realtime/internal/db"
	"chat-realtime/internal/delivery"
	grpcserver "chat-realtime/internal/grpc"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/rabbitmq"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat-realtime terminated with error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := config.NewLogger(os.Stdout, cfg.LogLevel).With("service", cfg.ServiceName, "env", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "err", err)
		}
	}()

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, observability.RoutingAuditGroups, cfg.ServiceName, cfg.Environment, log)

	store := repositories.NewStore(database)
	registry := presence.NewRegistry()
	rooms := presence.NewRooms()
	engine := delivery.NewEngine(store, registry, rooms, publisher, log, delivery.WithProducer(cfg.ServiceName))
	registry.Observe(engine.BroadcastStatus)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		observability.RequestIDMiddleware(),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsHandler := ws.NewHandler(engine, registry, rooms, ws.Config{
		SendBuffer:     cfg.WSSendBuffer,
		PongWait:       cfg.WSPongWait,
		WriteWait:      cfg.WSWriteWait,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, log)
	router.GET("/ws", wsHandler.Handle)

	conversationHandler := handlers.NewConversationHandler(store.Conversations(), engine, log)
	userHandler := handlers.NewUserHandler(store.Users(), log)
	groupHandler := handlers.NewGroupHandler(store, audit, log)

	api := router.Group("/", middleware.Identity())
	api.GET("/conversations", conversationHandler.ListConversations)
	api.GET("/conversations/with/:user_id", conversationHandler.OpenConversation)
	api.GET("/users/search", userHandler.Search)
	api.POST("/groups", groupHandler.CreateGroup)
	api.GET("/groups", groupHandler.ListGroups)
	api.GET("/groups/:group_id/messages", groupHandler.GetGroupMessages)
	api.POST("/groups/:group_id/members", groupHandler.AddMembers)
	api.DELETE("/groups/:group_id/members/:member_id", groupHandler.RemoveMember)

	handlers.RegisterDebugRoutes(router, registry, audit, cfg.DebugRoutes)

	healthServer := grpcserver.NewHealthServer(cfg.ServiceName, log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go healthServer.Watch(ctx, cfg.HealthCheckInterval, database.PingContext)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("grpc health server listening", "port", cfg.GRPCPort)
		if err := healthServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-errCh:
		log.Error("server failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	healthServer.Shutdown()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("http shutdown failed", "err", shutdownErr)
	}
	return err
}
