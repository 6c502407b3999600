package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"deliverySync/internal/authz"
	"deliverySync/internal/config"
	"deliverySync/internal/db"
	"deliverySync/internal/events"
	grpcserver "deliverySync/internal/grpc"
	"deliverySync/internal/httpapi"
	"deliverySync/internal/logger"
	"deliverySync/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	log.Info("configuration loaded", "config", cfg.String())

	// Open DB
	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Error("open db", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Error("close db", "error", err)
		}
	}()

	// Event hub, optionally fanned out to RabbitMQ
	var sinks []events.Sink
	if cfg.Events.AMQPURL != "" {
		sink, err := events.DialAMQP(cfg.Events.AMQPURL, "")
		if err != nil {
			log.Error("dial amqp", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		sinks = append(sinks, sink)
	}
	hub := events.NewHub(cfg.Events.Buffer, logger.Component(log, "events"), sinks...)

	svc := service.New(d, hub,
		service.WithPolicy(cfg.Assign.Policy),
		service.WithLogger(logger.Component(log, "service")),
	)

	// Start gRPC
	shutdownGRPC, err := grpcserver.StartGRPC(cfg, svc, hub, logger.Component(log, "grpc"))
	if err != nil {
		log.Error("start grpc", "error", err)
		os.Exit(1)
	}
	log.Info("gRPC server listening", "address", cfg.GRPC.Address)

	// Start REST
	if !logger.ParseLevelIsDebug(cfg.Log.Level) {
		gin.SetMode(gin.ReleaseMode)
	}
	az, err := authz.New()
	if err != nil {
		log.Error("load authorization policy", "error", err)
		os.Exit(1)
	}
	api := httpapi.NewServer(svc, hub, az, cfg.Auth.JWTSecret, logger.Component(log, "http"),
		httpapi.WithAllowedOrigins(cfg.HTTP.CORSOrigins...))
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http serve", "error", err)
		}
	}()
	log.Info("HTTP server listening", "address", cfg.HTTP.Address)

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Closing the hub ends Watch streams and websocket feeds so graceful stops can finish.
	hub.Close()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	if err := shutdownGRPC(ctx); err != nil {
		log.Error("grpc shutdown", "error", err)
	}
}
