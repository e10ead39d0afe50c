package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/checkout-service/internal/app"
	"github.com/Dhoini/checkout-service/internal/config"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Инициализируем контекст с возможностью отмены для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Загружаем конфигурацию
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yml"
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}

	log := initLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Infow("Checkout service starting up...", "env", cfg.App.Env)

	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}
	if cfg.Stripe.APIKey == "sk_test_YourSecretKeyHere" {
		log.Warnw("Stripe API Key is using the default placeholder!")
	}

	// Устанавливаем режим Gin в зависимости от окружения
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.New(ctx, cfg, app.Clients{}, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      application.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Запускаем HTTP сервер в горутине
	go func() {
		log.Infow("Starting HTTP server", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// --- gRPC health ---
	var stopGRPC func()
	if cfg.GRPC.Enabled {
		grpcListener, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
		if err != nil {
			log.Fatalw("Failed to listen for gRPC", "error", err)
		}

		grpcServer := application.GRPCServer()
		grpcServer.Watch(15 * time.Second)
		stopGRPC = grpcServer.Stop

		go func() {
			log.Infow("Starting gRPC server", "port", cfg.GRPC.Port)
			if err := grpcServer.GRPC().Serve(grpcListener); err != nil {
				log.Fatalw("Failed to start gRPC server", "error", err)
			}
		}()
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")
	cancel()

	// Даем 10 секунд на завершение текущих запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Infow("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}

	if stopGRPC != nil {
		log.Infow("Shutting down gRPC server")
		stopGRPC() // GracefulStop ждет завершения текущих RPC
		log.Infow("gRPC server gracefully stopped")
	}

	// Kafka, leads, Redis, база
	if err := application.Close(); err != nil {
		log.Errorw("Cleanup finished with errors", "error", err)
	}

	log.Infow("Cleanup finished. Goodbye!")
}

// initLogger: JSON в production, консоль в остальных окружениях.
func initLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.App.LogLevel)
	if cfg.IsProduction() {
		return logger.New(level)
	}
	return logger.NewDevelopment(level)
}
