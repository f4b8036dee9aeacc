package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pavlovicisidora/sep/internal/config"
	"github.com/pavlovicisidora/sep/internal/kvstore"
	"github.com/pavlovicisidora/sep/internal/psp"
	psp_http "github.com/pavlovicisidora/sep/internal/psp/handler/http"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("PSP service starting...")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.PSP.RedisAddr,
		Password: cfg.PSP.RedisPassword,
		DB:       cfg.PSP.RedisDB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Successfully connected to Redis!")

	sessionStore := psp.NewSessionStore(
		kvstore.NewRedisStore(redisClient, "psp"),
		cfg.PSP.SessionTTL,
	)

	bankClient := psp.NewBankClient(cfg.PSP.BankBaseURL, nil)
	merchantNotifier := psp.NewMerchantNotifier(nil)

	pspService := psp.NewService(
		[]psp.Merchant{{ID: cfg.PSP.MerchantID, Password: cfg.PSP.MerchantPassword}},
		sessionStore,
		bankClient,
		merchantNotifier,
		appLogger.With(zap.String("component", "PSPService")),
	)
	appLogger.Info("PSP service initialized.")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Bank.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	psp_http.RegisterRoutes(router, pspService, appLogger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.PSP.HTTPPort),
		Handler: router,
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down PSP service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	appLogger.Info("PSP service gracefully shut down.")
}
