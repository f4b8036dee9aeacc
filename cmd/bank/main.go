package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pavlovicisidora/sep/internal/bank/cleanup"
	bank_http "github.com/pavlovicisidora/sep/internal/bank/handler/http"
	"github.com/pavlovicisidora/sep/internal/bank/outbox"
	"github.com/pavlovicisidora/sep/internal/bank/pspclient"
	accounts_pg "github.com/pavlovicisidora/sep/internal/bank/repository/accounts_repo/postgres"
	cards_pg "github.com/pavlovicisidora/sep/internal/bank/repository/cards_repo/postgres"
	outbox_pg "github.com/pavlovicisidora/sep/internal/bank/repository/outbox_repo/postgres"
	transactions_pg "github.com/pavlovicisidora/sep/internal/bank/repository/transactions_repo/postgres"
	"github.com/pavlovicisidora/sep/internal/bank/service"
	"github.com/pavlovicisidora/sep/internal/config"
	"github.com/pavlovicisidora/sep/internal/infra/database"
	"github.com/pavlovicisidora/sep/internal/infra/kafka"
	"github.com/pavlovicisidora/sep/internal/metrics"
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
	appLogger.Info("Bank service starting...")

	appLogger.Info("Waiting for database to be available...")
	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(cfg.Bank.DB)
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...",
			i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}
	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		}
	}()

	appLogger.Info("Running database migrations...")
	m, err := migrate.New(cfg.Bank.MigrationsPath, cfg.Bank.DB.MigrationDSN())
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	topicCtx, topicCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer topicCancel()
	requiredTopics := []string{cfg.Bank.KafkaStatusTopic, cfg.Bank.KafkaAuditTopic}
	if err := kafka.EnsureTopics(topicCtx, cfg.Bank.KafkaBrokers(), requiredTopics, appLogger); err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	transactionRepository := transactions_pg.NewTransactionRepository(db)
	accountRepository := accounts_pg.NewAccountRepository(db)
	cardRepository := cards_pg.NewCardRepository(db)
	outboxRepository := outbox_pg.NewOutboxRepository(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	bankMetrics := metrics.New(registry)

	pspClient := pspclient.New(cfg.Bank.PSPBaseURL, nil,
		appLogger.With(zap.String("component", "PSPClient")))

	paymentService := service.New(
		db,
		transactionRepository,
		accountRepository,
		cardRepository,
		outboxRepository,
		pspClient,
		bankMetrics,
		service.Config{
			FrontendURL:           cfg.Bank.FrontendURL,
			MerchantAccountNumber: cfg.Bank.MerchantAccountNumber,
			MerchantAccountName:   cfg.Bank.MerchantAccountName,
			StatusTopic:           cfg.Bank.KafkaStatusTopic,
			AuditTopic:            cfg.Bank.KafkaAuditTopic,
			SessionTTL:            cfg.Bank.SessionTTL,
		},
		appLogger.With(zap.String("component", "PaymentService")),
	)
	appLogger.Info("Payment service initialized.")

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
	bank_http.RegisterRoutes(router, paymentService,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		appLogger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Bank.HTTPPort),
		Handler: router,
	}

	kafkaProducer := kafka.NewProducer(cfg.Bank.KafkaBrokers(),
		appLogger.With(zap.String("component", "KafkaProducer")))
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	outboxProcessor := outbox.NewProcessor(
		outboxRepository,
		kafkaProducer,
		cfg.Bank.OutboxPollTick,
		cfg.Bank.OutboxPollTimeout,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)

	sweeper := cleanup.NewSweeper(
		db,
		transactionRepository,
		outboxRepository,
		pspClient,
		cfg.Bank.KafkaStatusTopic,
		cfg.Bank.CleanupInterval,
		appLogger.With(zap.String("component", "CleanupSweeper")),
	)

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	outboxProcessor.Start(ctxMain)
	sweeper.Start(ctxMain)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down bank service...")

	cancelMain()
	outboxProcessor.Stop()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	appLogger.Info("Bank service gracefully shut down.")
}
