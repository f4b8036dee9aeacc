package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pavlovicisidora/sep/internal/infra/database"
)

// Config carries every externally configurable value: backend base URLs for
// the cooperating services plus the ambient infrastructure settings.
type Config struct {
	Bank  BankConfig
	PSP   PSPConfig
	Payer PayerConfig
}

type BankConfig struct {
	HTTPPort    int
	FrontendURL string
	PSPBaseURL  string

	MerchantAccountNumber string
	MerchantAccountName   string

	DB database.Config

	MigrationsPath string

	KafkaBrokerURL    string
	KafkaStatusTopic  string
	KafkaAuditTopic   string
	OutboxPollTick    time.Duration
	OutboxPollTimeout time.Duration

	CleanupInterval time.Duration
	SessionTTL      time.Duration
}

type PSPConfig struct {
	HTTPPort int

	BankBaseURL string

	MerchantID       string
	MerchantPassword string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
}

type PayerConfig struct {
	BankBaseURL string
}

func Load() *Config {
	cfg := &Config{}

	cfg.Bank.HTTPPort = getEnvAsInt("BANK_HTTP_PORT", 8445)
	cfg.Bank.FrontendURL = getEnvOrDefault("BANK_FRONTEND_URL", "https://localhost:4201")
	cfg.Bank.PSPBaseURL = getEnvOrDefault("PSP_API_URL", "http://localhost:8444")
	cfg.Bank.MerchantAccountNumber = getEnvOrDefault("MERCHANT_ACCOUNT_NUMBER", "845-0000000004048-49")
	cfg.Bank.MerchantAccountName = getEnvOrDefault("MERCHANT_ACCOUNT_NAME", "Rent-a-Car SEP")

	cfg.Bank.DB = database.Config{
		Host:     getEnvOrDefault("BANK_DB_HOST", "localhost"),
		Port:     getEnvAsInt("BANK_DB_PORT", 5432),
		User:     getEnvOrDefault("BANK_DB_USER", "bank"),
		Password: getEnvOrDefault("BANK_DB_PASSWORD", "bank"),
		DBName:   getEnvOrDefault("BANK_DB_NAME", "bank_db"),
		SSLMode:  getEnvOrDefault("BANK_DB_SSLMODE", "disable"),
	}
	cfg.Bank.MigrationsPath = getEnvOrDefault("BANK_MIGRATIONS_PATH", "file://migrations")

	cfg.Bank.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.Bank.KafkaStatusTopic = getEnvOrDefault("KAFKA_PAYMENT_STATUS_TOPIC", "payment_status_updates")
	cfg.Bank.KafkaAuditTopic = getEnvOrDefault("KAFKA_PAYMENT_AUDIT_TOPIC", "payment_audit_log")
	cfg.Bank.OutboxPollTick = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.Bank.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)

	cfg.Bank.CleanupInterval = getEnvAsDuration("BANK_CLEANUP_INTERVAL", 1*time.Minute)
	cfg.Bank.SessionTTL = getEnvAsDuration("BANK_PAYMENT_SESSION_TTL", 10*time.Minute)

	cfg.PSP.HTTPPort = getEnvAsInt("PSP_HTTP_PORT", 8444)
	cfg.PSP.BankBaseURL = getEnvOrDefault("BANK_API_URL", "http://localhost:8445")
	cfg.PSP.MerchantID = getEnvOrDefault("PSP_MERCHANT_ID", "rentacar-webshop")
	cfg.PSP.MerchantPassword = getEnvOrDefault("PSP_MERCHANT_PASSWORD", "super-secret")
	cfg.PSP.RedisAddr = getEnvOrDefault("PSP_REDIS_ADDR", "localhost:6379")
	cfg.PSP.RedisPassword = getEnvOrDefault("PSP_REDIS_PASSWORD", "")
	cfg.PSP.RedisDB = getEnvAsInt("PSP_REDIS_DB", 0)
	cfg.PSP.SessionTTL = getEnvAsDuration("PSP_SESSION_TTL", 24*time.Hour)

	cfg.Payer.BankBaseURL = getEnvOrDefault("BANK_API_URL", "http://localhost:8445")

	return cfg
}

func (c *BankConfig) KafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
