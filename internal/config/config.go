package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port      string
	Mode      string
	LogLevel  string
	LogFormat string

	// Database configuration
	DatabaseURL string
	SQLitePath  string

	// Redis configuration
	RedisURL string

	// RabbitMQ configuration
	RabbitMQURL          string
	NotificationExchange string

	// Auth configuration
	JWTSecret string

	// Payment gateway configuration
	GatewayBaseURL     string
	GatewayMerchantID  string
	GatewayMerchantKey string
	GatewayWebsite     string
	GatewayTimeout     time.Duration

	PublicBaseURL string
	FrontendURL   string

	// Lifecycle configuration
	OfferTTL      time.Duration
	PaymentTTL    time.Duration
	SweepInterval time.Duration
}

var AppConfig *Config

// devJWTSecret signs tokens outside release mode when JWT_SECRET is unset
const devJWTSecret = "dev-secret"

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                 getEnv("PORT", "8080"),
		Mode:                 getEnv("GIN_MODE", "debug"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		SQLitePath:           getEnv("SQLITE_PATH", "marketplace.db"),
		RedisURL:             getEnv("REDIS_URL", ""),
		RabbitMQURL:          getEnv("RABBITMQ_URL", ""),
		NotificationExchange: getEnv("NOTIFICATION_EXCHANGE", "marketplace.notifications"),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", "https://securegw-stage.paytm.in"),
		GatewayMerchantID:    getEnv("GATEWAY_MERCHANT_ID", ""),
		GatewayMerchantKey:   getEnv("GATEWAY_MERCHANT_KEY", ""),
		GatewayWebsite:       getEnv("GATEWAY_WEBSITE", "WEBSTAGING"),
		GatewayTimeout:       getEnvDuration("GATEWAY_TIMEOUT_SECONDS", 15, time.Second),
		PublicBaseURL:        getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		FrontendURL:          getEnv("FRONTEND_URL", ""),
		OfferTTL:             getEnvDuration("OFFER_TTL_HOURS", 7*24, time.Hour),
		PaymentTTL:           getEnvDuration("PAYMENT_TTL_HOURS", 24, time.Hour),
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL_MINUTES", 15, time.Minute),
	}

	if AppConfig.JWTSecret == "" {
		if AppConfig.Mode == "release" {
			return errors.New("JWT_SECRET must be set when GIN_MODE=release")
		}
		AppConfig.JWTSecret = devJWTSecret
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration reads an integer count of unit from the environment
func getEnvDuration(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * unit
}
