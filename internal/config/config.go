package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"busticket/internal/cache"
	"busticket/internal/database"
	"busticket/internal/external"
	"busticket/internal/messaging"
	"busticket/internal/notify"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Performance monitoring
	PprofEnabled bool
	PprofPort    string

	// AdminToken guards seat block/unblock and payment cancellation.
	AdminToken string

	StoreDriver   string
	Database      database.Config
	NATS          messaging.Config
	Redis         cache.Config
	Elasticsearch ElasticsearchConfig
	Gateways      external.GatewayConfig
	SMS           external.SMSConfig
	SMTP          notify.SMTPConfig
	Notifications notify.Config
	Reminders     ReminderConfig
}

type ReminderConfig struct {
	Enabled  bool
	DaySpec  string
	HourSpec string
}

// Load reads the environment, after merging an optional .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		PprofEnabled: getEnvBool("PPROF_ENABLED", false),
		PprofPort:    getEnv("PPROF_PORT", "6060"),

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		StoreDriver: getEnv("STORE_DRIVER", StorePostgres),
		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "busticket"),
			Password:           getEnv("DB_PASSWORD", "busticket"),
			DBName:             getEnv("DB_NAME", "busticket"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			Enabled:   getEnvBool("NATS_ENABLED", true),
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "busticket"),
			ClientID:  getEnv("NATS_CLIENT_ID", "busticket-api"),
		},

		Redis: cache.Config{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		Elasticsearch: LoadElasticsearchConfig(),

		Gateways: external.GatewayConfig{
			Timeout: time.Duration(getEnvInt("GATEWAY_TIMEOUT_SEC", 30)) * time.Second,
			Mock: external.MockConfig{
				Enabled: getEnvBool("MOCK_GATEWAY_ENABLED", true),
				Delay:   time.Duration(getEnvInt("MOCK_GATEWAY_DELAY_MS", 0)) * time.Millisecond,
			},
			Hub: external.HubConfig{
				BaseURL:  getEnv("PAYMENT_GATEWAY_URL", "https://hub.hackload.kz/payment-provider/common"),
				TeamSlug: getEnv("PAYMENT_TEAM_SLUG", ""),
				Password: getEnv("PAYMENT_PASSWORD", ""),
				Timeout:  time.Duration(getEnvInt("PAYMENT_TIMEOUT_SEC", 30)) * time.Second,
			},
			Stripe: external.StripeConfig{
				SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
				PaymentMethod: getEnv("STRIPE_PAYMENT_METHOD", "pm_card_visa"),
			},
		},

		SMS: external.SMSConfig{
			Enabled:  getEnvBool("SMS_ENABLED", false),
			BaseURL:  getEnv("SMS_API_URL", ""),
			APIKey:   getEnv("SMS_API_KEY", ""),
			SenderID: getEnv("SMS_SENDER_ID", "BUSTICKET"),
			Timeout:  time.Duration(getEnvInt("SMS_TIMEOUT_SEC", 10)) * time.Second,
		},

		SMTP: notify.SMTPConfig{
			Enabled:  getEnvBool("SMTP_ENABLED", false),
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "tickets@busticket.local"),
		},

		Notifications: notify.Config{
			Workers:   getEnvInt("NOTIFY_WORKERS", 4),
			QueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 1000),
		},

		Reminders: ReminderConfig{
			Enabled:  getEnvBool("REMINDERS_ENABLED", true),
			DaySpec:  getEnv("REMINDER_24H_SPEC", "@every 30m"),
			HourSpec: getEnv("REMINDER_1H_SPEC", "@every 15m"),
		},
	}
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
