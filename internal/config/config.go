package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	// Webhook verification handshake shared secret.
	WebhookVerifyToken string

	// Inbound normalization.
	TimestampOffset time.Duration

	// Forwarding gate.
	ForwardURL        string
	ForwardTimeout    time.Duration
	AttendantIdentity string

	// Credit accounting.
	PlanCredits           int64
	AutomationAutoDisable bool

	Payment   PaymentConfig
	RateLimit RateLimitConfig
}

type PaymentConfig struct {
	Provider      string
	WebhookSecret string
	APIKey        string
	APIBaseURL    string
	SuccessURL    string
	CancelURL     string
}

type RateLimitConfig struct {
	Enabled               bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	IngestRate            float64
	IngestBurst           int
	ConcurrencyTTLSeconds int
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_SERVICE", "gateway")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")

	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "postgres")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)

	v.SetDefault("WEBHOOK_VERIFY_TOKEN", "")
	v.SetDefault("MESSAGE_TIMESTAMP_OFFSET", "3h")
	v.SetDefault("FORWARD_WEBHOOK_URL", "")
	v.SetDefault("FORWARD_TIMEOUT", "10s")
	v.SetDefault("ATTENDANT_IDENTITY", "attendant")
	v.SetDefault("PLAN_CREDITS", int64(1000))
	v.SetDefault("AUTOMATION_AUTO_DISABLE", false)

	v.SetDefault("PAYMENT_PROVIDER", "stripe")
	v.SetDefault("PAYMENT_API_BASE_URL", "https://api.stripe.com")

	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_REDIS_ADDR", "")
	v.SetDefault("RATE_LIMIT_REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_INGEST_RATE", 50.0)
	v.SetDefault("RATE_LIMIT_INGEST_BURST", 100)
	v.SetDefault("RATE_LIMIT_CONCURRENCY_TTL_SECONDS", 30)

	cfg := Config{
		AppName:     v.GetString("APP_SERVICE"),
		AppVersion:  v.GetString("APP_VERSION"),
		Environment: v.GetString("ENVIRONMENT"),
		HTTPAddr:    v.GetString("HTTP_ADDR"),

		DBType:            v.GetString("DATABASE_TYPE"),
		DBHost:            v.GetString("DATABASE_HOST"),
		DBPort:            v.GetString("DATABASE_PORT"),
		DBName:            v.GetString("DATABASE_NAME"),
		DBUser:            v.GetString("DATABASE_USER"),
		DBPassword:        v.GetString("DATABASE_PASSWORD"),
		DBSSLMode:         v.GetString("DATABASE_SSLMODE"),
		DBMaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTime: v.GetInt("DATABASE_CONN_MAX_IDLE_TIME"),
		DBAutoMigrate:     v.GetBool("DATABASE_AUTO_MIGRATE"),

		WebhookVerifyToken: strings.TrimSpace(v.GetString("WEBHOOK_VERIFY_TOKEN")),
		TimestampOffset:    v.GetDuration("MESSAGE_TIMESTAMP_OFFSET"),

		ForwardURL:        strings.TrimSpace(v.GetString("FORWARD_WEBHOOK_URL")),
		ForwardTimeout:    v.GetDuration("FORWARD_TIMEOUT"),
		AttendantIdentity: strings.TrimSpace(v.GetString("ATTENDANT_IDENTITY")),

		PlanCredits:           v.GetInt64("PLAN_CREDITS"),
		AutomationAutoDisable: v.GetBool("AUTOMATION_AUTO_DISABLE"),

		Payment: PaymentConfig{
			Provider:      strings.ToLower(strings.TrimSpace(v.GetString("PAYMENT_PROVIDER"))),
			WebhookSecret: strings.TrimSpace(v.GetString("PAYMENT_WEBHOOK_SECRET")),
			APIKey:        strings.TrimSpace(v.GetString("PAYMENT_API_KEY")),
			APIBaseURL:    strings.TrimSpace(v.GetString("PAYMENT_API_BASE_URL")),
			SuccessURL:    strings.TrimSpace(v.GetString("PAYMENT_SUCCESS_URL")),
			CancelURL:     strings.TrimSpace(v.GetString("PAYMENT_CANCEL_URL")),
		},
		RateLimit: RateLimitConfig{
			Enabled:               v.GetBool("RATE_LIMIT_ENABLED"),
			RedisAddr:             strings.TrimSpace(v.GetString("RATE_LIMIT_REDIS_ADDR")),
			RedisPassword:         v.GetString("RATE_LIMIT_REDIS_PASSWORD"),
			RedisDB:               v.GetInt("RATE_LIMIT_REDIS_DB"),
			IngestRate:            v.GetFloat64("RATE_LIMIT_INGEST_RATE"),
			IngestBurst:           v.GetInt("RATE_LIMIT_INGEST_BURST"),
			ConcurrencyTTLSeconds: v.GetInt("RATE_LIMIT_CONCURRENCY_TTL_SECONDS"),
		},
	}

	return cfg
}
