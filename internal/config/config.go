package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBillingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	PublicURL   string

	AuthJWTSecret string
	CronSecret    string
	// PlatformAdminIDs are user ids granted the platform admin role at startup.
	PlatformAdminIDs []int64

	OTLPEndpoint string

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SweepLockTTL  time.Duration

	Stripe StripeConfig
	Email  EmailConfig
}

type StripeConfig struct {
	SecretKey          string
	WebhookSecret      string
	StandardPlanPrice  string
	SuccessURL         string
	CancelURL          string
	PortalReturnURL    string
	ConnectRefreshURL  string
	ConnectReturnURL   string
	ConnectAccountType string
}

type EmailConfig struct {
	Provider     string
	FromEmail    string
	FromName     string
	SendGridKey  string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	publicURL := strings.TrimRight(getenv("APP_PUBLIC_URL", "http://localhost:3000"), "/")

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "schoolbilling"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicURL:     publicURL,
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		CronSecret:    strings.TrimSpace(getenv("CRON_SECRET", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		PlatformAdminIDs: getenvInt64List("PLATFORM_ADMIN_USER_IDS"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "schoolbilling"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DB_AUTO_MIGRATE", true),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),
		SweepLockTTL:  getenvDuration("SWEEP_LOCK_TTL", 5*time.Minute),

		Stripe: StripeConfig{
			SecretKey:          strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:      strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			StandardPlanPrice:  strings.TrimSpace(getenv("STRIPE_STANDARD_PRICE_ID", "")),
			SuccessURL:         getenv("STRIPE_SUCCESS_URL", publicURL+"/billing?status=success"),
			CancelURL:          getenv("STRIPE_CANCEL_URL", publicURL+"/billing?status=canceled"),
			PortalReturnURL:    getenv("STRIPE_PORTAL_RETURN_URL", publicURL+"/billing"),
			ConnectRefreshURL:  getenv("STRIPE_CONNECT_REFRESH_URL", publicURL+"/settings/payouts?refresh=1"),
			ConnectReturnURL:   getenv("STRIPE_CONNECT_RETURN_URL", publicURL+"/settings/payouts"),
			ConnectAccountType: strings.ToLower(getenv("STRIPE_CONNECT_ACCOUNT_TYPE", "express")),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(strings.TrimSpace(getenv("EMAIL_PROVIDER", "noop"))),
			FromEmail:    getenv("EMAIL_FROM", "billing@localhost"),
			FromName:     getenv("EMAIL_FROM_NAME", "School Billing"),
			SendGridKey:  strings.TrimSpace(getenv("SENDGRID_API_KEY", "")),
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvInt64List parses a comma separated list and skips invalid entries.
func getenvInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := strconv.ParseInt(part, 10, 64)
		if err != nil || parsed <= 0 {
			continue
		}
		out = append(out, parsed)
	}
	return out
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
