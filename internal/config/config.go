package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// Logging
	LogLevel  string
	LogPretty bool

	// Persistence
	StoreDriver      string
	DatabaseURL      string
	DatabaseMaxConns int32
	MongoURI         string
	MongoDbName      string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret          string
	JwtTTL             time.Duration
	CaptchaTokenTTL    time.Duration
	AgentInviteTTL     time.Duration
	UnsubscribeLinkTTL time.Duration

	// Admin account
	AdminEmail        string
	AdminPasswordHash string

	// Server
	ApiPort        string
	ServiceApiPort string
	PublicSiteURL  string

	// Google reCAPTCHA v3
	RecaptchaSecretKey string
	RecaptchaVerifyURL string
	RecaptchaMinScore  float64
	RecaptchaAction    string

	// Email
	SmtpHost         string
	SmtpPort         int
	SmtpUsername     string
	SmtpPassword     string
	SmtpFromAddress  string
	AdminNotifyEmail string
	DefaultLocale    string
	MockServices     bool
	EmailLogFile     string

	// AWS S3
	AwsAccessKeyID       string
	AwsSecretAccessKey   string
	AwsRegion            string
	AwsS3Bucket          string
	DocumentMaxSizeMB    int
	DocumentMimeTypes    []string
	DocumentUploadURLTTL time.Duration

	// Catalog
	CatalogCacheTTL time.Duration

	// Consent reconciliation
	ReconcileCronSpec string
	ReconcileLookback time.Duration

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		n, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(n) * time.Second, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		n, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, nil
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogPretty = getEnv("LOG_PRETTY", "false") == "true"

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL, err = getRequiredEnv("DATABASE_URL"); err != nil {
			return nil, err
		}
	case StoreDriverMongo:
		if cfg.MongoURI, err = getRequiredEnv("MONGO_URI"); err != nil {
			return nil, err
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q", cfg.StoreDriver)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "studyhub")
	maxConns, err := getInt("DATABASE_MAX_CONNS", "10")
	if err != nil {
		return nil, err
	}
	cfg.DatabaseMaxConns = int32(maxConns)

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}

	if cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET"); err != nil {
		return nil, err
	}
	if cfg.JwtTTL, err = getSeconds("JWT_TTL_SECONDS", "3600"); err != nil {
		return nil, err
	}
	if cfg.CaptchaTokenTTL, err = getSeconds("CAPTCHA_TOKEN_TTL", "1200"); err != nil {
		return nil, err
	}
	if cfg.AgentInviteTTL, err = getSeconds("AGENT_INVITE_TTL_SECONDS", "604800"); err != nil {
		return nil, err
	}
	if cfg.UnsubscribeLinkTTL, err = getSeconds("UNSUBSCRIBE_LINK_TTL_SECONDS", "31536000"); err != nil {
		return nil, err
	}

	cfg.AdminEmail = strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", "")))
	cfg.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", "")

	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.PublicSiteURL = strings.TrimRight(getEnv("PUBLIC_SITE_URL", "http://localhost:3000"), "/")

	cfg.RecaptchaSecretKey = getEnv("RECAPTCHA_SECRET_KEY", "")
	cfg.RecaptchaVerifyURL = getEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify")
	cfg.RecaptchaAction = getEnv("RECAPTCHA_ACTION", "counselling_booking")
	if cfg.RecaptchaMinScore, err = strconv.ParseFloat(getEnv("RECAPTCHA_MIN_SCORE", "0.5"), 64); err != nil {
		return nil, fmt.Errorf("invalid RECAPTCHA_MIN_SCORE: %w", err)
	}

	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@studyhub.example.com")
	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	cfg.AdminNotifyEmail = getEnv("ADMIN_NOTIFY_EMAIL", cfg.AdminEmail)
	cfg.DefaultLocale = getEnv("DEFAULT_LOCALE", "en-US")
	cfg.MockServices = getEnv("MOCK_SERVICES", "false") == "true"
	cfg.EmailLogFile = getEnv("LOG_EMAILS", "")

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "ap-southeast-2")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	if cfg.DocumentMaxSizeMB, err = getInt("DOCUMENT_MAX_SIZE_MB", "10"); err != nil {
		return nil, err
	}
	cfg.DocumentMimeTypes = splitList(getEnv("DOCUMENT_MIME_TYPES", "application/pdf,image/jpeg,image/png"))
	if cfg.DocumentUploadURLTTL, err = getSeconds("DOCUMENT_UPLOAD_URL_TTL_SECONDS", "900"); err != nil {
		return nil, err
	}

	if cfg.CatalogCacheTTL, err = getSeconds("CATALOG_CACHE_TTL_SECONDS", "300"); err != nil {
		return nil, err
	}

	cfg.ReconcileCronSpec = getEnv("RECONCILE_CRON", "@every 1h")
	if cfg.ReconcileLookback, err = getSeconds("RECONCILE_LOOKBACK_SECONDS", "172800"); err != nil {
		return nil, err
	}

	if cfg.RateLimitSoftBucketSize, err = getInt("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"); err != nil {
		return nil, err
	}
	if cfg.RateLimitSoftRefillRate, err = getInt("RATE_LIMIT_SOFT_REFILL_RATE", "1"); err != nil {
		return nil, err
	}
	if cfg.RateLimitHardBucketSize, err = getInt("RATE_LIMIT_HARD_BUCKET_SIZE", "8"); err != nil {
		return nil, err
	}
	if cfg.RateLimitHardRefillRate, err = getInt("RATE_LIMIT_HARD_REFILL_RATE", "4"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
