package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode      string // Set via flag, not env
	LogLevel     string
	LogJSON      bool
	MockServices bool

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret       string
	JwtTTL          time.Duration
	CaptchaTokenTTL time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string
	MetricsPath    string
	CorsOrigins    string

	// Public URL the review links point at
	AppURL string

	// Cron
	CronSecret              string
	OutstandingScanSchedule string
	InstallmentScanSchedule string

	// Cloudflare
	CloudflareTurnstileSecretKey string
	CloudflareSiteVerifyURL      string

	// Billing
	ReminderInterval        time.Duration
	InstallmentLookaheadDay int
	BillPaymentTermDays     int
	ClientApprovalTokenTTL  time.Duration
	DefaultCurrency         string
	BulkConcurrency         int

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailMockToFile string

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	SignatureMaxWidth  int
	SignatureMaxSizeMB int
	SignatureUploadTTL time.Duration
	SignatureKeyPrefix string

	// App Defaults
	AppName        string
	PasswordRegexp string

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

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getDuration := func(key, defaultValue string, unit time.Duration) (time.Duration, error) {
		v, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(v) * unit, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "chambers")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	// Cron endpoints are disabled when unset
	cfg.CronSecret = getEnv("CRON_SECRET", "")

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogJSON = getEnv("LOG_FORMAT", "json") == "json"
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "8081")
	cfg.MockServices = getEnv("MOCK_SERVICES", "") == "true"
	cfg.MetricsPath = getEnv("METRICS_PATH", "/metrics")
	cfg.CorsOrigins = getEnv("CORS_ORIGINS", "*")
	cfg.AppURL = firstNonEmpty(os.Getenv("APP_URL"), os.Getenv("NEXTAUTH_URL"), os.Getenv("NEXT_PUBLIC_APP_URL"), "http://localhost:3000")
	cfg.OutstandingScanSchedule = getEnv("OUTSTANDING_SCAN_SCHEDULE", "0 8 * * *")
	cfg.InstallmentScanSchedule = getEnv("INSTALLMENT_SCAN_SCHEDULE", "30 8 * * *")
	cfg.CloudflareTurnstileSecretKey = getEnv("CLOUDFLARE_TURNSTILE_SECRET_KEY", "")
	cfg.CloudflareSiteVerifyURL = getEnv("CLOUDFLARE_SITEVERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify")
	cfg.DefaultCurrency = getEnv("DEFAULT_CURRENCY", "USD")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@chambers.example.com")
	cfg.EmailMockToFile = getEnv("EMAIL_MOCK_TO_FILE", "")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.SignatureKeyPrefix = getEnv("SIGNATURE_KEY_PREFIX", "signatures/")
	cfg.AppName = getEnv("APP_NAME", "Chambers")
	cfg.PasswordRegexp = getEnv("PASSWORD_REGEXP", "^.{8,}$")

	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.JwtTTL, err = getDuration("JWT_TTL_SECONDS", "3600", time.Second); err != nil {
		return nil, err
	}
	if cfg.CaptchaTokenTTL, err = getDuration("CAPTCHA_TOKEN_TTL", "1200", time.Second); err != nil {
		return nil, err
	}
	if cfg.SmtpPort, err = getInt("SMTP_PORT", "587"); err != nil {
		return nil, err
	}
	if cfg.ReminderInterval, err = getDuration("REMINDER_INTERVAL_DAYS", "7", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.InstallmentLookaheadDay, err = getInt("INSTALLMENT_LOOKAHEAD_DAYS", "7"); err != nil {
		return nil, err
	}
	if cfg.BillPaymentTermDays, err = getInt("BILL_PAYMENT_TERM_DAYS", "30"); err != nil {
		return nil, err
	}
	if cfg.ClientApprovalTokenTTL, err = getDuration("CLIENT_APPROVAL_TOKEN_TTL_DAYS", "30", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BulkConcurrency, err = getInt("BULK_CONCURRENCY", "8"); err != nil {
		return nil, err
	}
	if cfg.SignatureMaxWidth, err = getInt("SIGNATURE_MAX_WIDTH", "800"); err != nil {
		return nil, err
	}
	if cfg.SignatureMaxSizeMB, err = getInt("SIGNATURE_MAX_SIZE_MB", "5"); err != nil {
		return nil, err
	}
	if cfg.SignatureUploadTTL, err = getDuration("SIGNATURE_UPLOAD_TTL_MINUTES", "15", time.Minute); err != nil {
		return nil, err
	}

	// Rate Limiting
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) validate() error {
	for key, spec := range map[string]string{
		"OUTSTANDING_SCAN_SCHEDULE": c.OutstandingScanSchedule,
		"INSTALLMENT_SCAN_SCHEDULE": c.InstallmentScanSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("invalid REMINDER_INTERVAL_DAYS: must be positive")
	}
	if c.InstallmentLookaheadDay < 0 {
		return fmt.Errorf("invalid INSTALLMENT_LOOKAHEAD_DAYS: must not be negative")
	}
	if c.BulkConcurrency < 1 {
		return fmt.Errorf("invalid BULK_CONCURRENCY: must be at least 1")
	}
	return nil
}
