package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Analytics AnalyticsConfig
	Mail      MailConfig
	Scheduler SchedulerConfig
	Reports   ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AnalyticsConfig governs read caching and the recompute worker.
type AnalyticsConfig struct {
	CacheEnabled   bool
	CacheTTL       time.Duration
	WorkerCount    int
	QueueSize      int
	RecomputeRetry int
}

// MailConfig carries credentials for every supported provider. The first configured
// provider wins in the order SendGrid, Mailgun, SMTP.
type MailConfig struct {
	From    string
	AppName string

	SendGridAPIKey string
	SendGridHost   string

	MailgunAPIKey  string
	MailgunDomain  string
	MailgunBaseURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPImplicit bool

	HTTPTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RatePerSecond  float64

	// RecipientOverrides maps student ids to sandbox addresses. Development only.
	RecipientOverrides map[string]string
}

// SchedulerConfig toggles cron-driven background work.
type SchedulerConfig struct {
	Enabled            bool
	AnalyticsSweepCron string
	MergedReportCron   string
	Timezone           string
}

// ReportsConfig configures merged report storage and download links.
type ReportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	RetentionTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Analytics = AnalyticsConfig{
		CacheEnabled:   v.GetBool("ENABLE_ANALYTICS_CACHE"),
		CacheTTL:       parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
		WorkerCount:    v.GetInt("ANALYTICS_WORKERS"),
		QueueSize:      v.GetInt("ANALYTICS_QUEUE_SIZE"),
		RecomputeRetry: v.GetInt("ANALYTICS_RECOMPUTE_RETRIES"),
	}

	cfg.Mail = MailConfig{
		From:               v.GetString("MAIL_FROM"),
		AppName:            v.GetString("APP_NAME"),
		SendGridAPIKey:     v.GetString("SENDGRID_API_KEY"),
		SendGridHost:       v.GetString("SENDGRID_HOST"),
		MailgunAPIKey:      v.GetString("MAILGUN_API_KEY"),
		MailgunDomain:      v.GetString("MAILGUN_DOMAIN"),
		MailgunBaseURL:     v.GetString("MAILGUN_API_BASE_URL"),
		SMTPHost:           v.GetString("SMTP_HOST"),
		SMTPPort:           v.GetInt("SMTP_PORT"),
		SMTPUser:           v.GetString("SMTP_USER"),
		SMTPPassword:       v.GetString("SMTP_PASS"),
		SMTPImplicit:       v.GetBool("SMTP_SECURE"),
		HTTPTimeout:        parseDuration(v.GetString("MAIL_HTTP_TIMEOUT"), 10*time.Second),
		MaxAttempts:        v.GetInt("MAIL_MAX_ATTEMPTS"),
		InitialBackoff:     parseDuration(v.GetString("MAIL_INITIAL_BACKOFF"), 500*time.Millisecond),
		MaxBackoff:         parseDuration(v.GetString("MAIL_MAX_BACKOFF"), 20*time.Second),
		RatePerSecond:      v.GetFloat64("MAIL_RATE_PER_SECOND"),
		RecipientOverrides: parsePairs(v.GetString("MAIL_RECIPIENT_OVERRIDES")),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:            v.GetBool("ENABLE_SCHEDULER"),
		AnalyticsSweepCron: v.GetString("ANALYTICS_SWEEP_CRON"),
		MergedReportCron:   v.GetString("MERGED_REPORT_CRON"),
		Timezone:           v.GetString("SCHEDULER_TIMEZONE"),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		RetentionTTL:    parseDuration(v.GetString("REPORTS_RETENTION_TTL"), 90*24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 4000)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("APP_NAME", "WAA-100")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "waa100")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev-secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_ANALYTICS_CACHE", false)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")
	v.SetDefault("ANALYTICS_WORKERS", 1)
	v.SetDefault("ANALYTICS_QUEUE_SIZE", 16)
	v.SetDefault("ANALYTICS_RECOMPUTE_RETRIES", 2)

	v.SetDefault("MAIL_FROM", "WAA-100 <no-reply@example.com>")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("SENDGRID_HOST", "https://api.sendgrid.com")
	v.SetDefault("MAILGUN_API_KEY", "")
	v.SetDefault("MAILGUN_DOMAIN", "")
	v.SetDefault("MAILGUN_API_BASE_URL", "https://api.mailgun.net")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_SECURE", false)
	v.SetDefault("MAIL_HTTP_TIMEOUT", "10s")
	v.SetDefault("MAIL_MAX_ATTEMPTS", 5)
	v.SetDefault("MAIL_INITIAL_BACKOFF", "500ms")
	v.SetDefault("MAIL_MAX_BACKOFF", "20s")
	v.SetDefault("MAIL_RATE_PER_SECOND", 0)
	v.SetDefault("MAIL_RECIPIENT_OVERRIDES", "")

	v.SetDefault("ENABLE_SCHEDULER", false)
	v.SetDefault("ANALYTICS_SWEEP_CRON", "0 2 * * 1")
	v.SetDefault("MERGED_REPORT_CRON", "0 23 * * *")
	v.SetDefault("SCHEDULER_TIMEZONE", "Local")

	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_RETENTION_TTL", "2160h")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parsePairs reads "key=value,key=value" lists.
func parsePairs(raw string) map[string]string {
	pairs := splitAndTrim(raw)
	if len(pairs) == 0 {
		return nil
	}
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key != "" && value != "" {
			result[key] = value
		}
	}
	return result
}
