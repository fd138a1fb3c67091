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

// Notifier drivers.
const (
	NotifierHTTP = "http"
	NotifierSMTP = "smtp"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Log      LogConfig
	CORS     CORSConfig
	AdminAPI AdminAPIConfig
	Rules    RulesConfig
	Sheet    SheetConfig
	Notifier NotifierConfig
	Identity IdentityConfig
	Bulk     BulkConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Export   ExportConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// AdminAPIConfig points at the CMS admin API used for sources, sheets and publishing.
type AdminAPIConfig struct {
	SourceBaseURL  string
	PublishBaseURL string
	Token          string
	Ref            string
	Timeout        time.Duration
}

// RulesConfig locates the approval rule document and its sections.
type RulesConfig struct {
	ConfigPath    string
	RulesSection  string
	GroupsSection string
	CacheTTL      time.Duration
}

// SheetConfig locates the publish request sheet.
type SheetConfig struct {
	Path         string
	WriteRetries int
}

// NotifierConfig selects and configures the notification sender.
type NotifierConfig struct {
	Driver        string
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RetryMax      int
	RetryDelay    time.Duration
	RetryWorkers  int
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	SMTPFromName  string
	ContentOrigin string
}

// IdentityConfig controls bearer token resolution.
type IdentityConfig struct {
	JWTSecret  string
	JWTIssuer  string
	ProfileURL string
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// BulkConfig bounds bulk publish job polling.
type BulkConfig struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// DatabaseConfig configures the optional decision log store.
type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// ExportConfig tunes the pending request report.
type ExportConfig struct {
	Title string
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

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.AdminAPI = AdminAPIConfig{
		SourceBaseURL:  strings.TrimRight(v.GetString("ADMIN_SOURCE_BASE_URL"), "/"),
		PublishBaseURL: strings.TrimRight(v.GetString("ADMIN_PUBLISH_BASE_URL"), "/"),
		Token:          v.GetString("ADMIN_API_TOKEN"),
		Ref:            v.GetString("ADMIN_PUBLISH_REF"),
		Timeout:        parseDuration(v.GetString("ADMIN_API_TIMEOUT"), 15*time.Second),
	}

	cfg.Rules = RulesConfig{
		ConfigPath:    v.GetString("RULES_CONFIG_PATH"),
		RulesSection:  v.GetString("RULES_SECTION"),
		GroupsSection: v.GetString("RULES_GROUPS_SECTION"),
		CacheTTL:      parseDuration(v.GetString("RULES_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Sheet = SheetConfig{
		Path:         v.GetString("SHEET_PATH"),
		WriteRetries: v.GetInt("SHEET_WRITE_RETRIES"),
	}

	cfg.Notifier = NotifierConfig{
		Driver:        strings.ToLower(v.GetString("NOTIFIER_DRIVER")),
		BaseURL:       strings.TrimRight(v.GetString("NOTIFIER_BASE_URL"), "/"),
		Token:         v.GetString("NOTIFIER_TOKEN"),
		Timeout:       parseDuration(v.GetString("NOTIFIER_TIMEOUT"), 10*time.Second),
		RetryMax:      v.GetInt("NOTIFY_RETRY_MAX"),
		RetryDelay:    parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 30*time.Second),
		RetryWorkers:  v.GetInt("NOTIFY_RETRY_WORKERS"),
		SMTPHost:      v.GetString("SMTP_HOST"),
		SMTPPort:      v.GetString("SMTP_PORT"),
		SMTPUsername:  v.GetString("SMTP_USERNAME"),
		SMTPPassword:  v.GetString("SMTP_PASSWORD"),
		SMTPFrom:      v.GetString("SMTP_FROM"),
		SMTPFromName:  v.GetString("SMTP_FROM_NAME"),
		ContentOrigin: strings.TrimRight(v.GetString("CONTENT_ORIGIN"), "/"),
	}

	cfg.Identity = IdentityConfig{
		JWTSecret:  v.GetString("JWT_SECRET"),
		JWTIssuer:  v.GetString("JWT_ISSUER"),
		ProfileURL: v.GetString("IDENTITY_PROFILE_URL"),
		Timeout:    parseDuration(v.GetString("IDENTITY_TIMEOUT"), 5*time.Second),
		CacheTTL:   parseDuration(v.GetString("IDENTITY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Bulk = BulkConfig{
		PollInterval: parseDuration(v.GetString("BULK_POLL_INTERVAL"), 2*time.Second),
		MaxWait:      parseDuration(v.GetString("BULK_MAX_WAIT"), 60*time.Second),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Export = ExportConfig{Title: v.GetString("EXPORT_TITLE")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ALLOWED_ORIGINS", "")

	v.SetDefault("ADMIN_SOURCE_BASE_URL", "https://admin.da.live/source")
	v.SetDefault("ADMIN_PUBLISH_BASE_URL", "https://admin.hlx.page")
	v.SetDefault("ADMIN_API_TOKEN", "")
	v.SetDefault("ADMIN_PUBLISH_REF", "main")
	v.SetDefault("ADMIN_API_TIMEOUT", "15s")

	v.SetDefault("RULES_CONFIG_PATH", ".da/config.json")
	v.SetDefault("RULES_SECTION", "publish-approvals")
	v.SetDefault("RULES_GROUPS_SECTION", "publish-groups")
	v.SetDefault("RULES_CACHE_TTL", "5m")

	v.SetDefault("SHEET_PATH", ".da/publish-requests.json")
	v.SetDefault("SHEET_WRITE_RETRIES", 3)

	v.SetDefault("NOTIFIER_DRIVER", NotifierHTTP)
	v.SetDefault("NOTIFIER_BASE_URL", "")
	v.SetDefault("NOTIFIER_TIMEOUT", "10s")
	v.SetDefault("NOTIFY_RETRY_MAX", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "30s")
	v.SetDefault("NOTIFY_RETRY_WORKERS", 1)
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("SMTP_FROM_NAME", "Publish Workflow")
	v.SetDefault("CONTENT_ORIGIN", "")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("IDENTITY_PROFILE_URL", "")
	v.SetDefault("IDENTITY_TIMEOUT", "5s")
	v.SetDefault("IDENTITY_CACHE_TTL", "5m")

	v.SetDefault("BULK_POLL_INTERVAL", "2s")
	v.SetDefault("BULK_MAX_WAIT", "60s")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "publish_approvals")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("EXPORT_TITLE", "Pending publish requests")
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
