package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers.
const (
	StorageDriverLocal = "local"
	StorageDriverHTTP  = "http"
)

// Mail drivers.
const (
	MailDriverLog      = "log"
	MailDriverSendgrid = "sendgrid"
)

type Config struct {
	Env             string
	Port            int
	APIPrefix       string
	ExportBatchSize int

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Storage     StorageConfig
	Attachments AttachmentConfig
	Identifiers IdentifierConfig
	Mail        MailConfig
	Cache       CacheConfig
	Orphans     OrphanConfig
	Tracing     TracingConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects and tunes the object store holding attachment blobs.
type StorageConfig struct {
	Driver          string
	Dir             string
	BaseURL         string
	Endpoint        string
	Token           string
	Timeout         time.Duration
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// AttachmentConfig constrains accepted uploads.
type AttachmentConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	Roles            []string
}

// IdentifierConfig shapes external identifiers (prefix + optional year + padded sequence).
type IdentifierConfig struct {
	Width              int
	EnquiryPrefix      string
	AdmissionPrefix    string
	RegistrationPrefix string
	YearScoped         []string
}

// MailConfig configures the notification dispatcher and its outbox workers.
type MailConfig struct {
	Driver         string
	SendgridAPIKey string
	FromName       string
	FromAddress    string
	SubjectPrefix  string
	Timeout        time.Duration
	Workers        int
	Retries        int
	RetryDelay     time.Duration
}

// CacheConfig governs caching of public verification lookups.
type CacheConfig struct {
	VerifyEnabled bool
	VerifyTTL     time.Duration
	LocalSize     int
	Namespace     string
}

// OrphanConfig tunes the background sweeper for blobs whose remote delete failed.
type OrphanConfig struct {
	SweepInterval time.Duration
	BatchSize     int
	MaxAttempts   int
}

// TracingConfig toggles OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
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
	cfg.ExportBatchSize = v.GetInt("EXPORT_BATCH_SIZE")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		Dir:             v.GetString("STORAGE_DIR"),
		BaseURL:         v.GetString("STORAGE_BASE_URL"),
		Endpoint:        v.GetString("STORAGE_ENDPOINT"),
		Token:           v.GetString("STORAGE_TOKEN"),
		Timeout:         parseDuration(v.GetString("STORAGE_TIMEOUT"), 15*time.Second),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 15*time.Minute),
	}

	maxSize := v.GetInt64("ATTACHMENT_MAX_FILE_SIZE")
	if maxSize <= 0 {
		maxSize = 5 * 1024 * 1024
	}
	cfg.Attachments = AttachmentConfig{
		MaxFileSizeBytes: maxSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("ATTACHMENT_ALLOWED_MIME_TYPES")),
		Roles:            splitAndTrim(v.GetString("ATTACHMENT_ROLES")),
	}

	cfg.Identifiers = IdentifierConfig{
		Width:              v.GetInt("ID_WIDTH"),
		EnquiryPrefix:      v.GetString("ID_PREFIX_ENQUIRY"),
		AdmissionPrefix:    v.GetString("ID_PREFIX_ADMISSION"),
		RegistrationPrefix: v.GetString("ID_PREFIX_REGISTRATION"),
		YearScoped:         splitAndTrim(v.GetString("ID_YEAR_SCOPED")),
	}

	cfg.Mail = MailConfig{
		Driver:         strings.ToLower(v.GetString("MAIL_DRIVER")),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		SubjectPrefix:  v.GetString("MAIL_SUBJECT_PREFIX"),
		Timeout:        parseDuration(v.GetString("MAIL_TIMEOUT"), 10*time.Second),
		Workers:        v.GetInt("MAIL_WORKERS"),
		Retries:        v.GetInt("MAIL_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("MAIL_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Cache = CacheConfig{
		VerifyEnabled: v.GetBool("ENABLE_VERIFY_CACHE"),
		VerifyTTL:     parseDuration(v.GetString("VERIFY_CACHE_TTL"), 10*time.Minute),
		LocalSize:     v.GetInt("LOCAL_CACHE_SIZE"),
		Namespace:     v.GetString("CACHE_NAMESPACE"),
	}

	cfg.Orphans = OrphanConfig{
		SweepInterval: parseDuration(v.GetString("ORPHAN_SWEEP_INTERVAL"), 15*time.Minute),
		BatchSize:     v.GetInt("ORPHAN_SWEEP_BATCH"),
		MaxAttempts:   v.GetInt("ORPHAN_MAX_ATTEMPTS"),
	}

	cfg.Tracing = TracingConfig{
		Enabled:     v.GetBool("TRACING_ENABLED"),
		ServiceName: v.GetString("TRACING_SERVICE_NAME"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("EXPORT_BATCH_SIZE", 500)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "sma-admissions-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_DIR", "./uploads")
	v.SetDefault("STORAGE_BASE_URL", "/files")
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_TOKEN", "")
	v.SetDefault("STORAGE_TIMEOUT", "15s")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "15m")

	v.SetDefault("ATTACHMENT_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("ATTACHMENT_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp,application/pdf")
	v.SetDefault("ATTACHMENT_ROLES", "photo,birth-certificate,transfer-certificate,report-card,aadhaar-card,admit-card")

	v.SetDefault("ID_WIDTH", 6)
	v.SetDefault("ID_PREFIX_ENQUIRY", "ENQ")
	v.SetDefault("ID_PREFIX_ADMISSION", "ADM")
	v.SetDefault("ID_PREFIX_REGISTRATION", "ATAT")
	v.SetDefault("ID_YEAR_SCOPED", "")

	v.SetDefault("MAIL_DRIVER", MailDriverLog)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "Admissions Office")
	v.SetDefault("MAIL_FROM_ADDRESS", "admissions@example.sch.id")
	v.SetDefault("MAIL_SUBJECT_PREFIX", "[Admissions] ")
	v.SetDefault("MAIL_TIMEOUT", "10s")
	v.SetDefault("MAIL_WORKERS", 2)
	v.SetDefault("MAIL_RETRIES", 3)
	v.SetDefault("MAIL_RETRY_DELAY", "5s")

	v.SetDefault("ENABLE_VERIFY_CACHE", true)
	v.SetDefault("VERIFY_CACHE_TTL", "10m")
	v.SetDefault("LOCAL_CACHE_SIZE", 1024)
	v.SetDefault("CACHE_NAMESPACE", "admissions")

	v.SetDefault("ORPHAN_SWEEP_INTERVAL", "15m")
	v.SetDefault("ORPHAN_SWEEP_BATCH", 50)
	v.SetDefault("ORPHAN_MAX_ATTEMPTS", 10)

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_SERVICE_NAME", "sma-admissions-api")
}

// IsYearScoped reports whether identifiers of the category embed the year.
func (c IdentifierConfig) IsYearScoped(category string) bool {
	for _, scoped := range c.YearScoped {
		if strings.EqualFold(scoped, category) {
			return true
		}
	}
	return false
}

// SetConfigFile bypasses the search path, so a missing .env surfaces as a
// *fs.PathError rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
