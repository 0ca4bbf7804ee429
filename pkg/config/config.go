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

// Storage drivers supported for QR image uploads.
const (
	StorageDriverCollege = "college"
	StorageDriverOSS     = "oss"
	StorageDriverLocal   = "local"
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
	College   CollegeAPIConfig
	QRSession QRSessionConfig
	Storage   StorageConfig
	History   HistoryConfig
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
	CacheTTL time.Duration
}

type JWTConfig struct {
	Secret string
	// Required rejects requests without a valid token. When false, any bearer
	// token is forwarded upstream unverified and identity may come from headers
	// or the query, which is only safe behind a proxy that sets them.
	Required bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CollegeAPIConfig points at the upstream college administration REST API.
type CollegeAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// QRSessionConfig tunes the QR attendance session lifecycle.
type QRSessionConfig struct {
	JoinOrigin      string
	JoinPath        string
	DefaultDuration time.Duration
	PollInterval    time.Duration
	ImageSize       int
	TimeZone        string
	IdleTTL         time.Duration
	ReaperSchedule  string
}

// StorageConfig selects where rendered QR images are uploaded.
type StorageConfig struct {
	Driver          string
	LocalDir        string
	PublicBaseURL   string
	SignedURLSecret string
	SignedURLGrace  time.Duration
	LocalRetention  time.Duration
	OSSEndpoint     string
	OSSAccessKey    string
	OSSSecretKey    string
	OSSBucket       string
	OSSPrefix       string
}

// HistoryConfig gates persistence of stopped session summaries.
type HistoryConfig struct {
	Enabled       bool
	WorkerRetries int
}

// Location resolves the configured wall-clock zone, falling back to UTC.
func (c QRSessionConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
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
		CacheTTL: parseDuration(v.GetString("CACHE_TTL"), 10*time.Minute),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET"), Required: v.GetBool("JWT_REQUIRED")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.College = CollegeAPIConfig{
		BaseURL: strings.TrimRight(v.GetString("COLLEGE_API_BASE_URL"), "/"),
		Timeout: parseDuration(v.GetString("COLLEGE_API_TIMEOUT"), 10*time.Second),
	}

	imageSize := v.GetInt("QR_IMAGE_SIZE")
	if imageSize <= 0 {
		imageSize = 512
	}
	cfg.QRSession = QRSessionConfig{
		JoinOrigin:      strings.TrimRight(v.GetString("QR_JOIN_ORIGIN"), "/"),
		JoinPath:        v.GetString("QR_JOIN_PATH"),
		DefaultDuration: parseDuration(v.GetString("QR_DEFAULT_DURATION"), 5*time.Minute),
		PollInterval:    parseDuration(v.GetString("QR_POLL_INTERVAL"), 15*time.Second),
		ImageSize:       imageSize,
		TimeZone:        v.GetString("QR_TIMEZONE"),
		IdleTTL:         parseDuration(v.GetString("QR_IDLE_TTL"), 2*time.Hour),
		ReaperSchedule:  v.GetString("QR_REAPER_SCHEDULE"),
	}

	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		PublicBaseURL:   strings.TrimRight(v.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLGrace:  parseDuration(v.GetString("STORAGE_SIGNED_URL_GRACE"), time.Hour),
		LocalRetention:  parseDuration(v.GetString("STORAGE_LOCAL_RETENTION"), 24*time.Hour),
		OSSEndpoint:     v.GetString("ALI_OSS_ENDPOINT"),
		OSSAccessKey:    v.GetString("ALI_OSS_ACCESS_KEY"),
		OSSSecretKey:    v.GetString("ALI_OSS_SECRET_KEY"),
		OSSBucket:       v.GetString("ALI_OSS_BUCKET"),
		OSSPrefix:       v.GetString("ALI_OSS_PREFIX"),
	}

	cfg.History = HistoryConfig{
		Enabled:       v.GetBool("ENABLE_SESSION_HISTORY"),
		WorkerRetries: v.GetInt("HISTORY_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "college_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "10m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_REQUIRED", true)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("COLLEGE_API_BASE_URL", "http://localhost:5000/api")
	v.SetDefault("COLLEGE_API_TIMEOUT", "10s")

	v.SetDefault("QR_JOIN_ORIGIN", "http://localhost:3000")
	v.SetDefault("QR_JOIN_PATH", "/student/timetable/mark-attendance")
	v.SetDefault("QR_DEFAULT_DURATION", "5m")
	v.SetDefault("QR_POLL_INTERVAL", "15s")
	v.SetDefault("QR_IMAGE_SIZE", 512)
	v.SetDefault("QR_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("QR_IDLE_TTL", "2h")
	v.SetDefault("QR_REAPER_SCHEDULE", "@every 5m")

	v.SetDefault("STORAGE_DRIVER", StorageDriverCollege)
	v.SetDefault("STORAGE_LOCAL_DIR", "./qr-images")
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_qr_images_secret")
	v.SetDefault("STORAGE_SIGNED_URL_GRACE", "1h")
	v.SetDefault("STORAGE_LOCAL_RETENTION", "24h")
	v.SetDefault("ALI_OSS_PREFIX", "qr-sessions/")

	v.SetDefault("ENABLE_SESSION_HISTORY", false)
	v.SetDefault("HISTORY_WORKER_RETRIES", 3)
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
