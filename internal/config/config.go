package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvProduction = "production"

// Config holds every setting read from the environment.
type Config struct {
	Port         int
	Env          string
	LogLevel     string
	DBDSN        string
	RedisURL     string
	AutoMigrate  bool
	JWTSecret    string
	JWTTTL       time.Duration
	AllowOrigins []string
	Upload       UploadConfig
	RateLimit    RateLimitConfig
	OTP          OTPConfig
}

type UploadConfig struct {
	Dir         string
	MaxFileSize int64
	PublicPath  string
}

// RateLimitConfig describes a fixed window budget; the limiter refills at
// MaxRequests/Window with a burst of MaxRequests.
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

func (c RateLimitConfig) RequestsPerSecond() float64 {
	if c.Window <= 0 {
		return float64(c.MaxRequests)
	}
	return float64(c.MaxRequests) / c.Window.Seconds()
}

type OTPConfig struct {
	Expiry        time.Duration
	MaxPerHour    int
	SMSWebhookURL string
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads the environment (and an optional .env file) applying defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := parseIntEnv("PORT", 5000)
	if err != nil || port <= 0 {
		return nil, errors.New("invalid PORT")
	}
	cfg.Port = port

	cfg.Env = strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", "development")))
	cfg.LogLevel = strings.TrimSpace(getEnv("LOG_LEVEL", "info"))

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN is required")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	cfg.AutoMigrate, err = strconv.ParseBool(getEnv("AUTO_MIGRATE", "false"))
	if err != nil {
		return nil, errors.New("invalid AUTO_MIGRATE")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET must have at least 32 characters")
	}

	cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg.AllowOrigins = splitList(getEnv("ALLOW_ORIGINS", ""))
	if frontend := strings.TrimSpace(getEnv("FRONTEND_URL", "http://localhost:5173")); frontend != "" {
		cfg.AllowOrigins = appendUnique(cfg.AllowOrigins, frontend)
	}

	cfg.Upload.Dir = getEnv("UPLOAD_DIR", "./uploads")
	maxSize, err := parseIntEnv("MAX_FILE_SIZE", 10*1024*1024)
	if err != nil || maxSize <= 0 {
		return nil, errors.New("invalid MAX_FILE_SIZE")
	}
	cfg.Upload.MaxFileSize = int64(maxSize)
	cfg.Upload.PublicPath = "/uploads"

	cfg.RateLimit.Window, err = parseDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.RateLimit.MaxRequests, err = parseIntEnv("RATE_LIMIT_MAX_REQUESTS", 100)
	if err != nil || cfg.RateLimit.MaxRequests <= 0 {
		return nil, errors.New("invalid RATE_LIMIT_MAX_REQUESTS")
	}

	cfg.OTP.Expiry, err = parseDurationEnv("OTP_EXPIRY", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.OTP.MaxPerHour, err = parseIntEnv("OTP_MAX_PER_HOUR", 5)
	if err != nil || cfg.OTP.MaxPerHour <= 0 {
		return nil, errors.New("invalid OTP_MAX_PER_HOUR")
	}
	cfg.OTP.SMSWebhookURL = strings.TrimSpace(getEnv("SMS_WEBHOOK_URL", ""))

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseIntEnv(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.New(key + " is invalid")
	}
	return n, nil
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " is invalid")
	}
	return dur, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func appendUnique(list []string, value string) []string {
	for _, item := range list {
		if item == value {
			return list
		}
	}
	return append(list, value)
}
