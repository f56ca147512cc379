package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config. An empty host disables redis.
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Dedup
	DedupBackend string // "memory" or "redis"
	DedupWindow  time.Duration

	// Trigger auth
	CronSecret string

	// Web Push
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushTTL         time.Duration
	PushTimeout     time.Duration

	DispatchConcurrency int

	// Evaluators
	DefaultThreshold  int
	DeliveryExamples  int
	InventoryExamples int
	Timezone          string

	TriggerTimeout time.Duration
	CheckInterval  time.Duration // 0 disables the in-process scheduler

	// Public endpoint protection
	RateLimit          int
	RateLimitWindow    time.Duration
	CORSAllowedOrigins []string

	// AWS mirror sinks
	AWSRegion       string
	MirrorTopicARN  string
	MirrorEmailTo   string
	MirrorEmailFrom string

	MirrorWebhookURL string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "postgres",
		DBPassword: "",
		DBName:     "pushwatch",
		DBSSLMode:  "disable",

		RedisPort: 6379,

		DedupBackend: "memory",
		DedupWindow:  5 * time.Minute,

		VAPIDSubject: "mailto:admin@example.com",
		PushTTL:      24 * time.Hour,
		PushTimeout:  10 * time.Second,

		DispatchConcurrency: 1,

		DefaultThreshold:  10,
		DeliveryExamples:  4,
		InventoryExamples: 5,
		Timezone:          "UTC",

		TriggerTimeout: 60 * time.Second,

		RateLimit:          30,
		RateLimitWindow:    time.Minute,
		CORSAllowedOrigins: []string{"*"},

		AWSRegion: "us-east-1",
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Dedup config
	if backend := os.Getenv("DEDUP_BACKEND"); backend != "" {
		if backend != "memory" && backend != "redis" {
			return nil, fmt.Errorf("invalid DEDUP_BACKEND: %q", backend)
		}
		cfg.DedupBackend = backend
	}

	if err := durationEnv("DEDUP_WINDOW", &cfg.DedupWindow); err != nil {
		return nil, err
	}
	if cfg.DedupWindow <= 0 {
		return nil, fmt.Errorf("invalid DEDUP_WINDOW: %s must be positive", cfg.DedupWindow)
	}

	cfg.CronSecret = os.Getenv("CRON_SECRET")

	// Web Push config
	cfg.VAPIDPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	cfg.VAPIDPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")

	if subject := os.Getenv("VAPID_SUBJECT"); subject != "" {
		cfg.VAPIDSubject = subject
	}

	if err := durationEnv("PUSH_TTL", &cfg.PushTTL); err != nil {
		return nil, err
	}

	if err := durationEnv("PUSH_TIMEOUT", &cfg.PushTimeout); err != nil {
		return nil, err
	}

	if err := intEnv("DISPATCH_CONCURRENCY", &cfg.DispatchConcurrency); err != nil {
		return nil, err
	}

	// Evaluator config
	if err := intEnv("DEFAULT_LOW_STOCK_THRESHOLD", &cfg.DefaultThreshold); err != nil {
		return nil, err
	}

	if err := intEnv("DELIVERY_EXAMPLES", &cfg.DeliveryExamples); err != nil {
		return nil, err
	}

	if err := intEnv("INVENTORY_EXAMPLES", &cfg.InventoryExamples); err != nil {
		return nil, err
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
		}
		cfg.Timezone = tz
	}

	if err := durationEnv("TRIGGER_TIMEOUT", &cfg.TriggerTimeout); err != nil {
		return nil, err
	}

	if err := durationEnv("CHECK_INTERVAL", &cfg.CheckInterval); err != nil {
		return nil, err
	}

	// Rate limiting / CORS
	if err := intEnv("RATE_LIMIT", &cfg.RateLimit); err != nil {
		return nil, err
	}

	if err := durationEnv("RATE_LIMIT_WINDOW", &cfg.RateLimitWindow); err != nil {
		return nil, err
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	// AWS mirror sinks
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	cfg.MirrorTopicARN = os.Getenv("MIRROR_SNS_TOPIC_ARN")
	cfg.MirrorEmailTo = os.Getenv("MIRROR_EMAIL_TO")
	cfg.MirrorEmailFrom = os.Getenv("MIRROR_EMAIL_FROM")
	cfg.MirrorWebhookURL = os.Getenv("MIRROR_WEBHOOK_URL")

	return cfg, nil
}

// VAPIDConfigured reports whether both halves of the VAPID key pair are set.
func (c *Config) VAPIDConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Location returns the time zone used to decide what "today" is.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func intEnv(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func durationEnv(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
