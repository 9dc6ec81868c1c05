package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (trailing risk cache; optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT (issued by the calling apps, verified here)
	JWTSecret string

	// Admin
	AdminEmails  string
	AdminUserIDs string
	AdminToken   string

	// Server
	Port        string
	CORSOrigins string

	// App registry
	AppsConfigPath string

	// Safety pipeline documents. Empty paths use the embedded defaults.
	PolicyPath    string
	PatternsPath  string
	ResourcesPath string

	StoreTimeout    time.Duration
	ResourceTimeout time.Duration
	ValidateTimeout time.Duration
	DefaultCountry  string
	ValidationMode  string

	// ContentHashKey keys the blake2b fingerprint stored instead of raw text.
	ContentHashKey string

	RetentionCron string

	SentryDSN   string
	Environment string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "safeguard_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       parseInt(getEnv("REDIS_DB", "0")),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AdminEmails:  getEnv("ADMIN_EMAILS", ""),
		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		AppsConfigPath: getEnv("APPS_CONFIG_PATH", "apps.json"),

		PolicyPath:    getEnv("SAFETY_POLICY_PATH", ""),
		PatternsPath:  getEnv("SAFETY_PATTERNS_PATH", ""),
		ResourcesPath: getEnv("SAFETY_RESOURCES_PATH", ""),

		StoreTimeout:    parseDuration(getEnv("SAFETY_STORE_TIMEOUT", "3s")),
		ResourceTimeout: parseDuration(getEnv("SAFETY_RESOURCE_TIMEOUT", "2s")),
		ValidateTimeout: parseDuration(getEnv("SAFETY_VALIDATE_TIMEOUT", "2s")),
		DefaultCountry:  getEnv("SAFETY_DEFAULT_COUNTRY", "US"),
		ValidationMode:  getEnv("VALIDATION_MODE", "parallel"),

		ContentHashKey: getEnv("CONTENT_HASH_KEY", ""),

		RetentionCron: getEnv("RETENTION_CRON", "0 3 * * *"),

		SentryDSN:   getEnv("SENTRY_DSN", ""),
		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

func parseInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
