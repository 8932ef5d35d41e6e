package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	BasePath string

	// Backend surface consumed by the dashboard.
	BackendURL  string
	BackendKey  string
	AdminEmails string

	DBDriver string
	DBDSN    string

	StorageDir    string
	StorageBucket string
	SignedURLTTL  time.Duration

	RedisAddr     string
	RedisPassword string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	AdminPassword   string
	AuthAutoConfirm bool

	LogLevel string
	LogFile  string
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}

	cfg := Config{
		Port:     getenv("PORT", "8081"),
		Env:      getenv("APP_ENV", "production"),
		BasePath: NormalizeBase(getenv("BASE_PATH", "/")),

		BackendURL:  strings.TrimRight(getenv("BACKEND_URL", "http://localhost:8081"), "/"),
		BackendKey:  getenv("BACKEND_KEY", ""),
		AdminEmails: getenv("ADMIN_EMAILS", ""),

		DBDriver: getenv("DB_DRIVER", "sqlite"),
		DBDSN:    getenv("DB_DSN", "chinasource.db"),

		StorageDir:    getenv("STORAGE_DIR", "./data/storage"),
		StorageBucket: getenv("STORAGE_BUCKET", "product-images"),
		SignedURLTTL:  getduration("SIGNED_URL_TTL", 7*24*time.Hour),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUser:     getenv("SMTP_USER", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "no-reply@chinasource.local"),

		AdminPassword:   getenv("ADMIN_PASSWORD", ""),
		AuthAutoConfirm: getbool("AUTH_AUTO_CONFIRM", false),

		LogLevel: getenv("LOG_LEVEL", "info"),
		LogFile:  getenv("LOG_FILE", ""),
	}
	if cfg.BackendKey == "" {
		log.Printf("[config] BACKEND_KEY is empty, using an insecure development key")
		cfg.BackendKey = "dev-insecure-key"
	}

	log.Printf("[config] PORT=%s BASE_PATH=%s DB_DRIVER=%s STORAGE_DIR=%s REDIS=%t SMTP=%t",
		cfg.Port, cfg.BasePath, cfg.DBDriver, cfg.StorageDir, cfg.RedisAddr != "", cfg.SMTPHost != "")
	return cfg
}

// NormalizeBase returns the mount prefix without a trailing slash, "" for root.
func NormalizeBase(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getbool(key string, def bool) bool {
	v, err := strconv.ParseBool(getenv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(key, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
