package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	Poll     PollConfig
	Chat     ChatConfig
	Realtime RealtimeConfig
	NATS     NATSConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int    // 0 disables; live channel connections are long-lived
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// StoreConfig selects the persistence adapter.
type StoreConfig struct {
	Driver string // "postgres" or "memory"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	Migrate  bool
}

// RedisConfig holds Redis connection settings. Empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig holds session token and cookie settings.
type SessionConfig struct {
	Secret       string
	ExpireHours  int
	CookieSecure bool
}

// PollConfig holds question timing rules.
type PollConfig struct {
	MinTimeLimitMs     int64
	DefaultTimeLimitMs int64
	AutoClose          bool
	CloseGrace         time.Duration
}

// ChatConfig bounds chat messages.
type ChatConfig struct {
	HistoryLimit int
	MaxLength    int
}

// RealtimeConfig holds live channel settings.
type RealtimeConfig struct {
	Bridge    string // none | redis | nats
	Heartbeat time.Duration
	Buffer    int
}

// NATSConfig holds the NATS bridge connection.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// AWSConfig holds AWS credentials and the exports bucket. Empty bucket disables exports.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ExportsBucket        string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "livepoll"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
			Migrate:  getEnvBool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			Secret:       getEnv("SESSION_SECRET", "change-me-in-production"),
			ExpireHours:  getEnvInt("SESSION_EXPIRE_HOURS", 24),
			CookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
		},
		Poll: PollConfig{
			MinTimeLimitMs:     int64(getEnvInt("POLL_MIN_TIME_LIMIT_MS", 10000)),
			DefaultTimeLimitMs: int64(getEnvInt("POLL_DEFAULT_TIME_LIMIT_MS", 60000)),
			AutoClose:          getEnvBool("POLL_AUTO_CLOSE", true),
			CloseGrace:         time.Duration(getEnvInt("POLL_CLOSE_GRACE_MS", 2000)) * time.Millisecond,
		},
		Chat: ChatConfig{
			HistoryLimit: getEnvInt("CHAT_HISTORY_LIMIT", 50),
			MaxLength:    getEnvInt("CHAT_MAX_LENGTH", 1000),
		},
		Realtime: RealtimeConfig{
			Bridge:    strings.ToLower(getEnv("REALTIME_BRIDGE", "none")),
			Heartbeat: time.Duration(getEnvInt("REALTIME_HEARTBEAT_SEC", 15)) * time.Second,
			Buffer:    getEnvInt("REALTIME_BUFFER", 64),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "livepoll.poll"),
			MaxReconnects: getEnvInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait: time.Duration(getEnvInt("NATS_RECONNECT_WAIT_SEC", 2)) * time.Second,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ExportsBucket:        getEnv("AWS_S3_EXPORTS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.Store.Driver)
	}
	switch c.Realtime.Bridge {
	case "none", "redis", "nats":
	default:
		return fmt.Errorf("REALTIME_BRIDGE must be none, redis or nats, got %q", c.Realtime.Bridge)
	}
	if c.Realtime.Bridge == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("REALTIME_BRIDGE=redis requires REDIS_ADDR")
	}
	if c.Poll.MinTimeLimitMs <= 0 || c.Poll.DefaultTimeLimitMs <= 0 {
		return fmt.Errorf("poll time limits must be positive")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
