package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the reconciliation server's configuration.
type Config struct {
	DatabaseURL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBatchBytes   int64

	MigrateOnStart bool
	LogLevel       string
}

// ClientConfig is the terminal client's configuration.
type ClientConfig struct {
	ServerURL   string
	StateDir    string
	RedisAddr   string
	SyncTimeout time.Duration
	LogLevel    string
}

// Load reads the server configuration from the environment. A .env file in
// the working directory is loaded first; variables already set win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DatabaseURL:     getenv("DATABASE_URL", "sqlite:notes.db?_busy_timeout=5000"),
		MaxOpenConns:    getenvInt("DB_MAX_OPEN", 20),
		MaxIdleConns:    getenvInt("DB_MAX_IDLE", 10),
		ConnMaxLifetime: getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnMaxIdleTime: getenvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		HTTPAddr:        getenv("HTTP_ADDR", ":8000"),
		ReadTimeout:     getenvDuration("HTTP_READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getenvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getenvDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBatchBytes:   getenvInt64("MAX_BATCH_BYTES", 4<<20),
		MigrateOnStart:  getenvBool("MIGRATE_ON_START", true),
		LogLevel:        getenv("LOG_LEVEL", "info"),
	}
}

// LoadClient reads the client configuration the same way Load does.
func LoadClient() ClientConfig {
	_ = godotenv.Load()

	return ClientConfig{
		ServerURL:   getenv("NOTES_SERVER_URL", "http://127.0.0.1:8000"),
		StateDir:    getenv("NOTES_STATE_DIR", defaultStateDir()),
		RedisAddr:   getenv("NOTES_REDIS_ADDR", ""),
		SyncTimeout: getenvDuration("NOTES_SYNC_TIMEOUT", 10*time.Second),
		LogLevel:    getenv("LOG_LEVEL", "warn"),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".notesync"
	}
	return filepath.Join(home, ".notesync")
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
