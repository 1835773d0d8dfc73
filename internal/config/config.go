package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	DataDir         string
	RedisAddr       string
	SyncEnabled     bool
	SyncKey         string
	SyncInterval    time.Duration
	QueueBackend    string
	InstallID       string
	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RateLimitPerMin int
}

// Load returns application config populated from environment variables with
// sensible defaults.
func Load() App {
	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DataDir:         getEnv("DATA_DIR", "data"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		SyncEnabled:     boolEnv("SYNC_ENABLED", true),
		SyncKey:         getEnv("SYNC_KEY", "roomlog:counts"),
		SyncInterval:    durationEnv("SYNC_INTERVAL", 30*time.Second),
		QueueBackend:    getEnv("QUEUE_BACKEND", "redis"),
		InstallID:       getEnv("INSTALL_ID", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "roomlog"),
		JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:       durationEnv("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      durationEnv("REFRESH_TTL", 24*time.Hour),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
	}
}

// File locations inside the data directory. The names are fixed; they are
// the same files older installs already carry.

func (a App) EventLogPath() string { return filepath.Join(a.DataDir, "StudentEntryLog.csv") }
func (a App) LunchTallyPath() string {
	return filepath.Join(a.DataDir, "lunch_count.txt")
}
func (a App) ReasonsPath() string { return filepath.Join(a.DataDir, "reasons.csv") }
func (a App) RosterPath() string  { return filepath.Join(a.DataDir, "students.csv") }

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
