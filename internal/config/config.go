package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string
	Env         string

	// Google Sheets source
	SheetID       string
	FetchTimeout  time.Duration
	FetchAttempts int

	// Auth
	JWTSecret  string
	SyncToken  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	MigrationsDir string
	CORSOrigin    string

	MeiliURL       string
	MeiliMasterKey string

	RedisURL string
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8686"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		Env:            getenv("APP_ENV", "development"),
		SheetID:        getenv("SHEET_ID", ""),
		FetchTimeout:   time.Duration(getenvInt("SHEET_FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		FetchAttempts:  getenvInt("SHEET_FETCH_ATTEMPTS", 1),
		JWTSecret:      getenv("KV21_JWT_SECRET", ""),
		SyncToken:      getenv("SYNC_TOKEN", ""),
		AccessTTL:      time.Duration(getenvInt("KV21_ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL:     time.Duration(getenvInt("KV21_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		MigrationsDir:  getenv("KV21_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:     getenv("KV21_CORS_ORIGIN", "*"),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		RedisURL:       getenv("REDIS_URL", "redis://localhost:6379/0"),
	}
}

// Validate reports the first missing required value. The sync pipeline cannot
// run against a defaulted sheet id or secret, so absence is a startup failure
// rather than a silent fallback.
func (c Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", c.DatabaseURL},
		{"SHEET_ID", c.SheetID},
		{"SYNC_TOKEN", c.SyncToken},
		{"KV21_JWT_SECRET", c.JWTSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("missing required env var: %s", r.name)
		}
	}
	return nil
}

// IsProduction controls whether error details are included in API responses.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
