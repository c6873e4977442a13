// Package config loads portalauth settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jmcleod/portalauth/session"
)

// Storage backends.
const (
	StoreBBolt    = "bbolt"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreNone     = "none"
)

type Config struct {
	// Backend
	APIURL         string
	Realm          session.Realm
	RequestTimeout time.Duration

	// Session storage
	DataDir         string
	Store           string // bbolt, postgres, memory, none (default: bbolt)
	StorePassphrase string // seals stored values when set
	PostgresDSN     string

	// Session polling
	PollInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// DBPath is the bbolt database file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "session.db")
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:         getEnv("PORTALAUTH_API_URL", "http://localhost:8080"),
		Realm:          session.Realm(strings.ToLower(getEnv("PORTALAUTH_REALM", string(session.RealmEmployee)))),
		RequestTimeout: getEnvDuration("PORTALAUTH_REQUEST_TIMEOUT", 30*time.Second),

		DataDir:         getEnv("PORTALAUTH_DATA_DIR", defaultDataDir()),
		Store:           strings.ToLower(getEnv("PORTALAUTH_STORE", StoreBBolt)),
		StorePassphrase: os.Getenv("PORTALAUTH_STORE_PASSPHRASE"),
		PostgresDSN:     os.Getenv("PORTALAUTH_POSTGRES_DSN"),

		PollInterval: getEnvDuration("PORTALAUTH_POLL_INTERVAL", session.DefaultPollInterval),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PORTALAUTH_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	if !c.Realm.Valid() {
		return fmt.Errorf("PORTALAUTH_REALM must be admin, organization or employee, got %q", c.Realm)
	}
	switch c.Store {
	case StoreBBolt:
		if c.DataDir == "" {
			return fmt.Errorf("PORTALAUTH_DATA_DIR is required for the bbolt store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("PORTALAUTH_POSTGRES_DSN is required for the postgres store")
		}
	case StoreMemory, StoreNone:
	default:
		return fmt.Errorf("PORTALAUTH_STORE must be bbolt, postgres, memory or none, got %q", c.Store)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"PORTALAUTH_REQUEST_TIMEOUT", c.RequestTimeout},
		{"PORTALAUTH_POLL_INTERVAL", c.PollInterval},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	return nil
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".portalauth"
	}
	return filepath.Join(dir, "portalauth")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("45s") or whole seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs := getEnvInt(key, -1); secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
