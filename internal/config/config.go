package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Tierwatch server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	CRM      CRMConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type CRMConfig struct {
	BaseURL  string
	Username string
	Password string
	OrgID    string
	Timeout  time.Duration
}

type EngineConfig struct {
	RecentLimit   int
	DiffWorkers   int
	RunStaleAfter time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TIERWATCH_PORT", 8080),
			Env:  envString("TIERWATCH_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		CRM: CRMConfig{
			BaseURL:  os.Getenv("CRM_BASE_URL"),
			Username: os.Getenv("CRM_USERNAME"),
			Password: os.Getenv("CRM_PASSWORD"),
			OrgID:    envString("CRM_ORG_ID", "default"),
			Timeout:  envDuration("CRM_TIMEOUT", 30*time.Second),
		},
		Engine: EngineConfig{
			RecentLimit:   envInt("TIERWATCH_RECENT_LIMIT", 50),
			DiffWorkers:   envInt("TIERWATCH_DIFF_WORKERS", 4),
			RunStaleAfter: envDuration("TIERWATCH_RUN_STALE_AFTER", 30*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.CRM.BaseURL == "" {
		return fmt.Errorf("CRM_BASE_URL is required")
	}
	if !strings.HasPrefix(c.CRM.BaseURL, "http://") && !strings.HasPrefix(c.CRM.BaseURL, "https://") {
		return fmt.Errorf("CRM_BASE_URL must start with http:// or https://, got %q", c.CRM.BaseURL)
	}

	if c.Engine.RecentLimit < 1 || c.Engine.RecentLimit > 500 {
		return fmt.Errorf("TIERWATCH_RECENT_LIMIT must be between 1 and 500, got %d", c.Engine.RecentLimit)
	}
	if c.Engine.DiffWorkers < 1 {
		return fmt.Errorf("TIERWATCH_DIFF_WORKERS must be at least 1, got %d", c.Engine.DiffWorkers)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
