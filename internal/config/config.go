package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// devJWTSecret signs tokens outside production when JWT_SECRET is unset.
const devJWTSecret = "procuretrack-dev-secret"

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	// Server
	Port        int    `mapstructure:"PORT"`
	Env         string `mapstructure:"APP_ENV"` // development | production
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// Database
	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	DBHost      string        `mapstructure:"DB_HOST"`
	DBPort      string        `mapstructure:"DB_PORT"`
	DBUser      string        `mapstructure:"DB_USER"`
	DBPassword  string        `mapstructure:"DB_PASSWORD"`
	DBName      string        `mapstructure:"DB_NAME"`
	DBSSLMode   string        `mapstructure:"DB_SSLMODE"`
	LockTimeout time.Duration `mapstructure:"LOCK_TIMEOUT"`

	// Redis, empty disables the dashboard cache
	RedisURL          string        `mapstructure:"REDIS_URL"`
	DashboardCacheTTL time.Duration `mapstructure:"DASHBOARD_CACHE_TTL"`

	// Auth
	JWTSecret          string `mapstructure:"JWT_SECRET"`
	JWTExpirationHours int    `mapstructure:"JWT_EXPIRATION_HOURS"`
	AdminUsername      string `mapstructure:"ADMIN_USERNAME"`
	AdminEmail         string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword      string `mapstructure:"ADMIN_PASSWORD"`

	// Workflow
	WorkflowDefinitionPath string        `mapstructure:"WORKFLOW_DEFINITION_PATH"`
	PendingDigestCron      string        `mapstructure:"PENDING_DIGEST_CRON"`
	PendingStaleAfter      time.Duration `mapstructure:"PENDING_STALE_AFTER"`

	// Printing
	SchoolName string `mapstructure:"SCHOOL_NAME"`
}

// Load reads configs/.env (if present) into the process environment and then
// resolves every setting through viper with development defaults.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "procuretrack")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("LOCK_TIMEOUT", "3s")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DASHBOARD_CACHE_TTL", "30s")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRATION_HOURS", 8)
	v.SetDefault("ADMIN_USERNAME", "")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("WORKFLOW_DEFINITION_PATH", "")
	v.SetDefault("PENDING_DIGEST_CRON", "0 0 7 * * *")
	v.SetDefault("PENDING_STALE_AFTER", "72h")
	v.SetDefault("SCHOOL_NAME", "Public School")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", cfg.LockTimeout)
	}

	return cfg, nil
}

// DSN returns DATABASE_URL when set, otherwise assembles one from the DB_* settings.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// AllowedOrigins splits CORS_ORIGINS into a trimmed list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// TokenTTL is the lifetime of issued access tokens.
func (c *Config) TokenTTL() time.Duration {
	if c.JWTExpirationHours <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(c.JWTExpirationHours) * time.Hour
}
