package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	Database     DatabaseConfig
	Orders       OrdersConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Health       HealthConfig
	Graceful     GracefulConfig
}

// DatabaseConfig tunes the pgx connection pool.
type DatabaseConfig struct {
	MaxConns        int32         `default:"10" usage:"Maximum pool connections"`
	MinConns        int32         `default:"0" usage:"Minimum idle pool connections"`
	MaxConnLifetime time.Duration `default:"1h" usage:"Maximum connection lifetime"`
}

// OrdersConfig controls back-office order listings.
type OrdersConfig struct {
	DefaultPageSize int `default:"20" usage:"Orders per page when no limit is given"`
	MaxPageSize     int `default:"100" usage:"Upper bound for the limit query parameter"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// HealthConfig controls background probe scheduling.
type HealthConfig struct {
	Interval      time.Duration `default:"10s" usage:"Interval between health probes"`
	MaxGoroutines int           `default:"10000" usage:"Liveness fails above this goroutine count"`
	MaxGCPause    time.Duration `default:"100ms" usage:"Liveness fails when a recent GC pause exceeds this"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if c.Orders.DefaultPageSize <= 0 {
		return errors.Errorf("orders default page size must be positive, got %d", c.Orders.DefaultPageSize)
	}
	if c.Orders.MaxPageSize < c.Orders.DefaultPageSize {
		return errors.Errorf("orders max page size %d is below the default %d",
			c.Orders.MaxPageSize, c.Orders.DefaultPageSize)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return errors.Errorf("database min conns %d exceeds max conns %d",
			c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
