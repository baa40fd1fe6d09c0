package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// Storage drivers for persistent client storage.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	Backend BackendConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
}

type BackendConfig struct {
	URL     string
	Timeout time.Duration // zero means no client-side timeout
}

type ServerConfig struct {
	Addr            string        `default:":8080"`
	GRPCHealthAddr  string        `default:":8081"`
	AllowedOrigins  []string
	ShutdownTimeout time.Duration `default:"15s"`

	// ScreenIdleTimeout unmounts screens nobody has touched or streamed for this long; zero
	// disables the sweep.
	ScreenIdleTimeout time.Duration `default:"30m"`
}

type StorageConfig struct {
	Driver      string `default:"memory"`
	Prefix      string
	RedisAddr   string `default:"localhost:6379"`
	DatabaseDSN string `default:"host=localhost user=postgres password=postgres dbname=selfie port=5432 sslmode=disable"`
	// Username and Token seed the memory driver.
	Username string
	Token    string
}

type LogConfig struct {
	Level string `default:"info"`
}

// Load reads the configuration from the environment on top of struct defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	cfg.Backend.URL = envString("BACKEND_URL", cfg.Backend.URL)
	cfg.Server.Addr = envString("LISTEN_ADDR", cfg.Server.Addr)
	cfg.Server.GRPCHealthAddr = envString("GRPC_HEALTH_ADDR", cfg.Server.GRPCHealthAddr)
	cfg.Server.AllowedOrigins = envList("ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Storage.Driver = strings.ToLower(envString("STORAGE_DRIVER", cfg.Storage.Driver))
	cfg.Storage.Prefix = envString("STORAGE_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.RedisAddr = envString("REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.DatabaseDSN = envString("DATABASE_DSN", cfg.Storage.DatabaseDSN)
	cfg.Storage.Username = envString("SELFIE_USERNAME", cfg.Storage.Username)
	cfg.Storage.Token = envString("SELFIE_TOKEN", cfg.Storage.Token)
	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)

	var err error
	if cfg.Backend.Timeout, err = envDuration("BACKEND_TIMEOUT", cfg.Backend.Timeout); err != nil {
		return nil, err
	}
	if cfg.Server.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout); err != nil {
		return nil, err
	}
	if cfg.Server.ScreenIdleTimeout, err = envDuration("SCREEN_IDLE_TIMEOUT", cfg.Server.ScreenIdleTimeout); err != nil {
		return nil, err
	}

	switch cfg.Storage.Driver {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Storage.Driver)
	}
	return cfg, nil
}

// RequireBackend fails when no backend URL is configured.
func (c *Config) RequireBackend() error {
	if strings.TrimSpace(c.Backend.URL) == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	return nil
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}
