package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongoDB  = "mongodb"
)

type Config struct {
	Port          string `envconfig:"APP_PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"json"`

	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"file"`
	DataDir        string `envconfig:"DATA_DIR" default:"./data"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix    string `envconfig:"REDIS_PREFIX" default:"fuelshift:"`
	MongoURI       string `envconfig:"MONGODB_URI"`
	MongoDBName    string `envconfig:"MONGODB_DB_NAME" default:"fuelshift"`

	AnthropicKey     string        `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string        `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com"`
	AnthropicModel   string        `envconfig:"ANTHROPIC_MODEL" default:"claude-3-haiku-20240307"`
	SummaryTimeout   time.Duration `envconfig:"SUMMARY_TIMEOUT" default:"15s"`
	SummaryCacheTTL  time.Duration `envconfig:"SUMMARY_CACHE_TTL" default:"10m"`
	SummaryRateLimit int           `envconfig:"SUMMARY_RATE_LIMIT" default:"6"`

	Timezone   string `envconfig:"TIMEZONE" default:"Local"`
	DigestCron string `envconfig:"DIGEST_CRON" default:"0 21 * * *"`
}

// Load reads the optional env file and then the process environment. A
// missing env file is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.AnthropicKey = strings.TrimSpace(cfg.AnthropicKey)
	cfg.DigestCron = strings.TrimSpace(cfg.DigestCron)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.DataDir) == "" {
			return errors.New("DATA_DIR is required for the file backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendMongoDB:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI is required for the mongodb backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.SummaryTimeout <= 0 {
		return errors.New("SUMMARY_TIMEOUT must be positive")
	}
	if c.SummaryCacheTTL < 0 {
		return errors.New("SUMMARY_CACHE_TTL must not be negative")
	}
	if c.SummaryRateLimit < 1 {
		return errors.New("SUMMARY_RATE_LIMIT must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.DigestCron != "" {
		if _, err := cron.ParseStandard(c.DigestCron); err != nil {
			return fmt.Errorf("invalid DIGEST_CRON: %w", err)
		}
	}
	return nil
}

// Location resolves TIMEZONE. History period filters evaluate calendar days in it.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "Local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	return loc, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}
