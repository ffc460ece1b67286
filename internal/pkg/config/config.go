package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// maxPageSize is the upstream Explore API's hard limit per request.
const maxPageSize = 100

var (
	ErrMissingDatabaseURL = errors.New("database url is required")
	ErrInvalidPageSize    = fmt.Errorf("page size must be between 1 and %d", maxPageSize)
	ErrInvalidBatchSize   = errors.New("batch size must be positive")
)

// Config carries everything the fetch run needs. It is built once in cmd and
// passed down explicitly; core packages never read the environment themselves.
type Config struct {
	DatabaseURL      string        `env:"DATABASE_URL"`
	APIKey           string        `env:"MELBOURNE_API_KEY"`
	APIBaseURL       string        `env:"MELBOURNE_API_BASE_URL" envDefault:"https://data.melbourne.vic.gov.au/api/explore/v2.1"`
	MigrationsFolder string        `env:"MIGRATIONS_FOLDER"`
	PageSize         int           `env:"PAGE_SIZE" envDefault:"100"`
	BatchSize        int           `env:"BATCH_SIZE" envDefault:"50"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	Schedule         string        `env:"FETCH_SCHEDULE"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"INFO"`
}

// FromEnv parses a Config straight from the environment.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.PageSize <= 0 || c.PageSize > maxPageSize {
		return ErrInvalidPageSize
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	return nil
}
