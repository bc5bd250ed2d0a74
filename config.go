package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration. Player preferences live in the
// snapshot, not here.
type Config struct {
	Addr             string        `env:"PRECINCT_ADDR" envDefault:":8080"`
	DBDialect        string        `env:"PRECINCT_DB_DIALECT" envDefault:"sqlite"`
	SQLitePath       string        `env:"PRECINCT_DB_SQLITE_PATH" envDefault:"tmp/precinct.sqlite"`
	PostgresDSN      string        `env:"PRECINCT_DB_POSTGRES_DSN"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	RedisAddr        string        `env:"PRECINCT_REDIS_ADDR"`
	RedisPrefix      string        `env:"PRECINCT_REDIS_PREFIX" envDefault:"precinct"`
	ContentDir       string        `env:"PRECINCT_CONTENT_DIR"`
	ContentWatch     bool          `env:"PRECINCT_CONTENT_WATCH" envDefault:"false"`
	ExportKey        string        `env:"PRECINCT_EXPORT_KEY"`
	ExportBrowserURL string        `env:"PRECINCT_EXPORT_BROWSER_URL"`
	ExportRate       time.Duration `env:"PRECINCT_EXPORT_RATE" envDefault:"5s"`
	CrisisTick       time.Duration `env:"PRECINCT_CRISIS_TICK" envDefault:"1s"`
	Seed             int64         `env:"PRECINCT_SEED" envDefault:"0"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
