package main

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/waib/stocksync/engine/domain"
)

// Config holds all environment-driven settings. Command-line flags may
// override the run-variant and ops fields after loading.
type Config struct {
	API   APIConfig
	Store StoreConfig
	Run   RunConfig
	Ops   OpsConfig
}

// APIConfig locates the stock catalog endpoint.
type APIConfig struct {
	URL      string        `envconfig:"RRG_API_URL" default:"https://api.retail-renault-group.fr/car_stocks"`
	PageSize int           `envconfig:"PAGE_SIZE" default:"500"`
	Timeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	RPS      float64       `envconfig:"FETCH_RPS" default:"4"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Backend       string `envconfig:"STORE_BACKEND" default:"mongodb"` // mongodb or postgres
	MongoURI      string `envconfig:"MONGO_URI" default:""`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"waib_rrg_db"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN" default:""`
}

// RunConfig selects the run variants and schedule.
type RunConfig struct {
	DeleteStale       bool          `envconfig:"DELETE_STALE" default:"false"`
	TrackAggregations bool          `envconfig:"TRACK_AGGREGATIONS" default:"true"`
	DryRun            bool          `envconfig:"DRY_RUN" default:"false"`
	Every             time.Duration `envconfig:"RUN_EVERY" default:"0"`
}

// OpsConfig controls the optional sidecar surfaces.
type OpsConfig struct {
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`
	NATSURL     string `envconfig:"NATS_URL" default:""`
}

// loadConfig reads .env when present, then the process environment.
func loadConfig() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the selected backend has its connection settings.
// It runs before any network activity.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "mongodb":
		if c.Store.MongoURI == "" {
			return domain.NewConfigError("MONGO_URI")
		}
		if c.Store.MongoDatabase == "" {
			return domain.NewConfigError("MONGO_DATABASE")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return domain.NewConfigError("POSTGRES_DSN")
		}
	default:
		return domain.NewConfigError("STORE_BACKEND")
	}
	if c.API.URL == "" {
		return domain.NewConfigError("RRG_API_URL")
	}
	return nil
}
