// Command stocksync pulls the full vehicle-stock catalog from the dealer
// group API and reconciles it into a document store. One invocation is
// one run unless -every is set, in which case the job reruns on a fixed
// schedule until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/waib/stocksync/engine/domain"
	"github.com/waib/stocksync/engine/fetch"
	"github.com/waib/stocksync/engine/store"
	"github.com/waib/stocksync/engine/sync"
	"github.com/waib/stocksync/pkg/metrics"
)

// backend joins the Gateway seam with the lifecycle operations the
// binary owns.
type backend interface {
	store.Gateway
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("configuration load failed", "error", err)
		os.Exit(1)
	}

	registerFlags(flag.CommandLine, &cfg)
	flag.Parse()

	if err := run(cfg, logger); err != nil {
		logger.Error("sync exited with error", "error", err)
		os.Exit(1)
	}
}

// registerFlags binds the run-shape flags on fs with the loaded
// configuration as defaults, so a flag left unset keeps the value the
// environment produced.
func registerFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Store.Backend, "backend", cfg.Store.Backend, "store backend: mongodb or postgres")
	fs.BoolVar(&cfg.Run.DeleteStale, "delete-stale", cfg.Run.DeleteStale, "delete persisted records absent from the feed")
	fs.BoolVar(&cfg.Run.TrackAggregations, "track-aggregations", cfg.Run.TrackAggregations, "replace the latest aggregation snapshot")
	fs.BoolVar(&cfg.Run.DryRun, "dry-run", cfg.Run.DryRun, "fetch and reconcile without writing")
	fs.DurationVar(&cfg.Run.Every, "every", cfg.Run.Every, "rerun interval (0 = one-shot)")
	fs.StringVar(&cfg.Ops.MetricsAddr, "metrics-addr", cfg.Ops.MetricsAddr, "ops listen address, e.g. :9090 (empty = disabled)")
	fs.StringVar(&cfg.Ops.NATSURL, "nats-url", cfg.Ops.NATSURL, "NATS URL for run events (empty = disabled)")
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return err
	}

	met := metrics.New("stocksync")
	runsOK := met.Counter("runs_total", "Completed runs by result", "result", "ok")
	runsFailed := met.Counter("runs_total", "", "result", "error")
	itemsFetched := met.Counter("items_fetched_total", "Catalog items fetched across runs")
	docsUpserted := met.Counter("documents_upserted_total", "Documents inserted or rewritten")
	docsDeleted := met.Counter("documents_deleted_total", "Stale documents removed")
	lastRun := met.Gauge("last_run_timestamp", "Epoch seconds of the last successful run")
	runDur := met.Histogram("run_duration_seconds", "Wall time of one run", nil)

	if cfg.Ops.MetricsAddr != "" {
		ops := newOpsServer(cfg.Ops.MetricsAddr, met, logger)
		ops.Start()
		defer ops.Stop()
	}

	gw, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gw.Close(closeCtx); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()
	logger.Info("store connected", "backend", cfg.Store.Backend)

	fetcher, err := fetch.New(fetch.Config{
		BaseURL:  cfg.API.URL,
		PageSize: cfg.API.PageSize,
		Timeout:  cfg.API.Timeout,
		RPS:      cfg.API.RPS,
	}, fetch.Deps{Logger: logger})
	if err != nil {
		return err
	}

	var publisher sync.Publisher
	if cfg.Ops.NATSURL != "" {
		nc, err := nats.Connect(cfg.Ops.NATSURL, nats.Name("stocksync"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		publisher = sync.NewNATSPublisher(nc)
		logger.Info("run events enabled", "subject", sync.RunsSubject)
	}

	runner, err := sync.NewRunner(sync.Config{
		DeleteStale:       cfg.Run.DeleteStale,
		TrackAggregations: cfg.Run.TrackAggregations,
		DryRun:            cfg.Run.DryRun,
	}, sync.Deps{
		Fetcher:   fetcher,
		Store:     gw,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	once := func() error {
		start := time.Now()
		report, err := runner.Run(ctx)
		runDur.Since(start)
		if err != nil {
			runsFailed.Inc()
			return err
		}
		runsOK.Inc()
		itemsFetched.Add(int64(report.Fetched))
		docsUpserted.Add(report.Upserted + report.Modified)
		docsDeleted.Add(report.Deleted)
		lastRun.SetTime(time.Now())
		return nil
	}

	if err := once(); err != nil {
		return err
	}
	if cfg.Run.Every <= 0 {
		return nil
	}

	logger.Info("entering scheduled mode", "every", cfg.Run.Every)
	ticker := time.NewTicker(cfg.Run.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			// Scheduled runs log failures and hold the schedule; the next
			// run recomputes everything from scratch.
			if err := once(); err != nil {
				logger.Error("scheduled run failed", "error", err)
			}
		}
	}
}

// openBackend connects the configured store.
func openBackend(ctx context.Context, cfg Config, logger *slog.Logger) (backend, error) {
	switch cfg.Store.Backend {
	case "mongodb":
		gw, err := store.NewMongo(ctx, store.MongoConfig{
			URI:      cfg.Store.MongoURI,
			Database: cfg.Store.MongoDatabase,
		}, logger)
		if err != nil {
			return nil, err
		}
		return gw, nil
	case "postgres":
		gw, err := store.NewPostgres(ctx, store.PostgresConfig{DSN: cfg.Store.PostgresDSN}, logger)
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, domain.NewConfigError("STORE_BACKEND")
	}
}
