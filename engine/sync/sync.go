// Package sync orchestrates one catalog synchronization run: fetch every
// page, reconcile against the persisted set, apply upserts and stale
// deletes, and replace the aggregation snapshot. Each run is a discrete
// batch; the first error aborts it with no retry and no rollback.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waib/stocksync/engine/domain"
	"github.com/waib/stocksync/engine/reconcile"
	"github.com/waib/stocksync/engine/store"
)

// Config selects the run variants. The flags are independent; a caller
// may combine stale deletion with aggregation tracking in one run.
type Config struct {
	DeleteStale       bool // remove persisted ids absent from the feed
	TrackAggregations bool // replace the "latest" aggregation snapshot
	DryRun            bool // fetch and reconcile, write nothing
}

// Fetcher pulls the complete catalog.
type Fetcher interface {
	Fetch(ctx context.Context) (*domain.StockCollection, error)
}

// Deps holds the runner's collaborators. Fetcher and Store are required;
// Publisher is optional, Logger and Tracer fall back to process defaults.
type Deps struct {
	Fetcher   Fetcher
	Store     store.Gateway
	Publisher Publisher
	Logger    *slog.Logger
	Tracer    trace.Tracer
}

// RunReport summarizes one completed run. It is returned to the caller
// and published verbatim as the run-completion event payload.
type RunReport struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	DurationMS      int64     `json:"duration_ms"`
	Pages           int       `json:"pages"`
	Fetched         int       `json:"fetched"`
	DeclaredTotal   int       `json:"declared_total"`
	Upserted        int64     `json:"upserted"`
	Modified        int64     `json:"modified"`
	Stale           int       `json:"stale"`
	Deleted         int64     `json:"deleted"`
	SnapshotWritten bool      `json:"snapshot_written"`
	DryRun          bool      `json:"dry_run"`
}

// Runner executes synchronization runs.
type Runner struct {
	cfg    Config
	deps   Deps
	log    *slog.Logger
	tracer trace.Tracer
}

// NewRunner validates the collaborators and builds a Runner.
func NewRunner(cfg Config, deps Deps) (*Runner, error) {
	if deps.Fetcher == nil {
		return nil, domain.NewConfigError("fetcher")
	}
	if deps.Store == nil {
		return nil, domain.NewConfigError("store gateway")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("stocksync/sync")
	}
	return &Runner{cfg: cfg, deps: deps, log: log, tracer: tracer}, nil
}

// Run performs one full fetch-reconcile-write cycle. Writes are applied
// upserts first, then stale deletes, then the snapshot; a failure in any
// phase aborts the run and leaves earlier writes in place.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    r.cfg.DryRun,
	}
	log := r.log.With("run_id", report.RunID)

	ctx, span := r.tracer.Start(ctx, "sync.run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", report.RunID))

	log.Info("sync run starting",
		"delete_stale", r.cfg.DeleteStale,
		"track_aggregations", r.cfg.TrackAggregations,
		"dry_run", r.cfg.DryRun)

	coll, err := r.deps.Fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	report.Fetched = len(coll.Items)
	report.Pages = coll.Pages
	report.DeclaredTotal = coll.TotalItems

	plan := reconcile.Plan{Upserts: coll.Items}
	if r.cfg.DeleteStale {
		persisted, err := r.deps.Store.ListIDs(ctx)
		if err != nil {
			return nil, err
		}
		plan = reconcile.Diff(coll.Items, persisted)
		log.Info("catalog reconciled", "persisted", len(persisted), "stale", len(plan.StaleIDs))
	}
	report.Stale = len(plan.StaleIDs)

	if r.cfg.DryRun {
		log.Info("dry run, skipping writes",
			"would_upsert", len(plan.Upserts), "would_delete", len(plan.StaleIDs))
	} else if err := r.apply(ctx, log, coll, plan, report); err != nil {
		return nil, err
	}

	report.DurationMS = time.Since(report.StartedAt).Milliseconds()
	log.Info("sync run complete",
		"fetched", report.Fetched,
		"pages", report.Pages,
		"upserted", report.Upserted,
		"modified", report.Modified,
		"deleted", report.Deleted,
		"snapshot_written", report.SnapshotWritten,
		"duration_ms", report.DurationMS)

	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.PublishReport(ctx, report); err != nil {
			log.Warn("run event publish failed", "error", err)
		}
	}
	return report, nil
}

// apply executes the write phases in their fixed order.
func (r *Runner) apply(ctx context.Context, log *slog.Logger, coll *domain.StockCollection, plan reconcile.Plan, report *RunReport) error {
	res, err := r.deps.Store.BulkUpsert(ctx, plan.Upserts)
	if err != nil {
		return err
	}
	report.Upserted = res.Upserted
	report.Modified = res.Modified
	log.Info("stock documents upserted", "upserted", res.Upserted, "modified", res.Modified)

	if r.cfg.DeleteStale {
		deleted, err := r.deps.Store.DeleteMany(ctx, plan.StaleIDs)
		if err != nil {
			return err
		}
		report.Deleted = deleted
		if deleted > 0 {
			log.Info("stale documents removed", "deleted", deleted)
		}
	}

	if r.cfg.TrackAggregations {
		switch {
		case len(coll.Items) == 0:
			log.Warn("snapshot skipped", "reason", "empty catalog")
		case coll.Aggregations == nil:
			log.Warn("snapshot skipped", "reason", "no aggregation payload in feed")
		default:
			snap := domain.Snapshot{
				Aggregations: *coll.Aggregations,
				Timestamp:    coll.FirstEntryDate(),
			}
			if err := r.deps.Store.ReplaceSnapshot(ctx, snap); err != nil {
				return err
			}
			report.SnapshotWritten = true
			log.Info("aggregation snapshot replaced")
		}
	}
	return nil
}
