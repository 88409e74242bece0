package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waib/stocksync/engine/domain"
)

const (
	stocksTable    = "vehicle_stocks"
	snapshotsTable = "vehicle_stock_aggregations"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + stocksTable + ` (
		id         BIGINT PRIMARY KEY,
		doc        JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ` + snapshotsTable + ` (
		key        TEXT PRIMARY KEY,
		doc        JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// PostgresConfig locates the stock database.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// Postgres stores each vehicle as a JSONB document in a bigint-keyed
// table, with the aggregation snapshot in a sibling text-keyed table.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ Gateway = (*Postgres)(nil)

// NewPostgres opens a pool, verifies connectivity, and ensures the two
// stock tables exist.
func NewPostgres(ctx context.Context, cfg PostgresConfig, log *slog.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, domain.NewConfigError("postgres DSN")
	}
	if log == nil {
		log = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, domain.NewStoreError("parse dsn", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, domain.NewStoreError("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.NewStoreError("ping", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, domain.NewStoreError("ensure schema", err)
	}

	return &Postgres{pool: pool, log: log}, nil
}

// execer is the slice of pgxpool.Pool that schema setup needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ensureSchema creates the stock tables when they do not exist yet.
func ensureSchema(ctx context.Context, db execer) error {
	for _, ddl := range postgresSchema {
		if _, err := db.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// BulkUpsert rewrites one row per item in a single batch round-trip.
// xmax = 0 on the returned row marks a fresh insert rather than a rewrite.
func (p *Postgres) BulkUpsert(ctx context.Context, items []domain.StockItem) (UpsertResult, error) {
	if len(items) == 0 {
		return UpsertResult{}, nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		doc, err := json.Marshal(item)
		if err != nil {
			return UpsertResult{}, domain.NewStoreError("encode document", err)
		}
		batch.Queue(`INSERT INTO `+stocksTable+` (id, doc, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
			RETURNING (xmax = 0)`,
			item.ID, string(doc))
	}

	br := p.pool.SendBatch(ctx, batch)
	var res UpsertResult
	for range items {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			_ = br.Close()
			return UpsertResult{}, domain.NewStoreError("bulk upsert", err)
		}
		if inserted {
			res.Upserted++
		} else {
			res.Modified++
		}
	}
	if err := br.Close(); err != nil {
		return UpsertResult{}, domain.NewStoreError("bulk upsert", err)
	}

	p.log.Debug("bulk upsert applied", "upserted", res.Upserted, "modified", res.Modified)
	return res, nil
}

func (p *Postgres) ListIDs(ctx context.Context) (map[int]struct{}, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM `+stocksTable)
	if err != nil {
		return nil, domain.NewStoreError("list ids", err)
	}
	defer rows.Close()

	ids := make(map[int]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewStoreError("list ids", err)
		}
		ids[int(id)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("list ids", err)
	}
	return ids, nil
}

func (p *Postgres) DeleteMany(ctx context.Context, ids []int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM `+stocksTable+` WHERE id = ANY($1)`, keys)
	if err != nil {
		return 0, domain.NewStoreError("delete stale", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) ReplaceSnapshot(ctx context.Context, snap domain.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return domain.NewStoreError("encode snapshot", err)
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO `+snapshotsTable+` (key, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		SnapshotKey, string(doc))
	if err != nil {
		return domain.NewStoreError("replace snapshot", err)
	}
	return nil
}

// Ping reports whether the database still answers.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return domain.NewStoreError("ping", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}
