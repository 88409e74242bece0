// Package store persists the vehicle-stock catalog. Two backends exist,
// MongoDB and PostgreSQL, behind one Gateway seam: a document per vehicle
// keyed by catalog id, plus a single aggregation snapshot keyed "latest".
package store

import (
	"context"

	"github.com/waib/stocksync/engine/domain"
)

// SnapshotKey is the fixed key of the aggregation snapshot document. Every
// run overwrites the same document; history is out of scope.
const SnapshotKey = "latest"

// UpsertResult reports how a bulk upsert landed.
type UpsertResult struct {
	Upserted int64 // inserted as new documents
	Modified int64 // matched an existing id and rewrote it
}

// Gateway is the persistence seam of the sync pipeline. Implementations
// must treat empty inputs as no-ops and wrap failures in store errors.
type Gateway interface {
	// BulkUpsert rewrites one document per item, inserting ids not yet
	// present. Items carry their full wire payload; partial updates do
	// not exist.
	BulkUpsert(ctx context.Context, items []domain.StockItem) (UpsertResult, error)

	// ListIDs returns the set of catalog ids currently persisted.
	ListIDs(ctx context.Context) (map[int]struct{}, error)

	// DeleteMany removes the given catalog ids and reports how many
	// documents went away.
	DeleteMany(ctx context.Context, ids []int) (int64, error)

	// ReplaceSnapshot overwrites the aggregation snapshot keyed
	// SnapshotKey, creating it on first use.
	ReplaceSnapshot(ctx context.Context, snap domain.Snapshot) error
}
