package store

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/waib/stocksync/engine/domain"
)

const (
	stocksCollection    = "vehicle_stocks"
	snapshotsCollection = "vehicle_stock_aggregations"
)

// MongoConfig locates the stock database.
type MongoConfig struct {
	URI      string
	Database string
}

// Mongo stores each vehicle as one document in the stocks collection and
// the aggregation snapshot as a single fixed-id document alongside it.
type Mongo struct {
	client *mongo.Client
	log    *slog.Logger
	stocks *mongo.Collection
	snaps  *mongo.Collection
}

var _ Gateway = (*Mongo)(nil)

// NewMongo connects to the deployment and verifies it answers a ping.
func NewMongo(ctx context.Context, cfg MongoConfig, log *slog.Logger) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, domain.NewConfigError("mongo URI")
	}
	if cfg.Database == "" {
		return nil, domain.NewConfigError("mongo database")
	}
	if log == nil {
		log = slog.Default()
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, domain.NewStoreError("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, domain.NewStoreError("ping", err)
	}

	db := client.Database(cfg.Database)
	return &Mongo{
		client: client,
		log:    log,
		stocks: db.Collection(stocksCollection),
		snaps:  db.Collection(snapshotsCollection),
	}, nil
}

// BulkUpsert rewrites one document per item, inserting ids not yet
// present. Writes are unordered.
func (m *Mongo) BulkUpsert(ctx context.Context, items []domain.StockItem) (UpsertResult, error) {
	if len(items) == 0 {
		return UpsertResult{}, nil
	}

	models := make([]mongo.WriteModel, len(items))
	for i, item := range items {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": item.ID}).
			SetUpdate(bson.M{"$set": item}).
			SetUpsert(true)
	}

	res, err := m.stocks.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return UpsertResult{}, domain.NewStoreError("bulk upsert", err)
	}
	m.log.Debug("bulk upsert applied",
		"upserted", res.UpsertedCount, "modified", res.ModifiedCount, "matched", res.MatchedCount)
	return UpsertResult{Upserted: res.UpsertedCount, Modified: res.ModifiedCount}, nil
}

func (m *Mongo) ListIDs(ctx context.Context) (map[int]struct{}, error) {
	cur, err := m.stocks.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"id": 1, "_id": 0}))
	if err != nil {
		return nil, domain.NewStoreError("list ids", err)
	}
	defer cur.Close(ctx)

	ids := make(map[int]struct{})
	for cur.Next(ctx) {
		var row struct {
			ID int `bson:"id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, domain.NewStoreError("list ids", err)
		}
		ids[row.ID] = struct{}{}
	}
	if err := cur.Err(); err != nil {
		return nil, domain.NewStoreError("list ids", err)
	}
	return ids, nil
}

func (m *Mongo) DeleteMany(ctx context.Context, ids []int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := m.stocks.DeleteMany(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return 0, domain.NewStoreError("delete stale", err)
	}
	return res.DeletedCount, nil
}

// snapshotDoc pins the snapshot to its fixed _id on the way in.
type snapshotDoc struct {
	ID              string `bson:"_id"`
	domain.Snapshot `bson:",inline"`
}

func (m *Mongo) ReplaceSnapshot(ctx context.Context, snap domain.Snapshot) error {
	doc := snapshotDoc{ID: SnapshotKey, Snapshot: snap}
	_, err := m.snaps.ReplaceOne(ctx, bson.M{"_id": SnapshotKey}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return domain.NewStoreError("replace snapshot", err)
	}
	return nil
}

// Ping reports whether the deployment still answers.
func (m *Mongo) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return domain.NewStoreError("ping", err)
	}
	return nil
}

// Close releases the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
