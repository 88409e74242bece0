package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/waib/stocksync/engine/domain"
)

// Empty inputs must return before any driver call; the zero-value
// backends would panic on a nil collection or pool otherwise.

func TestMongoBulkUpsert_EmptyInput(t *testing.T) {
	res, err := (&Mongo{}).BulkUpsert(context.Background(), nil)
	if err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if res.Upserted != 0 || res.Modified != 0 {
		t.Errorf("expected zero result, got %+v", res)
	}
}

func TestMongoDeleteMany_EmptyInput(t *testing.T) {
	n, err := (&Mongo{}).DeleteMany(context.Background(), nil)
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if n != 0 {
		t.Errorf("expected zero deletions, got %d", n)
	}
}

func TestPostgresBulkUpsert_EmptyInput(t *testing.T) {
	res, err := (&Postgres{}).BulkUpsert(context.Background(), nil)
	if err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if res.Upserted != 0 || res.Modified != 0 {
		t.Errorf("expected zero result, got %+v", res)
	}
}

func TestPostgresDeleteMany_EmptyInput(t *testing.T) {
	n, err := (&Postgres{}).DeleteMany(context.Background(), nil)
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if n != 0 {
		t.Errorf("expected zero deletions, got %d", n)
	}
}

type fakeExecer struct {
	stmts []string
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, f.err
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeExecer{}
	if err := ensureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensureSchema: %v", err)
	}
	if len(db.stmts) != len(postgresSchema) {
		t.Fatalf("executed %d statements, want %d", len(db.stmts), len(postgresSchema))
	}
	if !strings.Contains(db.stmts[0], stocksTable) {
		t.Errorf("first statement should create %s:\n%s", stocksTable, db.stmts[0])
	}
	if !strings.Contains(db.stmts[1], snapshotsTable) {
		t.Errorf("second statement should create %s:\n%s", snapshotsTable, db.stmts[1])
	}
}

func TestEnsureSchema_Error(t *testing.T) {
	cause := errors.New("permission denied for schema public")
	err := ensureSchema(context.Background(), &fakeExecer{err: cause})
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want %v", err, cause)
	}
}

func TestSnapshotDocumentShape(t *testing.T) {
	ts := "2024-05-17 09:30:00"
	doc := snapshotDoc{
		ID: SnapshotKey,
		Snapshot: domain.Snapshot{
			Aggregations: domain.Aggregations{
				Term: map[string][]domain.KeyCount{
					"brand":         {{Key: domain.BucketKey{Value: "RENAULT"}, Count: 412}},
					"numberOfDoors": {{Key: domain.BucketKey{Value: "5", Numeric: true}, Count: 503}},
				},
				Stat: domain.StatBlock{Price: domain.StatRange{Min: 9900, Max: 45000}},
			},
			Timestamp: &ts,
		},
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m["_id"] != "latest" {
		t.Errorf("_id = %v, want latest", m["_id"])
	}
	if m["timestamp"] != ts {
		t.Errorf("timestamp = %v, want %s", m["timestamp"], ts)
	}

	// The payload inlines into the document root, matching the upstream
	// collection layout.
	term, ok := m["term"].(bson.M)
	if !ok {
		t.Fatalf("term missing or wrong shape: %v", m["term"])
	}
	brand := term["brand"].(bson.A)[0].(bson.M)
	if brand["key"] != "RENAULT" {
		t.Errorf("brand bucket key = %v, want RENAULT", brand["key"])
	}
	doors := term["numberOfDoors"].(bson.A)[0].(bson.M)
	if doors["key"] != int64(5) {
		t.Errorf("door bucket key = %v (%T), want int64 5", doors["key"], doors["key"])
	}
	if _, ok := m["stat"].(bson.M); !ok {
		t.Fatalf("stat missing or wrong shape: %v", m["stat"])
	}
}

func TestStockItemKeepsExplicitNulls(t *testing.T) {
	item := domain.StockItem{
		ID:                         7,
		Name:                       "MEGANE E-TECH",
		Brand:                      "RENAULT",
		Model:                      "MEGANE",
		VIN:                        "VF1AAAAA551234567",
		DateVehicleFirstRegistered: "2023-06-01 00:00:00",
	}

	raw, err := bson.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m["id"] != int32(7) {
		t.Errorf("id = %v (%T), want 7", m["id"], m["id"])
	}
	for _, field := range []string{"colorName", "mileageFromOdometer", "vehiclePriceIncTax", "vcdAvailable"} {
		v, ok := m[field]
		if !ok {
			t.Errorf("optional field %s dropped from the document", field)
			continue
		}
		if v != nil {
			t.Errorf("optional field %s = %v, want null", field, v)
		}
	}
}
