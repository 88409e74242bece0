package reconcile

import (
	"sort"
	"testing"

	"github.com/waib/stocksync/engine/domain"
)

func items(ids ...int) []domain.StockItem {
	out := make([]domain.StockItem, len(ids))
	for i, id := range ids {
		out[i] = domain.StockItem{ID: id}
	}
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name      string
		fetched   []int
		persisted []int
		wantStale []int
	}{
		{"empty store", []int{1, 2, 3}, nil, nil},
		{"empty fetch", nil, []int{1, 2, 3}, []int{1, 2, 3}},
		{"both empty", nil, nil, nil},
		{"identical sets", []int{1, 2, 3}, []int{1, 2, 3}, nil},
		{"partial overlap", []int{2, 3, 5}, []int{1, 2, 3, 4}, []int{1, 4}},
		{"disjoint sets", []int{10, 11}, []int{1, 2}, []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetched := items(tt.fetched...)
			plan := Diff(fetched, IDSet(tt.persisted))

			if len(plan.Upserts) != len(fetched) {
				t.Fatalf("expected %d upserts, got %d", len(fetched), len(plan.Upserts))
			}
			for i, item := range plan.Upserts {
				if item.ID != tt.fetched[i] {
					t.Errorf("upsert %d: expected id %d, got %d", i, tt.fetched[i], item.ID)
				}
			}

			stale := append([]int(nil), plan.StaleIDs...)
			sort.Ints(stale)
			if len(stale) != len(tt.wantStale) {
				t.Fatalf("expected stale %v, got %v", tt.wantStale, stale)
			}
			for i, id := range stale {
				if id != tt.wantStale[i] {
					t.Errorf("expected stale %v, got %v", tt.wantStale, stale)
					break
				}
			}
		})
	}
}

func TestDiff_PreservesFetchOrder(t *testing.T) {
	fetched := items(42, 7, 19, 3)
	plan := Diff(fetched, IDSet([]int{7}))
	want := []int{42, 7, 19, 3}
	for i, item := range plan.Upserts {
		if item.ID != want[i] {
			t.Fatalf("expected upsert order %v, got position %d = %d", want, i, item.ID)
		}
	}
	if len(plan.StaleIDs) != 0 {
		t.Errorf("expected no stale ids, got %v", plan.StaleIDs)
	}
}

func TestDiff_DuplicateFetchedIDs(t *testing.T) {
	// The API should never repeat an id across pages, but if it does the
	// plan still upserts every occurrence and marks nothing falsely stale.
	fetched := items(1, 2, 1)
	plan := Diff(fetched, IDSet([]int{1, 2}))
	if len(plan.Upserts) != 3 {
		t.Errorf("expected 3 upserts, got %d", len(plan.Upserts))
	}
	if len(plan.StaleIDs) != 0 {
		t.Errorf("expected no stale ids, got %v", plan.StaleIDs)
	}
}

func TestIDSet(t *testing.T) {
	set := IDSet([]int{5, 5, 9})
	if len(set) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(set))
	}
	if _, ok := set[5]; !ok {
		t.Error("expected 5 in set")
	}
	if _, ok := set[9]; !ok {
		t.Error("expected 9 in set")
	}
	if len(IDSet(nil)) != 0 {
		t.Error("expected empty set for nil input")
	}
}
