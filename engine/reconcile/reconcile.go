// Package reconcile computes the writes that bring persisted stock state
// into agreement with a freshly fetched collection. It is pure: no I/O,
// no side effects, so it can be tested without network or database.
package reconcile

import "github.com/waib/stocksync/engine/domain"

// Plan is the outcome of one reconciliation. Every fetched item is
// re-written whole rather than diffed field by field, which trades write
// volume for correctness when the upstream schema drifts. StaleIDs are the
// persisted ids absent from the fetch.
type Plan struct {
	Upserts  []domain.StockItem
	StaleIDs []int
}

// Diff builds the Plan for a fetched sequence against the persisted id
// set. Upserts preserve fetch order; StaleIDs carry no order guarantee.
func Diff(fetched []domain.StockItem, persisted map[int]struct{}) Plan {
	plan := Plan{Upserts: fetched}
	if len(persisted) == 0 {
		return plan
	}

	seen := make(map[int]struct{}, len(fetched))
	for _, item := range fetched {
		seen[item.ID] = struct{}{}
	}
	for id := range persisted {
		if _, ok := seen[id]; !ok {
			plan.StaleIDs = append(plan.StaleIDs, id)
		}
	}
	return plan
}

// IDSet converts an id slice into the set form Diff consumes.
func IDSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
