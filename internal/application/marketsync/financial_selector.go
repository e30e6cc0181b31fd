package marketsync

import (
	"context"

	"github.com/marketsync/backend/internal/domain/integration"
)

// lookupChunk bounds the IN list of one lookup query
const lookupChunk = 500

// FinancialSelector finds stored orders that still need fee data
type FinancialSelector struct {
	store integration.RecordStore
}

// NewFinancialSelector creates a new FinancialSelector
func NewFinancialSelector(store integration.RecordStore) *FinancialSelector {
	return &FinancialSelector{store: store}
}

// Pending returns the store's orders that are in scope for fee
// reconciliation and have no financial data yet, oldest first. A zero window
// selects across all time; otherwise orders last updated inside window are
// considered.
func (s *FinancialSelector) Pending(ctx context.Context, marketplace integration.Marketplace, storeID string, window integration.TimeWindow) ([]integration.OrderRecord, error) {
	filter := integration.Eq(map[string]any{
		"marketplace": marketplace,
		"store_id":    storeID,
	})
	if !window.From.IsZero() || !window.To.IsZero() {
		r := integration.RangeCondition{Column: "order_updated_at"}
		if !window.From.IsZero() {
			r.From = window.From
		}
		if !window.To.IsZero() {
			r.To = window.To
		}
		filter.Ranges = append(filter.Ranges, r)
	}

	var orders []integration.OrderRecord
	if err := s.store.Select(ctx, integration.TableOrders, filter,
		integration.PageRequest{OrderBy: "order_created_at"}, &orders); err != nil {
		return nil, err
	}

	candidates := orders[:0]
	for _, o := range orders {
		if o.NeedsFinancialData() {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	covered, err := s.covered(ctx, marketplace, storeID, candidates)
	if err != nil {
		return nil, err
	}

	pending := make([]integration.OrderRecord, 0, len(candidates))
	for _, o := range candidates {
		if _, ok := covered[o.OrderID]; !ok {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

// PendingIDs returns the order ids of Pending
func (s *FinancialSelector) PendingIDs(ctx context.Context, marketplace integration.Marketplace, storeID string, window integration.TimeWindow) ([]string, error) {
	orders, err := s.Pending(ctx, marketplace, storeID, window)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}
	return ids, nil
}

// covered returns the order ids that already have financial data
func (s *FinancialSelector) covered(ctx context.Context, marketplace integration.Marketplace, storeID string, orders []integration.OrderRecord) (map[string]struct{}, error) {
	covered := make(map[string]struct{})
	for start := 0; start < len(orders); start += lookupChunk {
		end := min(start+lookupChunk, len(orders))
		ids := make([]any, 0, end-start)
		for _, o := range orders[start:end] {
			ids = append(ids, o.OrderID)
		}

		var rows []integration.FinancialRecord
		err := s.store.Select(ctx, integration.TableFinancials, integration.Filter{
			Equals: map[string]any{
				"marketplace":        marketplace,
				"store_id":           storeID,
				"has_financial_data": true,
			},
			In: map[string][]any{"order_id": ids},
		}, integration.PageRequest{}, &rows)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			covered[r.OrderID] = struct{}{}
		}
	}
	return covered, nil
}
