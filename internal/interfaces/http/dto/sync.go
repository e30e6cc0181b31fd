package dto

import (
	"fmt"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
)

// SyncRequest is the body (or query) of a sync trigger
type SyncRequest struct {
	Marketplace         string     `json:"marketplace" form:"marketplace" binding:"required,oneof=shopee mercado_livre"`
	Preset              string     `json:"preset" form:"preset" binding:"omitempty,oneof=24h week month"`
	From                *time.Time `json:"from" form:"from"`
	To                  *time.Time `json:"to" form:"to"`
	BatchSize           int        `json:"batch_size" form:"batch_size" binding:"gte=0,lte=100"`
	MaxConcurrentStores int        `json:"max_concurrent_stores" form:"max_concurrent_stores" binding:"gte=0,lte=20"`
	Async               bool       `json:"async" form:"async"`
}

// ToDomain builds the engine request for kind and storeID.
// An empty storeID targets every active store.
func (r SyncRequest) ToDomain(kind integration.SyncKind, storeID string) (integration.SyncRequest, error) {
	window, err := explicitWindow(r.From, r.To)
	if err != nil {
		return integration.SyncRequest{}, err
	}
	if storeID == "" {
		storeID = integration.AllStores
	}
	req := integration.SyncRequest{
		Kind:                kind,
		Marketplace:         integration.Marketplace(r.Marketplace),
		StoreID:             storeID,
		Preset:              integration.WindowPreset(r.Preset),
		Window:              window,
		BatchSize:           r.BatchSize,
		MaxConcurrentStores: r.MaxConcurrentStores,
	}
	if err := req.Validate(); err != nil {
		return integration.SyncRequest{}, err
	}
	return req, nil
}

// StatsQuery selects the stores and window a stats endpoint reports on
type StatsQuery struct {
	Marketplace string     `form:"marketplace" binding:"required,oneof=shopee mercado_livre"`
	StoreID     string     `form:"store_id"`
	Preset      string     `form:"preset" binding:"omitempty,oneof=24h week month"`
	From        *time.Time `form:"from"`
	To          *time.Time `form:"to"`
}

// Target returns the store the query is scoped to, or AllStores
func (q StatsQuery) Target() string {
	if q.StoreID == "" {
		return integration.AllStores
	}
	return q.StoreID
}

// Window resolves the query window. Without a preset or bounds the window is
// zero, meaning no time restriction.
func (q StatsQuery) Window(now time.Time) (integration.TimeWindow, error) {
	window, err := explicitWindow(q.From, q.To)
	if err != nil || !window.From.IsZero() {
		return window, err
	}
	if preset := integration.WindowPreset(q.Preset); preset.IsValid() {
		return preset.WindowEndingAt(now), nil
	}
	return integration.TimeWindow{}, nil
}

func explicitWindow(from, to *time.Time) (integration.TimeWindow, error) {
	switch {
	case from == nil && to == nil:
		return integration.TimeWindow{}, nil
	case from == nil || to == nil:
		return integration.TimeWindow{}, fmt.Errorf("%w: from and to must be given together", integration.ErrInvalidTimeWindow)
	}
	window := integration.TimeWindow{From: from.UTC(), To: to.UTC()}
	if err := window.Validate(); err != nil {
		return integration.TimeWindow{}, err
	}
	return window, nil
}
