package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncRequest_Validate(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		req     SyncRequest
		wantErr error
	}{
		{
			name: "valid all stores",
			req:  SyncRequest{Kind: SyncKindOrders, Marketplace: MarketplaceShopee, StoreID: AllStores, Preset: WindowLastWeek},
		},
		{
			name:    "unknown kind",
			req:     SyncRequest{Kind: "reports", Marketplace: MarketplaceShopee, StoreID: "1"},
			wantErr: ErrInvalidSyncRequest,
		},
		{
			name:    "unknown marketplace",
			req:     SyncRequest{Kind: SyncKindOrders, Marketplace: "amazon", StoreID: "1"},
			wantErr: ErrInvalidSyncRequest,
		},
		{
			name:    "unknown preset",
			req:     SyncRequest{Kind: SyncKindOrders, Marketplace: MarketplaceShopee, StoreID: "1", Preset: "year"},
			wantErr: ErrInvalidSyncRequest,
		},
		{
			name:    "batch size too large",
			req:     SyncRequest{Kind: SyncKindFinancial, Marketplace: MarketplaceMercadoLivre, StoreID: "1", BatchSize: 500},
			wantErr: ErrInvalidSyncRequest,
		},
		{
			name:    "inverted window",
			req:     SyncRequest{Kind: SyncKindOrders, Marketplace: MarketplaceShopee, StoreID: "1", Window: TimeWindow{From: now, To: now.Add(-time.Hour)}},
			wantErr: ErrInvalidTimeWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestSyncRequest_ResolveWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	explicit := TimeWindow{From: now.Add(-2 * time.Hour), To: now.Add(-time.Hour)}
	req := SyncRequest{Window: explicit, Preset: WindowLastMonth}
	assert.Equal(t, explicit, req.ResolveWindow(now, WindowLastWeek))

	req = SyncRequest{Preset: WindowLast24h}
	assert.Equal(t, 24*time.Hour, req.ResolveWindow(now, WindowLastWeek).Duration())

	req = SyncRequest{}
	assert.Equal(t, 7*24*time.Hour, req.ResolveWindow(now, WindowLastWeek).Duration())
}

func TestSyncSummary_Totals(t *testing.T) {
	s := &SyncSummary{
		Marketplace: MarketplaceShopee,
		PerStore: []StoreSyncResult{
			{StoreID: "1", Discovered: 10, Inserted: 4, Updated: 3, Unchanged: 3},
			{StoreID: "2", Discovered: 5, Inserted: 5, Failed: 1, Aborted: true},
		},
	}

	total := s.Totals()
	assert.Equal(t, 15, total.Discovered)
	assert.Equal(t, 9, total.Inserted)
	assert.Equal(t, 3, total.Updated)
	assert.Equal(t, 3, total.Unchanged)
	assert.Equal(t, 1, total.Failed)
	assert.False(t, s.AllAborted())

	s.PerStore[0].Aborted = true
	assert.True(t, s.AllAborted())
}

func TestUpstreamError(t *testing.T) {
	err := NewUpstreamError(502, "bad gateway")

	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Contains(t, err.Error(), "502")

	var ue *UpstreamError
	assert.True(t, errors.As(err, &ue))
	assert.Equal(t, 502, ue.Code)
	assert.False(t, IsRetryable(err))
	assert.True(t, IsRetryable(ErrRateLimited))
}
