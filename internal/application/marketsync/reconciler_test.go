package marketsync

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

func TestReconciler_OrdersInsertThenReplay(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, newFakeClock(), nil)
	updated := testNow.Add(-3 * time.Hour)

	batch := []integration.OrderRecord{
		newOrder(integration.MarketplaceShopee, "shop-1", "A", "READY_TO_SHIP", updated),
		newOrder(integration.MarketplaceShopee, "shop-1", "B", "SHIPPED", updated),
		newOrder(integration.MarketplaceShopee, "shop-2", "A", "COMPLETED", updated),
	}

	first := rec.ReconcileOrders(t.Context(), integration.MarketplaceShopee, batch)
	assert.Equal(t, 3, first.Total)
	assert.Equal(t, 3, first.Inserted)
	assert.Zero(t, first.Failed)

	replay := []integration.OrderRecord{
		newOrder(integration.MarketplaceShopee, "shop-1", "A", "READY_TO_SHIP", updated),
		newOrder(integration.MarketplaceShopee, "shop-1", "B", "SHIPPED", updated),
		newOrder(integration.MarketplaceShopee, "shop-2", "A", "COMPLETED", updated),
	}
	second := rec.ReconcileOrders(t.Context(), integration.MarketplaceShopee, replay)
	assert.Zero(t, second.Writes())
	assert.Equal(t, 3, second.Unchanged)

	n, err := store.Count(t.Context(), integration.TableOrders, integration.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestReconciler_OrderChangeDetection(t *testing.T) {
	updated := testNow.Add(-3 * time.Hour)

	tests := []struct {
		name         string
		incoming     integration.OrderRecord
		wantUpdated  int
		wantStatus   integration.OrderStatus
		wantPlatform string
	}{
		{
			name:         "same status and update time is unchanged",
			incoming:     newOrder(integration.MarketplaceShopee, "shop-1", "A", "READY_TO_SHIP", updated),
			wantStatus:   integration.OrderStatusToShip,
			wantPlatform: "READY_TO_SHIP",
		},
		{
			name:         "new platform status is written",
			incoming:     newOrder(integration.MarketplaceShopee, "shop-1", "A", "SHIPPED", updated),
			wantUpdated:  1,
			wantStatus:   integration.OrderStatusShipped,
			wantPlatform: "SHIPPED",
		},
		{
			name:         "new update time is written",
			incoming:     newOrder(integration.MarketplaceShopee, "shop-1", "A", "READY_TO_SHIP", updated.Add(time.Minute)),
			wantUpdated:  1,
			wantStatus:   integration.OrderStatusToShip,
			wantPlatform: "READY_TO_SHIP",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			seedOrder(t, store, newOrder(integration.MarketplaceShopee, "shop-1", "A", "READY_TO_SHIP", updated))
			rec := NewReconciler(store, nil, newFakeClock(), nil)

			result := rec.ReconcileOrders(t.Context(), integration.MarketplaceShopee, []integration.OrderRecord{tt.incoming})
			assert.Equal(t, tt.wantUpdated, result.Updated)
			assert.Zero(t, result.Inserted)

			got := loadOrders(t, store, "shop-1")["A"]
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantPlatform, got.PlatformStatus)
		})
	}
}

func TestReconciler_DuplicateInBatchWritesOnce(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, newFakeClock(), nil)
	order := newOrder(integration.MarketplaceMercadoLivre, "seller-1", "100", "paid", testNow)

	result := rec.ReconcileOrders(t.Context(), integration.MarketplaceMercadoLivre, []integration.OrderRecord{order, order})
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Unchanged)
}

func TestReconciler_RetireOrdersNeverInserts(t *testing.T) {
	store := newTestStore(t)
	updated := testNow.Add(-time.Hour)
	seedOrder(t, store, newOrder(integration.MarketplaceShopee, "shop-1", "A", "READY_TO_SHIP", updated))
	rec := NewReconciler(store, nil, newFakeClock(), nil)

	result := rec.RetireOrders(t.Context(), integration.MarketplaceShopee, []integration.OrderRecord{
		newOrder(integration.MarketplaceShopee, "shop-1", "A", "CANCELLED", testNow),
		newOrder(integration.MarketplaceShopee, "shop-1", "Z", "CANCELLED", testNow),
	})
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Unchanged)
	assert.Zero(t, result.Inserted)

	orders := loadOrders(t, store, "shop-1")
	require.Len(t, orders, 1)
	assert.Equal(t, integration.OrderStatusCancelled, orders["A"].Status)
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestReconciler_LookupFailureFailsEveryRecord(t *testing.T) {
	store := &faultyStore{RecordStore: newTestStore(t), selectErr: integration.ErrPersistence}
	rec := NewReconciler(store, nil, newFakeClock(), nil)

	result := rec.ReconcileOrders(t.Context(), integration.MarketplaceShopee, []integration.OrderRecord{
		newOrder(integration.MarketplaceShopee, "shop-1", "A", "SHIPPED", testNow),
		newOrder(integration.MarketplaceShopee, "shop-1", "B", "SHIPPED", testNow),
	})
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.ErrorIs(t, result.Failures[0].Err, integration.ErrPersistence)
	assert.Zero(t, result.Writes())
}

func TestReconciler_WriteFailureIsIsolated(t *testing.T) {
	store := &faultyStore{RecordStore: newTestStore(t), failInsertOf: "B"}
	rec := NewReconciler(store, nil, newFakeClock(), nil)

	result := rec.ReconcileOrders(t.Context(), integration.MarketplaceShopee, []integration.OrderRecord{
		newOrder(integration.MarketplaceShopee, "shop-1", "A", "SHIPPED", testNow),
		newOrder(integration.MarketplaceShopee, "shop-1", "B", "SHIPPED", testNow),
		newOrder(integration.MarketplaceShopee, "shop-1", "C", "SHIPPED", testNow),
	})
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "B", result.Failures[0].ID)
}

// ---------------------------------------------------------------------------
// Financials
// ---------------------------------------------------------------------------

func TestReconciler_FinancialDigestDrivesUpdates(t *testing.T) {
	store := newTestStore(t)
	archive := &recordingArchive{}
	rec := NewReconciler(store, archive, newFakeClock(), nil)
	ctx := t.Context()

	first := rec.ReconcileFinancials(ctx, integration.MarketplaceMercadoLivre, []integration.FinancialRecord{
		newFinancial(integration.MarketplaceMercadoLivre, "seller-1", "100", "12.50"),
	})
	assert.Equal(t, 1, first.Inserted)

	same := rec.ReconcileFinancials(ctx, integration.MarketplaceMercadoLivre, []integration.FinancialRecord{
		newFinancial(integration.MarketplaceMercadoLivre, "seller-1", "100", "12.50"),
	})
	assert.Equal(t, 1, same.Unchanged)

	changed := rec.ReconcileFinancials(ctx, integration.MarketplaceMercadoLivre, []integration.FinancialRecord{
		newFinancial(integration.MarketplaceMercadoLivre, "seller-1", "100", "13.00"),
	})
	assert.Equal(t, 1, changed.Updated)

	var rows []integration.FinancialRecord
	require.NoError(t, store.Select(ctx, integration.TableFinancials,
		integration.Eq(map[string]any{"order_id": "100"}), integration.PageRequest{}, &rows))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Commission.Equal(decimal.RequireFromString("13")), "commission %s", rows[0].Commission)
	assert.True(t, rows[0].TotalFees.Equal(decimal.RequireFromString("14.50")), "total %s", rows[0].TotalFees)
	assert.True(t, rows[0].HasFinancialData)

	// Only the two writes are archived
	assert.Equal(t, []string{
		"mercado_livre/seller-1/100",
		"mercado_livre/seller-1/100",
	}, archive.Keys())
}

func TestReconciler_ArchiveFailureKeepsRecord(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, &recordingArchive{err: errBoom}, newFakeClock(), nil)

	result := rec.ReconcileFinancials(t.Context(), integration.MarketplaceShopee, []integration.FinancialRecord{
		newFinancial(integration.MarketplaceShopee, "shop-1", "A", "3"),
	})
	assert.Equal(t, 1, result.Inserted)
	assert.Zero(t, result.Failed)
}

func TestReconciler_FinancialDigestFilledFromPayload(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, newFakeClock(), nil)

	fin := newFinancial(integration.MarketplaceShopee, "shop-1", "A", "3")
	fin.PayloadDigest = ""
	result := rec.ReconcileFinancials(t.Context(), integration.MarketplaceShopee, []integration.FinancialRecord{fin})
	require.Equal(t, 1, result.Inserted)

	var rows []integration.FinancialRecord
	require.NoError(t, store.Select(t.Context(), integration.TableFinancials,
		integration.Eq(map[string]any{"order_id": "A"}), integration.PageRequest{}, &rows))
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].PayloadDigest)
	assert.True(t, rows[0].LastUpdated.Equal(testNow))
}
