package marketsync

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
)

func newStatsFixture(t *testing.T) (*StatsService, integration.RecordStore) {
	t.Helper()
	store := newTestStore(t)
	creds := NewCredentialStore(store, newFakeClock(), nil)
	seedCredential(t, store, newCredential(integration.MarketplaceMercadoLivre, "seller-1", testNow.Add(time.Hour)))
	seedCredential(t, store, newCredential(integration.MarketplaceMercadoLivre, "seller-2", testNow.Add(time.Hour)))

	created := testNow.Add(-48 * time.Hour)
	seedOrder(t, store, newOrder(integration.MarketplaceMercadoLivre, "seller-1", "1", "paid", created))
	seedOrder(t, store, newOrder(integration.MarketplaceMercadoLivre, "seller-1", "2", "delivered", created))
	seedOrder(t, store, newOrder(integration.MarketplaceMercadoLivre, "seller-1", "3", "delivered", created))
	seedOrder(t, store, newOrder(integration.MarketplaceMercadoLivre, "seller-1", "4", "payment_required", created))
	seedOrder(t, store, newOrder(integration.MarketplaceMercadoLivre, "seller-2", "9", "shipped", created))

	NewReconciler(store, nil, nil, nil).ReconcileFinancials(t.Context(), integration.MarketplaceMercadoLivre, []integration.FinancialRecord{
		newFinancial(integration.MarketplaceMercadoLivre, "seller-1", "2", "10"),
		newFinancial(integration.MarketplaceMercadoLivre, "seller-1", "3", "5.25"),
	})

	return NewStatsService(store, creds, NewFinancialSelector(store)), store
}

func TestStatsService_OrderStats(t *testing.T) {
	svc, _ := newStatsFixture(t)

	stats, err := svc.OrderStats(t.Context(), integration.MarketplaceMercadoLivre, "seller-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)

	st := stats[0]
	assert.Equal(t, "Store seller-1", st.StoreName)
	assert.Equal(t, int64(4), st.Total)
	assert.Equal(t, int64(2), st.ByStatus[integration.OrderStatusCompleted])
	assert.Equal(t, int64(1), st.ByStatus[integration.OrderStatusToShip])
	assert.Equal(t, int64(1), st.ByStatus[integration.OrderStatusPendingPayment])
	assert.NotContains(t, st.ByStatus, integration.OrderStatusCancelled)

	all, err := svc.OrderStats(t.Context(), integration.MarketplaceMercadoLivre, integration.AllStores)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStatsService_FinancialStats(t *testing.T) {
	svc, _ := newStatsFixture(t)

	stats, err := svc.FinancialStats(t.Context(), integration.MarketplaceMercadoLivre, "seller-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)

	st := stats[0]
	assert.Equal(t, int64(4), st.Orders)
	assert.Equal(t, int64(2), st.WithFinancial)
	// paid order 1 still needs fees; unpaid order 4 is out of scope
	assert.Equal(t, 1, st.Pending)
	assert.True(t, st.Commission.Equal(decimal.RequireFromString("15.25")), "commission %s", st.Commission)
	assert.True(t, st.SaleFee.Equal(decimal.RequireFromString("3")), "sale fee %s", st.SaleFee)
	assert.True(t, st.TotalFees.Equal(decimal.RequireFromString("18.25")), "total %s", st.TotalFees)
	assert.True(t, st.ShippingFee.IsZero())
}

func TestStatsService_PendingFinancial(t *testing.T) {
	svc, _ := newStatsFixture(t)

	pending, err := svc.PendingFinancial(t.Context(), integration.MarketplaceMercadoLivre, "", integration.TimeWindow{})
	require.NoError(t, err)

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.StoreID+"/"+p.OrderID)
	}
	assert.ElementsMatch(t, []string{"seller-1/1", "seller-2/9"}, ids)

	t.Run("window excludes older orders", func(t *testing.T) {
		recent := integration.TimeWindow{From: testNow.Add(-time.Hour), To: testNow}
		pending, err := svc.PendingFinancial(t.Context(), integration.MarketplaceMercadoLivre, "seller-1", recent)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}

func TestStatsService_UnknownStore(t *testing.T) {
	svc, _ := newStatsFixture(t)

	_, err := svc.OrderStats(t.Context(), integration.MarketplaceMercadoLivre, "ghost")
	assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
}
