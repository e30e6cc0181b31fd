package marketsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
	"github.com/marketsync/backend/internal/infrastructure/persistence"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

// fakeClock advances on Sleep instead of waiting
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testNow}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// ---------------------------------------------------------------------------
// Store and fixtures
// ---------------------------------------------------------------------------

func newTestStore(t *testing.T) *persistence.GormRecordStore {
	t.Helper()
	db, err := persistence.NewSQLiteDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return persistence.NewGormRecordStore(db.DB)
}

func newCredential(marketplace integration.Marketplace, storeID string, expiresAt time.Time) *integration.StoreCredential {
	return &integration.StoreCredential{
		ID:            uuid.New(),
		Marketplace:   marketplace,
		PartnerID:     "1001",
		PartnerSecret: "partner-secret",
		StoreID:       storeID,
		StoreName:     "Store " + storeID,
		AccessToken:   "access-" + storeID,
		RefreshToken:  "refresh-" + storeID,
		ExpiresAt:     expiresAt,
		IsActive:      true,
		CreatedAt:     testNow.Add(-48 * time.Hour),
		UpdatedAt:     testNow.Add(-time.Hour),
	}
}

func seedCredential(t *testing.T, store integration.RecordStore, cred *integration.StoreCredential) *integration.StoreCredential {
	t.Helper()
	require.NoError(t, store.Insert(t.Context(), integration.TableStoreCredentials, cred))
	return cred
}

func newOrder(marketplace integration.Marketplace, storeID, orderID, platformStatus string, updatedAt time.Time) integration.OrderRecord {
	status := ecommerce.MapShopeeStatus(platformStatus)
	if marketplace == integration.MarketplaceMercadoLivre {
		status = ecommerce.MapMercadoLivreStatus(platformStatus)
	}
	return integration.OrderRecord{
		Marketplace:    marketplace,
		OrderID:        orderID,
		StoreID:        storeID,
		Status:         status,
		PlatformStatus: platformStatus,
		OrderCreatedAt: updatedAt.Add(-time.Hour),
		OrderUpdatedAt: updatedAt,
		TotalAmount:    decimal.RequireFromString("100.00"),
		Currency:       "BRL",
		RawPayload:     fmt.Sprintf(`{"order_id":%q}`, orderID),
	}
}

func seedOrder(t *testing.T, store integration.RecordStore, order integration.OrderRecord) {
	t.Helper()
	order.ID = uuid.New()
	order.SyncedAt = testNow
	require.NoError(t, store.Insert(t.Context(), integration.TableOrders, &order))
}

func newFinancial(marketplace integration.Marketplace, storeID, orderID string, commission string) integration.FinancialRecord {
	rec := integration.NewFinancialRecord(marketplace, storeID, orderID)
	rec.Commission = decimal.RequireFromString(commission)
	rec.SaleFee = decimal.RequireFromString("1.50")
	rec.NetAmount = decimal.RequireFromString("90")
	rec.RecomputeTotalFees()
	rec.PaymentStatus = "released"
	rec.HasFinancialData = true
	rec.RawPayload = fmt.Sprintf(`{"order_id":%q,"commission":%s}`, orderID, commission)
	rec.PayloadDigest = "digest-" + orderID + "-" + commission
	return *rec
}

func loadOrders(t *testing.T, store integration.RecordStore, storeID string) map[string]integration.OrderRecord {
	t.Helper()
	var rows []integration.OrderRecord
	require.NoError(t, store.Select(t.Context(), integration.TableOrders,
		integration.Eq(map[string]any{"store_id": storeID}), integration.PageRequest{}, &rows))
	out := make(map[string]integration.OrderRecord, len(rows))
	for _, r := range rows {
		out[r.OrderID] = r
	}
	return out
}

// ---------------------------------------------------------------------------
// Collaborator fakes
// ---------------------------------------------------------------------------

// mockRenewer is a testify mock for integration.TokenRenewer
type mockRenewer struct {
	mock.Mock
}

func (m *mockRenewer) RenewToken(ctx context.Context, cred *integration.StoreCredential) (*integration.TokenGrant, error) {
	args := m.Called(ctx, cred)
	grant, _ := args.Get(0).(*integration.TokenGrant)
	return grant, args.Error(1)
}

// recordingArchive remembers archived keys
type recordingArchive struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *recordingArchive) Put(ctx context.Context, marketplace integration.Marketplace, storeID, orderID string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, string(marketplace)+"/"+storeID+"/"+orderID)
	return a.err
}

func (a *recordingArchive) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.keys...)
}

// faultyStore fails selected operations of an underlying store
type faultyStore struct {
	integration.RecordStore
	selectErr    error
	failInsertOf string
}

func (s *faultyStore) Select(ctx context.Context, table string, filter integration.Filter, page integration.PageRequest, dest any) error {
	if s.selectErr != nil {
		return s.selectErr
	}
	return s.RecordStore.Select(ctx, table, filter, page, dest)
}

func (s *faultyStore) Insert(ctx context.Context, table string, row any) error {
	if o, ok := row.(*integration.OrderRecord); ok && o.OrderID == s.failInsertOf {
		return fmt.Errorf("%w: insert %s: disk full", integration.ErrPersistence, table)
	}
	return s.RecordStore.Insert(ctx, table, row)
}

// pagedLister serves fixed pages per time field; the cursor is the next page index
func pagedLister(pages map[integration.TimeField][][]string) ecommerce.ListFunc {
	return func(ctx context.Context, field integration.TimeField, window integration.TimeWindow, cursor string, pageSize int) (*ecommerce.Page, error) {
		idx := 0
		if cursor != "" {
			idx, _ = strconv.Atoi(cursor)
		}
		fieldPages := pages[field]
		if idx >= len(fieldPages) {
			return &ecommerce.Page{}, nil
		}
		return &ecommerce.Page{
			IDs: fieldPages[idx],
			Cursor: ecommerce.SyncCursor{
				Token: strconv.Itoa(idx + 1),
				More:  idx+1 < len(fieldPages),
			},
		}, nil
	}
}

// fakeShopeeAPI serves canned Shopee data
type fakeShopeeAPI struct {
	mu          sync.Mutex
	pages       map[integration.TimeField][][]string
	listErr     error
	orders      map[string]integration.OrderRecord
	escrow      map[string]integration.FinancialRecord
	escrowErrs  map[string]error
	detailCalls [][]string
}

func (f *fakeShopeeAPI) Lister(cred *integration.StoreCredential) ecommerce.ListFunc {
	if f.listErr != nil {
		return func(context.Context, integration.TimeField, integration.TimeWindow, string, int) (*ecommerce.Page, error) {
			return nil, f.listErr
		}
	}
	return pagedLister(f.pages)
}

func (f *fakeShopeeAPI) GetOrderDetails(ctx context.Context, cred *integration.StoreCredential, orderSNs []string) ([]integration.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, append([]string(nil), orderSNs...))
	var out []integration.OrderRecord
	for _, sn := range orderSNs {
		if o, ok := f.orders[sn]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeShopeeAPI) GetEscrowDetail(ctx context.Context, cred *integration.StoreCredential, orderSN string) (*integration.FinancialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.escrowErrs[orderSN]; err != nil {
		return nil, err
	}
	rec, ok := f.escrow[orderSN]
	if !ok {
		return nil, integration.ErrNotFound
	}
	return &rec, nil
}

// fakeMercadoLivreAPI serves canned Mercado Livre data
type fakeMercadoLivreAPI struct {
	mu           sync.Mutex
	pages        map[integration.TimeField][][]string
	orders       map[string]integration.OrderRecord
	orderErrs    map[string]error
	billing      map[string]integration.FinancialRecord
	billingErrs  map[string]error
	billingCalls [][]string
}

func (f *fakeMercadoLivreAPI) Lister(cred *integration.StoreCredential) ecommerce.ListFunc {
	return pagedLister(f.pages)
}

func (f *fakeMercadoLivreAPI) GetOrder(ctx context.Context, cred *integration.StoreCredential, orderID string) (integration.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.orderErrs[orderID]; err != nil {
		return integration.OrderRecord{}, err
	}
	o, ok := f.orders[orderID]
	if !ok {
		return integration.OrderRecord{}, integration.ErrNotFound
	}
	return o, nil
}

func (f *fakeMercadoLivreAPI) GetBilling(ctx context.Context, cred *integration.StoreCredential, orderIDs []string) ([]integration.FinancialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.billingCalls = append(f.billingCalls, append([]string(nil), orderIDs...))
	var (
		out      []integration.FinancialRecord
		failures []integration.ItemFailure
	)
	for _, id := range orderIDs {
		if err := f.billingErrs[id]; err != nil {
			failures = append(failures, integration.NewItemFailure(id, err))
			continue
		}
		if rec, ok := f.billing[id]; ok {
			out = append(out, rec)
		}
	}
	if len(failures) > 0 {
		return out, &integration.PartialError{Failures: failures}
	}
	return out, nil
}

var errBoom = errors.New("boom")
