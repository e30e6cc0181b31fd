package marketsync

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsync/backend/internal/domain/integration"
)

// statsPageSize is the page size used when summing fee rows
const statsPageSize = 500

// orderStatuses are the statuses reported by OrderStats
var orderStatuses = []integration.OrderStatus{
	integration.OrderStatusPendingPayment,
	integration.OrderStatusToShip,
	integration.OrderStatusShipped,
	integration.OrderStatusCompleted,
	integration.OrderStatusCancelled,
	integration.OrderStatusRefundPending,
	integration.OrderStatusUnknown,
}

// StoreOrderStats counts a store's orders by status
type StoreOrderStats struct {
	Marketplace integration.Marketplace           `json:"marketplace"`
	StoreID     string                            `json:"store_id"`
	StoreName   string                            `json:"store_name,omitempty"`
	Total       int64                             `json:"total"`
	ByStatus    map[integration.OrderStatus]int64 `json:"by_status"`
}

// StoreFinancialStats describes a store's fee coverage and fee totals
type StoreFinancialStats struct {
	Marketplace   integration.Marketplace `json:"marketplace"`
	StoreID       string                  `json:"store_id"`
	StoreName     string                  `json:"store_name,omitempty"`
	Orders        int64                   `json:"orders"`
	WithFinancial int64                   `json:"with_financial"`
	Pending       int                     `json:"pending"`
	SaleFee       decimal.Decimal         `json:"sale_fee"`
	ShippingFee   decimal.Decimal         `json:"shipping_fee"`
	ManagementFee decimal.Decimal         `json:"management_fee"`
	OtherFee      decimal.Decimal         `json:"other_fee"`
	Commission    decimal.Decimal         `json:"commission"`
	TotalFees     decimal.Decimal         `json:"total_fees"`
	NetAmount     decimal.Decimal         `json:"net_amount"`
}

// PendingOrder is an order still waiting for fee data
type PendingOrder struct {
	OrderID        string                  `json:"order_id"`
	StoreID        string                  `json:"store_id"`
	Status         integration.OrderStatus `json:"status"`
	PlatformStatus string                  `json:"platform_status"`
	OrderCreatedAt time.Time               `json:"order_created_at"`
	TotalAmount    decimal.Decimal         `json:"total_amount"`
}

// StatsService reports what has been synced so far
type StatsService struct {
	store       integration.RecordStore
	credentials integration.CredentialRepository
	selector    *FinancialSelector
}

// NewStatsService creates a new StatsService
func NewStatsService(store integration.RecordStore, credentials integration.CredentialRepository, selector *FinancialSelector) *StatsService {
	return &StatsService{
		store:       store,
		credentials: credentials,
		selector:    selector,
	}
}

// OrderStats returns order counts for one store, or for every active store
// when storeID is empty or "all"
func (s *StatsService) OrderStats(ctx context.Context, marketplace integration.Marketplace, storeID string) ([]StoreOrderStats, error) {
	stores, err := s.targets(ctx, marketplace, storeID)
	if err != nil {
		return nil, err
	}

	stats := make([]StoreOrderStats, 0, len(stores))
	for _, cred := range stores {
		st := StoreOrderStats{
			Marketplace: marketplace,
			StoreID:     cred.StoreID,
			StoreName:   cred.StoreName,
			ByStatus:    make(map[integration.OrderStatus]int64, len(orderStatuses)),
		}
		for _, status := range orderStatuses {
			n, err := s.store.Count(ctx, integration.TableOrders, integration.Eq(map[string]any{
				"marketplace": marketplace,
				"store_id":    cred.StoreID,
				"status":      status,
			}))
			if err != nil {
				return nil, err
			}
			if n > 0 {
				st.ByStatus[status] = n
			}
			st.Total += n
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// FinancialStats returns fee coverage and summed fees per store
func (s *StatsService) FinancialStats(ctx context.Context, marketplace integration.Marketplace, storeID string) ([]StoreFinancialStats, error) {
	stores, err := s.targets(ctx, marketplace, storeID)
	if err != nil {
		return nil, err
	}

	stats := make([]StoreFinancialStats, 0, len(stores))
	for _, cred := range stores {
		st, err := s.storeFinancialStats(ctx, marketplace, cred)
		if err != nil {
			return nil, err
		}
		stats = append(stats, *st)
	}
	return stats, nil
}

// PendingFinancial lists the orders of a store that still need fee data
func (s *StatsService) PendingFinancial(ctx context.Context, marketplace integration.Marketplace, storeID string, window integration.TimeWindow) ([]PendingOrder, error) {
	stores, err := s.targets(ctx, marketplace, storeID)
	if err != nil {
		return nil, err
	}

	var pending []PendingOrder
	for _, cred := range stores {
		orders, err := s.selector.Pending(ctx, marketplace, cred.StoreID, window)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			pending = append(pending, PendingOrder{
				OrderID:        o.OrderID,
				StoreID:        o.StoreID,
				Status:         o.Status,
				PlatformStatus: o.PlatformStatus,
				OrderCreatedAt: o.OrderCreatedAt.UTC(),
				TotalAmount:    o.TotalAmount,
			})
		}
	}
	return pending, nil
}

func (s *StatsService) storeFinancialStats(ctx context.Context, marketplace integration.Marketplace, cred integration.StoreCredential) (*StoreFinancialStats, error) {
	scope := map[string]any{
		"marketplace": marketplace,
		"store_id":    cred.StoreID,
	}

	orders, err := s.store.Count(ctx, integration.TableOrders, integration.Eq(scope))
	if err != nil {
		return nil, err
	}
	pending, err := s.selector.Pending(ctx, marketplace, cred.StoreID, integration.TimeWindow{})
	if err != nil {
		return nil, err
	}

	st := &StoreFinancialStats{
		Marketplace:   marketplace,
		StoreID:       cred.StoreID,
		StoreName:     cred.StoreName,
		Orders:        orders,
		Pending:       len(pending),
		SaleFee:       decimal.Zero,
		ShippingFee:   decimal.Zero,
		ManagementFee: decimal.Zero,
		OtherFee:      decimal.Zero,
		Commission:    decimal.Zero,
		TotalFees:     decimal.Zero,
		NetAmount:     decimal.Zero,
	}

	filter := integration.Eq(map[string]any{
		"marketplace":        marketplace,
		"store_id":           cred.StoreID,
		"has_financial_data": true,
	})
	for offset := 0; ; offset += statsPageSize {
		var rows []integration.FinancialRecord
		if err := s.store.Select(ctx, integration.TableFinancials, filter,
			integration.PageRequest{OrderBy: "id", Limit: statsPageSize, Offset: offset}, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			st.WithFinancial++
			st.SaleFee = st.SaleFee.Add(r.SaleFee)
			st.ShippingFee = st.ShippingFee.Add(r.ShippingFee)
			st.ManagementFee = st.ManagementFee.Add(r.ManagementFee)
			st.OtherFee = st.OtherFee.Add(r.OtherFee)
			st.Commission = st.Commission.Add(r.Commission)
			st.TotalFees = st.TotalFees.Add(r.TotalFees)
			st.NetAmount = st.NetAmount.Add(r.NetAmount)
		}
		if len(rows) < statsPageSize {
			break
		}
	}
	return st, nil
}

// targets resolves the stores a stats query covers
func (s *StatsService) targets(ctx context.Context, marketplace integration.Marketplace, storeID string) ([]integration.StoreCredential, error) {
	if storeID == "" || storeID == integration.AllStores {
		return s.credentials.ListActive(ctx, marketplace)
	}
	cred, err := s.credentials.GetActive(ctx, marketplace, storeID)
	if err != nil {
		return nil, err
	}
	return []integration.StoreCredential{*cred}, nil
}
