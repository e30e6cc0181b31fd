package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// OrderStatus
// ---------------------------------------------------------------------------

// OrderStatus is the stable status set that platform-specific statuses map onto
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusToShip         OrderStatus = "to_ship"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefundPending  OrderStatus = "refund_pending"
	OrderStatusUnknown        OrderStatus = "unknown"
)

// IsValid returns true if the status is part of the stable set
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusToShip, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefundPending,
		OrderStatusUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s OrderStatus) String() string {
	return string(s)
}

// IsCancelled returns true for orders outside financial reconciliation scope
func (s OrderStatus) IsCancelled() bool {
	return s == OrderStatusCancelled
}

// ---------------------------------------------------------------------------
// OrderRecord
// ---------------------------------------------------------------------------

// OrderRecord is a normalized marketplace order. (OrderID, StoreID) is unique
// within a marketplace.
type OrderRecord struct {
	ID             uuid.UUID
	Marketplace    Marketplace
	OrderID        string
	StoreID        string
	Status         OrderStatus
	PlatformStatus string
	OrderCreatedAt time.Time
	OrderUpdatedAt time.Time
	TotalAmount    decimal.Decimal
	Currency       string
	BuyerRef       string
	HasRefund      bool
	RawPayload     string
	SyncedAt       time.Time
}

// DetailID returns the upstream identifier
func (o OrderRecord) DetailID() string {
	return o.OrderID
}

// IsCancelled reports whether the order was cancelled upstream
func (o OrderRecord) IsCancelled() bool {
	return o.Status.IsCancelled()
}

// Key returns the reconciliation key
func (o OrderRecord) Key() RecordKey {
	return RecordKey{OrderID: o.OrderID, StoreID: o.StoreID}
}

// State returns the change-detection snapshot
func (o OrderRecord) State() RecordState {
	return RecordState{
		Key:       o.Key(),
		Status:    o.PlatformStatus,
		UpdatedAt: o.OrderUpdatedAt,
	}
}

// NeedsFinancialData reports whether the order is in scope for fee
// reconciliation. Refunded orders are always in scope. Shopee publishes
// escrow only once the order has left the to-ship stage.
func (o OrderRecord) NeedsFinancialData() bool {
	if o.HasRefund {
		return true
	}
	switch o.Status {
	case OrderStatusCancelled, OrderStatusPendingPayment, OrderStatusUnknown:
		return false
	case OrderStatusToShip:
		return o.Marketplace != MarketplaceShopee
	}
	return true
}
