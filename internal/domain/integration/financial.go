package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a billing payload carries no currency block
const DefaultCurrency = "BRL"

// FinancialRecord is the flat, categorized fee record for one order.
// Monetary fields are zero-valued decimals, never null.
type FinancialRecord struct {
	ID          uuid.UUID
	Marketplace Marketplace
	OrderID     string
	StoreID     string

	// Categorized fees
	SaleFee       decimal.Decimal
	ShippingFee   decimal.Decimal
	ManagementFee decimal.Decimal
	OtherFee      decimal.Decimal
	Commission    decimal.Decimal
	TotalFees     decimal.Decimal

	Tax          decimal.Decimal
	Discount     decimal.Decimal
	FinancingFee decimal.Decimal

	// Transaction amounts
	GrossAmount      decimal.Decimal
	NetAmount        decimal.Decimal
	RawChargeTotal   decimal.Decimal
	RawDiscountTotal decimal.Decimal
	Currency         string

	// Settlement
	PaymentStatus      string
	MoneyReleaseStatus string
	MoneyReleaseDate   *time.Time

	// First-seen metadata
	SaleDate      *time.Time
	SalesChannel  string
	PayerNickname string
	StateName     string
	OperationID   string
	ItemID        string
	ItemTitle     string
	ItemQuantity  int
	ShippingID    string
	DocumentID    string

	HasFinancialData bool
	PayloadDigest    string
	LastUpdated      time.Time
	RawPayload       string
}

// NewFinancialRecord returns a record with every amount set to zero
func NewFinancialRecord(marketplace Marketplace, storeID, orderID string) *FinancialRecord {
	return &FinancialRecord{
		Marketplace:      marketplace,
		StoreID:          storeID,
		OrderID:          orderID,
		SaleFee:          decimal.Zero,
		ShippingFee:      decimal.Zero,
		ManagementFee:    decimal.Zero,
		OtherFee:         decimal.Zero,
		Commission:       decimal.Zero,
		TotalFees:        decimal.Zero,
		Tax:              decimal.Zero,
		Discount:         decimal.Zero,
		FinancingFee:     decimal.Zero,
		GrossAmount:      decimal.Zero,
		NetAmount:        decimal.Zero,
		RawChargeTotal:   decimal.Zero,
		RawDiscountTotal: decimal.Zero,
		Currency:         DefaultCurrency,
	}
}

// RecomputeTotalFees sets TotalFees to the sum of the fee buckets
func (f *FinancialRecord) RecomputeTotalFees() {
	f.TotalFees = f.SaleFee.
		Add(f.ShippingFee).
		Add(f.ManagementFee).
		Add(f.OtherFee).
		Add(f.Commission)
}

// DetailID returns the upstream order identifier
func (f FinancialRecord) DetailID() string {
	return f.OrderID
}

// IsCancelled is always false; cancellation is decided on the order side
func (f FinancialRecord) IsCancelled() bool {
	return false
}

// Key returns the reconciliation key
func (f FinancialRecord) Key() RecordKey {
	return RecordKey{OrderID: f.OrderID, StoreID: f.StoreID}
}

// State returns the change-detection snapshot. Billing payloads carry no
// reliable update timestamp, so the payload digest stands in for it.
func (f FinancialRecord) State() RecordState {
	return RecordState{
		Key:    f.Key(),
		Status: f.PaymentStatus,
		Digest: f.PayloadDigest,
	}
}
