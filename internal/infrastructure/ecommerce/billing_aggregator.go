package ecommerce

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsync/backend/internal/domain/integration"
)

// FeeBucket is a named fee category of a financial record
type FeeBucket string

const (
	FeeBucketSale       FeeBucket = "sale"
	FeeBucketShipping   FeeBucket = "shipping"
	FeeBucketManagement FeeBucket = "management"
	FeeBucketOther      FeeBucket = "other"
)

// DefaultFeeBuckets maps Mercado Livre detail_sub_type codes to buckets
func DefaultFeeBuckets() map[string]FeeBucket {
	return map[string]FeeBucket{
		"CVML": FeeBucketSale,       // sale fee
		"CDSB": FeeBucketShipping,   // Mercado Envios shipping fee
		"CVMP": FeeBucketManagement, // sale management cost
	}
}

// BillingAggregator folds billing line-items into a financial record
type BillingAggregator struct {
	buckets map[string]FeeBucket
}

// NewBillingAggregator creates an aggregator with the given sub-type table.
// A nil table uses DefaultFeeBuckets.
func NewBillingAggregator(buckets map[string]FeeBucket) *BillingAggregator {
	if buckets == nil {
		buckets = DefaultFeeBuckets()
	}
	return &BillingAggregator{buckets: buckets}
}

// Aggregate decodes and aggregates one billing record
func (a *BillingAggregator) Aggregate(storeID string, raw []byte) (*integration.FinancialRecord, error) {
	var record MercadoLivreBillingRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrAggregation, err)
	}
	return a.AggregateRecord(storeID, &record, raw)
}

// BillingOrderID reads only the order id of a raw billing record, from
// order_id or the first sales_info entry. It returns "" when neither parses.
func BillingOrderID(raw []byte) string {
	var ref struct {
		OrderID flexString `json:"order_id"`
		Details []struct {
			SalesInfo []struct {
				OrderID flexString `json:"order_id"`
			} `json:"sales_info"`
		} `json:"details"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		var top struct {
			OrderID flexString `json:"order_id"`
		}
		if json.Unmarshal(raw, &top) == nil {
			return top.OrderID.String()
		}
		return ""
	}
	if id := ref.OrderID.String(); id != "" {
		return id
	}
	for _, d := range ref.Details {
		for _, s := range d.SalesInfo {
			if id := s.OrderID.String(); id != "" {
				return id
			}
		}
	}
	return ""
}

// AggregateRecord folds the line-items of record. Every charge and discount
// counts toward the raw totals; only sub-types in the table reach a named
// bucket. Metadata blocks keep their first non-empty occurrence.
func (a *BillingAggregator) AggregateRecord(storeID string, record *MercadoLivreBillingRecord, raw []byte) (*integration.FinancialRecord, error) {
	var (
		sales    *MercadoLivreSalesInfo
		item     *MercadoLivreItemsInfo
		shipping *MercadoLivreShippingInfo
		currency *MercadoLivreCurrencyInfo
		document *MercadoLivreDocumentInfo
	)

	fees := map[FeeBucket]decimal.Decimal{}
	chargeTotal := decimal.Zero
	discountTotal := decimal.Zero

	for i := range record.Details {
		d := &record.Details[i]

		if d.ChargeInfo != nil {
			amount := d.ChargeInfo.DetailAmount
			chargeTotal = chargeTotal.Add(amount)
			if bucket, ok := a.buckets[d.ChargeInfo.DetailSubType]; ok {
				fees[bucket] = fees[bucket].Add(amount)
			}
		}
		if d.DiscountInfo != nil {
			discountTotal = discountTotal.Add(d.DiscountInfo.DiscountAmount)
		}

		if sales == nil && len(d.SalesInfo) > 0 && !d.SalesInfo[0].IsEmpty() {
			sales = &d.SalesInfo[0]
		}
		if item == nil && len(d.ItemsInfo) > 0 && !d.ItemsInfo[0].IsEmpty() {
			item = &d.ItemsInfo[0]
		}
		if shipping == nil && !d.ShippingInfo.IsEmpty() {
			shipping = d.ShippingInfo
		}
		if currency == nil && !d.CurrencyInfo.IsEmpty() {
			currency = d.CurrencyInfo
		}
		if document == nil && !d.DocumentInfo.IsEmpty() {
			document = d.DocumentInfo
		}
	}

	orderID := record.OrderID.String()
	if orderID == "" && sales != nil {
		orderID = sales.OrderID.String()
	}
	if orderID == "" {
		return nil, fmt.Errorf("%w: billing record has no order id", integration.ErrAggregation)
	}

	rec := integration.NewFinancialRecord(integration.MarketplaceMercadoLivre, storeID, orderID)
	rec.SaleFee = fees[FeeBucketSale]
	rec.ShippingFee = fees[FeeBucketShipping]
	rec.ManagementFee = fees[FeeBucketManagement]
	rec.OtherFee = fees[FeeBucketOther]
	rec.RawChargeTotal = chargeTotal
	rec.RawDiscountTotal = discountTotal
	rec.Discount = discountTotal
	rec.RecomputeTotalFees()

	if sales != nil {
		rec.GrossAmount = sales.TransactionAmount
		rec.FinancingFee = sales.FinancingFee
		rec.OperationID = sales.OperationID.String()
		rec.SaleDate = parseFlexibleTime(sales.SaleDateTime)
		rec.SalesChannel = sales.SalesChannel
		rec.PayerNickname = sales.PayerNickname
		rec.StateName = sales.StateName
	}
	rec.NetAmount = rec.GrossAmount.Sub(rec.TotalFees)
	if item != nil {
		rec.ItemID = item.ItemID.String()
		rec.ItemTitle = item.ItemTitle
		rec.ItemQuantity = item.ItemAmount
	}
	if shipping != nil {
		rec.ShippingID = shipping.ShippingID.String()
	}
	if currency != nil {
		rec.Currency = currency.CurrencyID
	}
	if document != nil {
		rec.DocumentID = document.DocumentID.String()
	}
	if len(record.PaymentInfo) > 0 {
		payment := record.PaymentInfo[0]
		rec.PaymentStatus = payment.Status
		rec.MoneyReleaseStatus = payment.MoneyReleaseStatus
		rec.MoneyReleaseDate = parseFlexibleTime(payment.MoneyReleaseDate)
	}

	rec.HasFinancialData = true
	rec.PayloadDigest = PayloadDigest(raw)
	rec.RawPayload = string(raw)
	return rec, nil
}

// SplitBillingResponse normalizes a billing response into one raw message
// per order. The endpoint answers with a bare array, a {"results": [...]}
// object, or a single record.
func SplitBillingResponse(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	if body[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrAggregation, err)
		}
		return list, nil
	}

	var wrapped struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrAggregation, err)
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}
	return []json.RawMessage{json.RawMessage(body)}, nil
}

// PayloadDigest returns the hex SHA-256 of a compacted JSON payload
func PayloadDigest(payload []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err == nil {
		payload = buf.Bytes()
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// parseFlexibleTime parses RFC 3339 timestamps or plain dates. Empty or
// unparseable values yield nil.
func parseFlexibleTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, mercadoLivreTimeLayout, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
