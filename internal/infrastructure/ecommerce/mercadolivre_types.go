package ecommerce

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// flexString decodes a JSON string or number into a string. Mercado Livre
// returns identifiers in either form depending on the endpoint.
type flexString string

// UnmarshalJSON implements json.Unmarshaler
func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// String returns the decoded value
func (s flexString) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Auth Types
// ---------------------------------------------------------------------------

// MercadoLivreTokenResponse is the response for POST /oauth/token
type MercadoLivreTokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	Scope        string     `json:"scope"`
	UserID       flexString `json:"user_id"`
	RefreshToken string     `json:"refresh_token"`
	Error        string     `json:"error,omitempty"`
	Message      string     `json:"message,omitempty"`
}

// ---------------------------------------------------------------------------
// Order Types
// ---------------------------------------------------------------------------

// MercadoLivreSearchResponse is the response for /orders/search
type MercadoLivreSearchResponse struct {
	Results []MercadoLivreOrder `json:"results"`
	Paging  MercadoLivrePaging  `json:"paging"`
}

// MercadoLivrePaging is the offset pagination block
type MercadoLivrePaging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// MercadoLivreOrder is an order from /orders/{id} or /orders/search
type MercadoLivreOrder struct {
	ID          flexString            `json:"id"`
	Status      string                `json:"status"`
	DateCreated string                `json:"date_created"`
	DateClosed  string                `json:"date_closed"`
	LastUpdated string                `json:"last_updated"`
	TotalAmount decimal.Decimal       `json:"total_amount"`
	CurrencyID  string                `json:"currency_id"`
	Buyer       MercadoLivreBuyer     `json:"buyer"`
	Payments    []MercadoLivrePayment `json:"payments"`
	Tags        []string              `json:"tags"`
}

// MercadoLivreBuyer identifies the buyer
type MercadoLivreBuyer struct {
	ID       flexString `json:"id"`
	Nickname string     `json:"nickname"`
}

// MercadoLivrePayment is one payment of an order
type MercadoLivrePayment struct {
	ID     flexString `json:"id"`
	Status string     `json:"status"`
}

// HasRefund reports whether any payment was refunded
func (o *MercadoLivreOrder) HasRefund() bool {
	if o.Status == "partially_refunded" {
		return true
	}
	for _, p := range o.Payments {
		if p.Status == "refunded" || p.Status == "charged_back" {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Billing Types
// ---------------------------------------------------------------------------

// MercadoLivreBillingRecord is the billing breakdown of one order
type MercadoLivreBillingRecord struct {
	OrderID     flexString                  `json:"order_id"`
	Details     []MercadoLivreBillingDetail `json:"details"`
	PaymentInfo []MercadoLivrePaymentInfo   `json:"payment_info"`
}

// MercadoLivreBillingDetail is one fee line-item
type MercadoLivreBillingDetail struct {
	ChargeInfo   *MercadoLivreChargeInfo   `json:"charge_info"`
	DiscountInfo *MercadoLivreDiscountInfo `json:"discount_info"`
	SalesInfo    []MercadoLivreSalesInfo   `json:"sales_info"`
	ItemsInfo    []MercadoLivreItemsInfo   `json:"items_info"`
	ShippingInfo *MercadoLivreShippingInfo `json:"shipping_info"`
	CurrencyInfo *MercadoLivreCurrencyInfo `json:"currency_info"`
	DocumentInfo *MercadoLivreDocumentInfo `json:"document_info"`
}

// MercadoLivreChargeInfo carries the categorized amount of a line-item
type MercadoLivreChargeInfo struct {
	DetailID      flexString      `json:"detail_id"`
	DetailAmount  decimal.Decimal `json:"detail_amount"`
	DetailType    string          `json:"detail_type"`
	DetailSubType string          `json:"detail_sub_type"`
}

// MercadoLivreDiscountInfo carries the discount applied to a line-item
type MercadoLivreDiscountInfo struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// MercadoLivreSalesInfo describes the sale
type MercadoLivreSalesInfo struct {
	OrderID           flexString      `json:"order_id"`
	OperationID       flexString      `json:"operation_id"`
	SaleDateTime      string          `json:"sale_date_time"`
	SalesChannel      string          `json:"sales_channel"`
	PayerNickname     string          `json:"payer_nickname"`
	StateName         string          `json:"state_name"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	FinancingFee      decimal.Decimal `json:"financing_fee"`
}

// IsEmpty reports whether the block carries no data
func (s *MercadoLivreSalesInfo) IsEmpty() bool {
	return s.OrderID == "" && s.OperationID == "" && s.SaleDateTime == "" &&
		s.PayerNickname == "" && s.TransactionAmount.IsZero()
}

// MercadoLivreItemsInfo describes the sold item
type MercadoLivreItemsInfo struct {
	ItemID     flexString      `json:"item_id"`
	ItemTitle  string          `json:"item_title"`
	ItemAmount int             `json:"item_amount"`
	ItemPrice  decimal.Decimal `json:"item_price"`
}

// IsEmpty reports whether the block carries no data
func (i *MercadoLivreItemsInfo) IsEmpty() bool {
	return i.ItemID == "" && i.ItemTitle == "" && i.ItemAmount == 0
}

// MercadoLivreShippingInfo identifies the shipment
type MercadoLivreShippingInfo struct {
	ShippingID           flexString      `json:"shipping_id"`
	PackID               flexString      `json:"pack_id"`
	ReceiverShippingCost decimal.Decimal `json:"receiver_shipping_cost"`
}

// IsEmpty reports whether the block carries no data
func (s *MercadoLivreShippingInfo) IsEmpty() bool {
	return s == nil || (s.ShippingID == "" && s.PackID == "")
}

// MercadoLivreCurrencyInfo holds the billing currency
type MercadoLivreCurrencyInfo struct {
	CurrencyID string `json:"currency_id"`
}

// IsEmpty reports whether the block carries no data
func (c *MercadoLivreCurrencyInfo) IsEmpty() bool {
	return c == nil || strings.TrimSpace(c.CurrencyID) == ""
}

// MercadoLivreDocumentInfo identifies the fiscal document
type MercadoLivreDocumentInfo struct {
	DocumentID flexString `json:"document_id"`
}

// IsEmpty reports whether the block carries no data
func (d *MercadoLivreDocumentInfo) IsEmpty() bool {
	return d == nil || d.DocumentID == ""
}

// MercadoLivrePaymentInfo holds settlement data
type MercadoLivrePaymentInfo struct {
	Status             string `json:"status"`
	MoneyReleaseDate   string `json:"money_release_date"`
	MoneyReleaseStatus string `json:"money_release_status"`
}
