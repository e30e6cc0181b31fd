package ecommerce

import (
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Common Shopee API Response Types
// ---------------------------------------------------------------------------

// ShopeeResponse is the envelope shared by every Shopee v2 response
type ShopeeResponse struct {
	// Error is empty on success
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// IsSuccess returns true if the response indicates success
func (r *ShopeeResponse) IsSuccess() bool {
	return r.Error == ""
}

// ShopeeTokenResponse is the response for auth/access_token/get
type ShopeeTokenResponse struct {
	ShopeeResponse
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireIn     int64  `json:"expire_in"`
	PartnerID    int64  `json:"partner_id,omitempty"`
	ShopID       int64  `json:"shop_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Order Related Types
// ---------------------------------------------------------------------------

// ShopeeOrderListResponse is the response for order/get_order_list
type ShopeeOrderListResponse struct {
	ShopeeResponse
	Response *ShopeeOrderListData `json:"response,omitempty"`
}

// ShopeeOrderListData contains one listing page
type ShopeeOrderListData struct {
	More       bool              `json:"more"`
	NextCursor string            `json:"next_cursor"`
	OrderList  []ShopeeOrderStub `json:"order_list"`
}

// ShopeeOrderStub is the identifier returned by the listing endpoint
type ShopeeOrderStub struct {
	OrderSN string `json:"order_sn"`
}

// ShopeeOrder is an order from get_order_detail
type ShopeeOrder struct {
	OrderSN       string          `json:"order_sn"`
	OrderStatus   string          `json:"order_status"`
	CreateTime    int64           `json:"create_time"` // Unix seconds
	UpdateTime    int64           `json:"update_time"` // Unix seconds
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	BuyerUsername string          `json:"buyer_username"`
	BuyerUserID   int64           `json:"buyer_user_id"`
}

// ---------------------------------------------------------------------------
// Escrow Types
// ---------------------------------------------------------------------------

// ShopeeEscrowDetail is the fee breakdown of one order
type ShopeeEscrowDetail struct {
	OrderSN           string                 `json:"order_sn"`
	BuyerUserName     string                 `json:"buyer_user_name"`
	ReturnOrderSNList []string               `json:"return_order_sn_list"`
	OrderIncome       ShopeeOrderIncome      `json:"order_income"`
	BuyerPaymentInfo  ShopeeBuyerPaymentInfo `json:"buyer_payment_info"`
}

// ShopeeOrderIncome holds the seller-side amounts
type ShopeeOrderIncome struct {
	EscrowAmount         decimal.Decimal `json:"escrow_amount"`
	CommissionFee        decimal.Decimal `json:"commission_fee"`
	ServiceFee           decimal.Decimal `json:"service_fee"`
	SellerTransactionFee decimal.Decimal `json:"seller_transaction_fee"`
	ActualShippingFee    decimal.Decimal `json:"actual_shipping_fee"`
	WithholdingTax       decimal.Decimal `json:"withholding_tax"`
	SellerDiscount       decimal.Decimal `json:"seller_discount"`
	ShopeeDiscount       decimal.Decimal `json:"shopee_discount"`
	OriginalPrice        decimal.Decimal `json:"original_price"`
}

// ShopeeBuyerPaymentInfo holds the buyer-side amounts
type ShopeeBuyerPaymentInfo struct {
	BuyerTotalAmount   decimal.Decimal `json:"buyer_total_amount"`
	BuyerPaymentMethod string          `json:"buyer_payment_method"`
	MerchantSubtotal   decimal.Decimal `json:"merchant_subtotal"`
}
