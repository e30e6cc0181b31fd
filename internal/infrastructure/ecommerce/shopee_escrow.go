package ecommerce

import (
	"encoding/json"
	"fmt"

	"github.com/marketsync/backend/internal/domain/integration"
)

// EscrowToFinancial converts a get_escrow_detail body into a financial record.
// The digest covers only the response object so that per-call request ids do
// not register as changes.
func EscrowToFinancial(storeID, orderSN string, body []byte) (*integration.FinancialRecord, error) {
	var envelope struct {
		ShopeeResponse
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: shopee escrow: %v", integration.ErrAggregation, err)
	}
	if !envelope.IsSuccess() {
		return nil, shopeeError(&envelope.ShopeeResponse)
	}
	if len(envelope.Response) == 0 || string(envelope.Response) == "null" {
		return nil, fmt.Errorf("%w: shopee escrow for %s has no response", integration.ErrAggregation, orderSN)
	}

	var detail ShopeeEscrowDetail
	if err := json.Unmarshal(envelope.Response, &detail); err != nil {
		return nil, fmt.Errorf("%w: shopee escrow: %v", integration.ErrAggregation, err)
	}
	if detail.OrderSN == "" {
		detail.OrderSN = orderSN
	}

	income := detail.OrderIncome
	rec := integration.NewFinancialRecord(integration.MarketplaceShopee, storeID, detail.OrderSN)
	rec.Commission = income.CommissionFee
	rec.ManagementFee = income.ServiceFee
	rec.SaleFee = income.SellerTransactionFee
	rec.ShippingFee = income.ActualShippingFee
	rec.Tax = income.WithholdingTax
	rec.Discount = income.SellerDiscount
	rec.GrossAmount = detail.BuyerPaymentInfo.BuyerTotalAmount
	rec.NetAmount = income.EscrowAmount
	rec.RawChargeTotal = income.CommissionFee.
		Add(income.ServiceFee).
		Add(income.SellerTransactionFee).
		Add(income.ActualShippingFee)
	rec.RawDiscountTotal = income.SellerDiscount.Add(income.ShopeeDiscount)
	rec.PayerNickname = detail.BuyerUserName
	rec.SalesChannel = detail.BuyerPaymentInfo.BuyerPaymentMethod
	if len(detail.ReturnOrderSNList) > 0 {
		rec.PaymentStatus = "returned"
	}
	rec.RecomputeTotalFees()
	rec.HasFinancialData = true
	rec.PayloadDigest = PayloadDigest(envelope.Response)
	rec.RawPayload = string(envelope.Response)
	return rec, nil
}
