package ecommerce

import (
	"strings"

	"github.com/marketsync/backend/internal/domain/integration"
)

// MapShopeeStatus maps a Shopee order_status to the stable status set
func MapShopeeStatus(status string) integration.OrderStatus {
	switch strings.ToUpper(status) {
	case "UNPAID":
		return integration.OrderStatusPendingPayment
	case "READY_TO_SHIP", "PROCESSED", "RETRY_SHIP":
		return integration.OrderStatusToShip
	case "SHIPPED", "TO_CONFIRM_RECEIVE":
		return integration.OrderStatusShipped
	case "COMPLETED":
		return integration.OrderStatusCompleted
	case "IN_CANCEL", "CANCELLED":
		return integration.OrderStatusCancelled
	case "TO_RETURN":
		return integration.OrderStatusRefundPending
	default:
		return integration.OrderStatusUnknown
	}
}

// MapMercadoLivreStatus maps a Mercado Livre order status to the stable status set
func MapMercadoLivreStatus(status string) integration.OrderStatus {
	switch strings.ToLower(status) {
	case "confirmed", "payment_required", "payment_in_process", "pending", "pending_payment":
		return integration.OrderStatusPendingPayment
	case "paid", "partially_paid":
		return integration.OrderStatusToShip
	case "shipped":
		return integration.OrderStatusShipped
	case "delivered":
		return integration.OrderStatusCompleted
	case "cancelled", "invalid":
		return integration.OrderStatusCancelled
	case "partially_refunded", "pending_cancel":
		return integration.OrderStatusRefundPending
	default:
		return integration.OrderStatusUnknown
	}
}
