package ecommerce

import (
	"errors"
	"time"
)

// ShopeeConfig holds configuration for the Shopee Open Platform v2 API.
// Partner id and key are per store and come from the store credential.
type ShopeeConfig struct {
	// APIBaseURL is the base URL for Shopee API (production or sandbox)
	APIBaseURL string
	// IsSandbox indicates if this is a sandbox environment
	IsSandbox bool
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// MaxWindow is the longest time range accepted by get_order_list
	MaxWindow time.Duration
}

const (
	// ShopeeProductionAPIURL is the production API endpoint
	ShopeeProductionAPIURL = "https://partner.shopeemobile.com"
	// ShopeeSandboxAPIURL is the sandbox API endpoint
	ShopeeSandboxAPIURL = "https://partner.test-stable.shopeemobile.com"
	// ShopeeMaxWindow is the listing range limit enforced by Shopee
	ShopeeMaxWindow = 15 * 24 * time.Hour
)

// Shopee API paths
const (
	shopeePathRefreshToken = "/api/v2/auth/access_token/get"
	shopeePathOrderList    = "/api/v2/order/get_order_list"
	shopeePathOrderDetail  = "/api/v2/order/get_order_detail"
	shopeePathEscrowDetail = "/api/v2/payment/get_escrow_detail"
)

// ErrShopeeConfigInvalidTimeout is returned for a negative timeout
var ErrShopeeConfigInvalidTimeout = errors.New("shopee: timeout must not be negative")

// NewShopeeConfig creates a new Shopee configuration with defaults
func NewShopeeConfig() *ShopeeConfig {
	return &ShopeeConfig{
		APIBaseURL:     ShopeeProductionAPIURL,
		TimeoutSeconds: 30,
		MaxWindow:      ShopeeMaxWindow,
	}
}

// Validate validates the Shopee configuration and fills defaults
func (c *ShopeeConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return ErrShopeeConfigInvalidTimeout
	}
	if c.APIBaseURL == "" {
		if c.IsSandbox {
			c.APIBaseURL = ShopeeSandboxAPIURL
		} else {
			c.APIBaseURL = ShopeeProductionAPIURL
		}
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxWindow <= 0 || c.MaxWindow > ShopeeMaxWindow {
		c.MaxWindow = ShopeeMaxWindow
	}
	return nil
}
