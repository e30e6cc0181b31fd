package ecommerce

import (
	"errors"
)

// MercadoLivreConfig holds configuration for the Mercado Livre API.
// Client id and secret are per store and come from the store credential.
type MercadoLivreConfig struct {
	// APIBaseURL is the base URL for the Mercado Livre API
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

const (
	// MercadoLivreAPIURL is the production API endpoint
	MercadoLivreAPIURL = "https://api.mercadolibre.com"
	// mercadoLivreTimeLayout is the timestamp layout accepted by order search
	mercadoLivreTimeLayout = "2006-01-02T15:04:05.000-07:00"
)

// Mercado Livre API paths
const (
	mercadoLivrePathToken   = "/oauth/token"
	mercadoLivrePathSearch  = "/orders/search"
	mercadoLivrePathOrder   = "/orders/"
	mercadoLivrePathBilling = "/billing/integration/group/ML/order/details"
)

// ErrMercadoLivreConfigInvalidTimeout is returned for a negative timeout
var ErrMercadoLivreConfigInvalidTimeout = errors.New("mercadolivre: timeout must not be negative")

// NewMercadoLivreConfig creates a new Mercado Livre configuration with defaults
func NewMercadoLivreConfig() *MercadoLivreConfig {
	return &MercadoLivreConfig{
		APIBaseURL:     MercadoLivreAPIURL,
		TimeoutSeconds: 30,
	}
}

// Validate validates the configuration and fills defaults
func (c *MercadoLivreConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return ErrMercadoLivreConfigInvalidTimeout
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = MercadoLivreAPIURL
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}
