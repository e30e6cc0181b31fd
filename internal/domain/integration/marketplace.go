package integration

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Marketplace
// ---------------------------------------------------------------------------

// Marketplace identifies an external marketplace platform
type Marketplace string

const (
	// MarketplaceShopee is the Shopee Open Platform (v2 API)
	MarketplaceShopee Marketplace = "shopee"
	// MarketplaceMercadoLivre is the Mercado Livre / Mercado Libre API
	MarketplaceMercadoLivre Marketplace = "mercado_livre"
)

// AllMarketplaces returns every supported marketplace
func AllMarketplaces() []Marketplace {
	return []Marketplace{MarketplaceShopee, MarketplaceMercadoLivre}
}

// IsValid returns true if the marketplace is supported
func (m Marketplace) IsValid() bool {
	switch m {
	case MarketplaceShopee, MarketplaceMercadoLivre:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (m Marketplace) String() string {
	return string(m)
}

// DisplayName returns a human-readable name
func (m Marketplace) DisplayName() string {
	switch m {
	case MarketplaceShopee:
		return "Shopee"
	case MarketplaceMercadoLivre:
		return "Mercado Livre"
	default:
		return string(m)
	}
}

// ParseMarketplace parses a marketplace name, accepting a few common aliases
func ParseMarketplace(s string) (Marketplace, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shopee":
		return MarketplaceShopee, nil
	case "mercado_livre", "mercadolivre", "mercado-livre", "ml", "meli":
		return MarketplaceMercadoLivre, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMarketplace, s)
	}
}

// ---------------------------------------------------------------------------
// Discovery time fields and windows
// ---------------------------------------------------------------------------

// TimeField selects which order timestamp a listing query filters on
type TimeField string

const (
	TimeFieldCreated TimeField = "create_time"
	TimeFieldUpdated TimeField = "update_time"
)

// IsValid returns true if the time field is known
func (f TimeField) IsValid() bool {
	return f == TimeFieldCreated || f == TimeFieldUpdated
}

// TimeWindow is a half-open [From, To) range of order timestamps
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate checks the window bounds
func (w TimeWindow) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return fmt.Errorf("%w: both bounds are required", ErrInvalidTimeWindow)
	}
	if !w.From.Before(w.To) {
		return fmt.Errorf("%w: from must be before to", ErrInvalidTimeWindow)
	}
	return nil
}

// Duration returns the length of the window
func (w TimeWindow) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// Split cuts the window into consecutive windows of at most size.
// Shopee rejects listing ranges longer than 15 days.
func (w TimeWindow) Split(size time.Duration) []TimeWindow {
	if size <= 0 || w.Duration() <= size {
		return []TimeWindow{w}
	}
	var out []TimeWindow
	for from := w.From; from.Before(w.To); from = from.Add(size) {
		to := from.Add(size)
		if to.After(w.To) {
			to = w.To
		}
		out = append(out, TimeWindow{From: from, To: to})
	}
	return out
}

// WindowPreset is a named rolling window
type WindowPreset string

const (
	WindowLast24h   WindowPreset = "24h"
	WindowLastWeek  WindowPreset = "week"
	WindowLastMonth WindowPreset = "month"
)

// IsValid returns true if the preset is known
func (p WindowPreset) IsValid() bool {
	switch p {
	case WindowLast24h, WindowLastWeek, WindowLastMonth:
		return true
	default:
		return false
	}
}

// Duration returns the look-back length of the preset
func (p WindowPreset) Duration() time.Duration {
	switch p {
	case WindowLast24h:
		return 24 * time.Hour
	case WindowLastMonth:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// WindowEndingAt returns the preset window that ends at now
func (p WindowPreset) WindowEndingAt(now time.Time) TimeWindow {
	return TimeWindow{From: now.Add(-p.Duration()), To: now}
}
