package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultRenewalMargin is how long before expiry a token is treated as near expiry
const DefaultRenewalMargin = 5 * time.Minute

// ---------------------------------------------------------------------------
// TokenState
// ---------------------------------------------------------------------------

// TokenState is the lifecycle state of a store's access token
type TokenState string

const (
	TokenStateUnknown    TokenState = "UNKNOWN"
	TokenStateValid      TokenState = "VALID"
	TokenStateNearExpiry TokenState = "NEAR_EXPIRY"
	TokenStateExpired    TokenState = "EXPIRED"
)

// NeedsRenewal returns true for states that trigger a refresh-token call
func (s TokenState) NeedsRenewal() bool {
	return s == TokenStateNearExpiry || s == TokenStateExpired || s == TokenStateUnknown
}

// ---------------------------------------------------------------------------
// StoreCredential
// ---------------------------------------------------------------------------

// StoreCredential holds the partner/app identity and the token pair for one store.
// Records are never hard-deleted; superseded ones are deactivated.
type StoreCredential struct {
	ID            uuid.UUID
	Marketplace   Marketplace
	PartnerID     string // Shopee partner_id or Mercado Livre client_id
	PartnerSecret string // Shopee partner key or Mercado Livre client secret
	StoreID       string // Shopee shop_id or Mercado Livre seller id
	StoreName     string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the fields required to call the marketplace on behalf of the store
func (c *StoreCredential) Validate() error {
	if !c.Marketplace.IsValid() {
		return ErrUnsupportedMarketplace
	}
	if strings.TrimSpace(c.StoreID) == "" || strings.TrimSpace(c.PartnerID) == "" {
		return ErrInvalidCredential
	}
	return nil
}

// TokenState derives the lifecycle state at now with the given renewal margin
func (c *StoreCredential) TokenState(now time.Time, margin time.Duration) TokenState {
	if c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return TokenStateUnknown
	}
	if !now.Before(c.ExpiresAt) {
		return TokenStateExpired
	}
	if !now.Before(c.ExpiresAt.Add(-margin)) {
		return TokenStateNearExpiry
	}
	return TokenStateValid
}

// ApplyGrant replaces the token pair in place, keeping the record identity
func (c *StoreCredential) ApplyGrant(grant *TokenGrant, now time.Time) {
	c.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		c.RefreshToken = grant.RefreshToken
	}
	c.ExpiresAt = grant.ExpiresAt(now)
	c.IsActive = true
	c.UpdatedAt = now
}

// DisplayName returns the store name, falling back to the store id
func (c *StoreCredential) DisplayName() string {
	if c.StoreName != "" {
		return c.StoreName
	}
	return c.StoreID
}

// TokenGrant is the result of a successful renewal call
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// ExpiresAt returns the absolute expiry for a grant received at now
func (g *TokenGrant) ExpiresAt(now time.Time) time.Time {
	return now.Add(g.ExpiresIn)
}

// DedupeNewestByStore keeps one credential per store id, preferring the most
// recently updated record. Input order is otherwise preserved.
func DedupeNewestByStore(creds []StoreCredential) []StoreCredential {
	index := make(map[string]int, len(creds))
	out := make([]StoreCredential, 0, len(creds))
	for _, c := range creds {
		if i, ok := index[c.StoreID]; ok {
			if c.UpdatedAt.After(out[i].UpdatedAt) {
				out[i] = c
			}
			continue
		}
		index[c.StoreID] = len(out)
		out = append(out, c)
	}
	return out
}
