package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCredential_TokenState(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		token     string
		expiresAt time.Time
		expected  TokenState
	}{
		{"no token", "", now.Add(time.Hour), TokenStateUnknown},
		{"no expiry", "at", time.Time{}, TokenStateUnknown},
		{"valid", "at", now.Add(time.Hour), TokenStateValid},
		{"just outside margin", "at", now.Add(5*time.Minute + time.Second), TokenStateValid},
		{"at margin boundary", "at", now.Add(5 * time.Minute), TokenStateNearExpiry},
		{"inside margin", "at", now.Add(time.Minute), TokenStateNearExpiry},
		{"at expiry", "at", now, TokenStateExpired},
		{"expired", "at", now.Add(-time.Hour), TokenStateExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := &StoreCredential{AccessToken: tt.token, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expected, cred.TokenState(now, DefaultRenewalMargin))
		})
	}
}

func TestTokenState_NeedsRenewal(t *testing.T) {
	assert.False(t, TokenStateValid.NeedsRenewal())
	assert.True(t, TokenStateNearExpiry.NeedsRenewal())
	assert.True(t, TokenStateExpired.NeedsRenewal())
	assert.True(t, TokenStateUnknown.NeedsRenewal())
}

func TestStoreCredential_ApplyGrant(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	id := uuid.New()
	cred := &StoreCredential{ID: id, AccessToken: "old", RefreshToken: "old-refresh", IsActive: false}

	cred.ApplyGrant(&TokenGrant{AccessToken: "new", RefreshToken: "new-refresh", ExpiresIn: 4 * time.Hour}, now)

	assert.Equal(t, id, cred.ID)
	assert.Equal(t, "new", cred.AccessToken)
	assert.Equal(t, "new-refresh", cred.RefreshToken)
	assert.Equal(t, now.Add(4*time.Hour), cred.ExpiresAt)
	assert.True(t, cred.IsActive)
	assert.Equal(t, TokenStateValid, cred.TokenState(now, DefaultRenewalMargin))

	// An empty refresh token in the grant keeps the previous one
	cred.ApplyGrant(&TokenGrant{AccessToken: "newer", ExpiresIn: time.Hour}, now)
	assert.Equal(t, "new-refresh", cred.RefreshToken)
}

func TestStoreCredential_Validate(t *testing.T) {
	valid := &StoreCredential{Marketplace: MarketplaceShopee, PartnerID: "1", StoreID: "2"}
	require.NoError(t, valid.Validate())

	assert.ErrorIs(t, (&StoreCredential{Marketplace: "x", PartnerID: "1", StoreID: "2"}).Validate(), ErrUnsupportedMarketplace)
	assert.ErrorIs(t, (&StoreCredential{Marketplace: MarketplaceShopee, PartnerID: "1"}).Validate(), ErrInvalidCredential)
}

func TestDedupeNewestByStore(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	creds := []StoreCredential{
		{StoreID: "A", AccessToken: "a1", UpdatedAt: base},
		{StoreID: "B", AccessToken: "b1", UpdatedAt: base},
		{StoreID: "A", AccessToken: "a2", UpdatedAt: base.Add(time.Hour)},
		{StoreID: "A", AccessToken: "a0", UpdatedAt: base.Add(-time.Hour)},
	}

	out := DedupeNewestByStore(creds)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].StoreID)
	assert.Equal(t, "a2", out[0].AccessToken)
	assert.Equal(t, "b1", out[1].AccessToken)
}
