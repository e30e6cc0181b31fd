package marketsync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence"
)

// ---------------------------------------------------------------------------
// ListActive / GetActive
// ---------------------------------------------------------------------------

func TestCredentialStore_ListActiveKeepsNewestPerStore(t *testing.T) {
	store := newTestStore(t)
	creds := NewCredentialStore(store, newFakeClock(), nil)
	expires := testNow.Add(3 * time.Hour)

	older := newCredential(integration.MarketplaceShopee, "shop-1", expires)
	older.UpdatedAt = testNow.Add(-10 * time.Hour)
	older.AccessToken = "old-token"
	newer := newCredential(integration.MarketplaceShopee, "shop-1", expires)
	newer.AccessToken = "new-token"
	other := newCredential(integration.MarketplaceShopee, "shop-2", expires)
	inactive := newCredential(integration.MarketplaceShopee, "shop-3", expires)
	inactive.IsActive = false
	ml := newCredential(integration.MarketplaceMercadoLivre, "seller-1", expires)

	for _, c := range []*integration.StoreCredential{older, newer, other, inactive, ml} {
		seedCredential(t, store, c)
	}

	got, err := creds.ListActive(t.Context(), integration.MarketplaceShopee)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byStore := map[string]integration.StoreCredential{}
	for _, c := range got {
		byStore[c.StoreID] = c
	}
	assert.Equal(t, "new-token", byStore["shop-1"].AccessToken)
	assert.Contains(t, byStore, "shop-2")
	assert.NotContains(t, byStore, "shop-3")
}

func TestCredentialStore_GetActive(t *testing.T) {
	store := newTestStore(t)
	creds := NewCredentialStore(store, newFakeClock(), nil)
	seeded := seedCredential(t, store, newCredential(integration.MarketplaceMercadoLivre, "seller-1", testNow.Add(time.Hour)))

	t.Run("found", func(t *testing.T) {
		got, err := creds.GetActive(t.Context(), integration.MarketplaceMercadoLivre, "seller-1")
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, got.ID)
		assert.Equal(t, "refresh-seller-1", got.RefreshToken)
	})

	t.Run("other marketplace", func(t *testing.T) {
		_, err := creds.GetActive(t.Context(), integration.MarketplaceShopee, "seller-1")
		assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
	})

	t.Run("unknown store", func(t *testing.T) {
		_, err := creds.GetActive(t.Context(), integration.MarketplaceMercadoLivre, "nope")
		assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
		assert.Contains(t, err.Error(), "nope")
	})
}

// ---------------------------------------------------------------------------
// SaveRenewal
// ---------------------------------------------------------------------------

func TestCredentialStore_SaveRenewalUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	creds := NewCredentialStore(store, newFakeClock(), nil)
	seeded := seedCredential(t, store, newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(time.Minute)))

	renewed := *seeded
	renewed.ApplyGrant(&integration.TokenGrant{
		AccessToken:  "fresh-access",
		RefreshToken: "fresh-refresh",
		ExpiresIn:    4 * time.Hour,
	}, testNow)
	require.NoError(t, creds.SaveRenewal(t.Context(), &renewed))

	n, err := store.Count(t.Context(), integration.TableStoreCredentials, integration.Eq(map[string]any{"store_id": "shop-1"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := creds.GetActive(t.Context(), integration.MarketplaceShopee, "shop-1")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, "fresh-access", got.AccessToken)
	assert.Equal(t, "fresh-refresh", got.RefreshToken)
	assert.True(t, got.ExpiresAt.Equal(testNow.Add(4*time.Hour)))
}

func TestCredentialStore_SaveRenewalNewPartnerSupersedes(t *testing.T) {
	store := newTestStore(t)
	creds := NewCredentialStore(store, newFakeClock(), nil)
	first := seedCredential(t, store, newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(time.Hour)))
	second := newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(time.Hour))
	second.UpdatedAt = testNow.Add(-2 * time.Hour)
	seedCredential(t, store, second)

	replacement := newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(4*time.Hour))
	replacement.ID = uuid.Nil
	replacement.PartnerID = "2002"
	replacement.AccessToken = "partner-2-token"
	replacement.UpdatedAt = testNow
	require.NoError(t, creds.SaveRenewal(t.Context(), replacement))

	var rows []integration.StoreCredential
	require.NoError(t, store.Select(t.Context(), integration.TableStoreCredentials,
		integration.Eq(map[string]any{"store_id": "shop-1"}), integration.PageRequest{}, &rows))
	require.Len(t, rows, 3)

	active := 0
	for _, r := range rows {
		if r.IsActive {
			active++
			assert.Equal(t, "2002", r.PartnerID)
			assert.NotEqual(t, first.ID, r.ID)
		}
	}
	assert.Equal(t, 1, active)

	got, err := creds.GetActive(t.Context(), integration.MarketplaceShopee, "shop-1")
	require.NoError(t, err)
	assert.Equal(t, "partner-2-token", got.AccessToken)
}

func countActive(t *testing.T, store integration.RecordStore, storeID string) int64 {
	t.Helper()
	n, err := store.Count(t.Context(), integration.TableStoreCredentials, integration.Eq(map[string]any{
		"store_id":  storeID,
		"is_active": true,
	}))
	require.NoError(t, err)
	return n
}

func TestCredentialStore_SaveRenewalInPlaceDeactivatesDuplicates(t *testing.T) {
	store := newTestStore(t)
	creds := NewCredentialStore(store, newFakeClock(), nil)

	older := newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(time.Minute))
	older.UpdatedAt = testNow.Add(-3 * time.Hour)
	seedCredential(t, store, older)
	newest := seedCredential(t, store, newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(time.Minute)))
	require.Equal(t, int64(2), countActive(t, store, "shop-1"))

	renewed := *newest
	renewed.ApplyGrant(&integration.TokenGrant{
		AccessToken:  "fresh-access",
		RefreshToken: "fresh-refresh",
		ExpiresIn:    4 * time.Hour,
	}, testNow)
	require.NoError(t, creds.SaveRenewal(t.Context(), &renewed))

	assert.Equal(t, int64(1), countActive(t, store, "shop-1"))
	got, err := creds.GetActive(t.Context(), integration.MarketplaceShopee, "shop-1")
	require.NoError(t, err)
	assert.Equal(t, newest.ID, got.ID)
	assert.Equal(t, "fresh-access", got.AccessToken)
}

// failingUpdateStore fails every update that refreshes an access token
type failingUpdateStore struct {
	integration.RecordStore
}

func (s failingUpdateStore) Update(ctx context.Context, table string, id any, fields map[string]any) error {
	if _, ok := fields["access_token"]; ok {
		return fmt.Errorf("%w: update failed", integration.ErrPersistence)
	}
	return s.RecordStore.Update(ctx, table, id, fields)
}

// failingUpdateTx runs the wrapped store's transaction with failing updates
type failingUpdateTx struct {
	*persistence.GormRecordStore
}

func (s failingUpdateTx) Transaction(ctx context.Context, fn func(store integration.RecordStore) error) error {
	return s.GormRecordStore.Transaction(ctx, func(tx integration.RecordStore) error {
		return fn(failingUpdateStore{RecordStore: tx})
	})
}

func TestCredentialStore_SaveRenewalRollsBackOnFailure(t *testing.T) {
	store := newTestStore(t)
	creds := NewCredentialStore(failingUpdateTx{GormRecordStore: store}, newFakeClock(), nil)

	older := newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(time.Minute))
	older.UpdatedAt = testNow.Add(-3 * time.Hour)
	seedCredential(t, store, older)
	newest := seedCredential(t, store, newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(time.Minute)))

	renewed := *newest
	renewed.AccessToken = "fresh-access"
	err := creds.SaveRenewal(t.Context(), &renewed)
	require.ErrorIs(t, err, integration.ErrPersistence)

	// The duplicate deactivation is rolled back with the failed update
	assert.Equal(t, int64(2), countActive(t, store, "shop-1"))
}

func TestCredentialStore_SaveRenewalRejectsInvalid(t *testing.T) {
	creds := NewCredentialStore(newTestStore(t), newFakeClock(), nil)

	cred := newCredential(integration.MarketplaceShopee, "", testNow)
	assert.ErrorIs(t, creds.SaveRenewal(t.Context(), cred), integration.ErrInvalidCredential)

	cred = newCredential("amazon", "shop-1", testNow)
	assert.ErrorIs(t, creds.SaveRenewal(t.Context(), cred), integration.ErrUnsupportedMarketplace)
}

// ---------------------------------------------------------------------------
// Deactivate
// ---------------------------------------------------------------------------

func TestCredentialStore_Deactivate(t *testing.T) {
	store := newTestStore(t)
	creds := NewCredentialStore(store, newFakeClock(), nil)
	seeded := seedCredential(t, store, newCredential(integration.MarketplaceShopee, "shop-1", testNow.Add(time.Hour)))

	require.NoError(t, creds.Deactivate(t.Context(), seeded.ID.String()))

	_, err := creds.GetActive(t.Context(), integration.MarketplaceShopee, "shop-1")
	assert.ErrorIs(t, err, integration.ErrCredentialNotFound)

	assert.ErrorIs(t, creds.Deactivate(t.Context(), "not-a-uuid"), integration.ErrInvalidCredential)
	assert.ErrorIs(t, creds.Deactivate(t.Context(), uuid.NewString()), integration.ErrPersistence)
}
