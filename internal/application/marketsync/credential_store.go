package marketsync

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// CredentialStore implements integration.CredentialRepository on the generic
// record store. Superseded credentials are deactivated, never deleted.
type CredentialStore struct {
	store  integration.RecordStore
	clock  integration.Clock
	logger *zap.Logger
}

// NewCredentialStore creates a new CredentialStore
func NewCredentialStore(store integration.RecordStore, clock integration.Clock, logger *zap.Logger) *CredentialStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialStore{
		store:  store,
		clock:  clockOrSystem(clock),
		logger: logger,
	}
}

// ListActive returns one active credential per store, newest first
func (s *CredentialStore) ListActive(ctx context.Context, marketplace integration.Marketplace) ([]integration.StoreCredential, error) {
	var creds []integration.StoreCredential
	err := s.store.Select(ctx, integration.TableStoreCredentials,
		integration.Eq(map[string]any{
			"marketplace": marketplace,
			"is_active":   true,
		}),
		integration.PageRequest{OrderBy: "updated_at", Desc: true},
		&creds,
	)
	if err != nil {
		return nil, err
	}
	return integration.DedupeNewestByStore(creds), nil
}

// GetActive returns the newest active credential for a store
func (s *CredentialStore) GetActive(ctx context.Context, marketplace integration.Marketplace, storeID string) (*integration.StoreCredential, error) {
	creds, err := s.activeForStore(ctx, marketplace, storeID)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("%w: %s store %s", integration.ErrCredentialNotFound, marketplace, storeID)
	}
	cred := creds[0]
	return &cred, nil
}

// SaveRenewal persists a renewed token pair. The active record with the same
// id and partner is updated in place and any other active record for the
// store is deactivated; otherwise every active record for the store is
// deactivated and cred is inserted as the new active record. The writes share
// one transaction when the record store supports it.
func (s *CredentialStore) SaveRenewal(ctx context.Context, cred *integration.StoreCredential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	now := cred.UpdatedAt
	if now.IsZero() {
		now = s.clock.Now()
	}

	return s.inTransaction(ctx, func(store integration.RecordStore) error {
		active, err := activeForStore(ctx, store, cred.Marketplace, cred.StoreID)
		if err != nil {
			return err
		}

		current := slices.IndexFunc(active, func(existing integration.StoreCredential) bool {
			return existing.ID == cred.ID && existing.PartnerID == cred.PartnerID
		})

		deactivated := 0
		for i, existing := range active {
			if i == current {
				continue
			}
			if err := deactivate(ctx, store, existing.ID, now); err != nil {
				return err
			}
			deactivated++
		}

		if current >= 0 {
			if err := store.Update(ctx, integration.TableStoreCredentials, cred.ID, map[string]any{
				"access_token":  cred.AccessToken,
				"refresh_token": cred.RefreshToken,
				"expires_at":    cred.ExpiresAt,
				"is_active":     true,
				"updated_at":    now,
			}); err != nil {
				return err
			}
			if deactivated > 0 {
				s.logger.Warn("Deactivated duplicate active credentials",
					zap.String("marketplace", string(cred.Marketplace)),
					zap.String("store_id", cred.StoreID),
					zap.Int("deactivated", deactivated),
				)
			}
			return nil
		}

		cred.ID = uuid.New()
		cred.IsActive = true
		cred.CreatedAt = now
		cred.UpdatedAt = now
		if err := store.Insert(ctx, integration.TableStoreCredentials, cred); err != nil {
			return err
		}

		s.logger.Info("Inserted new active credential",
			zap.String("marketplace", string(cred.Marketplace)),
			zap.String("store_id", cred.StoreID),
			zap.Int("deactivated", deactivated),
		)
		return nil
	})
}

// Deactivate marks a credential inactive
func (s *CredentialStore) Deactivate(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: credential id %q", integration.ErrInvalidCredential, id)
	}
	return deactivate(ctx, s.store, parsed, s.clock.Now())
}

func (s *CredentialStore) inTransaction(ctx context.Context, fn func(store integration.RecordStore) error) error {
	if tx, ok := s.store.(integration.Transactor); ok {
		return tx.Transaction(ctx, fn)
	}
	return fn(s.store)
}

func (s *CredentialStore) activeForStore(ctx context.Context, marketplace integration.Marketplace, storeID string) ([]integration.StoreCredential, error) {
	return activeForStore(ctx, s.store, marketplace, storeID)
}

func activeForStore(ctx context.Context, store integration.RecordStore, marketplace integration.Marketplace, storeID string) ([]integration.StoreCredential, error) {
	var creds []integration.StoreCredential
	err := store.Select(ctx, integration.TableStoreCredentials,
		integration.Eq(map[string]any{
			"marketplace": marketplace,
			"store_id":    storeID,
			"is_active":   true,
		}),
		integration.PageRequest{OrderBy: "updated_at", Desc: true},
		&creds,
	)
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func deactivate(ctx context.Context, store integration.RecordStore, id uuid.UUID, now time.Time) error {
	return store.Update(ctx, integration.TableStoreCredentials, id, map[string]any{
		"is_active":  false,
		"updated_at": now,
	})
}

// Ensure CredentialStore implements CredentialRepository
var _ integration.CredentialRepository = (*CredentialStore)(nil)
