package marketsync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
	"github.com/marketsync/backend/internal/infrastructure/logger"
)

// TokenManager keeps store access tokens valid. Renewal is serialized per
// store through the RenewalLocker; data fetches never take the lock.
type TokenManager struct {
	credentials integration.CredentialRepository
	renewers    map[integration.Marketplace]integration.TokenRenewer
	locker      integration.RenewalLocker
	margin      time.Duration
	clock       integration.Clock
	logger      *zap.Logger
}

// NewTokenManager creates a new TokenManager. A non-positive margin uses
// integration.DefaultRenewalMargin.
func NewTokenManager(
	credentials integration.CredentialRepository,
	renewers map[integration.Marketplace]integration.TokenRenewer,
	locker integration.RenewalLocker,
	margin time.Duration,
	clock integration.Clock,
	logger *zap.Logger,
) *TokenManager {
	if margin <= 0 {
		margin = integration.DefaultRenewalMargin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		credentials: credentials,
		renewers:    renewers,
		locker:      locker,
		margin:      margin,
		clock:       clockOrSystem(clock),
		logger:      logger,
	}
}

// State returns the lifecycle state of a credential's token at the current time
func (m *TokenManager) State(cred *integration.StoreCredential) integration.TokenState {
	return cred.TokenState(m.clock.Now(), m.margin)
}

// GetValidToken returns an access token for the store, renewing it first
// when it is near expiry or expired
func (m *TokenManager) GetValidToken(ctx context.Context, marketplace integration.Marketplace, storeID string) (string, error) {
	cred, err := m.credentials.GetActive(ctx, marketplace, storeID)
	if err != nil {
		return "", err
	}
	valid, err := m.EnsureValid(ctx, cred)
	if err != nil {
		return "", err
	}
	return valid.AccessToken, nil
}

// EnsureValid returns cred when its token is valid and a renewed credential
// otherwise. Renewal failure is reported as ErrUnauthenticated.
func (m *TokenManager) EnsureValid(ctx context.Context, cred *integration.StoreCredential) (*integration.StoreCredential, error) {
	if !m.State(cred).NeedsRenewal() {
		return cred, nil
	}
	renewed, _, err := m.renew(ctx, cred.Marketplace, cred.StoreID, false)
	if err != nil && renewed == nil {
		return nil, err
	}
	return renewed, nil
}

// Refresh renews the store's token regardless of its state. It returns false
// when another caller renewed the token while this one waited for the lock.
func (m *TokenManager) Refresh(ctx context.Context, cred *integration.StoreCredential) (bool, error) {
	_, renewed, err := m.renew(ctx, cred.Marketplace, cred.StoreID, true)
	return renewed, err
}

// renew runs under the store's renewal lock. The credential is re-read
// after the lock is taken so a renewal completed by another holder is reused.
// A renewed credential is returned even when persisting it fails.
func (m *TokenManager) renew(ctx context.Context, marketplace integration.Marketplace, storeID string, force bool) (*integration.StoreCredential, bool, error) {
	log := logger.Enrich(ctx, m.logger).With(
		zap.String("marketplace", string(marketplace)),
		zap.String("store_id", storeID),
	)

	renewer, ok := m.renewers[marketplace]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", integration.ErrUnsupportedMarketplace, marketplace)
	}

	requested := m.clock.Now()
	unlock, err := m.locker.Lock(ctx, renewalKey(marketplace, storeID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire renewal lock: %w", err)
	}
	defer unlock()

	cred, err := m.credentials.GetActive(ctx, marketplace, storeID)
	if err != nil {
		return nil, false, err
	}

	state := m.State(cred)
	if !state.NeedsRenewal() && (!force || cred.UpdatedAt.After(requested)) {
		log.Debug("Token already renewed by another caller")
		return cred, false, nil
	}
	if cred.RefreshToken == "" {
		return nil, false, fmt.Errorf("%w: store %s has no refresh token", integration.ErrUnauthenticated, storeID)
	}

	grant, err := renewer.RenewToken(ctx, cred)
	if err != nil {
		log.Error("Token renewal failed",
			zap.String("state", string(state)),
			zap.Error(err),
		)
		return nil, false, fmt.Errorf("%w: renewal failed for store %s: %w", integration.ErrUnauthenticated, storeID, err)
	}

	cred.ApplyGrant(grant, m.clock.Now())
	if err := m.credentials.SaveRenewal(ctx, cred); err != nil {
		log.Error("Failed to persist renewed token", zap.Error(err))
		return cred, true, err
	}

	log.Info("Token renewed",
		zap.String("previous_state", string(state)),
		zap.Time("expires_at", cred.ExpiresAt),
	)
	return cred, true, nil
}

func renewalKey(marketplace integration.Marketplace, storeID string) string {
	return string(marketplace) + ":" + storeID
}

// clockOrSystem returns c, or the wall clock when c is nil
func clockOrSystem(c integration.Clock) integration.Clock {
	if c == nil {
		return ecommerce.SystemClock{}
	}
	return c
}
