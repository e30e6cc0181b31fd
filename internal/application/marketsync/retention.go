package marketsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/logger"
)

// DefaultRetentionDays is how long unpaid and cancelled orders are kept
const DefaultRetentionDays = 15

// purgeableStatuses are the raw Mercado Livre statuses of orders that never
// turn into revenue
var purgeableStatuses = []any{"pending_payment", "payment_required", "cancelled"}

// RetentionPurger deletes stale Mercado Livre orders that will never carry
// fee data
type RetentionPurger struct {
	store  integration.RecordStore
	days   int
	clock  integration.Clock
	logger *zap.Logger
}

// NewRetentionPurger creates a new RetentionPurger
func NewRetentionPurger(store integration.RecordStore, days int, clock integration.Clock, logger *zap.Logger) *RetentionPurger {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionPurger{
		store:  store,
		days:   days,
		clock:  clockOrSystem(clock),
		logger: logger,
	}
}

// Cutoff returns the creation time before which orders are purged
func (p *RetentionPurger) Cutoff() time.Time {
	return p.clock.Now().AddDate(0, 0, -p.days)
}

// Purge deletes the store's purgeable orders created before the cutoff
func (p *RetentionPurger) Purge(ctx context.Context, storeID string) (int64, error) {
	cutoff := p.Cutoff()
	deleted, err := p.store.Delete(ctx, integration.TableOrders, integration.Filter{
		Equals: map[string]any{
			"marketplace": integration.MarketplaceMercadoLivre,
			"store_id":    storeID,
		},
		In: map[string][]any{"platform_status": purgeableStatuses},
		Ranges: []integration.RangeCondition{
			{Column: "order_created_at", To: cutoff},
		},
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		logger.Enrich(ctx, p.logger).Info("Purged stale orders",
			zap.String("store_id", storeID),
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}
