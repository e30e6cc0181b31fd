package marketsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
)

// Pipeline runs the order and financial sync of one marketplace for one
// store. Item failures are recorded in result; a returned error aborts the
// store.
type Pipeline interface {
	Marketplace() integration.Marketplace
	SyncOrders(ctx context.Context, cred *integration.StoreCredential, window integration.TimeWindow, batchSize int, result *integration.StoreSyncResult) error
	SyncFinancials(ctx context.Context, cred *integration.StoreCredential, window integration.TimeWindow, batchSize int, result *integration.StoreSyncResult) error
}

// ShopeeAPI is the part of the Shopee client used by the pipeline
type ShopeeAPI interface {
	Lister(cred *integration.StoreCredential) ecommerce.ListFunc
	GetOrderDetails(ctx context.Context, cred *integration.StoreCredential, orderSNs []string) ([]integration.OrderRecord, error)
	GetEscrowDetail(ctx context.Context, cred *integration.StoreCredential, orderSN string) (*integration.FinancialRecord, error)
}

// MercadoLivreAPI is the part of the Mercado Livre client used by the pipeline
type MercadoLivreAPI interface {
	Lister(cred *integration.StoreCredential) ecommerce.ListFunc
	GetOrder(ctx context.Context, cred *integration.StoreCredential, orderID string) (integration.OrderRecord, error)
	GetBilling(ctx context.Context, cred *integration.StoreCredential, orderIDs []string) ([]integration.FinancialRecord, error)
}

// Endpoint batch ceilings enforced by the marketplaces
const (
	shopeeDetailBatchMax       = 50
	shopeeEscrowBatchMax       = 20
	mercadoLivreBatchMax       = 50
	mercadoLivreSearchPageSize = 50
	shopeeListPageSize         = 100
)

// pipelineBase holds the collaborators shared by both marketplaces
type pipelineBase struct {
	reconciler *Reconciler
	selector   *FinancialSelector
	config     config.SyncConfig
	clock      integration.Clock
	logger     *zap.Logger
}

func newPipelineBase(reconciler *Reconciler, selector *FinancialSelector, cfg config.SyncConfig, clock integration.Clock, logger *zap.Logger) pipelineBase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return pipelineBase{
		reconciler: reconciler,
		selector:   selector,
		config:     cfg,
		clock:      clockOrSystem(clock),
		logger:     logger,
	}
}

// discovery builds a Discovery for one listing endpoint
func (b *pipelineBase) discovery(pageCeiling int, maxWindow time.Duration) *ecommerce.Discovery {
	return ecommerce.NewDiscovery(ecommerce.DiscoveryConfig{
		PageSize:  batchSize(0, b.config.PageSize, pageCeiling),
		MaxPages:  b.config.MaxPages,
		PagePause: b.config.PagePause,
		MaxWindow: maxWindow,
	}, b.clock, b.logger)
}

// orderSink reconciles each fetched chunk of orders into result
func (b *pipelineBase) orderSink(marketplace integration.Marketplace, result *integration.StoreSyncResult) ecommerce.SinkFunc[integration.OrderRecord] {
	return func(ctx context.Context, items []integration.OrderRecord) error {
		result.ApplyReconcile(b.reconciler.ReconcileOrders(ctx, marketplace, items))
		return ctx.Err()
	}
}

// financialSink reconciles each fetched chunk of fee records into result
func (b *pipelineBase) financialSink(marketplace integration.Marketplace, result *integration.StoreSyncResult) ecommerce.SinkFunc[integration.FinancialRecord] {
	return func(ctx context.Context, items []integration.FinancialRecord) error {
		result.ApplyReconcile(b.reconciler.ReconcileFinancials(ctx, marketplace, items))
		return ctx.Err()
	}
}

// retireCancelled updates stored orders that were cancelled upstream
func (b *pipelineBase) retireCancelled(ctx context.Context, marketplace integration.Marketplace, dropped []integration.OrderRecord, result *integration.StoreSyncResult) {
	if len(dropped) == 0 {
		return
	}
	r := b.reconciler.RetireOrders(ctx, marketplace, dropped)
	result.Updated += r.Updated
	result.Failed += r.Failed
	result.Errors = append(result.Errors, r.Failures...)
}

// batchSize picks the requested size when set, else the configured one, and
// caps the result at the endpoint ceiling
func batchSize(requested, configured, ceiling int) int {
	size := configured
	if requested > 0 {
		size = requested
	}
	if size <= 0 || size > ceiling {
		size = ceiling
	}
	return size
}
