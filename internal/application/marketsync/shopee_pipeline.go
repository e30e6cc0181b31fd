package marketsync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
	"github.com/marketsync/backend/internal/infrastructure/logger"
)

// ShopeePipeline syncs Shopee orders (batched detail calls) and escrow
// details (one call per order)
type ShopeePipeline struct {
	pipelineBase
	api ShopeeAPI
}

// NewShopeePipeline creates a new ShopeePipeline
func NewShopeePipeline(api ShopeeAPI, reconciler *Reconciler, selector *FinancialSelector, cfg config.SyncConfig, clock integration.Clock, logger *zap.Logger) *ShopeePipeline {
	return &ShopeePipeline{
		pipelineBase: newPipelineBase(reconciler, selector, cfg, clock, logger),
		api:          api,
	}
}

// Marketplace returns the marketplace served by the pipeline
func (p *ShopeePipeline) Marketplace() integration.Marketplace {
	return integration.MarketplaceShopee
}

// SyncOrders discovers orders created or updated inside window and upserts
// their details chunk by chunk
func (p *ShopeePipeline) SyncOrders(ctx context.Context, cred *integration.StoreCredential, window integration.TimeWindow, requestedBatch int, result *integration.StoreSyncResult) error {
	log := logger.Enrich(ctx, p.logger)

	found, err := p.discovery(shopeeListPageSize, ecommerce.ShopeeMaxWindow).Discover(ctx, window,
		[]integration.TimeField{integration.TimeFieldCreated, integration.TimeFieldUpdated},
		p.api.Lister(cred),
	)
	if err != nil {
		return fmt.Errorf("shopee order discovery failed: %w", err)
	}
	result.Discovered = len(found.IDs)

	fetcher := ecommerce.NewBatchFetcher[integration.OrderRecord](ecommerce.BatchConfig{
		BatchSize: batchSize(requestedBatch, p.config.DetailBatchSize, shopeeDetailBatchMax),
		Pause:     p.config.BatchPause,
		FanOut:    p.config.FanOut,
	}, p.clock, p.logger)

	fetched, err := fetcher.FetchChunks(ctx, found.IDs,
		func(ctx context.Context, ids []string) ([]integration.OrderRecord, error) {
			return p.api.GetOrderDetails(ctx, cred, ids)
		},
		p.orderSink(p.Marketplace(), result),
	)
	result.AddFailures(fetched.Failures)
	if err != nil {
		return err
	}
	p.retireCancelled(ctx, p.Marketplace(), fetched.Dropped, result)

	log.Info("Shopee orders synced",
		zap.Int("discovered", result.Discovered),
		zap.Int("pages", found.Pages),
		zap.Bool("truncated", found.Truncated),
		zap.Int("batches", fetched.Chunks),
		zap.Int("cancelled", fetched.Cancelled),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
	)
	return nil
}

// SyncFinancials fetches escrow details for stored orders that lack fee data
func (p *ShopeePipeline) SyncFinancials(ctx context.Context, cred *integration.StoreCredential, window integration.TimeWindow, requestedBatch int, result *integration.StoreSyncResult) error {
	ids, err := p.selector.PendingIDs(ctx, p.Marketplace(), cred.StoreID, window)
	if err != nil {
		return fmt.Errorf("failed to select orders without escrow: %w", err)
	}
	result.Discovered = len(ids)
	if len(ids) == 0 {
		logger.Enrich(ctx, p.logger).Info("No Shopee orders pending escrow")
		return nil
	}

	fetcher := ecommerce.NewBatchFetcher[integration.FinancialRecord](ecommerce.BatchConfig{
		BatchSize: batchSize(requestedBatch, p.config.EscrowBatchSize, shopeeEscrowBatchMax),
		Pause:     p.config.BatchPause,
		FanOut:    p.config.FanOut,
	}, p.clock, p.logger)

	fetched, err := fetcher.FetchEach(ctx, ids,
		func(ctx context.Context, orderSN string) (integration.FinancialRecord, error) {
			rec, err := p.api.GetEscrowDetail(ctx, cred, orderSN)
			if err != nil {
				return integration.FinancialRecord{}, err
			}
			return *rec, nil
		},
		p.financialSink(p.Marketplace(), result),
	)
	result.AddFailures(fetched.Failures)
	if err != nil {
		return err
	}

	logger.Enrich(ctx, p.logger).Info("Shopee escrow synced",
		zap.Int("pending", len(ids)),
		zap.Int("batches", fetched.Chunks),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return nil
}

// Ensure ShopeePipeline implements Pipeline
var _ Pipeline = (*ShopeePipeline)(nil)
