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

// MercadoLivrePipeline syncs Mercado Livre orders (one call per order) and
// billing details (batched), then purges stale unpaid orders
type MercadoLivrePipeline struct {
	pipelineBase
	api    MercadoLivreAPI
	purger *RetentionPurger
}

// NewMercadoLivrePipeline creates a new MercadoLivrePipeline. A nil purger
// disables the retention purge.
func NewMercadoLivrePipeline(api MercadoLivreAPI, reconciler *Reconciler, selector *FinancialSelector, purger *RetentionPurger, cfg config.SyncConfig, clock integration.Clock, logger *zap.Logger) *MercadoLivrePipeline {
	return &MercadoLivrePipeline{
		pipelineBase: newPipelineBase(reconciler, selector, cfg, clock, logger),
		api:          api,
		purger:       purger,
	}
}

// Marketplace returns the marketplace served by the pipeline
func (p *MercadoLivrePipeline) Marketplace() integration.Marketplace {
	return integration.MarketplaceMercadoLivre
}

// SyncOrders discovers orders created or updated inside window, fetches
// each one with bounded fan-out and upserts them chunk by chunk
func (p *MercadoLivrePipeline) SyncOrders(ctx context.Context, cred *integration.StoreCredential, window integration.TimeWindow, requestedBatch int, result *integration.StoreSyncResult) error {
	log := logger.Enrich(ctx, p.logger)

	found, err := p.discovery(mercadoLivreSearchPageSize, 0).Discover(ctx, window,
		[]integration.TimeField{integration.TimeFieldCreated, integration.TimeFieldUpdated},
		p.api.Lister(cred),
	)
	if err != nil {
		return fmt.Errorf("mercado livre order discovery failed: %w", err)
	}
	result.Discovered = len(found.IDs)

	fetcher := ecommerce.NewBatchFetcher[integration.OrderRecord](ecommerce.BatchConfig{
		BatchSize: batchSize(requestedBatch, p.config.DetailBatchSize, mercadoLivreBatchMax),
		Pause:     p.config.BatchPause,
		FanOut:    p.config.FanOut,
	}, p.clock, p.logger)

	fetched, err := fetcher.FetchEach(ctx, found.IDs,
		func(ctx context.Context, id string) (integration.OrderRecord, error) {
			return p.api.GetOrder(ctx, cred, id)
		},
		p.orderSink(p.Marketplace(), result),
	)
	result.AddFailures(fetched.Failures)
	if err != nil {
		return err
	}
	p.retireCancelled(ctx, p.Marketplace(), fetched.Dropped, result)

	if p.purger != nil {
		purged, err := p.purger.Purge(ctx, cred.StoreID)
		if err != nil {
			// Orders are already stored; the purge runs again next time
			log.Warn("Retention purge failed", zap.Error(err))
			result.Errors = append(result.Errors, integration.NewItemFailure(cred.StoreID, err))
		}
		result.Purged = purged
	}

	log.Info("Mercado Livre orders synced",
		zap.Int("discovered", result.Discovered),
		zap.Int("pages", found.Pages),
		zap.Bool("truncated", found.Truncated),
		zap.Int("cancelled", fetched.Cancelled),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
		zap.Int64("purged", result.Purged),
	)
	return nil
}

// SyncFinancials fetches billing details for stored orders that lack fee
// data, in chunks of at most 50 orders
func (p *MercadoLivrePipeline) SyncFinancials(ctx context.Context, cred *integration.StoreCredential, window integration.TimeWindow, requestedBatch int, result *integration.StoreSyncResult) error {
	ids, err := p.selector.PendingIDs(ctx, p.Marketplace(), cred.StoreID, window)
	if err != nil {
		return fmt.Errorf("failed to select orders without billing: %w", err)
	}
	result.Discovered = len(ids)
	if len(ids) == 0 {
		logger.Enrich(ctx, p.logger).Info("No Mercado Livre orders pending billing")
		return nil
	}

	fetcher := ecommerce.NewBatchFetcher[integration.FinancialRecord](ecommerce.BatchConfig{
		BatchSize: batchSize(requestedBatch, p.config.BillingBatchSize, mercadoLivreBatchMax),
		Pause:     p.config.BatchPause,
		FanOut:    p.config.FanOut,
	}, p.clock, p.logger)

	fetched, err := fetcher.FetchChunks(ctx, ids,
		func(ctx context.Context, ids []string) ([]integration.FinancialRecord, error) {
			return p.api.GetBilling(ctx, cred, ids)
		},
		p.financialSink(p.Marketplace(), result),
	)
	result.AddFailures(fetched.Failures)
	if err != nil {
		return err
	}

	logger.Enrich(ctx, p.logger).Info("Mercado Livre billing synced",
		zap.Int("pending", len(ids)),
		zap.Int("batches", fetched.Chunks),
		zap.Int("received", len(fetched.Items)),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return nil
}

// Ensure MercadoLivrePipeline implements Pipeline
var _ Pipeline = (*MercadoLivrePipeline)(nil)
