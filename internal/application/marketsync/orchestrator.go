package marketsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/telemetry"
)

// DefaultMaxConcurrentStores is used when neither the request nor the
// configuration sets a store concurrency
const DefaultMaxConcurrentStores = 3

// OrchestratorConfig holds the multi-store limits
type OrchestratorConfig struct {
	MaxConcurrentStores int
	// StorePause is waited in a store's slot before the next store starts
	StorePause    time.Duration
	DefaultPreset integration.WindowPreset
}

// OrchestratorConfigFrom builds an OrchestratorConfig from the application config
func OrchestratorConfigFrom(sync config.SyncConfig, schedule config.ScheduleConfig) OrchestratorConfig {
	return OrchestratorConfig{
		MaxConcurrentStores: sync.MaxConcurrentStores,
		StorePause:          sync.StorePause,
		DefaultPreset:       integration.WindowPreset(schedule.DefaultWindow),
	}
}

// Orchestrator runs one sync request across the stores of a marketplace.
// Each store runs independently; a failing store never aborts its siblings.
type Orchestrator struct {
	credentials integration.CredentialRepository
	tokens      *TokenManager
	pipelines   map[integration.Marketplace]Pipeline
	config      OrchestratorConfig
	clock       integration.Clock
	logger      *zap.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	credentials integration.CredentialRepository,
	tokens *TokenManager,
	pipelines []Pipeline,
	cfg OrchestratorConfig,
	clock integration.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.MaxConcurrentStores <= 0 {
		cfg.MaxConcurrentStores = DefaultMaxConcurrentStores
	}
	if !cfg.DefaultPreset.IsValid() {
		cfg.DefaultPreset = integration.WindowLastWeek
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	byMarketplace := make(map[integration.Marketplace]Pipeline, len(pipelines))
	for _, p := range pipelines {
		byMarketplace[p.Marketplace()] = p
	}
	return &Orchestrator{
		credentials: credentials,
		tokens:      tokens,
		pipelines:   byMarketplace,
		config:      cfg,
		clock:       clockOrSystem(clock),
		logger:      logger,
	}
}

// Run executes req for one store or for every active store. Partial
// failures are reported in the summary. An error is returned only for an
// invalid request, a failed store lookup, or when every store failed to
// authenticate or reach the upstream.
func (o *Orchestrator) Run(ctx context.Context, req integration.SyncRequest) (*integration.SyncSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	pipeline, ok := o.pipelines[req.Marketplace]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnsupportedMarketplace, req.Marketplace)
	}

	if logger.GetRunID(ctx) == "" {
		ctx = logger.WithRunID(ctx, uuid.NewString())
	}
	ctx, span := telemetry.StartSpan(ctx, "marketsync.run",
		telemetry.WithAttribute(telemetry.AttrRunID, logger.GetRunID(ctx)),
		telemetry.WithAttribute(telemetry.AttrKind, string(req.Kind)),
		telemetry.WithAttribute(telemetry.AttrMarketplace, string(req.Marketplace)),
		telemetry.WithAttribute(telemetry.AttrStoreID, req.StoreID),
	)
	defer span.End()
	log := logger.Enrich(ctx, o.logger)

	stores, err := o.stores(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	summary := &integration.SyncSummary{
		Kind:        req.Kind,
		Marketplace: req.Marketplace,
		Window:      req.ResolveWindow(o.clock.Now(), o.config.DefaultPreset),
		PerStore:    make([]integration.StoreSyncResult, len(stores)),
		StartedAt:   o.clock.Now(),
	}

	log.Info("Sync started",
		zap.String("kind", string(req.Kind)),
		zap.String("marketplace", string(req.Marketplace)),
		zap.Int("stores", len(stores)),
		zap.Time("from", summary.Window.From),
		zap.Time("to", summary.Window.To),
	)

	limit := o.config.MaxConcurrentStores
	if req.MaxConcurrentStores > 0 {
		limit = req.MaxConcurrentStores
	}

	storeErrs := make([]error, len(stores))
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range stores {
		g.Go(func() error {
			summary.PerStore[i], storeErrs[i] = o.runStore(ctx, pipeline, req, summary.Window, &stores[i])
			if i+limit < len(stores) && o.config.StorePause > 0 {
				_ = o.clock.Sleep(ctx, o.config.StorePause)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = o.clock.Now()
	totals := summary.Totals()
	log.Info("Sync finished",
		zap.String("kind", string(req.Kind)),
		zap.Int("stores", len(stores)),
		zap.Int("inserted", totals.Inserted),
		zap.Int("updated", totals.Updated),
		zap.Int("unchanged", totals.Unchanged),
		zap.Int("failed", totals.Failed),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	telemetry.SetAttributes(span,
		telemetry.AttrStores, len(stores),
		telemetry.AttrInserted, totals.Inserted,
		telemetry.AttrUpdated, totals.Updated,
		telemetry.AttrFailed, totals.Failed,
	)

	if summary.AllAborted() && allUnreachable(storeErrs) {
		err := fmt.Errorf("no %s store could be synced: %w", req.Marketplace, errors.Join(storeErrs...))
		telemetry.RecordError(span, err)
		return summary, err
	}
	return summary, nil
}

// stores resolves the credentials targeted by req
func (o *Orchestrator) stores(ctx context.Context, req integration.SyncRequest) ([]integration.StoreCredential, error) {
	if req.IsAllStores() {
		return o.credentials.ListActive(ctx, req.Marketplace)
	}
	cred, err := o.credentials.GetActive(ctx, req.Marketplace, req.StoreID)
	if err != nil {
		return nil, err
	}
	return []integration.StoreCredential{*cred}, nil
}

// runStore executes the request for one store. The returned error is the
// reason the store was aborted, if it was.
func (o *Orchestrator) runStore(ctx context.Context, pipeline Pipeline, req integration.SyncRequest, window integration.TimeWindow, cred *integration.StoreCredential) (integration.StoreSyncResult, error) {
	started := o.clock.Now()
	ctx = logger.WithStore(ctx, string(cred.Marketplace), cred.StoreID)
	ctx, span := telemetry.StartSpan(ctx, "marketsync.store",
		telemetry.WithAttribute(telemetry.AttrMarketplace, string(cred.Marketplace)),
		telemetry.WithAttribute(telemetry.AttrStoreID, cred.StoreID),
	)
	defer span.End()
	log := logger.Enrich(ctx, o.logger)

	result := integration.StoreSyncResult{
		Marketplace: cred.Marketplace,
		StoreID:     cred.StoreID,
		StoreName:   cred.DisplayName(),
	}

	err := o.execute(ctx, pipeline, req, window, cred, &result)
	if err != nil {
		result.Abort(err)
		telemetry.RecordError(span, err)
		log.Error("Store sync aborted", zap.Error(err))
	}
	telemetry.SetAttributes(span,
		telemetry.AttrDiscovered, result.Discovered,
		telemetry.AttrInserted, result.Inserted,
		telemetry.AttrUpdated, result.Updated,
		telemetry.AttrUnchanged, result.Unchanged,
		telemetry.AttrFailed, result.Failed,
	)
	result.Duration = o.clock.Now().Sub(started)

	log.Info("Store sync completed",
		zap.String("store_name", result.StoreName),
		zap.Int("discovered", result.Discovered),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
		zap.Bool("aborted", result.Aborted),
	)
	return result, err
}

func (o *Orchestrator) execute(ctx context.Context, pipeline Pipeline, req integration.SyncRequest, window integration.TimeWindow, cred *integration.StoreCredential, result *integration.StoreSyncResult) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	if req.Kind == integration.SyncKindTokens {
		renewed, err := o.tokens.Refresh(ctx, cred)
		if err != nil {
			return err
		}
		if renewed {
			result.Updated = 1
		} else {
			result.Unchanged = 1
		}
		return nil
	}

	valid, err := o.tokens.EnsureValid(ctx, cred)
	if err != nil {
		return err
	}

	switch req.Kind {
	case integration.SyncKindOrders:
		return pipeline.SyncOrders(ctx, valid, window, req.BatchSize, result)
	case integration.SyncKindFinancial:
		return pipeline.SyncFinancials(ctx, valid, window, req.BatchSize, result)
	default:
		return fmt.Errorf("%w: unknown kind %q", integration.ErrInvalidSyncRequest, req.Kind)
	}
}

// allUnreachable reports whether every error means the upstream could not
// be authenticated against or reached
func allUnreachable(errs []error) bool {
	for _, err := range errs {
		if err == nil {
			return false
		}
		if !errors.Is(err, integration.ErrUnauthenticated) &&
			!errors.Is(err, integration.ErrUpstream) &&
			!errors.Is(err, integration.ErrTimeout) {
			return false
		}
	}
	return len(errs) > 0
}
