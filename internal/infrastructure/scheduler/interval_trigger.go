package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
)

// TriggerName marks jobs submitted by the interval trigger
const TriggerName = "interval"

// Schedule runs one sync kind on a fixed interval
type Schedule struct {
	Kind     integration.SyncKind
	Interval time.Duration
}

// SchedulesFromConfig returns the enabled schedules. A zero interval
// disables that kind.
func SchedulesFromConfig(cfg config.ScheduleConfig) []Schedule {
	candidates := []Schedule{
		{Kind: integration.SyncKindTokens, Interval: cfg.TokenRefresh},
		{Kind: integration.SyncKindOrders, Interval: cfg.OrderSync},
		{Kind: integration.SyncKindFinancial, Interval: cfg.FinancialSync},
	}
	var out []Schedule
	for _, s := range candidates {
		if s.Interval > 0 {
			out = append(out, s)
		}
	}
	return out
}

// JobSubmitter queues sync requests
type JobSubmitter interface {
	Submit(req integration.SyncRequest, trigger string) (*SyncJob, error)
}

// IntervalTrigger submits one job per schedule and marketplace each time the
// schedule's interval elapses. Every job covers all stores over the rolling
// window preset.
type IntervalTrigger struct {
	schedules    []Schedule
	marketplaces []integration.Marketplace
	preset       integration.WindowPreset
	submitter    JobSubmitter
	clock        integration.Clock
	logger       *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(
	schedules []Schedule,
	preset integration.WindowPreset,
	submitter JobSubmitter,
	clock integration.Clock,
	logger *zap.Logger,
) *IntervalTrigger {
	if !preset.IsValid() {
		preset = integration.WindowLastWeek
	}
	if clock == nil {
		clock = ecommerce.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		schedules:    schedules,
		marketplaces: integration.AllMarketplaces(),
		preset:       preset,
		submitter:    submitter,
		clock:        clock,
		logger:       logger,
	}
}

// Start starts one loop per schedule
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	for _, s := range t.schedules {
		t.wg.Add(1)
		go t.runLoop(ctx, s)
		t.logger.Info("Sync schedule started",
			zap.String("kind", string(s.Kind)),
			zap.Duration("interval", s.Interval),
			zap.String("window", string(t.preset)),
		)
	}
	return nil
}

// Stop stops the loops
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context, s Schedule) {
	defer t.wg.Done()

	for {
		if err := t.clock.Sleep(ctx, s.Interval); err != nil {
			return
		}
		t.fire(s)
	}
}

func (t *IntervalTrigger) fire(s Schedule) {
	for _, mp := range t.marketplaces {
		req := integration.SyncRequest{
			Kind:        s.Kind,
			Marketplace: mp,
			StoreID:     integration.AllStores,
			Preset:      t.preset,
		}
		job, err := t.submitter.Submit(req, TriggerName)
		switch {
		case errors.Is(err, ErrSyncAlreadyInProgress):
			t.logger.Info("Skipping scheduled sync, previous run still in progress",
				zap.String("kind", string(s.Kind)),
				zap.String("marketplace", string(mp)),
			)
		case err != nil:
			t.logger.Error("Failed to schedule sync job",
				zap.String("kind", string(s.Kind)),
				zap.String("marketplace", string(mp)),
				zap.Error(err),
			)
		default:
			t.logger.Info("Scheduled sync job",
				zap.String("job_id", job.ID.String()),
				zap.String("kind", string(s.Kind)),
				zap.String("marketplace", string(mp)),
			)
		}
	}
}
