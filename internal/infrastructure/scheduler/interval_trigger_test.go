package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
)

// gateClock blocks in Sleep until the test ticks it
type gateClock struct {
	ticks chan struct{}
}

func newGateClock() *gateClock {
	return &gateClock{ticks: make(chan struct{})}
}

func (c *gateClock) Now() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

func (c *gateClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ticks:
		return nil
	}
}

func (c *gateClock) tick() { c.ticks <- struct{}{} }

type recordingSubmitter struct {
	mu   sync.Mutex
	reqs []integration.SyncRequest
	err  error
}

func (s *recordingSubmitter) Submit(req integration.SyncRequest, trigger string) (*SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.reqs = append(s.reqs, req)
	return NewSyncJob(req, trigger, 0, time.Now()), nil
}

func (s *recordingSubmitter) requests() []integration.SyncRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]integration.SyncRequest(nil), s.reqs...)
}

func TestSchedulesFromConfig(t *testing.T) {
	schedules := SchedulesFromConfig(config.ScheduleConfig{
		TokenRefresh:  3 * time.Hour,
		OrderSync:     2 * time.Hour,
		FinancialSync: 0,
	})

	assert.Equal(t, []Schedule{
		{Kind: integration.SyncKindTokens, Interval: 3 * time.Hour},
		{Kind: integration.SyncKindOrders, Interval: 2 * time.Hour},
	}, schedules)
}

func TestIntervalTrigger_SubmitsPerMarketplace(t *testing.T) {
	clock := newGateClock()
	submitter := &recordingSubmitter{}
	trigger := NewIntervalTrigger(
		[]Schedule{{Kind: integration.SyncKindFinancial, Interval: 6 * time.Hour}},
		integration.WindowLast24h, submitter, clock, zap.NewNop(),
	)
	require.NoError(t, trigger.Start(context.Background()))
	defer func() { _ = trigger.Stop(context.Background()) }()

	assert.Empty(t, submitter.requests())
	clock.tick()

	require.Eventually(t, func() bool {
		return len(submitter.requests()) == 2
	}, time.Second, 5*time.Millisecond)

	reqs := submitter.requests()
	assert.Equal(t, integration.MarketplaceShopee, reqs[0].Marketplace)
	assert.Equal(t, integration.MarketplaceMercadoLivre, reqs[1].Marketplace)
	for _, req := range reqs {
		assert.Equal(t, integration.SyncKindFinancial, req.Kind)
		assert.Equal(t, integration.AllStores, req.StoreID)
		assert.Equal(t, integration.WindowLast24h, req.Preset)
		assert.NoError(t, req.Validate())
	}
}

func TestIntervalTrigger_SkipsBusyRuns(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	clock := newGateClock()
	submitter := &recordingSubmitter{err: ErrSyncAlreadyInProgress}
	trigger := NewIntervalTrigger(
		[]Schedule{{Kind: integration.SyncKindOrders, Interval: 2 * time.Hour}},
		"", submitter, clock, zap.New(core),
	)
	assert.Equal(t, integration.WindowLastWeek, trigger.preset)

	require.NoError(t, trigger.Start(context.Background()))
	clock.tick()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Skipping scheduled sync, previous run still in progress").Len() == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, trigger.Stop(context.Background()))
	assert.Equal(t, 0, logs.FilterMessage("Failed to schedule sync job").Len())
}

func TestIntervalTrigger_StartStopIdempotent(t *testing.T) {
	trigger := NewIntervalTrigger(nil, integration.WindowLastWeek, &recordingSubmitter{}, newGateClock(), zap.NewNop())
	require.NoError(t, trigger.Stop(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
}
