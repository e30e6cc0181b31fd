package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
	"github.com/marketsync/backend/internal/infrastructure/logger"
)

// SchedulerConfig holds configuration for the sync scheduler
type SchedulerConfig struct {
	// MaxConcurrentJobs is the number of workers
	MaxConcurrentJobs int
	// JobTimeout is the maximum time a job can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retries for a failed job
	RetryAttempts int
	// RetryDelay is the base delay between retries (exponential backoff)
	RetryDelay time.Duration
	// QueueSize bounds the pending job queue
	QueueSize int
	// MaxHistory bounds the in-memory job history
	MaxHistory int
}

// DefaultSchedulerConfig returns default configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs: 2,
		JobTimeout:        time.Hour,
		RetryAttempts:     2,
		RetryDelay:        5 * time.Minute,
		QueueSize:         32,
		MaxHistory:        100,
	}
}

// ConfigFromSchedule builds the scheduler configuration from the app config
func ConfigFromSchedule(cfg config.ScheduleConfig) SchedulerConfig {
	c := DefaultSchedulerConfig()
	c.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	c.JobTimeout = cfg.JobTimeout
	c.RetryAttempts = cfg.RetryAttempts
	c.RetryDelay = cfg.RetryDelay
	return c
}

// Validate validates the configuration
func (c *SchedulerConfig) Validate() error {
	if c.MaxConcurrentJobs <= 0 || c.JobTimeout <= 0 || c.RetryAttempts < 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts > 0 && c.RetryDelay <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize <= 0 || c.MaxHistory <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Scheduler runs sync jobs on a fixed pool of workers. A job for the same
// kind, marketplace and store is never queued twice.
type Scheduler struct {
	config SchedulerConfig
	runner SyncRunner
	clock  integration.Clock
	logger *zap.Logger

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inFlight  map[string]uuid.UUID

	historyMu sync.RWMutex
	history   []SyncJob
}

// NewScheduler creates a new scheduler. A nil clock uses the wall clock.
func NewScheduler(cfg SchedulerConfig, runner SyncRunner, clock integration.Clock, logger *zap.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = ecommerce.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		config:   cfg,
		runner:   runner,
		clock:    clock,
		logger:   logger,
		jobs:     make(chan *SyncJob, cfg.QueueSize),
		inFlight: make(map[string]uuid.UUID),
		history:  make([]SyncJob, 0, cfg.MaxHistory),
	}, nil
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers. Jobs still queued are
// dropped; their data is picked up by the next run's window.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a sync request and returns a copy of the pending job. The
// queued job belongs to the workers once it is sent.
func (s *Scheduler) Submit(req integration.SyncRequest, trigger string) (*SyncJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	job := NewSyncJob(req, trigger, s.config.RetryAttempts, s.clock.Now())
	pending := job.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil, ErrSchedulerNotRunning
	}
	if _, busy := s.inFlight[job.Key()]; busy {
		return nil, ErrSyncAlreadyInProgress
	}

	// Recorded before the send so a worker's update always lands after it
	s.recordSnapshot(pending)
	select {
	case s.jobs <- job:
		s.inFlight[job.Key()] = job.ID
	default:
		s.forget(job.ID)
		return nil, ErrJobQueueFull
	}

	s.logger.Debug("Sync job submitted",
		zap.String("job_id", pending.ID.String()),
		zap.String("kind", string(pending.Kind)),
		zap.String("marketplace", string(pending.Marketplace)),
		zap.String("store_id", pending.StoreID),
		zap.String("trigger", trigger),
	)
	return &pending, nil
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	job.Start(s.clock.Now())
	s.record(job)

	runCtx := logger.WithRunID(ctx, job.ID.String())
	runCtx, cancel := context.WithTimeout(runCtx, s.config.JobTimeout)
	defer cancel()

	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("marketplace", string(job.Marketplace)),
		zap.String("store_id", job.StoreID),
	)
	log.Info("Processing sync job")

	summary, err := s.runner.Run(runCtx, job.Request)
	if err == nil {
		job.Complete(summary, s.clock.Now())
		s.finish(job)
		log.Info("Sync job completed",
			zap.String("status", string(job.Status)),
			zap.Int("stores", job.Stores),
			zap.Int("inserted", job.Totals.Inserted),
			zap.Int("updated", job.Totals.Updated),
			zap.Int("unchanged", job.Totals.Unchanged),
			zap.Int("failed", job.Totals.Failed),
		)
		return
	}

	job.Fail(err.Error(), s.clock.Now())
	log.Error("Sync job failed", zap.Error(err))

	if !job.ShouldRetry() || ctx.Err() != nil {
		s.finish(job)
		return
	}

	delay := job.ScheduleRetry(s.config.RetryDelay, s.clock.Now())
	s.record(job)
	log.Info("Sync job scheduled for retry",
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", delay),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.clock.Sleep(ctx, delay); err != nil {
			s.release(job)
			return
		}
		select {
		case s.jobs <- job:
		case <-ctx.Done():
			s.release(job)
		}
	}()
}

// finish records the final state and frees the job key
func (s *Scheduler) finish(job *SyncJob) {
	s.record(job)
	s.release(job)
}

func (s *Scheduler) release(job *SyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[job.Key()] == job.ID {
		delete(s.inFlight, job.Key())
	}
}

// record stores a copy of the job in the history, newest first. Only the
// goroutine that owns job may call it.
func (s *Scheduler) record(job *SyncJob) {
	s.recordSnapshot(job.Snapshot())
}

func (s *Scheduler) recordSnapshot(snapshot SyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	for i := range s.history {
		if s.history[i].ID == snapshot.ID {
			s.history[i] = snapshot
			return
		}
	}
	s.history = append([]SyncJob{snapshot}, s.history...)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[:s.config.MaxHistory]
	}
}

func (s *Scheduler) forget(id uuid.UUID) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	for i := range s.history {
		if s.history[i].ID == id {
			s.history = append(s.history[:i], s.history[i+1:]...)
			return
		}
	}
}

// GetJobHistory returns recent jobs, newest first
func (s *Scheduler) GetJobHistory(limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJob returns one job from the history
func (s *Scheduler) GetJob(id uuid.UUID) (SyncJob, error) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	for _, job := range s.history {
		if job.ID == id {
			return job, nil
		}
	}
	return SyncJob{}, ErrJobNotFound
}

// IsRunning reports whether the worker pool is started
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
