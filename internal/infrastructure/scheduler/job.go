package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

// JobStatus represents the status of a sync job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusPartial JobStatus = "PARTIAL"
	JobStatusFailed  JobStatus = "FAILED"
)

// maxRetryDelay caps the exponential retry backoff
const maxRetryDelay = 30 * time.Minute

// SyncJob is one queued invocation of the sync engine
type SyncJob struct {
	ID          uuid.UUID                   `json:"id"`
	Request     integration.SyncRequest     `json:"-"`
	Kind        integration.SyncKind        `json:"kind"`
	Marketplace integration.Marketplace     `json:"marketplace"`
	StoreID     string                      `json:"store_id"`
	Trigger     string                      `json:"trigger"`
	Status      JobStatus                   `json:"status"`
	Error       string                      `json:"error,omitempty"`
	SubmittedAt time.Time                   `json:"submitted_at"`
	StartedAt   *time.Time                  `json:"started_at,omitempty"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
	RetryCount  int                         `json:"retry_count"`
	MaxRetries  int                         `json:"max_retries"`
	NextRetryAt *time.Time                  `json:"next_retry_at,omitempty"`
	Stores      int                         `json:"stores"`
	Totals      integration.StoreSyncResult `json:"totals"`
}

// NewSyncJob creates a pending job for the request
func NewSyncJob(req integration.SyncRequest, trigger string, maxRetries int, now time.Time) *SyncJob {
	storeID := req.StoreID
	if storeID == "" {
		storeID = integration.AllStores
	}
	return &SyncJob{
		ID:          uuid.New(),
		Request:     req,
		Kind:        req.Kind,
		Marketplace: req.Marketplace,
		StoreID:     storeID,
		Trigger:     trigger,
		Status:      JobStatusPending,
		SubmittedAt: now,
		MaxRetries:  maxRetries,
	}
}

// Key identifies jobs that must not run concurrently
func (j *SyncJob) Key() string {
	return string(j.Kind) + ":" + string(j.Marketplace) + ":" + j.StoreID
}

// Start marks the job as running
func (j *SyncJob) Start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
	j.NextRetryAt = nil
}

// Complete records the run summary. Item failures make the job partial;
// a run where every store aborted counts as failed.
func (j *SyncJob) Complete(summary *integration.SyncSummary, now time.Time) {
	if summary == nil {
		summary = &integration.SyncSummary{}
	}
	j.CompletedAt = &now
	j.Stores = len(summary.PerStore)
	j.Totals = summary.Totals()

	switch {
	case summary.AllAborted():
		j.Status = JobStatusFailed
	case j.Totals.Failed > 0 || anyAborted(summary):
		j.Status = JobStatusPartial
	default:
		j.Status = JobStatusSuccess
	}
}

func anyAborted(summary *integration.SyncSummary) bool {
	for _, r := range summary.PerStore {
		if r.Aborted {
			return true
		}
	}
	return false
}

// Fail marks the job as failed
func (j *SyncJob) Fail(err string, now time.Time) {
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *SyncJob) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff and
// returns the delay: baseDelay * 2^(retryCount-1), capped.
func (j *SyncJob) ScheduleRetry(baseDelay time.Duration, now time.Time) time.Duration {
	j.RetryCount++
	j.Status = JobStatusPending
	delay := min(baseDelay*time.Duration(1<<(j.RetryCount-1)), maxRetryDelay)
	next := now.Add(delay)
	j.NextRetryAt = &next
	return delay
}

// Snapshot returns a copy safe to hand out while the job keeps running
func (j *SyncJob) Snapshot() SyncJob {
	return *j
}

// SyncRunner executes one sync request across stores
type SyncRunner interface {
	Run(ctx context.Context, req integration.SyncRequest) (*integration.SyncSummary, error)
}
