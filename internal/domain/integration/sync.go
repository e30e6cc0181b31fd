package integration

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// AllStores selects every active store of the marketplace
const AllStores = "all"

// SyncKind is the pipeline a sync run executes
type SyncKind string

const (
	SyncKindTokens    SyncKind = "tokens"
	SyncKindOrders    SyncKind = "orders"
	SyncKindFinancial SyncKind = "financial"
)

// IsValid returns true if the kind is known
func (k SyncKind) IsValid() bool {
	switch k {
	case SyncKindTokens, SyncKindOrders, SyncKindFinancial:
		return true
	default:
		return false
	}
}

// SyncRequest is one invocation of the engine
type SyncRequest struct {
	Kind                SyncKind     `validate:"required,oneof=tokens orders financial"`
	Marketplace         Marketplace  `validate:"required,oneof=shopee mercado_livre"`
	StoreID             string       `validate:"required"`
	Preset              WindowPreset `validate:"omitempty,oneof=24h week month"`
	Window              TimeWindow
	BatchSize           int `validate:"gte=0,lte=100"`
	MaxConcurrentStores int `validate:"gte=0,lte=20"`
}

var requestValidator = validator.New()

// Validate checks the request fields
func (r *SyncRequest) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSyncRequest, err)
	}
	if !r.Window.From.IsZero() || !r.Window.To.IsZero() {
		if err := r.Window.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResolveWindow returns the explicit window, or the preset window ending at now
func (r *SyncRequest) ResolveWindow(now time.Time, fallback WindowPreset) TimeWindow {
	if !r.Window.From.IsZero() && !r.Window.To.IsZero() {
		return r.Window
	}
	preset := r.Preset
	if !preset.IsValid() {
		preset = fallback
	}
	return preset.WindowEndingAt(now)
}

// IsAllStores reports whether the request fans out to every store
func (r *SyncRequest) IsAllStores() bool {
	return r.StoreID == "" || r.StoreID == AllStores
}

// StoreSyncResult is the outcome of one store's pipeline
type StoreSyncResult struct {
	Marketplace Marketplace   `json:"marketplace"`
	StoreID     string        `json:"store_id"`
	StoreName   string        `json:"store_name,omitempty"`
	Discovered  int           `json:"discovered"`
	Inserted    int           `json:"inserted"`
	Updated     int           `json:"updated"`
	Unchanged   int           `json:"unchanged"`
	Failed      int           `json:"failed"`
	Purged      int64         `json:"purged,omitempty"`
	Errors      []ItemFailure `json:"errors,omitempty"`
	Duration    time.Duration `json:"duration"`
	Aborted     bool          `json:"aborted"`
}

// ApplyReconcile adds reconcile counts to the store result
func (s *StoreSyncResult) ApplyReconcile(r *ReconcileResult) {
	if r == nil {
		return
	}
	s.Inserted += r.Inserted
	s.Updated += r.Updated
	s.Unchanged += r.Unchanged
	s.Failed += r.Failed
	s.Errors = append(s.Errors, r.Failures...)
}

// AddFailures records item failures that never reached the reconciler
func (s *StoreSyncResult) AddFailures(failures []ItemFailure) {
	s.Failed += len(failures)
	s.Errors = append(s.Errors, failures...)
}

// Abort marks the store run as failed as a whole
func (s *StoreSyncResult) Abort(err error) {
	s.Aborted = true
	s.Errors = append(s.Errors, NewItemFailure(s.StoreID, err))
}

// SyncSummary is the result of one invocation across stores
type SyncSummary struct {
	Kind        SyncKind          `json:"kind"`
	Marketplace Marketplace       `json:"marketplace"`
	Window      TimeWindow        `json:"window"`
	PerStore    []StoreSyncResult `json:"per_store"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Totals sums the per-store counts
func (s *SyncSummary) Totals() StoreSyncResult {
	total := StoreSyncResult{Marketplace: s.Marketplace, StoreID: AllStores}
	for _, r := range s.PerStore {
		total.Discovered += r.Discovered
		total.Inserted += r.Inserted
		total.Updated += r.Updated
		total.Unchanged += r.Unchanged
		total.Failed += r.Failed
		total.Purged += r.Purged
	}
	return total
}

// AllAborted reports whether every store failed as a whole
func (s *SyncSummary) AllAborted() bool {
	if len(s.PerStore) == 0 {
		return false
	}
	for _, r := range s.PerStore {
		if !r.Aborted {
			return false
		}
	}
	return true
}
