package integration

import (
	"time"
)

// RecordKey identifies an order-scoped record within a store
type RecordKey struct {
	OrderID string
	StoreID string
}

// RecordState is the subset of a record that drives change detection
type RecordState struct {
	Key       RecordKey
	Status    string
	UpdatedAt time.Time
	Digest    string
}

// Differs reports whether incoming carries a change relative to existing
func (s RecordState) Differs(existing RecordState) bool {
	if s.Status != existing.Status {
		return true
	}
	if !s.UpdatedAt.Equal(existing.UpdatedAt) {
		return true
	}
	return s.Digest != existing.Digest
}

// ReconcileAction is the write decided for one incoming record
type ReconcileAction string

const (
	ReconcileInsert    ReconcileAction = "insert"
	ReconcileUpdate    ReconcileAction = "update"
	ReconcileUnchanged ReconcileAction = "unchanged"
)

// ReconcileDecision pairs an incoming record index with its action
type ReconcileDecision struct {
	Index  int
	Action ReconcileAction
}

// PlanReconcile decides insert/update/skip for each incoming state against
// the existing states. It performs no I/O. A key that appears twice in
// incoming is compared against its earlier occurrence, so replaying the same
// record in one batch never produces a second write.
func PlanReconcile(existing, incoming []RecordState) []ReconcileDecision {
	known := make(map[RecordKey]RecordState, len(existing))
	for _, e := range existing {
		known[e.Key] = e
	}

	decisions := make([]ReconcileDecision, 0, len(incoming))
	for i, in := range incoming {
		prev, ok := known[in.Key]
		switch {
		case !ok:
			decisions = append(decisions, ReconcileDecision{Index: i, Action: ReconcileInsert})
		case in.Differs(prev):
			decisions = append(decisions, ReconcileDecision{Index: i, Action: ReconcileUpdate})
		default:
			decisions = append(decisions, ReconcileDecision{Index: i, Action: ReconcileUnchanged})
		}
		known[in.Key] = in
	}
	return decisions
}

// ItemFailure records one identifier that could not be processed
type ItemFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// NewItemFailure creates a failure entry from an error
func NewItemFailure(id string, err error) ItemFailure {
	return ItemFailure{ID: id, Reason: err.Error(), Err: err}
}

// ReconcileResult holds the write counts of one reconcile call
type ReconcileResult struct {
	Total     int           `json:"total"`
	Inserted  int           `json:"inserted"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// Add merges another result into r
func (r *ReconcileResult) Add(other *ReconcileResult) {
	if other == nil {
		return
	}
	r.Total += other.Total
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Failed += other.Failed
	r.Failures = append(r.Failures, other.Failures...)
}

// Writes returns the number of rows written
func (r *ReconcileResult) Writes() int {
	return r.Inserted + r.Updated
}
