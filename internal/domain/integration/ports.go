package integration

import (
	"context"
	"time"
)

// Table names used with RecordStore
const (
	TableStoreCredentials = "store_credentials"
	TableOrders           = "marketplace_orders"
	TableFinancials       = "marketplace_financials"
)

// ---------------------------------------------------------------------------
// RecordStore (persistence collaborator)
// ---------------------------------------------------------------------------

// RangeCondition bounds a column to [From, To). Either bound may be nil.
type RangeCondition struct {
	Column string
	From   any
	To     any
}

// Filter selects rows by equality, set membership and ranges. All
// conditions are combined with AND.
type Filter struct {
	Equals map[string]any
	In     map[string][]any
	Ranges []RangeCondition
}

// Eq returns a filter with the given equality conditions
func Eq(pairs map[string]any) Filter {
	return Filter{Equals: pairs}
}

// IsEmpty reports whether the filter has no conditions
func (f Filter) IsEmpty() bool {
	return len(f.Equals) == 0 && len(f.In) == 0 && len(f.Ranges) == 0
}

// PageRequest orders and limits a select. Limit <= 0 means no limit.
type PageRequest struct {
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// RecordStore is the generic CRUD collaborator. dest for Select must be a
// pointer to a slice of the row type stored in table.
type RecordStore interface {
	Select(ctx context.Context, table string, filter Filter, page PageRequest, dest any) error
	Insert(ctx context.Context, table string, row any) error
	Update(ctx context.Context, table string, id any, fields map[string]any) error
	Delete(ctx context.Context, table string, filter Filter) (int64, error)
	Count(ctx context.Context, table string, filter Filter) (int64, error)
}

// Transactor is implemented by record stores that can group writes. fn
// receives a store bound to the transaction; an error from fn rolls it back.
type Transactor interface {
	Transaction(ctx context.Context, fn func(store RecordStore) error) error
}

// ---------------------------------------------------------------------------
// Credential ports
// ---------------------------------------------------------------------------

// CredentialRepository reads and writes store credentials
type CredentialRepository interface {
	// ListActive returns one active credential per store, newest first
	ListActive(ctx context.Context, marketplace Marketplace) ([]StoreCredential, error)
	// GetActive returns the active credential for a store
	GetActive(ctx context.Context, marketplace Marketplace, storeID string) (*StoreCredential, error)
	// SaveRenewal persists a renewed token pair. It updates the active record
	// for the same partner and store in place, or deactivates every record
	// for the store and inserts a new active one.
	SaveRenewal(ctx context.Context, cred *StoreCredential) error
	// Deactivate marks a credential inactive
	Deactivate(ctx context.Context, id string) error
}

// TokenRenewer exchanges a refresh token for a new token pair
type TokenRenewer interface {
	RenewToken(ctx context.Context, cred *StoreCredential) (*TokenGrant, error)
}

// RenewalLocker serializes token renewal per store across goroutines and,
// for distributed implementations, across processes.
type RenewalLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ---------------------------------------------------------------------------
// Raw payload archive
// ---------------------------------------------------------------------------

// PayloadArchive retains raw upstream payloads for audit
type PayloadArchive interface {
	Put(ctx context.Context, marketplace Marketplace, storeID, orderID string, payload []byte) error
}

// Clock is the time source used by the engine. Sleep returns early with the
// context error when ctx is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}
