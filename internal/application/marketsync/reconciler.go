package marketsync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
	"github.com/marketsync/backend/internal/infrastructure/logger"
)

// Reconciler upserts fetched records against the stored ones. Records are
// compared before any write, so replaying unchanged data writes nothing.
type Reconciler struct {
	store   integration.RecordStore
	archive integration.PayloadArchive
	clock   integration.Clock
	logger  *zap.Logger
}

// NewReconciler creates a new Reconciler. archive may be nil.
func NewReconciler(store integration.RecordStore, archive integration.PayloadArchive, clock integration.Clock, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:   store,
		archive: archive,
		clock:   clockOrSystem(clock),
		logger:  logger,
	}
}

// ReconcileOrders inserts new orders and updates changed ones
func (r *Reconciler) ReconcileOrders(ctx context.Context, marketplace integration.Marketplace, orders []integration.OrderRecord) *integration.ReconcileResult {
	return reconcile(ctx, r, orderOps, marketplace, orders, true)
}

// RetireOrders applies status changes to orders that are already stored and
// never inserts. It is used for orders dropped as cancelled during fetch.
func (r *Reconciler) RetireOrders(ctx context.Context, marketplace integration.Marketplace, orders []integration.OrderRecord) *integration.ReconcileResult {
	return reconcile(ctx, r, orderOps, marketplace, orders, false)
}

// ReconcileFinancials inserts new fee records and updates changed ones
func (r *Reconciler) ReconcileFinancials(ctx context.Context, marketplace integration.Marketplace, records []integration.FinancialRecord) *integration.ReconcileResult {
	return reconcile(ctx, r, financialOps, marketplace, records, true)
}

// ---------------------------------------------------------------------------
// Record operations
// ---------------------------------------------------------------------------

// recordOps describes how one record type is keyed, stamped and written
type recordOps[T any] struct {
	table   string
	state   func(*T) integration.RecordState
	id      func(*T) uuid.UUID
	prepare func(*T, time.Time)
	fields  func(*T) map[string]any
	// payload returns the raw upstream document to archive, if any
	payload func(*T) string
}

var orderOps = recordOps[integration.OrderRecord]{
	table: integration.TableOrders,
	state: func(o *integration.OrderRecord) integration.RecordState { return o.State() },
	id:    func(o *integration.OrderRecord) uuid.UUID { return o.ID },
	prepare: func(o *integration.OrderRecord, now time.Time) {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		if o.SyncedAt.IsZero() {
			o.SyncedAt = now
		}
		o.OrderCreatedAt = o.OrderCreatedAt.UTC()
		o.OrderUpdatedAt = o.OrderUpdatedAt.UTC()
	},
	fields: func(o *integration.OrderRecord) map[string]any {
		return map[string]any{
			"status":           o.Status,
			"platform_status":  o.PlatformStatus,
			"order_created_at": o.OrderCreatedAt,
			"order_updated_at": o.OrderUpdatedAt,
			"total_amount":     o.TotalAmount,
			"currency":         o.Currency,
			"buyer_ref":        o.BuyerRef,
			"has_refund":       o.HasRefund,
			"raw_payload":      o.RawPayload,
			"synced_at":        o.SyncedAt,
		}
	},
	payload: func(*integration.OrderRecord) string { return "" },
}

var financialOps = recordOps[integration.FinancialRecord]{
	table: integration.TableFinancials,
	state: func(f *integration.FinancialRecord) integration.RecordState { return f.State() },
	id:    func(f *integration.FinancialRecord) uuid.UUID { return f.ID },
	prepare: func(f *integration.FinancialRecord, now time.Time) {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		if f.LastUpdated.IsZero() {
			f.LastUpdated = now
		}
		if f.PayloadDigest == "" && f.RawPayload != "" {
			f.PayloadDigest = ecommerce.PayloadDigest([]byte(f.RawPayload))
		}
		f.RecomputeTotalFees()
	},
	fields: func(f *integration.FinancialRecord) map[string]any {
		return map[string]any{
			"sale_fee":             f.SaleFee,
			"shipping_fee":         f.ShippingFee,
			"management_fee":       f.ManagementFee,
			"other_fee":            f.OtherFee,
			"commission":           f.Commission,
			"total_fees":           f.TotalFees,
			"tax":                  f.Tax,
			"discount":             f.Discount,
			"financing_fee":        f.FinancingFee,
			"gross_amount":         f.GrossAmount,
			"net_amount":           f.NetAmount,
			"raw_charge_total":     f.RawChargeTotal,
			"raw_discount_total":   f.RawDiscountTotal,
			"currency":             f.Currency,
			"payment_status":       f.PaymentStatus,
			"money_release_status": f.MoneyReleaseStatus,
			"money_release_date":   f.MoneyReleaseDate,
			"sale_date":            f.SaleDate,
			"sales_channel":        f.SalesChannel,
			"payer_nickname":       f.PayerNickname,
			"state_name":           f.StateName,
			"operation_id":         f.OperationID,
			"item_id":              f.ItemID,
			"item_title":           f.ItemTitle,
			"item_quantity":        f.ItemQuantity,
			"shipping_id":          f.ShippingID,
			"document_id":          f.DocumentID,
			"has_financial_data":   f.HasFinancialData,
			"payload_digest":       f.PayloadDigest,
			"last_updated":         f.LastUpdated,
			"raw_payload":          f.RawPayload,
		}
	},
	payload: func(f *integration.FinancialRecord) string { return f.RawPayload },
}

// ---------------------------------------------------------------------------
// Reconcile
// ---------------------------------------------------------------------------

// reconcile plans and applies the writes for incoming. A failed lookup fails
// every record of the affected store; a failed write fails only its record.
func reconcile[T any](ctx context.Context, r *Reconciler, ops recordOps[T], marketplace integration.Marketplace, incoming []T, allowInsert bool) *integration.ReconcileResult {
	result := &integration.ReconcileResult{Total: len(incoming)}
	if len(incoming) == 0 {
		return result
	}

	// Group indexes by store so each store needs one lookup
	var storeOrder []string
	byStore := make(map[string][]int)
	for i := range incoming {
		storeID := ops.state(&incoming[i]).Key.StoreID
		if _, ok := byStore[storeID]; !ok {
			storeOrder = append(storeOrder, storeID)
		}
		byStore[storeID] = append(byStore[storeID], i)
	}

	now := r.clock.Now()
	for _, storeID := range storeOrder {
		indexes := byStore[storeID]

		orderIDs := make([]any, len(indexes))
		for j, i := range indexes {
			orderIDs[j] = ops.state(&incoming[i]).Key.OrderID
		}

		var existing []T
		err := r.store.Select(ctx, ops.table, integration.Filter{
			Equals: map[string]any{
				"marketplace": marketplace,
				"store_id":    storeID,
			},
			In: map[string][]any{"order_id": orderIDs},
		}, integration.PageRequest{}, &existing)
		if err != nil {
			for _, i := range indexes {
				result.Failed++
				result.Failures = append(result.Failures,
					integration.NewItemFailure(ops.state(&incoming[i]).Key.OrderID, err))
			}
			continue
		}

		existingStates := make([]integration.RecordState, len(existing))
		ids := make(map[integration.RecordKey]uuid.UUID, len(existing))
		for j := range existing {
			state := ops.state(&existing[j])
			existingStates[j] = state
			ids[state.Key] = ops.id(&existing[j])
		}

		incomingStates := make([]integration.RecordState, len(indexes))
		for j, i := range indexes {
			incomingStates[j] = ops.state(&incoming[i])
		}

		for _, decision := range integration.PlanReconcile(existingStates, incomingStates) {
			item := &incoming[indexes[decision.Index]]
			key := incomingStates[decision.Index].Key
			id, stored := ids[key]

			action := decision.Action
			if action == integration.ReconcileUpdate && !stored {
				// An earlier duplicate in this batch failed to insert
				action = integration.ReconcileInsert
			}

			switch action {
			case integration.ReconcileUnchanged:
				result.Unchanged++
				continue
			case integration.ReconcileInsert:
				if !allowInsert {
					result.Unchanged++
					continue
				}
				ops.prepare(item, now)
				if err := r.store.Insert(ctx, ops.table, item); err != nil {
					result.Failed++
					result.Failures = append(result.Failures, integration.NewItemFailure(key.OrderID, err))
					continue
				}
				ids[key] = ops.id(item)
				result.Inserted++
			case integration.ReconcileUpdate:
				ops.prepare(item, now)
				if err := r.store.Update(ctx, ops.table, id, ops.fields(item)); err != nil {
					result.Failed++
					result.Failures = append(result.Failures, integration.NewItemFailure(key.OrderID, err))
					continue
				}
				result.Updated++
			}
			r.archivePayload(ctx, marketplace, key, ops.payload(item))
		}
	}

	logger.Enrich(ctx, r.logger).Debug("Reconciled records",
		zap.String("table", ops.table),
		zap.Int("total", result.Total),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
	)
	return result
}

// archivePayload stores the raw document; failures never fail the record
func (r *Reconciler) archivePayload(ctx context.Context, marketplace integration.Marketplace, key integration.RecordKey, payload string) {
	if r.archive == nil || payload == "" {
		return
	}
	if err := r.archive.Put(ctx, marketplace, key.StoreID, key.OrderID, []byte(payload)); err != nil {
		logger.Enrich(ctx, r.logger).Warn("Failed to archive raw payload",
			zap.String("order_id", key.OrderID),
			zap.Error(err),
		)
	}
}
