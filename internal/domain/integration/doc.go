// Package integration contains the Marketplace Integration bounded context.
// This context reconciles order and fee data pulled from external
// marketplaces (Shopee, Mercado Livre) into a normalized store.
//
// Key concepts:
//   - StoreCredential: per-store access/refresh token pair with a renewal lifecycle
//   - OrderRecord: normalized order keyed by (order id, store id)
//   - FinancialRecord: categorized fee totals aggregated from billing/escrow payloads
//   - RecordStore: generic CRUD port consumed by the credential adapter and the reconciler
//   - Reconcile planning: insert/update/skip decisions with explicit change detection
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (HTTP clients, GORM store, Redis lock) are in the infrastructure layer
package integration
