// Package models contains the GORM table definitions for the sync store.
//
// Column names mirror the field names of the domain records in
// internal/domain/integration, so the generic record store can read and
// write domain values directly while these models own the schema: types,
// defaults and indexes.
//
// Structure:
// - base.go: shared identity and audit columns
// - marketsync.go: store credentials, marketplace orders and financials
package models
