package persistence

import (
	"regexp"
	"strings"

	"github.com/marketsync/backend/internal/domain/integration"
)

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

var columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidColumn reports whether name is safe to splice into a WHERE clause
func ValidColumn(name string) bool {
	return columnPattern.MatchString(name)
}

// CredentialSortFields contains allowed sort fields for store credentials
var CredentialSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"store_id":   true,
	"store_name": true,
	"expires_at": true,
}

// OrderSortFields contains allowed sort fields for marketplace orders
var OrderSortFields = map[string]bool{
	"id":               true,
	"order_id":         true,
	"store_id":         true,
	"status":           true,
	"order_created_at": true,
	"order_updated_at": true,
	"total_amount":     true,
	"synced_at":        true,
}

// FinancialSortFields contains allowed sort fields for marketplace financials
var FinancialSortFields = map[string]bool{
	"id":           true,
	"order_id":     true,
	"store_id":     true,
	"total_fees":   true,
	"net_amount":   true,
	"sale_date":    true,
	"last_updated": true,
}

type tableSort struct {
	fields       map[string]bool
	defaultField string
}

var tableSorts = map[string]tableSort{
	integration.TableStoreCredentials: {CredentialSortFields, "updated_at"},
	integration.TableOrders:           {OrderSortFields, "order_updated_at"},
	integration.TableFinancials:       {FinancialSortFields, "last_updated"},
}
