package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes orderDir to ASC or DESC.
// Returns defaultDir if the input is empty or not a direction.
func ValidateSortOrder(orderDir, defaultDir string) string {
	switch strings.ToUpper(strings.TrimSpace(orderDir)) {
	case "ASC":
		return "ASC"
	case "DESC":
		return "DESC"
	}
	return defaultDir
}

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

// ProductSortFields contains allowed sort fields for products
var ProductSortFields = map[string]bool{
	"sku":           true,
	"name":          true,
	"unit_price":    true,
	"cost_price":    true,
	"minimum_stock": true,
	"created_at":    true,
	"updated_at":    true,
}

// BranchSortFields contains allowed sort fields for branches
var BranchSortFields = map[string]bool{
	"code":       true,
	"name":       true,
	"created_at": true,
	"updated_at": true,
}

// orderClause builds a whitelisted ORDER BY with id as the tiebreaker
func orderClause(orderBy, orderDir string, allowed map[string]bool, defaultField string) string {
	field := ValidateSortField(orderBy, allowed, defaultField)
	dir := ValidateSortOrder(orderDir, "ASC")
	return field + " " + dir + ", id " + dir
}
