package catalog

import (
	"strings"

	"github.com/erp/inventory/internal/domain/shared"
)

// Branch is a store location that holds stock
type Branch struct {
	shared.BaseAggregateRoot
	Code     string
	Name     string
	IsActive bool
}

// NewBranch creates an inactive branch; stock records are created on activation
func NewBranch(code, name string) (*Branch, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" || len(code) > 20 {
		return nil, shared.NewDomainError("INVALID_CODE", "Branch code must be 1-20 characters")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Branch name cannot be empty")
	}

	return &Branch{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		Name:              name,
	}, nil
}

// Activate marks the branch active and reports whether it changed
func (b *Branch) Activate() bool {
	if b.IsActive {
		return false
	}
	b.IsActive = true
	b.IncrementVersion()
	return true
}

// Deactivate marks the branch inactive. Its stock records are kept.
func (b *Branch) Deactivate() bool {
	if !b.IsActive {
		return false
	}
	b.IsActive = false
	b.IncrementVersion()
	return true
}
