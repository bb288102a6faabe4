package inventory

import (
	"context"

	"github.com/erp/inventory/internal/domain/inventory"
)

// TransactionScope provides transactional access to inventory repositories.
// All repository calls made through repos inside fn commit or roll back together.
type TransactionScope interface {
	// Execute runs fn in a transaction, rolling back if fn returns an error
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are repositories bound to one transaction.
//
// Lock order inside a transaction is reservation row first, then inventory
// records in StockKey order.
type TransactionalRepositories interface {
	RecordRepo() inventory.InventoryRecordRepository
	MovementRepo() inventory.StockMovementRepository
	ReservationRepo() inventory.ReservationRepository
}
