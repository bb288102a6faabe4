package inventory

import (
	"context"
	"testing"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReconciliationService_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("consistent ledger reports nothing", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		for i := 0; i < 5; i++ {
			f.store.seed(inventory.StockKey{ProductID: uuid.New(), BranchID: f.key.BranchID}, int64(i))
		}
		_, err := f.apply(t, -3, inventory.MovementTypeSale)
		require.NoError(t, err)

		svc := NewReconciliationService(f.store, f.publisher, 2, zap.NewNop())
		report, err := svc.Reconcile(ctx)

		require.NoError(t, err)
		assert.Equal(t, 6, report.CheckedRecords)
		assert.False(t, report.HasMismatches())
		assert.Empty(t, f.publisher.ofType(inventory.EventTypeReconciliationMismatch))
	})

	t.Run("reports drift without correcting it", func(t *testing.T) {
		f := newFixture(t, 10, 0)
		f.store.view(func(s *memState) {
			r := s.records[f.key]
			r.OnHandQuantity = 12
			s.records[f.key] = r
		})

		core, logs := observer.New(zap.ErrorLevel)
		f.publisher.subscribe(NewMismatchAlertHandler(zap.New(core)))
		svc := NewReconciliationService(f.store, f.publisher, 0, zap.NewNop())

		report, err := svc.Reconcile(ctx)

		require.NoError(t, err)
		require.Len(t, report.Mismatches, 1)
		m := report.Mismatches[0]
		assert.Equal(t, int64(12), m.OnHand)
		assert.Equal(t, int64(10), m.LedgerSum)
		assert.Equal(t, int64(2), m.Difference)
		assert.Equal(t, int64(12), f.store.record(f.key).OnHandQuantity)
		assert.Len(t, f.publisher.ofType(inventory.EventTypeReconciliationMismatch), 1)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "Inventory ledger mismatch", logs.All()[0].Message)
	})
}
