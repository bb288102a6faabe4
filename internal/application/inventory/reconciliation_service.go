package inventory

import (
	"context"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultReconciliationPageSize is the number of records checked per transaction
const DefaultReconciliationPageSize = 500

// ReconciliationService checks that every record's on-hand equals the signed
// sum of its ledger. Mismatches are reported, never corrected.
type ReconciliationService struct {
	scope     TransactionScope
	publisher shared.EventPublisher
	pageSize  int
	logger    *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(scope TransactionScope, publisher shared.EventPublisher, pageSize int, logger *zap.Logger) *ReconciliationService {
	if pageSize <= 0 {
		pageSize = DefaultReconciliationPageSize
	}
	return &ReconciliationService{
		scope:     scope,
		publisher: publisher,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// Reconcile walks all records page by page. Each page and its ledger sums are
// read in one transaction so concurrent movements cannot cause false reports.
func (s *ReconciliationService) Reconcile(ctx context.Context) (*ReconciliationReport, error) {
	report := &ReconciliationReport{
		StartedAt:  time.Now(),
		Mismatches: make([]MismatchItem, 0),
	}
	var events []shared.DomainEvent

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var records []inventory.InventoryRecord
		var sums map[inventory.StockKey]int64
		err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			records, err = repos.RecordRepo().FindAll(ctx, shared.Filter{Page: page, PageSize: s.pageSize})
			if err != nil || len(records) == 0 {
				return err
			}
			keys := make([]inventory.StockKey, len(records))
			for i := range records {
				keys[i] = records[i].Key()
			}
			sums, err = repos.MovementRepo().SumByKeys(ctx, keys)
			return err
		})
		if err != nil {
			s.logger.Error("Reconciliation page failed", zap.Int("page", page), zap.Error(err))
			return nil, err
		}

		for i := range records {
			r := &records[i]
			ledgerSum := sums[r.Key()]
			report.CheckedRecords++
			if ledgerSum == r.OnHandQuantity {
				continue
			}

			event := inventory.NewReconciliationMismatchEvent(r.ID, r.Key(), r.OnHandQuantity, ledgerSum)
			report.Mismatches = append(report.Mismatches, MismatchItem{
				ProductID:  r.ProductID,
				BranchID:   r.BranchID,
				OnHand:     r.OnHandQuantity,
				LedgerSum:  ledgerSum,
				Difference: event.Difference,
			})
			events = append(events, event)
		}

		if len(records) < s.pageSize {
			break
		}
	}

	report.FinishedAt = time.Now()
	if report.HasMismatches() && s.publisher != nil {
		// Errors are logged by the event bus, not propagated
		_ = s.publisher.Publish(ctx, events...)
	}

	s.logger.Info("Reconciliation completed",
		zap.Int("checked", report.CheckedRecords),
		zap.Int("mismatches", len(report.Mismatches)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// MismatchAlertHandler writes reconciliation mismatches to the operational log
type MismatchAlertHandler struct {
	logger *zap.Logger
}

// NewMismatchAlertHandler creates a new MismatchAlertHandler
func NewMismatchAlertHandler(logger *zap.Logger) *MismatchAlertHandler {
	return &MismatchAlertHandler{logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *MismatchAlertHandler) EventTypes() []string {
	return []string{inventory.EventTypeReconciliationMismatch}
}

// Handle logs the mismatch at error level
func (h *MismatchAlertHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	e, ok := event.(*inventory.ReconciliationMismatchEvent)
	if !ok {
		return nil
	}
	h.logger.Error("Inventory ledger mismatch",
		zap.String("code", shared.ErrReconciliationMismatch.Code),
		zap.String("product_id", e.ProductID.String()),
		zap.String("branch_id", e.BranchID.String()),
		zap.Int64("on_hand", e.OnHand),
		zap.Int64("ledger_sum", e.LedgerSum),
		zap.Int64("difference", e.Difference),
	)
	return nil
}

var _ shared.EventHandler = (*MismatchAlertHandler)(nil)
