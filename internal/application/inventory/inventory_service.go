package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// scanPageSize is the page size used when walking every record of a branch
const scanPageSize = 200

// InventoryService owns inventory records and the stock ledger.
// Every quantity change locks the record row, appends a movement and saves
// the record in one transaction; events are published only after commit.
type InventoryService struct {
	scope          TransactionScope
	recordRepo     inventory.InventoryRecordRepository
	movementRepo   inventory.StockMovementRepository
	catalog        inventory.ProductCatalog
	branches       inventory.BranchDirectory
	eventPublisher shared.EventPublisher
	retry          RetryPolicy
	logger         *zap.Logger
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(
	scope TransactionScope,
	recordRepo inventory.InventoryRecordRepository,
	movementRepo inventory.StockMovementRepository,
	catalog inventory.ProductCatalog,
	branches inventory.BranchDirectory,
	logger *zap.Logger,
) *InventoryService {
	return &InventoryService{
		scope:        scope,
		recordRepo:   recordRepo,
		movementRepo: movementRepo,
		catalog:      catalog,
		branches:     branches,
		retry:        DefaultRetryPolicy(),
		logger:       logger,
	}
}

// SetEventPublisher sets the publisher that receives committed changes
func (s *InventoryService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetRetryPolicy overrides the transient-error retry policy
func (s *InventoryService) SetRetryPolicy(policy RetryPolicy) {
	s.retry = policy
}

// GetAvailability returns on-hand, reserved and available for a product at a branch.
// A missing record for an existing product at an active branch is created at zero.
func (s *InventoryService) GetAvailability(ctx context.Context, productID, branchID uuid.UUID) (*AvailabilityResponse, error) {
	key, err := inventory.NewStockKey(productID, branchID)
	if err != nil {
		return nil, err
	}

	var record *inventory.InventoryRecord
	err = s.retry.Read(ctx, s.logger, "get_availability", func() error {
		var findErr error
		record, findErr = s.recordRepo.FindByKey(ctx, key)
		return findErr
	})
	if err == nil {
		response := ToAvailabilityResponse(record)
		return &response, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if err := s.HealMissingRecord(ctx, key); err != nil {
		return nil, err
	}
	record, err = s.recordRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	response := ToAvailabilityResponse(record)
	return &response, nil
}

// HealMissingRecord creates the zero record for key when none exists, the
// branch is active and the product exists. Otherwise it returns NOT_FOUND.
func (s *InventoryService) HealMissingRecord(ctx context.Context, key inventory.StockKey) error {
	if _, err := s.recordRepo.FindByKey(ctx, key); err == nil {
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	if err := s.checkAssociable(ctx, key); err != nil {
		return err
	}
	created, err := s.EnsureRecord(ctx, key.ProductID, key.BranchID)
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("Created missing inventory record",
			zap.String("product_id", key.ProductID.String()),
			zap.String("branch_id", key.BranchID.String()),
		)
	}
	return nil
}

// RecordHealer creates the zero record for a pair that may hold stock but has none yet
type RecordHealer interface {
	HealMissingRecord(ctx context.Context, key inventory.StockKey) error
}

// healAndRetry runs op once more after healing keys when op failed on a missing record.
// A pair that cannot hold stock keeps its NOT_FOUND from the healer.
func healAndRetry(ctx context.Context, healer RecordHealer, keys ...inventory.StockKey) func(op func() error) error {
	return func(op func() error) error {
		err := op()
		if healer == nil || !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		for _, key := range keys {
			if healErr := healer.HealMissingRecord(ctx, key); healErr != nil {
				return healErr
			}
		}
		return op()
	}
}

// checkAssociable returns ErrNotFound unless the branch is active and the product exists
func (s *InventoryService) checkAssociable(ctx context.Context, key inventory.StockKey) error {
	active, err := s.branches.IsActive(ctx, key.BranchID)
	if err != nil {
		return err
	}
	if !active {
		return shared.NewDomainError("NOT_FOUND", "No inventory record for product at this branch")
	}
	if _, err := s.catalog.GetProduct(ctx, key.ProductID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError("NOT_FOUND", "Product not found")
		}
		return err
	}
	return nil
}

// ApplyMovement changes on-hand by req.Delta and appends the ledger entry atomically.
// A decrease below the reserved quantity fails with INSUFFICIENT_STOCK and changes nothing.
func (s *InventoryService) ApplyMovement(ctx context.Context, req ApplyMovementRequest) (*MovementResponse, error) {
	movementType, err := inventory.ParseMovementType(req.MovementType)
	if err != nil {
		return nil, err
	}
	if err := movementType.ValidateDelta(req.Delta); err != nil {
		return nil, err
	}
	key, err := inventory.NewStockKey(req.ProductID, req.BranchID)
	if err != nil {
		return nil, err
	}

	var (
		movement *inventory.StockMovement
		events   []shared.DomainEvent
	)
	err = healAndRetry(ctx, s, key)(func() error {
		return s.retry.Mutate(ctx, s.logger, "apply_movement", func() error {
			events = nil
			return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
				record, err := repos.RecordRepo().FindByKeyForUpdate(ctx, key)
				if err != nil {
					return err
				}

				m, err := record.ApplyMovement(req.Delta, movementType, req.Reference, req.Actor)
				if err != nil {
					return err
				}
				if err := repos.MovementRepo().Create(ctx, m); err != nil {
					return err
				}
				if err := repos.RecordRepo().Save(ctx, record); err != nil {
					return err
				}

				movement = m
				events = record.GetDomainEvents()
				return nil
			})
		})
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientStock) {
			s.logger.Info("Movement rejected",
				zap.String("product_id", req.ProductID.String()),
				zap.String("branch_id", req.BranchID.String()),
				zap.Int64("delta", req.Delta),
				zap.String("movement_type", movementType.String()),
			)
		}
		return nil, err
	}

	s.publish(ctx, events)
	response := ToMovementResponse(movement)
	return &response, nil
}

// Transfer moves quantity from one branch to another as a transfer_out and a
// transfer_in movement sharing one reference, in one transaction.
func (s *InventoryService) Transfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	if req.FromBranchID == req.ToBranchID {
		return nil, shared.NewDomainError("INVALID_TRANSFER", "Source and destination branch must differ")
	}
	if req.Quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Transfer quantity must be positive")
	}
	fromKey, err := inventory.NewStockKey(req.ProductID, req.FromBranchID)
	if err != nil {
		return nil, err
	}
	toKey, err := inventory.NewStockKey(req.ProductID, req.ToBranchID)
	if err != nil {
		return nil, err
	}
	reference := req.Reference
	if reference == "" {
		reference = "transfer-" + uuid.New().String()
	}

	var (
		response TransferResponse
		events   []shared.DomainEvent
	)
	err = healAndRetry(ctx, s, fromKey, toKey)(func() error {
		return s.retry.Mutate(ctx, s.logger, "transfer", func() error {
			events = nil
			return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
				locked, err := lockInOrder(ctx, repos.RecordRepo(), fromKey, toKey)
				if err != nil {
					return err
				}
				from, to := locked[fromKey], locked[toKey]

				out, err := from.ApplyMovement(-req.Quantity, inventory.MovementTypeTransferOut, reference, req.Actor)
				if err != nil {
					return err
				}
				in, err := to.ApplyMovement(req.Quantity, inventory.MovementTypeTransferIn, reference, req.Actor)
				if err != nil {
					return err
				}
				for _, m := range []*inventory.StockMovement{out, in} {
					if err := repos.MovementRepo().Create(ctx, m); err != nil {
						return err
					}
				}
				for _, r := range []*inventory.InventoryRecord{from, to} {
					if err := repos.RecordRepo().Save(ctx, r); err != nil {
						return err
					}
				}

				response = TransferResponse{
					Reference: reference,
					Outbound:  ToMovementResponse(out),
					Inbound:   ToMovementResponse(in),
					From:      ToAvailabilityResponse(from),
					To:        ToAvailabilityResponse(to),
				}
				events = append(from.GetDomainEvents(), to.GetDomainEvents()...)
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	return &response, nil
}

// lockInOrder row-locks records in StockKey order so that concurrent
// multi-record transactions cannot deadlock each other.
func lockInOrder(ctx context.Context, repo inventory.InventoryRecordRepository, keys ...inventory.StockKey) (map[inventory.StockKey]*inventory.InventoryRecord, error) {
	ordered := append([]inventory.StockKey(nil), keys...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	locked := make(map[inventory.StockKey]*inventory.InventoryRecord, len(ordered))
	for _, key := range ordered {
		if _, ok := locked[key]; ok {
			continue
		}
		record, err := repo.FindByKeyForUpdate(ctx, key)
		if err != nil {
			return nil, err
		}
		locked[key] = record
	}
	return locked, nil
}

// EnsureRecord creates a zero record for the pair unless one exists.
// It reports whether a record was created.
func (s *InventoryService) EnsureRecord(ctx context.Context, productID, branchID uuid.UUID) (bool, error) {
	key, err := inventory.NewStockKey(productID, branchID)
	if err != nil {
		return false, err
	}

	// EnsureExists is idempotent, so it retries like a read
	var created bool
	err = s.retry.Read(ctx, s.logger, "ensure_record", func() error {
		var ensureErr error
		created, ensureErr = s.recordRepo.EnsureExists(ctx, key)
		return ensureErr
	})
	return created, err
}

// EnsureRecordsForProduct creates zero records for a product at every active branch
func (s *InventoryService) EnsureRecordsForProduct(ctx context.Context, productID uuid.UUID) (*EnsureRecordsResult, error) {
	branchIDs, err := s.branches.ListActiveBranchIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active branches: %w", err)
	}

	result := s.ensureAll(ctx, len(branchIDs), func(i int) (uuid.UUID, uuid.UUID) {
		return productID, branchIDs[i]
	})
	s.logger.Info("Ensured inventory records for product",
		zap.String("product_id", productID.String()),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// EnsureRecordsForBranch creates zero records at a branch for every active product
func (s *InventoryService) EnsureRecordsForBranch(ctx context.Context, branchID uuid.UUID) (*EnsureRecordsResult, error) {
	productIDs, err := s.catalog.ListActiveProductIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}

	result := s.ensureAll(ctx, len(productIDs), func(i int) (uuid.UUID, uuid.UUID) {
		return productIDs[i], branchID
	})
	s.logger.Info("Ensured inventory records for branch",
		zap.String("branch_id", branchID.String()),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *InventoryService) ensureAll(ctx context.Context, n int, pair func(i int) (uuid.UUID, uuid.UUID)) *EnsureRecordsResult {
	result := &EnsureRecordsResult{}
	for i := 0; i < n; i++ {
		productID, branchID := pair(i)
		created, err := s.EnsureRecord(ctx, productID, branchID)
		switch {
		case err != nil:
			result.Failed++
			s.logger.Error("Failed to ensure inventory record",
				zap.String("product_id", productID.String()),
				zap.String("branch_id", branchID.String()),
				zap.Error(err),
			)
		case created:
			result.Created++
		default:
			result.Existing++
		}
	}
	return result
}

// ListMovements returns the ledger of a record, newest first
func (s *InventoryService) ListMovements(ctx context.Context, productID, branchID uuid.UUID, filter shared.Filter) (*shared.Paginated[MovementResponse], error) {
	key, err := inventory.NewStockKey(productID, branchID)
	if err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	var (
		movements []inventory.StockMovement
		total     int64
	)
	err = s.retry.Read(ctx, s.logger, "list_movements", func() error {
		var err error
		if movements, err = s.movementRepo.FindByKey(ctx, key, filter); err != nil {
			return err
		}
		total, err = s.movementRepo.CountByKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := shared.NewPaginated(ToMovementResponses(movements), total, filter.Page, filter.PageSize)
	return &page, nil
}

// ListLowStock returns records at a branch whose availability is at or below
// the product minimum, lowest availability first.
func (s *InventoryService) ListLowStock(ctx context.Context, branchID uuid.UUID) ([]LowStockItem, error) {
	records, products, err := s.loadBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	items := make([]LowStockItem, 0)
	for i := range records {
		r := &records[i]
		product, ok := products[r.ProductID]
		if !ok || r.Available() > product.MinimumStock {
			continue
		}
		items = append(items, LowStockItem{
			ProductID: r.ProductID,
			SKU:       product.SKU,
			Name:      product.Name,
			BranchID:  r.BranchID,
			OnHand:    r.OnHandQuantity,
			Reserved:  r.ReservedQuantity,
			Available: r.Available(),
			Minimum:   product.MinimumStock,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Available < items[j].Available })
	return items, nil
}

// BranchValuation sums on-hand times cost price over every product at a branch
func (s *InventoryService) BranchValuation(ctx context.Context, branchID uuid.UUID) (*ValuationResponse, error) {
	records, products, err := s.loadBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	response := &ValuationResponse{
		BranchID:   branchID,
		TotalValue: decimal.Zero,
		Lines:      make([]ValuationLine, 0, len(records)),
	}
	for i := range records {
		r := &records[i]
		if r.OnHandQuantity == 0 {
			continue
		}
		product, ok := products[r.ProductID]
		if !ok {
			continue
		}
		value := product.CostPrice.Mul(decimal.NewFromInt(r.OnHandQuantity))
		response.Lines = append(response.Lines, ValuationLine{
			ProductID: r.ProductID,
			SKU:       product.SKU,
			OnHand:    r.OnHandQuantity,
			CostPrice: product.CostPrice,
			Value:     value,
		})
		response.TotalValue = response.TotalValue.Add(value)
		response.TotalUnits += r.OnHandQuantity
	}
	return response, nil
}

// loadBranch reads every record at a branch together with its catalog entries
func (s *InventoryService) loadBranch(ctx context.Context, branchID uuid.UUID) ([]inventory.InventoryRecord, map[uuid.UUID]inventory.ProductInfo, error) {
	if branchID == uuid.Nil {
		return nil, nil, shared.NewDomainError("INVALID_BRANCH", "Branch ID cannot be empty")
	}

	var records []inventory.InventoryRecord
	for page := 1; ; page++ {
		var batch []inventory.InventoryRecord
		err := s.retry.Read(ctx, s.logger, "list_branch_records", func() error {
			var err error
			batch, err = s.recordRepo.FindByBranch(ctx, branchID, shared.Filter{Page: page, PageSize: scanPageSize})
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		records = append(records, batch...)
		if len(batch) < scanPageSize {
			break
		}
	}

	ids := make([]uuid.UUID, len(records))
	for i := range records {
		ids[i] = records[i].ProductID
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load products: %w", err)
	}
	return records, products, nil
}

// publish hands committed events to the event bus
func (s *InventoryService) publish(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	// Errors are logged by the event bus, not propagated
	_ = s.eventPublisher.Publish(ctx, events...)
}
