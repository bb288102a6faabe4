package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memState is the committed content of the in-memory store
type memState struct {
	records      map[inventory.StockKey]inventory.InventoryRecord
	movements    []inventory.StockMovement
	reservations map[uuid.UUID]inventory.Reservation
}

func (s *memState) clone() *memState {
	c := &memState{
		records:      make(map[inventory.StockKey]inventory.InventoryRecord, len(s.records)),
		movements:    append([]inventory.StockMovement(nil), s.movements...),
		reservations: make(map[uuid.UUID]inventory.Reservation, len(s.reservations)),
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	return c
}

// memStore serializes transactions and applies their writes only on success
type memStore struct {
	txMu   sync.Mutex
	dataMu sync.Mutex
	state  *memState

	failMu    sync.Mutex
	failNext  []error
	execCount int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		records:      make(map[inventory.StockKey]inventory.InventoryRecord),
		reservations: make(map[uuid.UUID]inventory.Reservation),
	}}
}

// failTransactions makes the next Execute calls fail with errs before running fn
func (m *memStore) failTransactions(errs ...error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.failNext = append(m.failNext, errs...)
}

func (m *memStore) executions() int {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	return m.execCount
}

func (m *memStore) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.failMu.Lock()
	m.execCount++
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		m.failMu.Unlock()
		return err
	}
	m.failMu.Unlock()

	m.dataMu.Lock()
	working := m.state.clone()
	m.dataMu.Unlock()

	if err := fn(&memTx{state: working}); err != nil {
		return err
	}

	m.dataMu.Lock()
	m.state = working
	m.dataMu.Unlock()
	return nil
}

// view runs fn against the committed state
func (m *memStore) view(fn func(s *memState)) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	fn(m.state)
}

func (m *memStore) seed(key inventory.StockKey, onHand int64) {
	record, err := inventory.NewInventoryRecord(key.ProductID, key.BranchID)
	if err != nil {
		panic(err)
	}
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	if onHand != 0 {
		movement, err := record.ApplyMovement(onHand, inventory.MovementTypeReceipt, "opening", "seed")
		if err != nil {
			panic(err)
		}
		m.state.movements = append(m.state.movements, *movement)
	}
	record.ClearDomainEvents()
	m.state.records[key] = *record
}

func (m *memStore) record(key inventory.StockKey) inventory.InventoryRecord {
	var r inventory.InventoryRecord
	m.view(func(s *memState) { r = s.records[key] })
	return r
}

func (m *memStore) movementsFor(key inventory.StockKey) []inventory.StockMovement {
	var out []inventory.StockMovement
	m.view(func(s *memState) {
		for _, mv := range s.movements {
			if mv.Key() == key {
				out = append(out, mv)
			}
		}
	})
	return out
}

func (m *memStore) reservation(id uuid.UUID) inventory.Reservation {
	var r inventory.Reservation
	m.view(func(s *memState) { r = s.reservations[id] })
	return r
}

// Non-transactional repositories reading committed state
func (m *memStore) Records() inventory.InventoryRecordRepository {
	return &memRecordRepo{store: m}
}

func (m *memStore) Movements() inventory.StockMovementRepository {
	return &memMovementRepo{store: m}
}

func (m *memStore) Reservations() inventory.ReservationRepository {
	return &memReservationRepo{store: m}
}

type memTx struct {
	state *memState
}

func (t *memTx) RecordRepo() inventory.InventoryRecordRepository {
	return &memRecordRepo{state: t.state}
}

func (t *memTx) MovementRepo() inventory.StockMovementRepository {
	return &memMovementRepo{state: t.state}
}

func (t *memTx) ReservationRepo() inventory.ReservationRepository {
	return &memReservationRepo{state: t.state}
}

// with runs fn on the transaction state or, outside a transaction, on the committed state
func with(store *memStore, state *memState, fn func(s *memState)) {
	if state != nil {
		fn(state)
		return
	}
	store.view(fn)
}

type memRecordRepo struct {
	store *memStore
	state *memState
}

func (r *memRecordRepo) find(key inventory.StockKey) (*inventory.InventoryRecord, error) {
	var (
		rec inventory.InventoryRecord
		ok  bool
	)
	with(r.store, r.state, func(s *memState) { rec, ok = s.records[key] })
	if !ok {
		return nil, shared.ErrNotFound
	}
	rec.ClearDomainEvents()
	return &rec, nil
}

func (r *memRecordRepo) FindByKey(_ context.Context, key inventory.StockKey) (*inventory.InventoryRecord, error) {
	return r.find(key)
}

func (r *memRecordRepo) FindByKeyForUpdate(_ context.Context, key inventory.StockKey) (*inventory.InventoryRecord, error) {
	return r.find(key)
}

func (r *memRecordRepo) list(match func(inventory.InventoryRecord) bool, filter shared.Filter) []inventory.InventoryRecord {
	var all []inventory.InventoryRecord
	with(r.store, r.state, func(s *memState) {
		for _, rec := range s.records {
			if match(rec) {
				all = append(all, rec)
			}
		}
	})
	sort.Slice(all, func(i, j int) bool { return all[i].Key().Less(all[j].Key()) })
	filter = filter.Normalize()
	start := filter.Offset()
	if start >= len(all) {
		return nil
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (r *memRecordRepo) FindByBranch(_ context.Context, branchID uuid.UUID, filter shared.Filter) ([]inventory.InventoryRecord, error) {
	return r.list(func(rec inventory.InventoryRecord) bool { return rec.BranchID == branchID }, filter), nil
}

func (r *memRecordRepo) FindAll(_ context.Context, filter shared.Filter) ([]inventory.InventoryRecord, error) {
	return r.list(func(inventory.InventoryRecord) bool { return true }, filter), nil
}

func (r *memRecordRepo) EnsureExists(_ context.Context, key inventory.StockKey) (bool, error) {
	created := false
	with(r.store, r.state, func(s *memState) {
		if _, ok := s.records[key]; ok {
			return
		}
		rec, _ := inventory.NewInventoryRecord(key.ProductID, key.BranchID)
		rec.ClearDomainEvents()
		s.records[key] = *rec
		created = true
	})
	return created, nil
}

func (r *memRecordRepo) Save(_ context.Context, record *inventory.InventoryRecord) error {
	var err error
	with(r.store, r.state, func(s *memState) {
		stored, ok := s.records[record.Key()]
		if !ok {
			err = shared.ErrNotFound
			return
		}
		if stored.Version != record.Version-1 {
			err = shared.ErrConcurrencyConflict
			return
		}
		saved := *record
		saved.ClearDomainEvents()
		s.records[record.Key()] = saved
	})
	return err
}

type memMovementRepo struct {
	store *memStore
	state *memState
}

func (r *memMovementRepo) Create(_ context.Context, movement *inventory.StockMovement) error {
	with(r.store, r.state, func(s *memState) { s.movements = append(s.movements, *movement) })
	return nil
}

func (r *memMovementRepo) FindByKey(_ context.Context, key inventory.StockKey, filter shared.Filter) ([]inventory.StockMovement, error) {
	var out []inventory.StockMovement
	with(r.store, r.state, func(s *memState) {
		for i := len(s.movements) - 1; i >= 0; i-- {
			if s.movements[i].Key() == key {
				out = append(out, s.movements[i])
			}
		}
	})
	filter = filter.Normalize()
	start := filter.Offset()
	if start >= len(out) {
		return nil, nil
	}
	end := start + filter.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (r *memMovementRepo) CountByKey(_ context.Context, key inventory.StockKey) (int64, error) {
	var n int64
	with(r.store, r.state, func(s *memState) {
		for _, mv := range s.movements {
			if mv.Key() == key {
				n++
			}
		}
	})
	return n, nil
}

func (r *memMovementRepo) SumByKeys(_ context.Context, keys []inventory.StockKey) (map[inventory.StockKey]int64, error) {
	wanted := make(map[inventory.StockKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	sums := make(map[inventory.StockKey]int64)
	with(r.store, r.state, func(s *memState) {
		for _, mv := range s.movements {
			if wanted[mv.Key()] {
				sums[mv.Key()] += mv.QuantityDelta
			}
		}
	})
	return sums, nil
}

type memReservationRepo struct {
	store *memStore
	state *memState
}

func (r *memReservationRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.Reservation, error) {
	var (
		res inventory.Reservation
		ok  bool
	)
	with(r.store, r.state, func(s *memState) { res, ok = s.reservations[id] })
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &res, nil
}

func (r *memReservationRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Reservation, error) {
	return r.FindByID(ctx, id)
}

func (r *memReservationRepo) FindDue(_ context.Context, now time.Time, limit int) ([]inventory.Reservation, error) {
	var out []inventory.Reservation
	with(r.store, r.state, func(s *memState) {
		for _, res := range s.reservations {
			if res.IsDue(now) {
				out = append(out, res)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memReservationRepo) FindActiveByKey(_ context.Context, key inventory.StockKey) ([]inventory.Reservation, error) {
	var out []inventory.Reservation
	with(r.store, r.state, func(s *memState) {
		for _, res := range s.reservations {
			if res.IsActive() && res.Key() == key {
				out = append(out, res)
			}
		}
	})
	return out, nil
}

func (r *memReservationRepo) Create(_ context.Context, reservation *inventory.Reservation) error {
	with(r.store, r.state, func(s *memState) { s.reservations[reservation.ID] = *reservation })
	return nil
}

func (r *memReservationRepo) Save(ctx context.Context, reservation *inventory.Reservation) error {
	return r.Create(ctx, reservation)
}

// recordingPublisher collects published events and dispatches them
// synchronously to subscribed handlers, like the in-memory bus
type recordingPublisher struct {
	mu       sync.Mutex
	events   []shared.DomainEvent
	handlers []shared.EventHandler
}

func (p *recordingPublisher) subscribe(h shared.EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	p.events = append(p.events, events...)
	handlers := append([]shared.EventHandler(nil), p.handlers...)
	p.mu.Unlock()

	for _, e := range events {
		for _, h := range handlers {
			for _, t := range h.EventTypes() {
				if t == e.EventType() {
					_ = h.Handle(ctx, e)
				}
			}
		}
	}
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// MockProductCatalog is a mock implementation of inventory.ProductCatalog
type MockProductCatalog struct {
	mock.Mock
}

func (m *MockProductCatalog) GetProduct(ctx context.Context, productID uuid.UUID) (*inventory.ProductInfo, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.ProductInfo), args.Error(1)
}

func (m *MockProductCatalog) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.ProductInfo, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]inventory.ProductInfo), args.Error(1)
}

func (m *MockProductCatalog) ListActiveProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockBranchDirectory is a mock implementation of inventory.BranchDirectory
type MockBranchDirectory struct {
	mock.Mock
}

func (m *MockBranchDirectory) IsActive(ctx context.Context, branchID uuid.UUID) (bool, error) {
	args := m.Called(ctx, branchID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBranchDirectory) ListActiveBranchIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// memLowStockState is a LowStockStateStore over a map
type memLowStockState struct {
	mu    sync.Mutex
	armed map[inventory.StockKey]bool
}

func newMemLowStockState() *memLowStockState {
	return &memLowStockState{armed: make(map[inventory.StockKey]bool)}
}

func (s *memLowStockState) Arm(_ context.Context, key inventory.StockKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed[key] {
		return false, nil
	}
	s.armed[key] = true
	return true, nil
}

func (s *memLowStockState) Disarm(_ context.Context, key inventory.StockKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.armed, key)
	return nil
}

func (s *memLowStockState) isArmed(key inventory.StockKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed[key]
}

var (
	_ TransactionScope                    = (*memStore)(nil)
	_ inventory.InventoryRecordRepository = (*memRecordRepo)(nil)
	_ inventory.StockMovementRepository   = (*memMovementRepo)(nil)
	_ inventory.ReservationRepository     = (*memReservationRepo)(nil)
	_ inventory.ProductCatalog            = (*MockProductCatalog)(nil)
	_ inventory.BranchDirectory           = (*MockBranchDirectory)(nil)
	_ inventory.LowStockStateStore        = (*memLowStockState)(nil)
)
