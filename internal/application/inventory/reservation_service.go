package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reservation defaults
const (
	DefaultReservationTTL    = 15 * time.Minute
	DefaultMaxReservationTTL = 2 * time.Hour
	DefaultSweepBatchSize    = 100
)

// ReservationConfig tunes reservation lifetimes
type ReservationConfig struct {
	DefaultTTL     time.Duration
	MaxTTL         time.Duration
	SweepBatchSize int
}

// ReservationService holds stock for in-progress checkouts.
// Check-and-reserve runs under the record's row lock, so concurrent
// reservations on one key never exceed what is available.
type ReservationService struct {
	scope           TransactionScope
	reservationRepo inventory.ReservationRepository
	eventPublisher  shared.EventPublisher
	cfg             ReservationConfig
	retry           RetryPolicy
	healer          RecordHealer
	logger          *zap.Logger
	now             func() time.Time
}

// NewReservationService creates a new ReservationService
func NewReservationService(
	scope TransactionScope,
	reservationRepo inventory.ReservationRepository,
	cfg ReservationConfig,
	logger *zap.Logger,
) *ReservationService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultReservationTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = DefaultMaxReservationTTL
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = DefaultSweepBatchSize
	}
	return &ReservationService{
		scope:           scope,
		reservationRepo: reservationRepo,
		cfg:             cfg,
		retry:           DefaultRetryPolicy(),
		logger:          logger,
		now:             time.Now,
	}
}

// SetEventPublisher sets the publisher that receives committed changes
func (s *ReservationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetRetryPolicy overrides the transient-error retry policy
func (s *ReservationService) SetRetryPolicy(policy RetryPolicy) {
	s.retry = policy
}

// SetRecordHealer lets Reserve create a missing record for an associable pair
func (s *ReservationService) SetRecordHealer(healer RecordHealer) {
	s.healer = healer
}

// Reserve holds quantity for ttl. It fails with INSUFFICIENT_AVAILABILITY,
// a declined reservation, when available is below the requested quantity.
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (*ReservationResponse, error) {
	ttl := s.cfg.DefaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	if ttl > s.cfg.MaxTTL {
		return nil, shared.NewDomainError("INVALID_TTL", "Reservation TTL exceeds the allowed maximum of "+s.cfg.MaxTTL.String())
	}
	key, err := inventory.NewStockKey(req.ProductID, req.BranchID)
	if err != nil {
		return nil, err
	}
	reservation, err := inventory.NewReservation(key, req.Quantity, ttl, req.Reference)
	if err != nil {
		return nil, err
	}

	var events []shared.DomainEvent
	err = healAndRetry(ctx, s.healer, key)(func() error {
		return s.retry.Mutate(ctx, s.logger, "reserve", func() error {
			events = nil
			return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
				record, err := repos.RecordRepo().FindByKeyForUpdate(ctx, key)
				if err != nil {
					return err
				}
				if err := record.Reserve(req.Quantity); err != nil {
					return err
				}
				if err := repos.ReservationRepo().Create(ctx, reservation); err != nil {
					return err
				}
				if err := repos.RecordRepo().Save(ctx, record); err != nil {
					return err
				}
				events = record.GetDomainEvents()
				return nil
			})
		})
	})
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientAvailability) {
			s.logger.Info("Reservation declined",
				zap.String("product_id", req.ProductID.String()),
				zap.String("branch_id", req.BranchID.String()),
				zap.Int64("quantity", req.Quantity),
			)
		}
		return nil, err
	}

	s.publish(ctx, events)
	response := ToReservationResponse(reservation)
	return &response, nil
}

// Commit consumes an active reservation as a sale (or transfer_out) movement.
// The reservation transition and the ledger entry commit together. A
// reservation found past its expiry is expired instead and RESERVATION_EXPIRED
// is returned.
func (s *ReservationService) Commit(ctx context.Context, reservationID uuid.UUID, req CommitRequest) (*CommitResponse, error) {
	movementType := inventory.MovementTypeSale
	if req.MovementType != "" {
		parsed, err := inventory.ParseMovementType(req.MovementType)
		if err != nil {
			return nil, err
		}
		movementType = parsed
	}
	if !movementType.IsOutbound() {
		return nil, shared.NewDomainError("INVALID_MOVEMENT_TYPE", "A reservation can only be committed as sale or transfer_out")
	}

	var (
		response CommitResponse
		events   []shared.DomainEvent
		lapsed   bool
	)
	err := s.retry.Mutate(ctx, s.logger, "commit_reservation", func() error {
		events, lapsed = nil, false
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			reservation, err := repos.ReservationRepo().FindByIDForUpdate(ctx, reservationID)
			if err != nil {
				return err
			}
			now := s.now()

			if reservation.IsDue(now) {
				expired, err := s.expireLocked(ctx, repos, reservation, now)
				if err != nil {
					return err
				}
				events, lapsed = expired, true
				return nil
			}
			if !reservation.IsActive() {
				return reservation.Commit(uuid.Nil, req.Reference, now)
			}

			record, err := repos.RecordRepo().FindByKeyForUpdate(ctx, reservation.Key())
			if err != nil {
				return err
			}
			reference := req.Reference
			if reference == "" {
				reference = reservation.Reference
			}
			movement, err := record.ConsumeReserved(reservation.Quantity, movementType, reference, req.Actor)
			if err != nil {
				return err
			}
			if err := reservation.Commit(movement.ID, reference, now); err != nil {
				return err
			}
			if err := repos.MovementRepo().Create(ctx, movement); err != nil {
				return err
			}
			if err := repos.RecordRepo().Save(ctx, record); err != nil {
				return err
			}
			if err := repos.ReservationRepo().Save(ctx, reservation); err != nil {
				return err
			}

			response = CommitResponse{
				Reservation: ToReservationResponse(reservation),
				Movement:    ToMovementResponse(movement),
			}
			events = record.GetDomainEvents()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	if lapsed {
		return nil, shared.NewDomainError("RESERVATION_EXPIRED", "Reservation "+reservationID.String()+" has expired")
	}
	return &response, nil
}

// Release returns an active reservation's quantity to the available pool.
// Releasing a reservation that is already closed is a no-op.
func (s *ReservationService) Release(ctx context.Context, reservationID uuid.UUID) (*ReservationResponse, error) {
	var (
		response ReservationResponse
		events   []shared.DomainEvent
	)
	err := s.retry.Mutate(ctx, s.logger, "release_reservation", func() error {
		events = nil
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			reservation, err := repos.ReservationRepo().FindByIDForUpdate(ctx, reservationID)
			if err != nil {
				return err
			}
			now := s.now()

			switch {
			case !reservation.IsActive():
			case reservation.IsDue(now):
				if events, err = s.expireLocked(ctx, repos, reservation, now); err != nil {
					return err
				}
			default:
				if events, err = s.releaseLocked(ctx, repos, reservation, now); err != nil {
					return err
				}
			}

			response = ToReservationResponse(reservation)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events)
	return &response, nil
}

// GetReservation returns a reservation, expiring it first if it is past due
func (s *ReservationService) GetReservation(ctx context.Context, reservationID uuid.UUID) (*ReservationResponse, error) {
	var reservation *inventory.Reservation
	err := s.retry.Read(ctx, s.logger, "get_reservation", func() error {
		var err error
		reservation, err = s.reservationRepo.FindByID(ctx, reservationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if reservation.IsDue(s.now()) {
		if _, err := s.expireOne(ctx, reservationID); err != nil {
			return nil, err
		}
		if reservation, err = s.reservationRepo.FindByID(ctx, reservationID); err != nil {
			return nil, err
		}
	}

	response := ToReservationResponse(reservation)
	return &response, nil
}

// ExpireDue expires one batch of active reservations past their expiry.
// Each reservation is expired in its own transaction; a reservation that was
// committed or released in the meantime is skipped.
func (s *ReservationService) ExpireDue(ctx context.Context) (*ExpirySweepStats, error) {
	stats := &ExpirySweepStats{ProcessedAt: s.now()}

	var due []inventory.Reservation
	err := s.retry.Read(ctx, s.logger, "find_due_reservations", func() error {
		var err error
		due, err = s.reservationRepo.FindDue(ctx, stats.ProcessedAt, s.cfg.SweepBatchSize)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to find due reservations", zap.Error(err))
		return nil, err
	}
	stats.Found = len(due)
	if stats.Found == 0 {
		return stats, nil
	}
	s.logger.Info("Found due reservations", zap.Int("count", stats.Found))

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		expired, err := s.expireOne(ctx, due[i].ID)
		switch {
		case err != nil:
			stats.Failed++
			s.logger.Error("Failed to expire reservation",
				zap.String("reservation_id", due[i].ID.String()),
				zap.Error(err),
			)
		case expired:
			stats.Expired++
		default:
			stats.Skipped++
		}
	}

	s.logger.Info("Reservation expiry sweep completed",
		zap.Int("expired", stats.Expired),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// expireOne expires a single reservation if it is still active and due
func (s *ReservationService) expireOne(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	var (
		events  []shared.DomainEvent
		expired bool
	)
	err := s.retry.Mutate(ctx, s.logger, "expire_reservation", func() error {
		events, expired = nil, false
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			reservation, err := repos.ReservationRepo().FindByIDForUpdate(ctx, reservationID)
			if err != nil {
				return err
			}
			now := s.now()
			if !reservation.IsDue(now) {
				return nil
			}
			if events, err = s.expireLocked(ctx, repos, reservation, now); err != nil {
				return err
			}
			expired = true
			return nil
		})
	})
	if err != nil {
		return false, err
	}

	s.publish(ctx, events)
	return expired, nil
}

// expireLocked marks a locked reservation expired and frees its quantity
func (s *ReservationService) expireLocked(ctx context.Context, repos TransactionalRepositories, reservation *inventory.Reservation, now time.Time) ([]shared.DomainEvent, error) {
	events, err := s.freeLocked(ctx, repos, reservation, func() bool { return reservation.Expire(now) })
	if err != nil {
		return nil, err
	}
	s.logger.Info("Reservation expired",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("product_id", reservation.ProductID.String()),
		zap.String("branch_id", reservation.BranchID.String()),
		zap.Int64("quantity", reservation.Quantity),
	)
	return append(events, inventory.NewReservationExpiredEvent(reservation)), nil
}

// releaseLocked marks a locked reservation released and frees its quantity
func (s *ReservationService) releaseLocked(ctx context.Context, repos TransactionalRepositories, reservation *inventory.Reservation, now time.Time) ([]shared.DomainEvent, error) {
	return s.freeLocked(ctx, repos, reservation, func() bool { return reservation.Release(now) })
}

func (s *ReservationService) freeLocked(ctx context.Context, repos TransactionalRepositories, reservation *inventory.Reservation, transition func() bool) ([]shared.DomainEvent, error) {
	if !transition() {
		return nil, nil
	}
	record, err := repos.RecordRepo().FindByKeyForUpdate(ctx, reservation.Key())
	if err != nil {
		return nil, err
	}
	if err := record.ReleaseReserved(reservation.Quantity); err != nil {
		return nil, err
	}
	if err := repos.RecordRepo().Save(ctx, record); err != nil {
		return nil, err
	}
	if err := repos.ReservationRepo().Save(ctx, reservation); err != nil {
		return nil, err
	}
	return record.GetDomainEvents(), nil
}

// publish hands committed events to the event bus
func (s *ReservationService) publish(ctx context.Context, events []shared.DomainEvent) {
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	// Errors are logged by the event bus, not propagated
	_ = s.eventPublisher.Publish(ctx, events...)
}
