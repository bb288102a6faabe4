package persistence

import (
	"context"
	"time"

	"github.com/erp/inventory/internal/domain/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReservationRepository implements ReservationRepository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// FindByID finds a reservation
func (r *GormReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Reservation, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds a reservation and locks its row
func (r *GormReservationRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Reservation, error) {
	return r.findByID(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormReservationRepository) findByID(db *gorm.DB, id uuid.UUID) (*inventory.Reservation, error) {
	var model models.ReservationModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		return nil, classifyError("find reservation", err)
	}
	return model.ToDomain(), nil
}

// FindDue lists active reservations whose expiry has passed, oldest first
func (r *GormReservationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]inventory.Reservation, error) {
	var rows []models.ReservationModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(inventory.ReservationStatusActive), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, classifyError("find due reservations", err)
	}
	return toReservations(rows), nil
}

// FindActiveByKey lists active reservations holding stock on a record
func (r *GormReservationRepository) FindActiveByKey(ctx context.Context, key inventory.StockKey) ([]inventory.Reservation, error) {
	var rows []models.ReservationModel
	if err := r.db.WithContext(ctx).
		Where("branch_id = ? AND product_id = ? AND status = ?", key.BranchID, key.ProductID, string(inventory.ReservationStatusActive)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, classifyError("find active reservations", err)
	}
	return toReservations(rows), nil
}

// Create inserts a new reservation
func (r *GormReservationRepository) Create(ctx context.Context, reservation *inventory.Reservation) error {
	if err := r.db.WithContext(ctx).Create(models.ReservationModelFromDomain(reservation)).Error; err != nil {
		return classifyError("create reservation", err)
	}
	return nil
}

// Save persists a status transition. Only an active row can transition,
// so a concurrent close is reported as a conflict.
func (r *GormReservationRepository) Save(ctx context.Context, reservation *inventory.Reservation) error {
	result := r.db.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("id = ? AND status = ?", reservation.ID, string(inventory.ReservationStatusActive)).
		Updates(map[string]any{
			"status":      string(reservation.Status),
			"movement_id": reservation.MovementID,
			"closed_at":   reservation.ClosedAt,
		})
	if result.Error != nil {
		return classifyError("save reservation", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func toReservations(rows []models.ReservationModel) []inventory.Reservation {
	out := make([]inventory.Reservation, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormReservationRepository implements ReservationRepository
var _ inventory.ReservationRepository = (*GormReservationRepository)(nil)
