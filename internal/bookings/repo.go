package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	"github.com/venturetrips/venture-backend/pkg/pagination"
)

// Repository manages persistence for booking aggregates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Booking, error)
	ListByGuide(ctx context.Context, guideID uuid.UUID, statuses []enums.BookingStatus, params pagination.Params) ([]models.Booking, error)
	ListPaymentExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	ListApprovalExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
	ListEndedPaid(ctx context.Context, endedBefore, endedAfter time.Time, limit int) ([]models.Booking, error)
	ListSettledForOccurrenceDate(ctx context.Context, tourID uuid.UUID, from, to time.Time) ([]models.Booking, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Preload("Participants").
		First(&booking, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate locks the booking row for the rest of the transaction so
// concurrent transitions serialize.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	q := r.db.WithContext(ctx)
	// sqlite has no FOR UPDATE; its single-writer transaction covers the
	// same window.
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var booking models.Booking
	if err := q.First(&booking, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Booking, error) {
	q := r.db.WithContext(ctx).
		Preload("Participants").
		Where("customer_id = ?", customerID)
	return r.listPage(ctx, q, params)
}

func (r *repository) ListByGuide(ctx context.Context, guideID uuid.UUID, statuses []enums.BookingStatus, params pagination.Params) ([]models.Booking, error) {
	q := r.db.WithContext(ctx).
		Preload("Participants").
		Where("intended_guide_id = ?", guideID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	return r.listPage(ctx, q, params)
}

func (r *repository) listPage(ctx context.Context, q *gorm.DB, params pagination.Params) ([]models.Booking, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var bookings []models.Booking
	err = q.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) ListPaymentExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_due_at IS NOT NULL AND payment_due_at <= ?",
			enums.BookingStatusAwaitingPayment, cutoff.UTC()).
		Order("payment_due_at ASC").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) ListApprovalExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND guide_decision = ? AND guide_approval_due_at IS NOT NULL AND guide_approval_due_at <= ?",
			enums.BookingStatusWaitingGuide, enums.GuideDecisionPending, cutoff.UTC()).
		Order("guide_approval_due_at ASC").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) ListEndedPaid(ctx context.Context, endedBefore, endedAfter time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND occurrence_end <= ? AND occurrence_end >= ?",
			enums.BookingStatusPaid, endedBefore.UTC(), endedAfter.UTC()).
		Order("occurrence_end ASC").
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListSettledForOccurrenceDate returns paid/completed bookings whose
// occurrence starts within [from, to). Payout revenue is computed from these.
func (r *repository) ListSettledForOccurrenceDate(ctx context.Context, tourID uuid.UUID, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("tour_id = ? AND occurrence_start >= ? AND occurrence_start < ? AND status IN ?",
			tourID, from.UTC(), to.UTC(),
			[]enums.BookingStatus{enums.BookingStatusPaid, enums.BookingStatusCompleted}).
		Order("created_at ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// IsNotFound reports whether err is the gorm missing-record sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
