package notifications

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/pkg/db"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
)

// PromptsRepository records one-time prompts against the dedup ledger.
type PromptsRepository interface {
	WithTx(tx *gorm.DB) PromptsRepository
	// Record inserts the (booking, kind) pair. It returns false when the
	// pair was already recorded, which makes repeat emits no-ops.
	Record(ctx context.Context, bookingID uuid.UUID, kind enums.NotificationKind) (bool, error)
	Exists(ctx context.Context, bookingID uuid.UUID, kind enums.NotificationKind) (bool, error)
}

type promptsRepository struct {
	db *gorm.DB
}

// NewPromptsRepository returns a prompts repository bound to the provided database.
func NewPromptsRepository(db *gorm.DB) PromptsRepository {
	return &promptsRepository{db: db}
}

func (r *promptsRepository) WithTx(tx *gorm.DB) PromptsRepository {
	if tx == nil {
		return r
	}
	return &promptsRepository{db: tx}
}

func (r *promptsRepository) Record(ctx context.Context, bookingID uuid.UUID, kind enums.NotificationKind) (bool, error) {
	row := &models.Notification{
		ID:        uuid.New(),
		BookingID: bookingID,
		Kind:      kind,
	}
	err := r.db.WithContext(ctx).Create(row).Error
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *promptsRepository) Exists(ctx context.Context, bookingID uuid.UUID, kind enums.NotificationKind) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("booking_id = ? AND kind = ?", bookingID, kind).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
