package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/venturetrips/venture-backend/pkg/db/types"
)

// Tour is the read model the booking flow consults. Rows are owned by the
// catalog service; this service only reads them.
type Tour struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Title             string            `gorm:"column:title;not null"`
	Capacity          int               `gorm:"column:capacity;not null"`
	PricePerSeatCents int64             `gorm:"column:price_per_seat_cents;not null"`
	Currency          string            `gorm:"column:currency;not null"`
	FreeAgeThreshold  int               `gorm:"column:free_age_threshold;not null;default:0"`
	DurationMinutes   int               `gorm:"column:duration_minutes;not null"`
	CommissionBPS     *int              `gorm:"column:commission_bps"`
	GuideIDs          dbtypes.UUIDArray `gorm:"column:guide_ids;type:uuid[]"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
