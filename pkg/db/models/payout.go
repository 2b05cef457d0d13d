package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/venturetrips/venture-backend/pkg/db/types"
	"github.com/venturetrips/venture-backend/pkg/enums"
)

// Payout is one settlement row per (tour, occurrence date, guide). Paid rows
// are immutable; pending and failed rows are updated in place on recompute.
type Payout struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TourID         uuid.UUID `gorm:"column:tour_id;type:uuid;not null;uniqueIndex:ux_payouts_tour_occurrence_guide"`
	OccurrenceDate time.Time `gorm:"column:occurrence_date;not null;uniqueIndex:ux_payouts_tour_occurrence_guide"`
	GuideID        uuid.UUID `gorm:"column:guide_id;type:uuid;not null;uniqueIndex:ux_payouts_tour_occurrence_guide"`

	BaseAmountCents   int64             `gorm:"column:base_amount_cents;not null"`
	Percentage        decimal.Decimal   `gorm:"column:percentage;type:numeric(6,4);not null"`
	PayoutAmountCents int64             `gorm:"column:payout_amount_cents;not null"`
	BookingIDs        dbtypes.UUIDArray `gorm:"column:booking_ids;type:uuid[]"`

	Status    enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;index"`
	Reference string             `gorm:"column:reference;not null;unique"`
	Currency  string             `gorm:"column:currency;not null"`

	PaidAt *time.Time `gorm:"column:paid_at"`
	PaidBy *uuid.UUID `gorm:"column:paid_by;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
