package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/pkg/enums"
)

// Notification is the dedup ledger for one-time prompts. The unique index
// over (booking_id, kind) makes a second emit for the same pair a no-op.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	BookingID uuid.UUID              `gorm:"column:booking_id;type:uuid;not null;uniqueIndex:ux_notifications_booking_kind"`
	Kind      enums.NotificationKind `gorm:"column:kind;type:notification_kind;not null;uniqueIndex:ux_notifications_booking_kind"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
