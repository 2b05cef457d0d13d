package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/pkg/enums"
)

// Transaction is one append-only ledger row per monetary event. The unique
// index over (booking_id, type, code) is the idempotency key for gateway
// callbacks: at most one confirmed row per pair may exist.
type Transaction struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	BookingID *uuid.UUID            `gorm:"column:booking_id;type:uuid;uniqueIndex:ux_transactions_booking_type_code"`
	PayoutID  *uuid.UUID            `gorm:"column:payout_id;type:uuid;index"`
	Type      enums.TransactionType `gorm:"column:type;type:transaction_type;not null;uniqueIndex:ux_transactions_booking_type_code"`
	Code      string                `gorm:"column:code;not null;uniqueIndex:ux_transactions_booking_type_code"`

	Status  enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;index"`
	Gateway string                  `gorm:"column:gateway"`

	PayerID *uuid.UUID `gorm:"column:payer_id;type:uuid"`
	PayeeID *uuid.UUID `gorm:"column:payee_id;type:uuid"`
	ActorID *uuid.UUID `gorm:"column:actor_id;type:uuid"`

	AmountCents     int64  `gorm:"column:amount_cents;not null"`
	CommissionCents int64  `gorm:"column:commission_cents;not null;default:0"`
	NetCents        int64  `gorm:"column:net_cents;not null"`
	Currency        string `gorm:"column:currency;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
