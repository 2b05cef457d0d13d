package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/pkg/enums"
)

// PaymentSession carries the external gateway session embedded on a booking.
// A booking has at most one live session; expired sessions are replaced, never
// edited.
type PaymentSession struct {
	Gateway     string              `gorm:"column:gateway"`
	ExternalRef string              `gorm:"column:external_ref"`
	Status      enums.SessionStatus `gorm:"column:status;type:session_status"`
	PayURL      string              `gorm:"column:pay_url"`
	ExpiresAt   *time.Time          `gorm:"column:expires_at"`
}

// Booking is the aggregate root for a tour reservation. Rows are never
// deleted; the booking is the audit record of the reservation lifecycle.
type Booking struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TourID          uuid.UUID           `gorm:"column:tour_id;type:uuid;not null;index"`
	CustomerID      uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	IntendedGuideID *uuid.UUID          `gorm:"column:intended_guide_id;type:uuid;index"`
	Status          enums.BookingStatus `gorm:"column:status;type:booking_status;not null;index"`
	GuideDecision   enums.GuideDecision `gorm:"column:guide_decision;type:guide_decision;not null"`
	GuideNote       *string             `gorm:"column:guide_note"`

	OccurrenceStart time.Time `gorm:"column:occurrence_start;not null;index"`
	OccurrenceEnd   time.Time `gorm:"column:occurrence_end;not null"`

	// SeatCount is the number of participants that occupy capacity. Free-age
	// participants are priced at zero and excluded from it.
	SeatCount        int    `gorm:"column:seat_count;not null"`
	TotalAmountCents int64  `gorm:"column:total_amount_cents;not null"`
	Currency         string `gorm:"column:currency;not null"`

	PaymentDueAt       *time.Time `gorm:"column:payment_due_at;index"`
	GuideApprovalDueAt *time.Time `gorm:"column:guide_approval_due_at;index"`

	CancelRequested     bool       `gorm:"column:cancel_requested;not null;default:false"`
	RefundTransactionID *uuid.UUID `gorm:"column:refund_transaction_id;type:uuid"`
	CanceledAt          *time.Time `gorm:"column:canceled_at"`
	CanceledBy          *uuid.UUID `gorm:"column:canceled_by;type:uuid"`
	CancelReason        *string    `gorm:"column:cancel_reason"`

	Session PaymentSession `gorm:"embedded;embeddedPrefix:session_"`

	Participants []BookingParticipant `gorm:"foreignKey:BookingID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// BookingParticipant is one person on a booking with the price applied at
// creation time. Exactly one participant per booking is the primary contact.
type BookingParticipant struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	BookingID         uuid.UUID `gorm:"column:booking_id;type:uuid;not null;index"`
	FullName          string    `gorm:"column:full_name;not null"`
	Age               int       `gorm:"column:age;not null"`
	PriceAppliedCents int64     `gorm:"column:price_applied_cents;not null"`
	CountsSeat        bool      `gorm:"column:counts_seat;not null"`
	PrimaryContact    bool      `gorm:"column:primary_contact;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
