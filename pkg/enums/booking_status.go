package enums

import "fmt"

// BookingStatus tracks the lifecycle of a booking aggregate.
type BookingStatus string

const (
	BookingStatusWaitingGuide    BookingStatus = "waiting_guide"
	BookingStatusAwaitingPayment BookingStatus = "awaiting_payment"
	BookingStatusPaid            BookingStatus = "paid"
	BookingStatusCompleted       BookingStatus = "completed"
	BookingStatusRejected        BookingStatus = "rejected"
	BookingStatusCanceled        BookingStatus = "canceled"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusWaitingGuide,
	BookingStatusAwaitingPayment,
	BookingStatusPaid,
	BookingStatusCompleted,
	BookingStatusRejected,
	BookingStatusCanceled,
}

// SeatHoldingStatuses are the statuses whose participants count against
// occurrence capacity.
var SeatHoldingStatuses = []BookingStatus{
	BookingStatusAwaitingPayment,
	BookingStatusPaid,
	BookingStatusCompleted,
}

// String implements fmt.Stringer.
func (b BookingStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BookingStatus.
func (b BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave the status.
func (b BookingStatus) IsTerminal() bool {
	switch b {
	case BookingStatusCompleted, BookingStatusRejected, BookingStatusCanceled:
		return true
	}
	return false
}

// ParseBookingStatus converts raw input into a BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}
