package enums

import "fmt"

// NotificationKind identifies a one-way event published to the notification
// topic. Kinds also key the dedup ledger for one-time prompts.
type NotificationKind string

const (
	NotificationKindBookingCreated  NotificationKind = "booking_created"
	NotificationKindBookingApproved NotificationKind = "booking_approved"
	NotificationKindBookingRejected NotificationKind = "booking_rejected"
	NotificationKindBookingCanceled NotificationKind = "booking_canceled"
	NotificationKindPaymentSettled  NotificationKind = "payment_settled"
	NotificationKindPaymentFailed   NotificationKind = "payment_failed"
	NotificationKindPayoutPaid      NotificationKind = "payout_paid"
	NotificationKindReviewPrompt    NotificationKind = "review_prompt"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindBookingCreated,
	NotificationKindBookingApproved,
	NotificationKindBookingRejected,
	NotificationKindBookingCanceled,
	NotificationKindPaymentSettled,
	NotificationKindPaymentFailed,
	NotificationKindPayoutPaid,
	NotificationKindReviewPrompt,
}

// String implements fmt.Stringer.
func (n NotificationKind) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationKind.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
