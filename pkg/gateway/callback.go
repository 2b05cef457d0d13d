package gateway

// Callback statuses reported by the gateway.
const (
	CallbackStatusPaid   = "paid"
	CallbackStatusFailed = "failed"
)

// CallbackPayload is the gateway's settlement report for one session. The
// signature covers the ordered SignedFields subset of this payload.
type CallbackPayload struct {
	Reference   string `json:"reference" validate:"required"`
	BookingID   string `json:"booking_id" validate:"required,uuid"`
	Status      string `json:"status" validate:"required,oneof=paid failed"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required"`
	Signature   string `json:"signature" validate:"required"`
}

// SignedFields extracts the authenticated subset of the payload.
func (p CallbackPayload) SignedFields() SignedFields {
	return SignedFields{
		Reference:   p.Reference,
		BookingID:   p.BookingID,
		Status:      p.Status,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
	}
}
