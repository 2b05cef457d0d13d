package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/api/responses"
	"github.com/venturetrips/venture-backend/api/validators"
	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/logger"
	"github.com/venturetrips/venture-backend/pkg/pagination"
)

type participantRequest struct {
	FullName       string `json:"full_name" validate:"required,min=1,max=120"`
	Age            int    `json:"age" validate:"min=0,max=130"`
	PrimaryContact bool   `json:"primary_contact"`
}

type createBookingRequest struct {
	TourID          uuid.UUID            `json:"tour_id" validate:"required,uuid4"`
	OccurrenceStart time.Time            `json:"occurrence_start" validate:"required"`
	GuideID         *uuid.UUID           `json:"guide_id,omitempty" validate:"omitempty,uuid4"`
	Participants    []participantRequest `json:"participants" validate:"required,min=1,max=20,dive"`
}

type cancelBookingRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type rejectBookingRequest struct {
	Note *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// CreateBooking places a reservation for the authenticated customer.
func CreateBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createBookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		participants := make([]bookings.ParticipantInput, 0, len(payload.Participants))
		for _, p := range payload.Participants {
			participants = append(participants, bookings.ParticipantInput{
				FullName:       validators.SanitizeString(p.FullName, 120),
				Age:            p.Age,
				PrimaryContact: p.PrimaryContact,
			})
		}

		booking, err := svc.Create(r.Context(), bookings.CreateBookingInput{
			TourID:          payload.TourID,
			CustomerID:      actor.UserID,
			OccurrenceStart: payload.OccurrenceStart,
			GuideHint:       payload.GuideID,
			Participants:    participants,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newBookingResponse(booking))
	}
}

// GetBooking returns one booking visible to the actor.
func GetBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Get(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newBookingResponse(booking))
	}
}

// ListBookings pages the actor's own bookings. Guides see bookings routed to
// them and may filter by status; customers see what they placed.
func ListBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}

		var (
			items  []models.Booking
			cursor string
		)
		if actor.Role == enums.UserRoleGuide {
			statuses, parseErr := parseStatusFilter(r)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, parseErr)
				return
			}
			items, cursor, err = svc.ListForGuide(r.Context(), actor.UserID, statuses, params)
		} else {
			items, cursor, err = svc.ListForCustomer(r.Context(), actor.UserID, params)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]bookingResponse, 0, len(items))
		for i := range items {
			out = append(out, newBookingResponse(&items[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"bookings":    out,
			"next_cursor": cursor,
		})
	}
}

// CancelBooking runs the customer cancellation path. For paid bookings the
// owner gets a refund request, not an immediate refund.
func CancelBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelBookingRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Cancel(r.Context(), bookingID, actor, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newBookingResponse(booking))
	}
}

// GuideApproveBooking accepts a pending booking decision.
func GuideApproveBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.GuideApprove(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newBookingResponse(booking))
	}
}

// GuideRejectBooking declines a pending booking decision.
func GuideRejectBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload rejectBookingRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.GuideReject(r.Context(), bookingID, actor, payload.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newBookingResponse(booking))
	}
}

func parseStatusFilter(r *http.Request) ([]enums.BookingStatus, error) {
	raw := r.URL.Query()["status"]
	if len(raw) == 0 {
		return nil, nil
	}
	statuses := make([]enums.BookingStatus, 0, len(raw))
	for _, value := range raw {
		status, err := enums.ParseBookingStatus(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

type participantResponse struct {
	ID                uuid.UUID `json:"id"`
	FullName          string    `json:"full_name"`
	Age               int       `json:"age"`
	PriceAppliedCents int64     `json:"price_applied_cents"`
	CountsSeat        bool      `json:"counts_seat"`
	PrimaryContact    bool      `json:"primary_contact"`
}

type paymentSessionResponse struct {
	Gateway   string     `json:"gateway"`
	Status    string     `json:"status"`
	PayURL    string     `json:"pay_url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type bookingResponse struct {
	ID                 uuid.UUID               `json:"id"`
	TourID             uuid.UUID               `json:"tour_id"`
	CustomerID         uuid.UUID               `json:"customer_id"`
	GuideID            *uuid.UUID              `json:"guide_id,omitempty"`
	Status             string                  `json:"status"`
	GuideDecision      string                  `json:"guide_decision"`
	GuideNote          *string                 `json:"guide_note,omitempty"`
	OccurrenceStart    time.Time               `json:"occurrence_start"`
	OccurrenceEnd      time.Time               `json:"occurrence_end"`
	SeatCount          int                     `json:"seat_count"`
	TotalAmountCents   int64                   `json:"total_amount_cents"`
	Currency           string                  `json:"currency"`
	PaymentDueAt       *time.Time              `json:"payment_due_at,omitempty"`
	GuideApprovalDueAt *time.Time              `json:"guide_approval_due_at,omitempty"`
	CancelRequested    bool                    `json:"cancel_requested"`
	CanceledAt         *time.Time              `json:"canceled_at,omitempty"`
	CancelReason       *string                 `json:"cancel_reason,omitempty"`
	Session            *paymentSessionResponse `json:"payment_session,omitempty"`
	Participants       []participantResponse   `json:"participants"`
	CreatedAt          time.Time               `json:"created_at"`
}

func newBookingResponse(booking *models.Booking) bookingResponse {
	if booking == nil {
		return bookingResponse{}
	}

	participants := make([]participantResponse, 0, len(booking.Participants))
	for _, p := range booking.Participants {
		participants = append(participants, participantResponse{
			ID:                p.ID,
			FullName:          p.FullName,
			Age:               p.Age,
			PriceAppliedCents: p.PriceAppliedCents,
			CountsSeat:        p.CountsSeat,
			PrimaryContact:    p.PrimaryContact,
		})
	}

	resp := bookingResponse{
		ID:                 booking.ID,
		TourID:             booking.TourID,
		CustomerID:         booking.CustomerID,
		GuideID:            booking.IntendedGuideID,
		Status:             string(booking.Status),
		GuideDecision:      string(booking.GuideDecision),
		GuideNote:          booking.GuideNote,
		OccurrenceStart:    booking.OccurrenceStart,
		OccurrenceEnd:      booking.OccurrenceEnd,
		SeatCount:          booking.SeatCount,
		TotalAmountCents:   booking.TotalAmountCents,
		Currency:           booking.Currency,
		PaymentDueAt:       booking.PaymentDueAt,
		GuideApprovalDueAt: booking.GuideApprovalDueAt,
		CancelRequested:    booking.CancelRequested,
		CanceledAt:         booking.CanceledAt,
		CancelReason:       booking.CancelReason,
		Participants:       participants,
		CreatedAt:          booking.CreatedAt,
	}

	if booking.Session.ExternalRef != "" {
		resp.Session = &paymentSessionResponse{
			Gateway:   booking.Session.Gateway,
			Status:    string(booking.Session.Status),
			PayURL:    booking.Session.PayURL,
			ExpiresAt: booking.Session.ExpiresAt,
		}
	}

	return resp
}
