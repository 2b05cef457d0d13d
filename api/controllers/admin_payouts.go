package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/api/responses"
	"github.com/venturetrips/venture-backend/api/validators"
	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/internal/payouts"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/logger"
	"github.com/venturetrips/venture-backend/pkg/pagination"
)

// AdminPayoutPreview reports per-guide revenue and eligibility for one tour
// occurrence without writing anything.
func AdminPayoutPreview(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		tourID, occurrenceDate, err := occurrenceQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.PreviewOccurrence(r.Context(), tourID, occurrenceDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPreviewResponse(preview))
	}
}

type runPayoutsRequest struct {
	TourID         uuid.UUID `json:"tour_id" validate:"required,uuid4"`
	OccurrenceDate string    `json:"occurrence_date" validate:"required,datetime=2006-01-02"`
	Force          bool      `json:"force"`
}

// AdminRunPayouts materializes payout rows for one occurrence.
func AdminRunPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload runPayoutsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		occurrenceDate, err := time.Parse("2006-01-02", payload.OccurrenceDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid occurrence date"))
			return
		}

		created, err := svc.CreatePayoutsForOccurrence(r.Context(), payload.TourID, occurrenceDate, payload.Force, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]payoutResponse, 0, len(created))
		for i := range created {
			out = append(out, newPayoutResponse(&created[i]))
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"payouts": out})
	}
}

// AdminMarkPayoutPaid flips a payout to paid and posts the ledger row.
func AdminMarkPayoutPaid(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payoutID, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.MarkPaid(r.Context(), payoutID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// AdminListPayouts pages payout rows filtered by status and tour.
func AdminListPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := payouts.ListFilter{}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, parseErr := enums.ParsePayoutStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter"))
				return
			}
			filter.Status = &status
		}
		tourID, err := validators.ParseQueryUUID(r, "tour_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.TourID = tourID

		items, cursor, err := svc.List(r.Context(), filter, pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]payoutResponse, 0, len(items))
		for i := range items {
			out = append(out, newPayoutResponse(&items[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"payouts":     out,
			"next_cursor": cursor,
		})
	}
}

// AdminCancelBooking runs the admin cancellation path, which confirms the
// refund immediately for paid bookings.
func AdminCancelBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
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

func occurrenceQuery(r *http.Request) (uuid.UUID, time.Time, error) {
	tourID, err := validators.ParseQueryUUID(r, "tour_id")
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	if tourID == nil {
		return uuid.Nil, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "tour_id is required")
	}
	occurrenceDate, err := validators.ParseQueryDate(r, "occurrence_date")
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}
	if occurrenceDate == nil {
		return uuid.Nil, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "occurrence_date is required")
	}
	return *tourID, *occurrenceDate, nil
}

type guideRevenueResponse struct {
	GuideID         uuid.UUID   `json:"guide_id"`
	BaseAmountCents int64       `json:"base_amount_cents"`
	BookingIDs      []uuid.UUID `json:"booking_ids"`
	Currency        string      `json:"currency"`
}

type previewResponse struct {
	TourID         uuid.UUID              `json:"tour_id"`
	OccurrenceDate time.Time              `json:"occurrence_date"`
	OccurrenceEnd  time.Time              `json:"occurrence_end"`
	EligibleAt     time.Time              `json:"eligible_at"`
	Eligible       bool                   `json:"eligible"`
	Guides         []guideRevenueResponse `json:"guides"`
}

func newPreviewResponse(preview *payouts.OccurrencePreview) previewResponse {
	if preview == nil {
		return previewResponse{}
	}
	guides := make([]guideRevenueResponse, 0, len(preview.Guides))
	for _, g := range preview.Guides {
		guides = append(guides, guideRevenueResponse{
			GuideID:         g.GuideID,
			BaseAmountCents: g.BaseAmountCents,
			BookingIDs:      []uuid.UUID(g.BookingIDs),
			Currency:        g.Currency,
		})
	}
	return previewResponse{
		TourID:         preview.TourID,
		OccurrenceDate: preview.OccurrenceDate,
		OccurrenceEnd:  preview.OccurrenceEnd,
		EligibleAt:     preview.EligibleAt,
		Eligible:       preview.Eligible,
		Guides:         guides,
	}
}

type payoutResponse struct {
	ID                uuid.UUID   `json:"id"`
	TourID            uuid.UUID   `json:"tour_id"`
	OccurrenceDate    time.Time   `json:"occurrence_date"`
	GuideID           uuid.UUID   `json:"guide_id"`
	BaseAmountCents   int64       `json:"base_amount_cents"`
	Percentage        string      `json:"percentage"`
	PayoutAmountCents int64       `json:"payout_amount_cents"`
	BookingIDs        []uuid.UUID `json:"booking_ids"`
	Status            string      `json:"status"`
	Reference         string      `json:"reference"`
	Currency          string      `json:"currency"`
	PaidAt            *time.Time  `json:"paid_at,omitempty"`
	PaidBy            *uuid.UUID  `json:"paid_by,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

func newPayoutResponse(payout *models.Payout) payoutResponse {
	if payout == nil {
		return payoutResponse{}
	}
	return payoutResponse{
		ID:                payout.ID,
		TourID:            payout.TourID,
		OccurrenceDate:    payout.OccurrenceDate,
		GuideID:           payout.GuideID,
		BaseAmountCents:   payout.BaseAmountCents,
		Percentage:        payout.Percentage.String(),
		PayoutAmountCents: payout.PayoutAmountCents,
		BookingIDs:        []uuid.UUID(payout.BookingIDs),
		Status:            string(payout.Status),
		Reference:         payout.Reference,
		Currency:          payout.Currency,
		PaidAt:            payout.PaidAt,
		PaidBy:            payout.PaidBy,
		CreatedAt:         payout.CreatedAt,
	}
}
