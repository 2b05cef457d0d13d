package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/internal/calendar"
	"github.com/venturetrips/venture-backend/internal/ledger"
	"github.com/venturetrips/venture-backend/internal/tours"
	"github.com/venturetrips/venture-backend/pkg/config"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// eventNotifier delivers best-effort booking events. Implementations must not
// fail the calling operation.
type eventNotifier interface {
	BookingEvent(ctx context.Context, kind enums.NotificationKind, booking *models.Booking)
}

// Actor identifies the caller of a transition.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// ParticipantInput is one person on a booking request.
type ParticipantInput struct {
	FullName       string
	Age            int
	PrimaryContact bool
}

// CreateBookingInput captures a customer's reservation request.
type CreateBookingInput struct {
	TourID          uuid.UUID
	CustomerID      uuid.UUID
	OccurrenceStart time.Time
	GuideHint       *uuid.UUID
	Participants    []ParticipantInput
}

// Service owns the booking state machine. Every transition is guarded and
// runs inside a transaction.
type Service interface {
	Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error)
	Get(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.Booking, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Booking, string, error)
	ListForGuide(ctx context.Context, guideID uuid.UUID, statuses []enums.BookingStatus, params pagination.Params) ([]models.Booking, string, error)
	GuideApprove(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.Booking, error)
	GuideReject(ctx context.Context, bookingID uuid.UUID, actor Actor, note *string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, actor Actor, reason *string) (*models.Booking, error)
	ExpirePayment(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error)
	ExpireApproval(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error)
	Complete(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error)
}

// ServiceParams wires the booking service dependencies.
type ServiceParams struct {
	Repo     Repository
	Tours    tours.Repository
	Ledger   ledger.Service
	TxRunner txRunner
	Notifier eventNotifier
	Config   config.BookingConfig
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tours    tours.Repository
	ledger   ledger.Service
	tx       txRunner
	notifier eventNotifier
	cfg      config.BookingConfig
	now      func() time.Time
}

// NewService builds a booking service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bookings repository required")
	}
	if params.Tours == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tours repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tours:    params.Tours,
		ledger:   params.Ledger,
		tx:       params.TxRunner,
		notifier: params.Notifier,
		cfg:      params.Config,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	if input.TourID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tour id is required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	if err := validateParticipants(input.Participants); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !input.OccurrenceStart.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "occurrence start must be in the future")
	}

	var booking *models.Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// The tour row lock serializes concurrent admission for the
		// occurrence until commit.
		tour, err := s.tours.WithTx(tx).FindByIDForUpdate(ctx, input.TourID)
		if err != nil {
			return err
		}

		start := input.OccurrenceStart.UTC()
		end := start.Add(time.Duration(tour.DurationMinutes) * time.Minute)

		participants, seatCount, total := priceParticipants(input.Participants, tour)
		if seatCount == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "at least one participant must occupy a seat")
		}

		remaining, err := calendar.RemainingCapacity(ctx, tx, tour, start)
		if err != nil {
			return err
		}
		if seatCount > remaining {
			return pkgerrors.New(pkgerrors.CodeConflict, "occurrence capacity exceeded").
				WithDetails(map[string]any{"requested": seatCount, "remaining": remaining})
		}

		guideID, err := calendar.ResolveGuide(ctx, tx, tour, start, end, input.GuideHint)
		if err != nil {
			return err
		}

		locked, err := calendar.HasGuideLockedOccurrence(ctx, tx, guideID, tour.ID, start)
		if err != nil {
			return err
		}

		booking = &models.Booking{
			ID:               uuid.New(),
			TourID:           tour.ID,
			CustomerID:       input.CustomerID,
			IntendedGuideID:  &guideID,
			OccurrenceStart:  start,
			OccurrenceEnd:    end,
			SeatCount:        seatCount,
			TotalAmountCents: total,
			Currency:         tour.Currency,
			Participants:     participants,
		}

		if locked {
			// The guide already committed to this occurrence, skip the
			// approval round-trip.
			due := now.Add(s.cfg.PaymentTimeout)
			booking.Status = enums.BookingStatusAwaitingPayment
			booking.GuideDecision = enums.GuideDecisionAccepted
			booking.PaymentDueAt = &due
		} else {
			due := now.Add(s.cfg.ApprovalTimeout)
			booking.Status = enums.BookingStatusWaitingGuide
			booking.GuideDecision = enums.GuideDecisionPending
			booking.GuideApprovalDueAt = &due
		}

		return s.repo.WithTx(tx).Create(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, enums.NotificationKindBookingCreated, booking)
	return booking, nil
}

func (s *service) Get(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, err
	}
	if !canView(booking, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to caller")
	}
	return booking, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Booking, string, error) {
	if customerID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	bookings, err := s.repo.ListByCustomer(ctx, customerID, params)
	if err != nil {
		return nil, "", err
	}
	return trimPage(bookings, params)
}

func (s *service) ListForGuide(ctx context.Context, guideID uuid.UUID, statuses []enums.BookingStatus, params pagination.Params) ([]models.Booking, string, error) {
	if guideID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "guide identity missing")
	}
	bookings, err := s.repo.ListByGuide(ctx, guideID, statuses, params)
	if err != nil {
		return nil, "", err
	}
	return trimPage(bookings, params)
}

func (s *service) GuideApprove(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.Booking, error) {
	var booking *models.Booking
	err := s.guardedTransition(ctx, bookingID, func(tx *gorm.DB, loaded *models.Booking) error {
		if err := requireGuideActor(loaded, actor); err != nil {
			return err
		}
		if loaded.Status != enums.BookingStatusWaitingGuide || loaded.GuideDecision != enums.GuideDecisionPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting a guide decision")
		}

		// State may have moved since creation, so admission is re-checked
		// under the same lock discipline.
		tour, err := s.tours.WithTx(tx).FindByIDForUpdate(ctx, loaded.TourID)
		if err != nil {
			return err
		}
		remaining, err := calendar.RemainingCapacity(ctx, tx, tour, loaded.OccurrenceStart)
		if err != nil {
			return err
		}
		if loaded.SeatCount > remaining {
			return pkgerrors.New(pkgerrors.CodeConflict, "occurrence capacity exceeded").
				WithDetails(map[string]any{"requested": loaded.SeatCount, "remaining": remaining})
		}
		if loaded.IntendedGuideID != nil {
			busy, err := calendar.IsGuideBusy(ctx, tx, calendar.GuideBusyQuery{
				GuideID:          *loaded.IntendedGuideID,
				Start:            loaded.OccurrenceStart,
				End:              loaded.OccurrenceEnd,
				SameTourID:       loaded.TourID,
				ExcludeBookingID: loaded.ID,
			})
			if err != nil {
				return err
			}
			if busy {
				return pkgerrors.New(pkgerrors.CodeConflict, "guide is busy for this window")
			}
		}

		due := s.now().UTC().Add(s.cfg.PaymentTimeout)
		if err := s.repo.WithTx(tx).Update(ctx, loaded.ID, map[string]any{
			"status":                enums.BookingStatusAwaitingPayment,
			"guide_decision":        enums.GuideDecisionAccepted,
			"payment_due_at":        due,
			"guide_approval_due_at": nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
		}

		loaded.Status = enums.BookingStatusAwaitingPayment
		loaded.GuideDecision = enums.GuideDecisionAccepted
		loaded.PaymentDueAt = &due
		loaded.GuideApprovalDueAt = nil
		booking = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, enums.NotificationKindBookingApproved, booking)
	return booking, nil
}

func (s *service) GuideReject(ctx context.Context, bookingID uuid.UUID, actor Actor, note *string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.guardedTransition(ctx, bookingID, func(tx *gorm.DB, loaded *models.Booking) error {
		if err := requireGuideActor(loaded, actor); err != nil {
			return err
		}
		if loaded.Status != enums.BookingStatusWaitingGuide || loaded.GuideDecision != enums.GuideDecisionPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting a guide decision")
		}

		if err := s.repo.WithTx(tx).Update(ctx, loaded.ID, map[string]any{
			"status":                enums.BookingStatusRejected,
			"guide_decision":        enums.GuideDecisionRejected,
			"guide_note":            note,
			"guide_approval_due_at": nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
		}

		loaded.Status = enums.BookingStatusRejected
		loaded.GuideDecision = enums.GuideDecisionRejected
		loaded.GuideNote = note
		loaded.GuideApprovalDueAt = nil
		booking = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, enums.NotificationKindBookingRejected, booking)
	return booking, nil
}

func (s *service) Cancel(ctx context.Context, bookingID uuid.UUID, actor Actor, reason *string) (*models.Booking, error) {
	var booking *models.Booking
	var kind enums.NotificationKind
	err := s.guardedTransition(ctx, bookingID, func(tx *gorm.DB, loaded *models.Booking) error {
		isOwner := loaded.CustomerID == actor.UserID
		if !isOwner && !actor.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to caller")
		}

		now := s.now().UTC()
		switch loaded.Status {
		case enums.BookingStatusWaitingGuide, enums.BookingStatusAwaitingPayment:
			if err := s.cancelUnpaid(ctx, tx, loaded, actor, reason, now); err != nil {
				return err
			}
			kind = enums.NotificationKindBookingCanceled

		case enums.BookingStatusPaid:
			if actor.IsAdmin() {
				if err := s.cancelPaidByAdmin(ctx, tx, loaded, actor, reason, now); err != nil {
					return err
				}
				kind = enums.NotificationKindBookingCanceled
				break
			}
			// Owner cancel of a paid booking only requests a refund: the
			// booking stays paid until an admin confirms.
			if err := s.requestRefund(ctx, tx, loaded, actor); err != nil {
				return err
			}
			kind = ""

		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking cannot be canceled in its current state")
		}

		booking = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if kind != "" {
		s.notify(ctx, kind, booking)
	}
	return booking, nil
}

func (s *service) cancelUnpaid(ctx context.Context, tx *gorm.DB, booking *models.Booking, actor Actor, reason *string, now time.Time) error {
	if err := s.repo.WithTx(tx).Update(ctx, booking.ID, map[string]any{
		"status":                enums.BookingStatusCanceled,
		"payment_due_at":        nil,
		"guide_approval_due_at": nil,
		"canceled_at":           now,
		"canceled_by":           actor.UserID,
		"cancel_reason":         reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
	}
	booking.Status = enums.BookingStatusCanceled
	booking.PaymentDueAt = nil
	booking.GuideApprovalDueAt = nil
	booking.CanceledAt = &now
	booking.CanceledBy = &actor.UserID
	booking.CancelReason = reason
	return nil
}

func (s *service) requestRefund(ctx context.Context, tx *gorm.DB, booking *models.Booking, actor Actor) error {
	if booking.CancelRequested {
		return pkgerrors.New(pkgerrors.CodeConflict, "refund already requested")
	}

	txn, err := s.ledger.Record(ctx, tx, ledger.RecordTransactionInput{
		BookingID:   &booking.ID,
		Type:        enums.TransactionTypeRefund,
		Status:      enums.TransactionStatusPending,
		Code:        refundCode(booking.ID),
		Gateway:     booking.Session.Gateway,
		PayeeID:     &booking.CustomerID,
		ActorID:     &actor.UserID,
		AmountCents: booking.TotalAmountCents,
		NetCents:    booking.TotalAmountCents,
		Currency:    booking.Currency,
	})
	if err != nil {
		return err
	}

	if err := s.repo.WithTx(tx).Update(ctx, booking.ID, map[string]any{
		"cancel_requested":      true,
		"refund_transaction_id": txn.ID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag refund request")
	}
	booking.CancelRequested = true
	booking.RefundTransactionID = &txn.ID
	return nil
}

func (s *service) cancelPaidByAdmin(ctx context.Context, tx *gorm.DB, booking *models.Booking, actor Actor, reason *string, now time.Time) error {
	if booking.RefundTransactionID != nil {
		if err := s.ledger.Confirm(ctx, tx, *booking.RefundTransactionID); err != nil {
			return err
		}
	} else {
		txn, err := s.ledger.Record(ctx, tx, ledger.RecordTransactionInput{
			BookingID:   &booking.ID,
			Type:        enums.TransactionTypeRefund,
			Status:      enums.TransactionStatusConfirmed,
			Code:        refundCode(booking.ID),
			Gateway:     booking.Session.Gateway,
			PayeeID:     &booking.CustomerID,
			ActorID:     &actor.UserID,
			AmountCents: booking.TotalAmountCents,
			NetCents:    booking.TotalAmountCents,
			Currency:    booking.Currency,
		})
		if err != nil {
			return err
		}
		booking.RefundTransactionID = &txn.ID
	}

	if err := s.repo.WithTx(tx).Update(ctx, booking.ID, map[string]any{
		"status":                enums.BookingStatusCanceled,
		"cancel_requested":      false,
		"refund_transaction_id": booking.RefundTransactionID,
		"canceled_at":           now,
		"canceled_by":           actor.UserID,
		"cancel_reason":         reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
	}
	booking.Status = enums.BookingStatusCanceled
	booking.CancelRequested = false
	booking.CanceledAt = &now
	booking.CanceledBy = &actor.UserID
	booking.CancelReason = reason
	return nil
}

func (s *service) ExpirePayment(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error) {
	changed := false
	err := s.guardedTransition(ctx, bookingID, func(tx *gorm.DB, loaded *models.Booking) error {
		if loaded.Status != enums.BookingStatusAwaitingPayment {
			return nil
		}
		if loaded.PaymentDueAt == nil || now.Before(*loaded.PaymentDueAt) {
			return nil
		}

		fields := map[string]any{
			"status":         enums.BookingStatusCanceled,
			"payment_due_at": nil,
			"canceled_at":    now.UTC(),
			"cancel_reason":  "payment window elapsed",
		}
		if loaded.Session.Status == enums.SessionStatusPending {
			fields["session_status"] = enums.SessionStatusExpired
		}
		if err := s.repo.WithTx(tx).Update(ctx, loaded.ID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire booking payment")
		}
		changed = true
		return nil
	})
	return changed, err
}

func (s *service) ExpireApproval(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error) {
	changed := false
	err := s.guardedTransition(ctx, bookingID, func(tx *gorm.DB, loaded *models.Booking) error {
		if loaded.Status != enums.BookingStatusWaitingGuide || loaded.GuideDecision != enums.GuideDecisionPending {
			return nil
		}
		if loaded.GuideApprovalDueAt == nil || now.Before(*loaded.GuideApprovalDueAt) {
			return nil
		}

		note := "guide did not respond before the approval deadline"
		if err := s.repo.WithTx(tx).Update(ctx, loaded.ID, map[string]any{
			"status":                enums.BookingStatusRejected,
			"guide_decision":        enums.GuideDecisionRejected,
			"guide_note":            note,
			"guide_approval_due_at": nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire booking approval")
		}
		changed = true
		return nil
	})
	return changed, err
}

func (s *service) Complete(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error) {
	changed := false
	err := s.guardedTransition(ctx, bookingID, func(tx *gorm.DB, loaded *models.Booking) error {
		if loaded.Status != enums.BookingStatusPaid {
			return nil
		}
		if now.Before(loaded.OccurrenceEnd) {
			return nil
		}

		if err := s.repo.WithTx(tx).Update(ctx, loaded.ID, map[string]any{
			"status": enums.BookingStatusCompleted,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete booking")
		}
		changed = true
		return nil
	})
	return changed, err
}

// guardedTransition reloads the booking under lock and applies fn inside one
// transaction.
func (s *service) guardedTransition(ctx context.Context, bookingID uuid.UUID, fn func(tx *gorm.DB, booking *models.Booking) error) error {
	if bookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		booking, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			if IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
		}
		return fn(tx, booking)
	})
}

func (s *service) notify(ctx context.Context, kind enums.NotificationKind, booking *models.Booking) {
	if s.notifier == nil || booking == nil {
		return
	}
	s.notifier.BookingEvent(ctx, kind, booking)
}

func requireGuideActor(booking *models.Booking, actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.IsAdmin() {
		return nil
	}
	if booking.IntendedGuideID == nil || *booking.IntendedGuideID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "caller is not the intended guide")
	}
	return nil
}

func canView(booking *models.Booking, actor Actor) bool {
	if actor.IsAdmin() {
		return true
	}
	if booking.CustomerID == actor.UserID {
		return true
	}
	return booking.IntendedGuideID != nil && *booking.IntendedGuideID == actor.UserID
}

func validateParticipants(participants []ParticipantInput) error {
	if len(participants) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one participant is required")
	}
	primaries := 0
	for _, p := range participants {
		if p.FullName == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "participant name is required")
		}
		if p.Age < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "participant age cannot be negative")
		}
		if p.PrimaryContact {
			primaries++
		}
	}
	if primaries != 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "exactly one participant must be the primary contact")
	}
	return nil
}

// priceParticipants applies the tour's free-age rule: participants under the
// threshold ride free and do not occupy a seat.
func priceParticipants(inputs []ParticipantInput, tour *models.Tour) ([]models.BookingParticipant, int, int64) {
	participants := make([]models.BookingParticipant, 0, len(inputs))
	seatCount := 0
	var total int64
	for _, in := range inputs {
		p := models.BookingParticipant{
			ID:             uuid.New(),
			FullName:       in.FullName,
			Age:            in.Age,
			PrimaryContact: in.PrimaryContact,
		}
		if in.Age >= tour.FreeAgeThreshold {
			p.PriceAppliedCents = tour.PricePerSeatCents
			p.CountsSeat = true
			seatCount++
			total += tour.PricePerSeatCents
		}
		participants = append(participants, p)
	}
	return participants, seatCount, total
}

func refundCode(bookingID uuid.UUID) string {
	return "refund:" + bookingID.String()
}

func trimPage(bookings []models.Booking, params pagination.Params) ([]models.Booking, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	if len(bookings) <= limit {
		return bookings, "", nil
	}
	page := bookings[:limit]
	last := page[len(page)-1]
	next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	return page, next, nil
}
