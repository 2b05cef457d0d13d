package payments

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/internal/ledger"
	"github.com/venturetrips/venture-backend/internal/tours"
	"github.com/venturetrips/venture-backend/pkg/config"
	"github.com/venturetrips/venture-backend/pkg/db"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/gateway"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventNotifier interface {
	BookingEvent(ctx context.Context, kind enums.NotificationKind, booking *models.Booking)
}

// sessionGateway is the slice of the gateway client this service needs.
type sessionGateway interface {
	Name() string
	CreateSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error)
}

// Service mints payment sessions and settles gateway callbacks.
type Service interface {
	// CreateSession returns the booking with a live payment session. An
	// unexpired pending session is reused rather than replaced.
	CreateSession(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error)
	// HandleCallback applies one gateway settlement report. Redelivered
	// reports for an already settled reference are acknowledged without a
	// second ledger row.
	HandleCallback(ctx context.Context, payload gateway.CallbackPayload) error
}

// ServiceParams wires the payment service dependencies.
type ServiceParams struct {
	Bookings bookings.Repository
	Tours    tours.Repository
	Ledger   ledger.Service
	TxRunner txRunner
	Gateway  sessionGateway
	Notifier eventNotifier
	Config   config.GatewayConfig
	Booking  config.BookingConfig
	Now      func() time.Time
}

type service struct {
	bookings bookings.Repository
	tours    tours.Repository
	ledger   ledger.Service
	tx       txRunner
	gateway  sessionGateway
	notifier eventNotifier
	cfg      config.GatewayConfig
	booking  config.BookingConfig
	now      func() time.Time
}

// NewService builds a payment service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Bookings == nil {
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
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		bookings: params.Bookings,
		tours:    params.Tours,
		ledger:   params.Ledger,
		tx:       params.TxRunner,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		cfg:      params.Config,
		booking:  params.Booking,
		now:      now,
	}, nil
}

func (s *service) CreateSession(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}

	booking, err := s.loadForPayment(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if reusable(booking, now) {
		return booking, nil
	}

	// The gateway call happens outside the transaction so a slow gateway
	// never holds row locks.
	expiresAt := s.sessionDeadline(booking, now)
	reference := sessionReference(booking.ID, now)
	session, err := s.gateway.CreateSession(ctx, gateway.SessionRequest{
		Reference:   reference,
		BookingID:   booking.ID.String(),
		AmountCents: booking.TotalAmountCents,
		Currency:    booking.Currency,
		ExpiresAt:   expiresAt.Unix(),
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.bookings.WithTx(tx).FindByIDForUpdate(ctx, booking.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
		}
		if loaded.Status != enums.BookingStatusAwaitingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting payment")
		}
		if reusable(loaded, now) {
			// A concurrent request won the race; keep its session and
			// abandon the one just minted.
			booking = loaded
			return nil
		}

		if err := s.bookings.WithTx(tx).Update(ctx, loaded.ID, map[string]any{
			"session_gateway":      s.gateway.Name(),
			"session_external_ref": session.Reference,
			"session_status":       enums.SessionStatusPending,
			"session_pay_url":      session.PayURL,
			"session_expires_at":   expiresAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment session")
		}

		loaded.Session = models.PaymentSession{
			Gateway:     s.gateway.Name(),
			ExternalRef: session.Reference,
			Status:      enums.SessionStatusPending,
			PayURL:      session.PayURL,
			ExpiresAt:   &expiresAt,
		}
		booking = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) loadForPayment(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if bookings.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	if booking.CustomerID != actor.UserID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to caller")
	}
	if booking.Status != enums.BookingStatusAwaitingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting payment")
	}
	if booking.PaymentDueAt != nil && !s.now().UTC().Before(*booking.PaymentDueAt) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment window elapsed")
	}
	return booking, nil
}

// sessionDeadline bounds the session by both the configured TTL and the
// booking's payment deadline.
func (s *service) sessionDeadline(booking *models.Booking, now time.Time) time.Time {
	ttl := s.cfg.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	deadline := now.Add(ttl)
	if booking.PaymentDueAt != nil && booking.PaymentDueAt.Before(deadline) {
		deadline = *booking.PaymentDueAt
	}
	return deadline
}

func (s *service) HandleCallback(ctx context.Context, payload gateway.CallbackPayload) error {
	if !gateway.Verify(s.cfg.Secret, payload.SignedFields(), payload.Signature) {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "callback signature mismatch")
	}
	bookingID, err := resolveBookingID(payload)
	if err != nil {
		return err
	}

	existing, err := s.ledger.FindSettlement(ctx, bookingID, enums.TransactionTypeCharge, payload.Reference)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up settlement")
	}
	if existing != nil && existing.Status.IsTerminal() {
		return nil
	}

	var kind enums.NotificationKind
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.bookings.WithTx(tx).FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			if bookings.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
		}
		if loaded.Status != enums.BookingStatusAwaitingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting payment")
		}
		if payload.AmountCents != loaded.TotalAmountCents || payload.Currency != loaded.Currency {
			return pkgerrors.New(pkgerrors.CodeValidation, "callback amount does not match booking").
				WithDetails(map[string]any{
					"reported": payload.AmountCents,
					"expected": loaded.TotalAmountCents,
				})
		}

		switch payload.Status {
		case gateway.CallbackStatusPaid:
			kind = enums.NotificationKindPaymentSettled
			return s.settle(ctx, tx, loaded, payload)
		case gateway.CallbackStatusFailed:
			kind = enums.NotificationKindPaymentFailed
			return s.markFailed(ctx, tx, loaded, payload)
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, "unknown callback status")
		}
	})
	if err != nil {
		// The unique settlement index is the last line of defense against
		// concurrent duplicate deliveries.
		if db.IsUniqueViolation(err, "ux_transactions_booking_type_code") {
			return nil
		}
		return err
	}

	if booking, loadErr := s.bookings.FindByID(ctx, bookingID); loadErr == nil {
		s.notify(ctx, kind, booking)
	}
	return nil
}

func (s *service) settle(ctx context.Context, tx *gorm.DB, booking *models.Booking, payload gateway.CallbackPayload) error {
	bps, err := s.commissionBPS(ctx, tx, booking.TourID)
	if err != nil {
		return err
	}
	commission := commissionFor(payload.AmountCents, bps)
	net := payload.AmountCents - commission

	if _, err := s.ledger.Record(ctx, tx, ledger.RecordTransactionInput{
		BookingID:       &booking.ID,
		Type:            enums.TransactionTypeCharge,
		Status:          enums.TransactionStatusConfirmed,
		Code:            payload.Reference,
		Gateway:         booking.Session.Gateway,
		PayerID:         &booking.CustomerID,
		AmountCents:     payload.AmountCents,
		CommissionCents: commission,
		NetCents:        net,
		Currency:        payload.Currency,
	}); err != nil {
		return err
	}

	if err := s.bookings.WithTx(tx).Update(ctx, booking.ID, map[string]any{
		"status":         enums.BookingStatusPaid,
		"payment_due_at": nil,
		"session_status": enums.SessionStatusPaid,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark booking paid")
	}
	return nil
}

// markFailed records the failed attempt. The booking stays payable until the
// payment deadline so the customer can retry.
func (s *service) markFailed(ctx context.Context, tx *gorm.DB, booking *models.Booking, payload gateway.CallbackPayload) error {
	if _, err := s.ledger.Record(ctx, tx, ledger.RecordTransactionInput{
		BookingID:   &booking.ID,
		Type:        enums.TransactionTypeCharge,
		Status:      enums.TransactionStatusFailed,
		Code:        payload.Reference,
		Gateway:     booking.Session.Gateway,
		PayerID:     &booking.CustomerID,
		AmountCents: payload.AmountCents,
		NetCents:    payload.AmountCents,
		Currency:    payload.Currency,
	}); err != nil {
		return err
	}

	if err := s.bookings.WithTx(tx).Update(ctx, booking.ID, map[string]any{
		"session_status": enums.SessionStatusFailed,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark session failed")
	}
	return nil
}

func (s *service) commissionBPS(ctx context.Context, tx *gorm.DB, tourID uuid.UUID) (int, error) {
	tour, err := s.tours.WithTx(tx).FindByID(ctx, tourID)
	if err != nil {
		return 0, err
	}
	if tour.CommissionBPS != nil {
		return *tour.CommissionBPS, nil
	}
	return s.booking.DefaultCommissionBPS, nil
}

func (s *service) notify(ctx context.Context, kind enums.NotificationKind, booking *models.Booking) {
	if s.notifier == nil || booking == nil {
		return
	}
	s.notifier.BookingEvent(ctx, kind, booking)
}

// commissionFor computes the platform cut in cents from basis points,
// rounding half away from zero.
func commissionFor(amountCents int64, bps int) int64 {
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(int64(bps))).
		DivRound(decimal.NewFromInt(10000), 0).
		IntPart()
}

func reusable(booking *models.Booking, now time.Time) bool {
	session := booking.Session
	if session.Status != enums.SessionStatusPending || session.ExternalRef == "" {
		return false
	}
	return session.ExpiresAt != nil && now.Before(*session.ExpiresAt)
}

func sessionReference(bookingID uuid.UUID, now time.Time) string {
	return bookingID.String() + ":" + strconv.FormatInt(now.UnixNano(), 10)
}

// resolveBookingID prefers the embedded booking id and falls back to the
// session reference prefix, which carries the same uuid.
func resolveBookingID(payload gateway.CallbackPayload) (uuid.UUID, error) {
	if id, err := uuid.Parse(payload.BookingID); err == nil {
		return id, nil
	}
	if prefix, _, found := strings.Cut(payload.Reference, ":"); found {
		if id, err := uuid.Parse(prefix); err == nil {
			return id, nil
		}
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "callback does not identify a booking")
}
