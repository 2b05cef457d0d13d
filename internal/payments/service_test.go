package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/internal/ledger"
	"github.com/venturetrips/venture-backend/internal/tours"
	"github.com/venturetrips/venture-backend/pkg/config"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	dbtypes "github.com/venturetrips/venture-backend/pkg/db/types"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/gateway"
)

const testSecret = "callback-secret"

var testClock = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubNotifier struct {
	kinds []enums.NotificationKind
}

func (n *stubNotifier) BookingEvent(_ context.Context, kind enums.NotificationKind, _ *models.Booking) {
	n.kinds = append(n.kinds, kind)
}

type stubGateway struct {
	calls   int
	lastReq gateway.SessionRequest
	payURL  string
	mintErr error
}

func (g *stubGateway) Name() string { return "paygate" }

func (g *stubGateway) CreateSession(_ context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	g.calls++
	g.lastReq = req
	if g.mintErr != nil {
		return nil, g.mintErr
	}
	return &gateway.Session{
		Reference: req.Reference,
		PayURL:    g.payURL,
		ExpiresAt: time.Unix(req.ExpiresAt, 0).UTC(),
	}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Booking{}, &models.BookingParticipant{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ddl := `CREATE TABLE tours (
		id text PRIMARY KEY,
		title text NOT NULL,
		capacity integer NOT NULL,
		price_per_seat_cents integer NOT NULL,
		currency text NOT NULL,
		free_age_threshold integer NOT NULL DEFAULT 0,
		duration_minutes integer NOT NULL,
		commission_bps integer,
		guide_ids text,
		created_at datetime,
		updated_at datetime
	)`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create tours table: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (Service, *stubGateway, *stubNotifier) {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	gw := &stubGateway{payURL: "https://pay.example.test/s/abc"}
	notifier := &stubNotifier{}
	svc, err := NewService(ServiceParams{
		Bookings: bookings.NewRepository(db),
		Tours:    tours.NewRepository(db),
		Ledger:   ledgerSvc,
		TxRunner: gormTxRunner{db: db},
		Gateway:  gw,
		Notifier: notifier,
		Config: config.GatewayConfig{
			Name:       "paygate",
			Secret:     testSecret,
			Currency:   "IDR",
			SessionTTL: time.Hour,
		},
		Booking: config.BookingConfig{DefaultCommissionBPS: 1000},
		Now:     func() time.Time { return testClock },
	})
	if err != nil {
		t.Fatalf("payment service: %v", err)
	}
	return svc, gw, notifier
}

func seedTour(t *testing.T, db *gorm.DB, commissionBPS *int) *models.Tour {
	t.Helper()
	tour := &models.Tour{
		ID:                uuid.New(),
		Title:             "Komodo day trip",
		Capacity:          6,
		PricePerSeatCents: 250000,
		Currency:          "IDR",
		DurationMinutes:   180,
		CommissionBPS:     commissionBPS,
		GuideIDs:          dbtypes.UUIDArray{uuid.New()},
	}
	if err := db.Create(tour).Error; err != nil {
		t.Fatalf("seed tour: %v", err)
	}
	return tour
}

func seedAwaitingBooking(t *testing.T, db *gorm.DB, tour *models.Tour, amount int64) *models.Booking {
	t.Helper()
	due := testClock.Add(2 * time.Hour)
	booking := &models.Booking{
		ID:               uuid.New(),
		TourID:           tour.ID,
		CustomerID:       uuid.New(),
		Status:           enums.BookingStatusAwaitingPayment,
		GuideDecision:    enums.GuideDecisionAccepted,
		OccurrenceStart:  testClock.Add(48 * time.Hour),
		OccurrenceEnd:    testClock.Add(51 * time.Hour),
		SeatCount:        2,
		TotalAmountCents: amount,
		Currency:         tour.Currency,
		PaymentDueAt:     &due,
	}
	if err := db.Create(booking).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return booking
}

func signedCallback(booking *models.Booking, reference, status string) gateway.CallbackPayload {
	payload := gateway.CallbackPayload{
		Reference:   reference,
		BookingID:   booking.ID.String(),
		Status:      status,
		AmountCents: booking.TotalAmountCents,
		Currency:    booking.Currency,
	}
	payload.Signature = gateway.Sign(testSecret, payload.SignedFields())
	return payload
}

func errCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	return typed.Code()
}

func TestHandleCallbackSettlesBooking(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, notifier := newTestService(t, db)
	tour := seedTour(t, db, nil)
	booking := seedAwaitingBooking(t, db, tour, 500000)

	payload := signedCallback(booking, "ref-1", gateway.CallbackStatusPaid)
	if err := svc.HandleCallback(context.Background(), payload); err != nil {
		t.Fatalf("handle callback: %v", err)
	}

	var reloaded models.Booking
	if err := db.First(&reloaded, "id = ?", booking.ID).Error; err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if reloaded.Status != enums.BookingStatusPaid {
		t.Fatalf("expected paid, got %s", reloaded.Status)
	}
	if reloaded.PaymentDueAt != nil {
		t.Fatalf("payment deadline must be cleared")
	}
	if reloaded.Session.Status != enums.SessionStatusPaid {
		t.Fatalf("expected session paid, got %s", reloaded.Session.Status)
	}

	var txn models.Transaction
	if err := db.First(&txn, "booking_id = ?", booking.ID).Error; err != nil {
		t.Fatalf("load ledger row: %v", err)
	}
	if txn.Status != enums.TransactionStatusConfirmed || txn.Type != enums.TransactionTypeCharge {
		t.Fatalf("unexpected ledger row %s/%s", txn.Type, txn.Status)
	}
	if txn.CommissionCents != 50000 || txn.NetCents != 450000 {
		t.Fatalf("expected 50000 commission and 450000 net, got %d/%d", txn.CommissionCents, txn.NetCents)
	}
	if len(notifier.kinds) != 1 || notifier.kinds[0] != enums.NotificationKindPaymentSettled {
		t.Fatalf("expected payment_settled event, got %v", notifier.kinds)
	}
}

func TestHandleCallbackUsesTourCommissionOverride(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, _ := newTestService(t, db)
	override := 500
	tour := seedTour(t, db, &override)
	booking := seedAwaitingBooking(t, db, tour, 500000)

	payload := signedCallback(booking, "ref-1", gateway.CallbackStatusPaid)
	if err := svc.HandleCallback(context.Background(), payload); err != nil {
		t.Fatalf("handle callback: %v", err)
	}

	var txn models.Transaction
	if err := db.First(&txn, "booking_id = ?", booking.ID).Error; err != nil {
		t.Fatalf("load ledger row: %v", err)
	}
	if txn.CommissionCents != 25000 || txn.NetCents != 475000 {
		t.Fatalf("expected 25000 commission and 475000 net, got %d/%d", txn.CommissionCents, txn.NetCents)
	}
}

func TestHandleCallbackRedeliveryIsAcknowledgedOnce(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, _ := newTestService(t, db)
	tour := seedTour(t, db, nil)
	booking := seedAwaitingBooking(t, db, tour, 500000)

	payload := signedCallback(booking, "ref-1", gateway.CallbackStatusPaid)
	if err := svc.HandleCallback(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleCallback(context.Background(), payload); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	var count int64
	if err := db.Model(&models.Transaction{}).Where("booking_id = ?", booking.ID).Count(&count).Error; err != nil {
		t.Fatalf("count ledger rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", count)
	}
}

func TestHandleCallbackRejectsBadSignature(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, _ := newTestService(t, db)
	tour := seedTour(t, db, nil)
	booking := seedAwaitingBooking(t, db, tour, 500000)

	payload := signedCallback(booking, "ref-1", gateway.CallbackStatusPaid)
	payload.AmountCents = 1 // tamper after signing

	err := svc.HandleCallback(context.Background(), payload)
	if code := errCode(t, err); code != pkgerrors.CodeInvalidSignature {
		t.Fatalf("expected invalid signature, got %s", code)
	}

	var reloaded models.Booking
	if err := db.First(&reloaded, "id = ?", booking.ID).Error; err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if reloaded.Status != enums.BookingStatusAwaitingPayment {
		t.Fatalf("tampered callback must not change state, got %s", reloaded.Status)
	}
}

func TestHandleCallbackFailureKeepsBookingPayable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, notifier := newTestService(t, db)
	tour := seedTour(t, db, nil)
	booking := seedAwaitingBooking(t, db, tour, 500000)

	payload := signedCallback(booking, "ref-1", gateway.CallbackStatusFailed)
	if err := svc.HandleCallback(context.Background(), payload); err != nil {
		t.Fatalf("handle callback: %v", err)
	}

	var reloaded models.Booking
	if err := db.First(&reloaded, "id = ?", booking.ID).Error; err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if reloaded.Status != enums.BookingStatusAwaitingPayment {
		t.Fatalf("failed payment must keep the booking payable, got %s", reloaded.Status)
	}
	if reloaded.Session.Status != enums.SessionStatusFailed {
		t.Fatalf("expected session failed, got %s", reloaded.Session.Status)
	}

	var txn models.Transaction
	if err := db.First(&txn, "booking_id = ?", booking.ID).Error; err != nil {
		t.Fatalf("load ledger row: %v", err)
	}
	if txn.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected failed ledger row, got %s", txn.Status)
	}
	if len(notifier.kinds) != 1 || notifier.kinds[0] != enums.NotificationKindPaymentFailed {
		t.Fatalf("expected payment_failed event, got %v", notifier.kinds)
	}
}

func TestHandleCallbackAmountMismatch(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, _ := newTestService(t, db)
	tour := seedTour(t, db, nil)
	booking := seedAwaitingBooking(t, db, tour, 500000)

	payload := gateway.CallbackPayload{
		Reference:   "ref-1",
		BookingID:   booking.ID.String(),
		Status:      gateway.CallbackStatusPaid,
		AmountCents: 100, // correctly signed, wrong amount
		Currency:    booking.Currency,
	}
	payload.Signature = gateway.Sign(testSecret, payload.SignedFields())

	err := svc.HandleCallback(context.Background(), payload)
	if code := errCode(t, err); code != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %s", code)
	}

	var count int64
	if err := db.Model(&models.Transaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count ledger rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("mismatched callback must not post to the ledger, got %d rows", count)
	}
}

func TestCreateSessionMintsAndPersists(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, gw, _ := newTestService(t, db)
	tour := seedTour(t, db, nil)
	booking := seedAwaitingBooking(t, db, tour, 500000)
	actor := bookings.Actor{UserID: booking.CustomerID, Role: enums.UserRoleCustomer}

	withSession, err := svc.CreateSession(context.Background(), booking.ID, actor)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if gw.calls != 1 {
		t.Fatalf("expected one gateway call, got %d", gw.calls)
	}
	if withSession.Session.Status != enums.SessionStatusPending {
		t.Fatalf("expected pending session, got %s", withSession.Session.Status)
	}
	if withSession.Session.PayURL != gw.payURL {
		t.Fatalf("unexpected pay url %q", withSession.Session.PayURL)
	}
	if gw.lastReq.AmountCents != 500000 || gw.lastReq.Currency != "IDR" {
		t.Fatalf("unexpected session request %+v", gw.lastReq)
	}

	if withSession.Session.ExpiresAt == nil || !withSession.Session.ExpiresAt.Equal(testClock.Add(time.Hour)) {
		t.Fatalf("unexpected session expiry %v", withSession.Session.ExpiresAt)
	}
}

func TestCreateSessionReusesPendingSession(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, gw, _ := newTestService(t, db)
	tour := seedTour(t, db, nil)
	booking := seedAwaitingBooking(t, db, tour, 500000)
	actor := bookings.Actor{UserID: booking.CustomerID, Role: enums.UserRoleCustomer}

	first, err := svc.CreateSession(context.Background(), booking.ID, actor)
	if err != nil {
		t.Fatalf("first session: %v", err)
	}
	second, err := svc.CreateSession(context.Background(), booking.ID, actor)
	if err != nil {
		t.Fatalf("second session: %v", err)
	}

	if gw.calls != 1 {
		t.Fatalf("pending session must be reused, got %d gateway calls", gw.calls)
	}
	if first.Session.ExternalRef != second.Session.ExternalRef {
		t.Fatalf("expected the same session reference")
	}
}

func TestCreateSessionGuards(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _, _ := newTestService(t, db)
	tour := seedTour(t, db, nil)
	booking := seedAwaitingBooking(t, db, tour, 500000)

	stranger := bookings.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	_, err := svc.CreateSession(context.Background(), booking.ID, stranger)
	if code := errCode(t, err); code != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %s", code)
	}

	if err := db.Model(booking).Update("status", enums.BookingStatusWaitingGuide).Error; err != nil {
		t.Fatalf("reset status: %v", err)
	}
	owner := bookings.Actor{UserID: booking.CustomerID, Role: enums.UserRoleCustomer}
	_, err = svc.CreateSession(context.Background(), booking.ID, owner)
	if code := errCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %s", code)
	}
}
