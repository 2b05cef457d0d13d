package payouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/internal/ledger"
	"github.com/venturetrips/venture-backend/pkg/config"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
)

var testClock = time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)

var adminActor = bookings.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubNotifier struct {
	kinds []enums.NotificationKind
}

func (n *stubNotifier) PayoutEvent(_ context.Context, kind enums.NotificationKind, _ *models.Payout) {
	n.kinds = append(n.kinds, kind)
}

// failingLedger breaks Record to exercise the rollback path.
type failingLedger struct {
	ledger.Service
}

func (failingLedger) Record(context.Context, *gorm.DB, ledger.RecordTransactionInput) (*models.Transaction, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payouts_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Booking{}, &models.BookingParticipant{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// The payouts table carries uuid[] and numeric columns that sqlite's
	// migrator cannot express.
	ddl := `CREATE TABLE payouts (
		id text PRIMARY KEY,
		tour_id text NOT NULL,
		occurrence_date datetime NOT NULL,
		guide_id text NOT NULL,
		base_amount_cents integer NOT NULL,
		percentage numeric NOT NULL,
		payout_amount_cents integer NOT NULL,
		booking_ids text,
		status text NOT NULL,
		reference text NOT NULL UNIQUE,
		currency text NOT NULL,
		paid_at datetime,
		paid_by text,
		created_at datetime,
		updated_at datetime,
		UNIQUE (tour_id, occurrence_date, guide_id)
	)`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create payouts table: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, percentage string) (Service, *stubNotifier) {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	notifier := &stubNotifier{}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		Bookings: bookings.NewRepository(db),
		Ledger:   ledgerSvc,
		TxRunner: gormTxRunner{db: db},
		Notifier: notifier,
		Config: config.PayoutConfig{
			HoldbackDays:      3,
			DefaultPercentage: percentage,
		},
		Now: func() time.Time { return testClock },
	})
	if err != nil {
		t.Fatalf("payout service: %v", err)
	}
	return svc, notifier
}

// seedSettledBooking creates a paid booking on the occurrence date with a
// confirmed charge of the given net.
func seedSettledBooking(t *testing.T, db *gorm.DB, tourID, guideID uuid.UUID, start time.Time, netCents int64) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:               uuid.New(),
		TourID:           tourID,
		CustomerID:       uuid.New(),
		IntendedGuideID:  &guideID,
		Status:           enums.BookingStatusPaid,
		GuideDecision:    enums.GuideDecisionAccepted,
		OccurrenceStart:  start,
		OccurrenceEnd:    start.Add(3 * time.Hour),
		SeatCount:        2,
		TotalAmountCents: netCents + netCents/9, // gross is irrelevant to the formula
		Currency:         "IDR",
	}
	if err := db.Create(booking).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	txn := &models.Transaction{
		ID:          uuid.New(),
		BookingID:   &booking.ID,
		Type:        enums.TransactionTypeCharge,
		Status:      enums.TransactionStatusConfirmed,
		Code:        "ref-" + booking.ID.String(),
		AmountCents: booking.TotalAmountCents,
		NetCents:    netCents,
		Currency:    "IDR",
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("seed charge: %v", err)
	}
	return booking
}

func seedConfirmedRefund(t *testing.T, db *gorm.DB, booking *models.Booking, netCents int64) {
	t.Helper()
	txn := &models.Transaction{
		ID:          uuid.New(),
		BookingID:   &booking.ID,
		Type:        enums.TransactionTypeRefund,
		Status:      enums.TransactionStatusConfirmed,
		Code:        "refund:" + booking.ID.String(),
		AmountCents: netCents,
		NetCents:    netCents,
		Currency:    "IDR",
	}
	if err := db.Create(txn).Error; err != nil {
		t.Fatalf("seed refund: %v", err)
	}
}

func errCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	return typed.Code()
}

func TestPreviewOccurrenceComputesGuideRevenue(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, "0.8")
	tourID := uuid.New()
	guideA := uuid.New()
	guideB := uuid.New()
	start := time.Date(2026, 9, 8, 8, 0, 0, 0, time.UTC)

	first := seedSettledBooking(t, db, tourID, guideA, start, 450000)
	seedSettledBooking(t, db, tourID, guideA, start, 225000)
	seedSettledBooking(t, db, tourID, guideB, start, 90000)
	seedConfirmedRefund(t, db, first, 450000)

	preview, err := svc.PreviewOccurrence(context.Background(), tourID, start)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	if len(preview.Guides) != 2 {
		t.Fatalf("expected two guides, got %d", len(preview.Guides))
	}
	byGuide := map[uuid.UUID]int64{}
	for _, g := range preview.Guides {
		byGuide[g.GuideID] = g.BaseAmountCents
	}
	if byGuide[guideA] != 225000 {
		t.Fatalf("refund must reduce guide revenue, got %d", byGuide[guideA])
	}
	if byGuide[guideB] != 90000 {
		t.Fatalf("expected 90000 for second guide, got %d", byGuide[guideB])
	}

	// Occurrence ended 2026-09-08 11:00, holdback 3 days, clock is the 10th.
	if preview.Eligible {
		t.Fatalf("holdback window has not elapsed yet")
	}
	if !preview.EligibleAt.Equal(start.Add(3*time.Hour).Add(72 * time.Hour)) {
		t.Fatalf("unexpected eligibility time %v", preview.EligibleAt)
	}
}

func TestCreatePayoutsRespectsHoldback(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, "0.8")
	tourID := uuid.New()
	guide := uuid.New()
	start := time.Date(2026, 9, 9, 8, 0, 0, 0, time.UTC)
	seedSettledBooking(t, db, tourID, guide, start, 450000)

	_, err := svc.CreatePayoutsForOccurrence(context.Background(), tourID, start, false, adminActor)
	if code := errCode(t, err); code != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict before eligibility, got %s", code)
	}

	payouts, err := svc.CreatePayoutsForOccurrence(context.Background(), tourID, start, true, adminActor)
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if len(payouts) != 1 || payouts[0].PayoutAmountCents != 360000 {
		t.Fatalf("expected one payout of 360000, got %+v", payouts)
	}
}

func TestCreatePayoutsThreeWayDecision(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, "0.8")
	tourID := uuid.New()
	guide := uuid.New()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	seedSettledBooking(t, db, tourID, guide, start, 450000)

	first, err := svc.CreatePayoutsForOccurrence(context.Background(), tourID, start, false, adminActor)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first[0].Status != enums.PayoutStatusPending || first[0].PayoutAmountCents != 360000 {
		t.Fatalf("unexpected initial payout %+v", first[0])
	}

	// More revenue settles; a rerun recomputes the same row in place.
	seedSettledBooking(t, db, tourID, guide, start, 225000)
	second, err := svc.CreatePayoutsForOccurrence(context.Background(), tourID, start, false, adminActor)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second[0].ID != first[0].ID {
		t.Fatalf("rerun must update in place, not create a new row")
	}
	if second[0].PayoutAmountCents != 540000 {
		t.Fatalf("expected recomputed 540000, got %d", second[0].PayoutAmountCents)
	}

	// Paid rows are immutable even when revenue changes afterwards.
	if _, err := svc.MarkPaid(context.Background(), first[0].ID, adminActor); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	seedSettledBooking(t, db, tourID, guide, start, 90000)
	third, err := svc.CreatePayoutsForOccurrence(context.Background(), tourID, start, false, adminActor)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if third[0].Status != enums.PayoutStatusPaid || third[0].PayoutAmountCents != 540000 {
		t.Fatalf("paid payout must be skipped, got %+v", third[0])
	}
}

func TestPayoutAmountRounding(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, "0.1")
	tourID := uuid.New()
	guide := uuid.New()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	seedSettledBooking(t, db, tourID, guide, start, 1000000)

	payouts, err := svc.CreatePayoutsForOccurrence(context.Background(), tourID, start, false, adminActor)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if payouts[0].PayoutAmountCents != 100000 {
		t.Fatalf("expected 100000, got %d", payouts[0].PayoutAmountCents)
	}
}

func TestMarkPaidPostsLedgerTransaction(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, notifier := newTestService(t, db, "0.8")
	tourID := uuid.New()
	guide := uuid.New()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	seedSettledBooking(t, db, tourID, guide, start, 450000)

	payouts, err := svc.CreatePayoutsForOccurrence(context.Background(), tourID, start, false, adminActor)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	paid, err := svc.MarkPaid(context.Background(), payouts[0].ID, adminActor)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != enums.PayoutStatusPaid || paid.PaidAt == nil || paid.PaidBy == nil {
		t.Fatalf("unexpected paid payout %+v", paid)
	}

	var txn models.Transaction
	if err := db.First(&txn, "payout_id = ?", paid.ID).Error; err != nil {
		t.Fatalf("load payout transaction: %v", err)
	}
	if txn.Type != enums.TransactionTypePayout || txn.Status != enums.TransactionStatusConfirmed {
		t.Fatalf("unexpected ledger row %s/%s", txn.Type, txn.Status)
	}
	if txn.AmountCents != 360000 || txn.Code != paid.Reference {
		t.Fatalf("unexpected ledger amounts %+v", txn)
	}
	if len(notifier.kinds) != 1 || notifier.kinds[0] != enums.NotificationKindPayoutPaid {
		t.Fatalf("expected payout_paid event, got %v", notifier.kinds)
	}

	// A second attempt must hit the paid guard.
	_, err = svc.MarkPaid(context.Background(), paid.ID, adminActor)
	if code := errCode(t, err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %s", code)
	}
}

func TestMarkPaidRollsBackWhenLedgerFails(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, "0.8")
	tourID := uuid.New()
	guide := uuid.New()
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	seedSettledBooking(t, db, tourID, guide, start, 450000)

	payouts, err := svc.CreatePayoutsForOccurrence(context.Background(), tourID, start, false, adminActor)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	broken, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		Bookings: bookings.NewRepository(db),
		Ledger:   failingLedger{},
		TxRunner: gormTxRunner{db: db},
		Config: config.PayoutConfig{
			HoldbackDays:      3,
			DefaultPercentage: "0.8",
		},
		Now: func() time.Time { return testClock },
	})
	if err != nil {
		t.Fatalf("broken service: %v", err)
	}

	_, err = broken.MarkPaid(context.Background(), payouts[0].ID, adminActor)
	if code := errCode(t, err); code != pkgerrors.CodeLedgerPosting {
		t.Fatalf("expected ledger posting failure, got %s", code)
	}

	var reloaded models.Payout
	if err := db.First(&reloaded, "id = ?", payouts[0].ID).Error; err != nil {
		t.Fatalf("reload payout: %v", err)
	}
	if reloaded.Status != enums.PayoutStatusPending {
		t.Fatalf("failed posting must leave the payout pending, got %s", reloaded.Status)
	}
}

func TestMarkPaidRequiresAdmin(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc, _ := newTestService(t, db, "0.8")

	guideActor := bookings.Actor{UserID: uuid.New(), Role: enums.UserRoleGuide}
	_, err := svc.MarkPaid(context.Background(), uuid.New(), guideActor)
	if code := errCode(t, err); code != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %s", code)
	}
}
