package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
)

type stubResult struct {
	err error
}

func (r stubResult) Get(context.Context) (string, error) {
	return "msg-1", r.err
}

type stubPublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (p *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return stubResult{err: p.err}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRecordDeduplicatesPrompts(t *testing.T) {
	t.Parallel()

	repo := NewPromptsRepository(newTestDB(t))
	ctx := context.Background()
	bookingID := uuid.New()

	created, err := repo.Record(ctx, bookingID, enums.NotificationKindReviewPrompt)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if !created {
		t.Fatalf("first record must create the row")
	}

	created, err = repo.Record(ctx, bookingID, enums.NotificationKindReviewPrompt)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if created {
		t.Fatalf("repeat record must be a no-op")
	}

	// A different kind for the same booking is a fresh prompt.
	created, err = repo.Record(ctx, bookingID, enums.NotificationKindBookingCanceled)
	if err != nil || !created {
		t.Fatalf("different kind must create, got created=%v err=%v", created, err)
	}

	exists, err := repo.Exists(ctx, bookingID, enums.NotificationKindReviewPrompt)
	if err != nil || !exists {
		t.Fatalf("expected recorded prompt to exist, got exists=%v err=%v", exists, err)
	}
}

func TestBookingEventCarriesIdentifiers(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{}
	notifier := newWithPublisher(pub, nil)
	guideID := uuid.New()
	booking := &models.Booking{
		ID:              uuid.New(),
		TourID:          uuid.New(),
		CustomerID:      uuid.New(),
		IntendedGuideID: &guideID,
	}

	notifier.BookingEvent(context.Background(), enums.NotificationKindBookingApproved, booking)

	if len(pub.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["kind"] != "booking_approved" {
		t.Fatalf("unexpected kind attribute %q", msg.Attributes["kind"])
	}

	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.BookingID == nil || *event.BookingID != booking.ID {
		t.Fatalf("event must carry the booking id")
	}
	if event.GuideID == nil || *event.GuideID != guideID {
		t.Fatalf("event must carry the guide id")
	}
	if event.OccurredAt.IsZero() {
		t.Fatalf("event must carry a timestamp")
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{err: errors.New("topic gone")}
	notifier := newWithPublisher(pub, nil)

	// Must not panic or propagate.
	notifier.PayoutEvent(context.Background(), enums.NotificationKindPayoutPaid, &models.Payout{
		ID:      uuid.New(),
		TourID:  uuid.New(),
		GuideID: uuid.New(),
	})

	if len(pub.messages) != 1 {
		t.Fatalf("expected the publish attempt to happen")
	}
}

func TestNilNotifierDropsEvents(t *testing.T) {
	t.Parallel()

	notifier := New(nil, nil)
	notifier.BookingEvent(context.Background(), enums.NotificationKindBookingCreated, &models.Booking{ID: uuid.New()})
}
