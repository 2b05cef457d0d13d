package notifications

import (
	"context"
	"encoding/json"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	"github.com/venturetrips/venture-backend/pkg/logger"
	vtpubsub "github.com/venturetrips/venture-backend/pkg/pubsub"
)

const publishTimeout = 15 * time.Second

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type gcpPublisher struct {
	inner *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.inner.Publish(ctx, msg)
}

// Event is the wire shape of one notification on the topic.
type Event struct {
	Kind       enums.NotificationKind `json:"kind"`
	BookingID  *uuid.UUID             `json:"booking_id,omitempty"`
	PayoutID   *uuid.UUID             `json:"payout_id,omitempty"`
	CustomerID *uuid.UUID             `json:"customer_id,omitempty"`
	GuideID    *uuid.UUID             `json:"guide_id,omitempty"`
	TourID     *uuid.UUID             `json:"tour_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Notifier publishes lifecycle events best-effort. Publish failures are
// logged and never surface to the calling operation.
type Notifier struct {
	pub  publisher
	logg *logger.Logger
	now  func() time.Time
}

// New builds a notifier on the configured notification topic. A nil client
// yields a notifier that drops every event.
func New(client *vtpubsub.Client, logg *logger.Logger) *Notifier {
	var pub publisher
	if client != nil {
		if p := client.NotificationPublisher(); p != nil {
			pub = gcpPublisher{inner: p}
		}
	}
	return &Notifier{pub: pub, logg: logg, now: time.Now}
}

func newWithPublisher(pub publisher, logg *logger.Logger) *Notifier {
	return &Notifier{pub: pub, logg: logg, now: time.Now}
}

// BookingEvent emits a booking lifecycle event.
func (n *Notifier) BookingEvent(ctx context.Context, kind enums.NotificationKind, booking *models.Booking) {
	if booking == nil {
		return
	}
	n.emit(ctx, Event{
		Kind:       kind,
		BookingID:  &booking.ID,
		CustomerID: &booking.CustomerID,
		GuideID:    booking.IntendedGuideID,
		TourID:     &booking.TourID,
	})
}

// PayoutEvent emits a payout lifecycle event.
func (n *Notifier) PayoutEvent(ctx context.Context, kind enums.NotificationKind, payout *models.Payout) {
	if payout == nil {
		return
	}
	n.emit(ctx, Event{
		Kind:     kind,
		PayoutID: &payout.ID,
		GuideID:  &payout.GuideID,
		TourID:   &payout.TourID,
	})
}

func (n *Notifier) emit(ctx context.Context, event Event) {
	if n == nil || n.pub == nil {
		return
	}
	event.OccurredAt = n.now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		n.logError(ctx, event.Kind, err)
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	result := n.pub.Publish(publishCtx, &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"kind": event.Kind.String(),
		},
	})
	if _, err := result.Get(publishCtx); err != nil {
		n.logError(ctx, event.Kind, err)
	}
}

func (n *Notifier) logError(ctx context.Context, kind enums.NotificationKind, err error) {
	if n.logg == nil {
		return
	}
	n.logg.Error(n.logg.WithField(ctx, "kind", kind.String()), "publish notification event", err)
}
