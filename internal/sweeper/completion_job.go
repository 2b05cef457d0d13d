package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/venturetrips/venture-backend/internal/notifications"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	"github.com/venturetrips/venture-backend/pkg/logger"
	"github.com/venturetrips/venture-backend/pkg/metrics"
)

type endedPaidLister interface {
	ListEndedPaid(ctx context.Context, endedBefore, endedAfter time.Time, limit int) ([]models.Booking, error)
}

type bookingCompleter interface {
	Complete(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error)
}

type eventNotifier interface {
	BookingEvent(ctx context.Context, kind enums.NotificationKind, booking *models.Booking)
}

// CompletionJobParams configure the completion sweep.
type CompletionJobParams struct {
	Logger   *logger.Logger
	Lister   endedPaidLister
	Bookings bookingCompleter
	Prompts  notifications.PromptsRepository
	Notifier eventNotifier
	Metrics  *metrics.SweeperMetrics
	Window   time.Duration
	Now      func() time.Time
}

// NewCompletionJob builds the job that completes paid bookings whose
// occurrence ended and emits the one-time review prompt.
func NewCompletionJob(params CompletionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lister == nil {
		return nil, fmt.Errorf("booking lister required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking service required")
	}
	if params.Prompts == nil {
		return nil, fmt.Errorf("prompts repository required")
	}
	window := params.Window
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &completionJob{
		logg:     params.Logger,
		lister:   params.Lister,
		bookings: params.Bookings,
		prompts:  params.Prompts,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		window:   window,
		now:      now,
	}, nil
}

type completionJob struct {
	logg     *logger.Logger
	lister   endedPaidLister
	bookings bookingCompleter
	prompts  notifications.PromptsRepository
	notifier eventNotifier
	metrics  *metrics.SweeperMetrics
	window   time.Duration
	now      func() time.Time
}

func (j *completionJob) Name() string { return "completion" }

func (j *completionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	ended, err := j.lister.ListEndedPaid(ctx, now, now.Add(-j.window), sweepBatchSize)
	if err != nil {
		return fmt.Errorf("query ended bookings: %w", err)
	}

	var errs []error
	swept := 0
	for i := range ended {
		booking := ended[i]
		changed, err := j.bookings.Complete(ctx, booking.ID, now)
		if err != nil {
			j.logg.Error(j.logg.WithBookingID(ctx, booking.ID.String()), "complete booking", err)
			errs = append(errs, err)
			continue
		}
		if !changed {
			continue
		}
		swept++
		j.promptReview(ctx, &booking)
	}

	j.metrics.AddSwept(j.Name(), swept)
	j.logg.Info(j.logg.WithField(ctx, "count", swept), "completion sweep complete")
	return multierr.Combine(errs...)
}

// promptReview emits the review prompt at most once per booking. Prompt
// failures are logged, not returned, so completion itself never reruns.
func (j *completionJob) promptReview(ctx context.Context, booking *models.Booking) {
	created, err := j.prompts.Record(ctx, booking.ID, enums.NotificationKindReviewPrompt)
	if err != nil {
		j.logg.Error(j.logg.WithBookingID(ctx, booking.ID.String()), "record review prompt", err)
		return
	}
	if !created || j.notifier == nil {
		return
	}
	j.notifier.BookingEvent(ctx, enums.NotificationKindReviewPrompt, booking)
}
