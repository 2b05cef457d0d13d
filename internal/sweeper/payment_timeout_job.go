package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/logger"
	"github.com/venturetrips/venture-backend/pkg/metrics"
)

const sweepBatchSize = 100

type paymentExpiredLister interface {
	ListPaymentExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
}

type paymentExpirer interface {
	ExpirePayment(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error)
}

// PaymentTimeoutJobParams configure the payment timeout sweep.
type PaymentTimeoutJobParams struct {
	Logger   *logger.Logger
	Lister   paymentExpiredLister
	Bookings paymentExpirer
	Metrics  *metrics.SweeperMetrics
	Now      func() time.Time
}

// NewPaymentTimeoutJob builds the job that cancels bookings whose payment
// window elapsed.
func NewPaymentTimeoutJob(params PaymentTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lister == nil {
		return nil, fmt.Errorf("booking lister required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &paymentTimeoutJob{
		logg:     params.Logger,
		lister:   params.Lister,
		bookings: params.Bookings,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

type paymentTimeoutJob struct {
	logg     *logger.Logger
	lister   paymentExpiredLister
	bookings paymentExpirer
	metrics  *metrics.SweeperMetrics
	now      func() time.Time
}

func (j *paymentTimeoutJob) Name() string { return "payment-timeout" }

func (j *paymentTimeoutJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.lister.ListPaymentExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("query expired payments: %w", err)
	}

	var errs []error
	swept := 0
	for _, booking := range expired {
		changed, err := j.bookings.ExpirePayment(ctx, booking.ID, now)
		if err != nil {
			// One stuck booking must not stall the rest of the sweep.
			j.logg.Error(j.logg.WithBookingID(ctx, booking.ID.String()), "expire payment window", err)
			errs = append(errs, err)
			continue
		}
		if changed {
			swept++
		}
	}

	j.metrics.AddSwept(j.Name(), swept)
	j.logg.Info(j.logg.WithField(ctx, "count", swept), "payment timeout sweep complete")
	return multierr.Combine(errs...)
}
