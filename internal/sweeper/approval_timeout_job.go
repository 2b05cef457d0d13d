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

type approvalExpiredLister interface {
	ListApprovalExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Booking, error)
}

type approvalExpirer interface {
	ExpireApproval(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error)
}

// ApprovalTimeoutJobParams configure the guide approval timeout sweep.
type ApprovalTimeoutJobParams struct {
	Logger   *logger.Logger
	Lister   approvalExpiredLister
	Bookings approvalExpirer
	Metrics  *metrics.SweeperMetrics
	Now      func() time.Time
}

// NewApprovalTimeoutJob builds the job that rejects bookings whose guide
// never answered.
func NewApprovalTimeoutJob(params ApprovalTimeoutJobParams) (Job, error) {
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
	return &approvalTimeoutJob{
		logg:     params.Logger,
		lister:   params.Lister,
		bookings: params.Bookings,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

type approvalTimeoutJob struct {
	logg     *logger.Logger
	lister   approvalExpiredLister
	bookings approvalExpirer
	metrics  *metrics.SweeperMetrics
	now      func() time.Time
}

func (j *approvalTimeoutJob) Name() string { return "approval-timeout" }

func (j *approvalTimeoutJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.lister.ListApprovalExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("query expired approvals: %w", err)
	}

	var errs []error
	swept := 0
	for _, booking := range expired {
		changed, err := j.bookings.ExpireApproval(ctx, booking.ID, now)
		if err != nil {
			j.logg.Error(j.logg.WithBookingID(ctx, booking.ID.String()), "expire approval window", err)
			errs = append(errs, err)
			continue
		}
		if changed {
			swept++
		}
	}

	j.metrics.AddSwept(j.Name(), swept)
	j.logg.Info(j.logg.WithField(ctx, "count", swept), "approval timeout sweep complete")
	return multierr.Combine(errs...)
}
