package payouts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/internal/ledger"
	"github.com/venturetrips/venture-backend/pkg/config"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	dbtypes "github.com/venturetrips/venture-backend/pkg/db/types"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventNotifier interface {
	PayoutEvent(ctx context.Context, kind enums.NotificationKind, payout *models.Payout)
}

// GuideRevenue is one guide's share of an occurrence, derived from the
// confirmed ledger rows of its settled bookings.
type GuideRevenue struct {
	GuideID         uuid.UUID
	BaseAmountCents int64
	BookingIDs      dbtypes.UUIDArray
	Currency        string
}

// OccurrencePreview reports revenue and payout eligibility for one tour
// occurrence date.
type OccurrencePreview struct {
	TourID         uuid.UUID
	OccurrenceDate time.Time
	OccurrenceEnd  time.Time
	EligibleAt     time.Time
	Eligible       bool
	Guides         []GuideRevenue
}

// Service turns settled occurrence revenue into guide payouts.
type Service interface {
	// PreviewOccurrence computes per-guide revenue and whether the holdback
	// window has elapsed. It writes nothing.
	PreviewOccurrence(ctx context.Context, tourID uuid.UUID, occurrenceDate time.Time) (*OccurrencePreview, error)
	// CreatePayoutsForOccurrence materializes payout rows per guide. Force
	// bypasses the holdback window, never the paid-row guard.
	CreatePayoutsForOccurrence(ctx context.Context, tourID uuid.UUID, occurrenceDate time.Time, force bool, actor bookings.Actor) ([]models.Payout, error)
	MarkPaid(ctx context.Context, payoutID uuid.UUID, actor bookings.Actor) (*models.Payout, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Payout, string, error)
}

// ServiceParams wires the payout service dependencies.
type ServiceParams struct {
	Repo     Repository
	Bookings bookings.Repository
	Ledger   ledger.Service
	TxRunner txRunner
	Notifier eventNotifier
	Config   config.PayoutConfig
	Now      func() time.Time
}

type service struct {
	repo       Repository
	bookings   bookings.Repository
	ledger     ledger.Service
	tx         txRunner
	notifier   eventNotifier
	holdback   time.Duration
	percentage decimal.Decimal
	now        func() time.Time
}

// NewService builds a payout service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payouts repository required")
	}
	if params.Bookings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bookings repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	percentage, err := decimal.NewFromString(params.Config.DefaultPercentage)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse payout percentage")
	}
	if percentage.LessThanOrEqual(decimal.Zero) || percentage.GreaterThan(decimal.NewFromInt(1)) {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout percentage must be in (0, 1]")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		bookings:   params.Bookings,
		ledger:     params.Ledger,
		tx:         params.TxRunner,
		notifier:   params.Notifier,
		holdback:   time.Duration(params.Config.HoldbackDays) * 24 * time.Hour,
		percentage: percentage,
		now:        now,
	}, nil
}

func (s *service) PreviewOccurrence(ctx context.Context, tourID uuid.UUID, occurrenceDate time.Time) (*OccurrencePreview, error) {
	if tourID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tour id is required")
	}
	day := occurrenceDate.UTC().Truncate(24 * time.Hour)

	settled, err := s.bookings.ListSettledForOccurrenceDate(ctx, tourID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settled bookings")
	}

	preview := &OccurrencePreview{
		TourID:         tourID,
		OccurrenceDate: day,
	}
	byGuide := map[uuid.UUID]*GuideRevenue{}
	for i := range settled {
		booking := settled[i]
		if booking.IntendedGuideID == nil {
			continue
		}
		if booking.OccurrenceEnd.After(preview.OccurrenceEnd) {
			preview.OccurrenceEnd = booking.OccurrenceEnd
		}

		net, err := s.settledNet(ctx, booking.ID)
		if err != nil {
			return nil, err
		}

		revenue, ok := byGuide[*booking.IntendedGuideID]
		if !ok {
			revenue = &GuideRevenue{GuideID: *booking.IntendedGuideID, Currency: booking.Currency}
			byGuide[*booking.IntendedGuideID] = revenue
		}
		revenue.BaseAmountCents += net
		revenue.BookingIDs = append(revenue.BookingIDs, booking.ID)
	}

	for _, revenue := range byGuide {
		preview.Guides = append(preview.Guides, *revenue)
	}
	sort.Slice(preview.Guides, func(i, j int) bool {
		return preview.Guides[i].GuideID.String() < preview.Guides[j].GuideID.String()
	})

	if !preview.OccurrenceEnd.IsZero() {
		preview.EligibleAt = preview.OccurrenceEnd.Add(s.holdback)
		preview.Eligible = !s.now().UTC().Before(preview.EligibleAt)
	}
	return preview, nil
}

// settledNet is the canonical revenue for one booking: confirmed charge net
// minus confirmed refund net.
func (s *service) settledNet(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	txns, err := s.ledger.ListForBooking(ctx, bookingID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list booking transactions")
	}
	var net int64
	for _, txn := range txns {
		if txn.Status != enums.TransactionStatusConfirmed {
			continue
		}
		switch txn.Type {
		case enums.TransactionTypeCharge:
			net += txn.NetCents
		case enums.TransactionTypeRefund:
			net -= txn.NetCents
		}
	}
	return net, nil
}

func (s *service) CreatePayoutsForOccurrence(ctx context.Context, tourID uuid.UUID, occurrenceDate time.Time, force bool, actor bookings.Actor) ([]models.Payout, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payout runs require the admin role")
	}
	preview, err := s.PreviewOccurrence(ctx, tourID, occurrenceDate)
	if err != nil {
		return nil, err
	}
	if len(preview.Guides) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no settled revenue for this occurrence")
	}
	if !preview.Eligible && !force {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "holdback window has not elapsed").
			WithDetails(map[string]any{"eligible_at": preview.EligibleAt})
	}

	var results []models.Payout
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		results = results[:0]
		for _, revenue := range preview.Guides {
			payout, err := s.upsertGuidePayout(ctx, repo, preview, revenue)
			if err != nil {
				return err
			}
			results = append(results, *payout)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// upsertGuidePayout applies the three-way decision: create when absent,
// recompute in place when not yet paid, leave paid rows untouched.
func (s *service) upsertGuidePayout(ctx context.Context, repo Repository, preview *OccurrencePreview, revenue GuideRevenue) (*models.Payout, error) {
	existing, err := repo.FindByOccurrenceGuide(ctx, preview.TourID, preview.OccurrenceDate, revenue.GuideID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up payout")
	}

	if existing == nil {
		payout := &models.Payout{
			ID:                uuid.New(),
			TourID:            preview.TourID,
			OccurrenceDate:    preview.OccurrenceDate,
			GuideID:           revenue.GuideID,
			BaseAmountCents:   revenue.BaseAmountCents,
			Percentage:        s.percentage,
			PayoutAmountCents: payoutAmount(revenue.BaseAmountCents, s.percentage),
			BookingIDs:        revenue.BookingIDs,
			Status:            enums.PayoutStatusPending,
			Reference:         payoutReference(preview.TourID, preview.OccurrenceDate, revenue.GuideID),
			Currency:          revenue.Currency,
		}
		if err := repo.Create(ctx, payout); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		return payout, nil
	}

	if existing.Status == enums.PayoutStatusPaid {
		return existing, nil
	}

	amount := payoutAmount(revenue.BaseAmountCents, existing.Percentage)
	if err := repo.Update(ctx, existing.ID, map[string]any{
		"base_amount_cents":   revenue.BaseAmountCents,
		"payout_amount_cents": amount,
		"booking_ids":         revenue.BookingIDs,
		"status":              enums.PayoutStatusPending,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute payout")
	}
	existing.BaseAmountCents = revenue.BaseAmountCents
	existing.PayoutAmountCents = amount
	existing.BookingIDs = revenue.BookingIDs
	existing.Status = enums.PayoutStatusPending
	return existing, nil
}

func (s *service) MarkPaid(ctx context.Context, payoutID uuid.UUID, actor bookings.Actor) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "marking payouts paid requires the admin role")
	}

	var payout *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		if loaded.Status == enums.PayoutStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout is already paid")
		}
		if loaded.PayoutAmountCents <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
		}

		now := s.now().UTC()
		if err := repo.Update(ctx, loaded.ID, map[string]any{
			"status":  enums.PayoutStatusPaid,
			"paid_at": now,
			"paid_by": actor.UserID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout paid")
		}

		// The ledger row and the status flip commit together or not at all.
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordTransactionInput{
			PayoutID:    &loaded.ID,
			Type:        enums.TransactionTypePayout,
			Status:      enums.TransactionStatusConfirmed,
			Code:        loaded.Reference,
			PayeeID:     &loaded.GuideID,
			ActorID:     &actor.UserID,
			AmountCents: loaded.PayoutAmountCents,
			NetCents:    loaded.PayoutAmountCents,
			Currency:    loaded.Currency,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeLedgerPosting, err, "post payout transaction")
		}

		loaded.Status = enums.PayoutStatusPaid
		loaded.PaidAt = &now
		loaded.PaidBy = &actor.UserID
		payout = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.PayoutEvent(ctx, enums.NotificationKindPayoutPaid, payout)
	}
	return payout, nil
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Payout, string, error) {
	payouts, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	if len(payouts) <= limit {
		return payouts, "", nil
	}
	page := payouts[:limit]
	last := page[len(page)-1]
	next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	return page, next, nil
}

// payoutAmount rounds half away from zero to whole cents.
func payoutAmount(baseCents int64, percentage decimal.Decimal) int64 {
	return decimal.NewFromInt(baseCents).Mul(percentage).Round(0).IntPart()
}

func payoutReference(tourID uuid.UUID, occurrenceDate time.Time, guideID uuid.UUID) string {
	return fmt.Sprintf("po:%s:%s:%s", tourID, occurrenceDate.Format("2006-01-02"), guideID)
}

