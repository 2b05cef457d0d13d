// Package calendar answers occupancy questions about tour occurrences:
// how many seats an occurrence has left and whether a guide is already
// committed elsewhere. All functions run against the handle they are given
// so callers can evaluate them inside an admission transaction.
package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
)

// guideActiveStatuses are the statuses that commit a guide to a window. A
// waiting_guide booking does not: the guide has not accepted it yet.
var guideActiveStatuses = []enums.BookingStatus{
	enums.BookingStatusAwaitingPayment,
	enums.BookingStatusPaid,
}

// TakenSlots sums seat-holding participants across bookings for the exact
// occurrence key.
func TakenSlots(ctx context.Context, db *gorm.DB, tourID uuid.UUID, occurrenceStart time.Time) (int, error) {
	if tourID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "tour id is required")
	}

	var taken int64
	err := db.WithContext(ctx).
		Model(&models.Booking{}).
		Select("COALESCE(SUM(seat_count), 0)").
		Where("tour_id = ? AND occurrence_start = ? AND status IN ?",
			tourID, occurrenceStart.UTC(), enums.SeatHoldingStatuses).
		Scan(&taken).Error
	if err != nil {
		return 0, err
	}
	return int(taken), nil
}

// RemainingCapacity returns how many seats are still admissible for the
// occurrence. Never negative.
func RemainingCapacity(ctx context.Context, db *gorm.DB, tour *models.Tour, occurrenceStart time.Time) (int, error) {
	if tour == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "tour is required")
	}
	taken, err := TakenSlots(ctx, db, tour.ID, occurrenceStart)
	if err != nil {
		return 0, err
	}
	remaining := tour.Capacity - taken
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// GuideBusyQuery describes one guide-conflict probe.
type GuideBusyQuery struct {
	GuideID uuid.UUID
	Start   time.Time
	End     time.Time
	// SameTourID exempts bookings of this tour: a guide may hold the same
	// occurrence from multiple bookings.
	SameTourID uuid.UUID
	// ExcludeBookingID ignores the booking being mutated.
	ExcludeBookingID uuid.UUID
}

// IsGuideBusy reports whether another active booking commits the guide to a
// window overlapping the half-open interval [Start, End) on a different tour.
func IsGuideBusy(ctx context.Context, db *gorm.DB, query GuideBusyQuery) (bool, error) {
	if query.GuideID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "guide id is required")
	}
	if !query.End.After(query.Start) {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "occurrence end must be after start")
	}

	q := db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("intended_guide_id = ? AND status IN ?", query.GuideID, guideActiveStatuses).
		Where("occurrence_start < ? AND ? < occurrence_end", query.End.UTC(), query.Start.UTC())
	if query.SameTourID != uuid.Nil {
		q = q.Where("tour_id <> ?", query.SameTourID)
	}
	if query.ExcludeBookingID != uuid.Nil {
		q = q.Where("id <> ?", query.ExcludeBookingID)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasGuideLockedOccurrence reports whether the guide already holds an active
// booking for this exact occurrence. Later bookings for the same occurrence
// skip the approval round-trip when this is true.
func HasGuideLockedOccurrence(ctx context.Context, db *gorm.DB, guideID, tourID uuid.UUID, occurrenceStart time.Time) (bool, error) {
	if guideID == uuid.Nil || tourID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "guide id and tour id are required")
	}

	var count int64
	err := db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("intended_guide_id = ? AND tour_id = ? AND occurrence_start = ? AND status IN ?",
			guideID, tourID, occurrenceStart.UTC(), guideActiveStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResolveGuide picks the guide for a new booking. An explicit hint wins when
// the guide is assigned to the tour and free for the window; otherwise the
// first assigned guide free for the window is used.
func ResolveGuide(ctx context.Context, db *gorm.DB, tour *models.Tour, start, end time.Time, hint *uuid.UUID) (uuid.UUID, error) {
	if tour == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "tour is required")
	}
	if len(tour.GuideIDs) == 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeConflict, "tour has no guides configured")
	}

	if hint != nil && *hint != uuid.Nil {
		if !tour.GuideIDs.Contains(*hint) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "requested guide is not assigned to this tour")
		}
		busy, err := IsGuideBusy(ctx, db, GuideBusyQuery{
			GuideID:    *hint,
			Start:      start,
			End:        end,
			SameTourID: tour.ID,
		})
		if err != nil {
			return uuid.Nil, err
		}
		if busy {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeConflict, "requested guide is busy for this window")
		}
		return *hint, nil
	}

	for _, guideID := range tour.GuideIDs {
		busy, err := IsGuideBusy(ctx, db, GuideBusyQuery{
			GuideID:    guideID,
			Start:      start,
			End:        end,
			SameTourID: tour.ID,
		})
		if err != nil {
			return uuid.Nil, err
		}
		if !busy {
			return guideID, nil
		}
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeConflict, "no guide is free for this window")
}
