package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/api/middleware"
	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/pagination"
)

type stubBookingService struct {
	create       func(ctx context.Context, input bookings.CreateBookingInput) (*models.Booking, error)
	get          func(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error)
	listCustomer func(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Booking, string, error)
	listGuide    func(ctx context.Context, guideID uuid.UUID, statuses []enums.BookingStatus, params pagination.Params) ([]models.Booking, string, error)
	approve      func(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error)
	reject       func(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor, note *string) (*models.Booking, error)
	cancel       func(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor, reason *string) (*models.Booking, error)
}

func (s *stubBookingService) Create(ctx context.Context, input bookings.CreateBookingInput) (*models.Booking, error) {
	if s.create != nil {
		return s.create(ctx, input)
	}
	panic("not implemented")
}

func (s *stubBookingService) Get(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error) {
	if s.get != nil {
		return s.get(ctx, bookingID, actor)
	}
	panic("not implemented")
}

func (s *stubBookingService) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Booking, string, error) {
	if s.listCustomer != nil {
		return s.listCustomer(ctx, customerID, params)
	}
	panic("not implemented")
}

func (s *stubBookingService) ListForGuide(ctx context.Context, guideID uuid.UUID, statuses []enums.BookingStatus, params pagination.Params) ([]models.Booking, string, error) {
	if s.listGuide != nil {
		return s.listGuide(ctx, guideID, statuses, params)
	}
	panic("not implemented")
}

func (s *stubBookingService) GuideApprove(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error) {
	if s.approve != nil {
		return s.approve(ctx, bookingID, actor)
	}
	panic("not implemented")
}

func (s *stubBookingService) GuideReject(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor, note *string) (*models.Booking, error) {
	if s.reject != nil {
		return s.reject(ctx, bookingID, actor, note)
	}
	panic("not implemented")
}

func (s *stubBookingService) Cancel(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor, reason *string) (*models.Booking, error) {
	if s.cancel != nil {
		return s.cancel(ctx, bookingID, actor, reason)
	}
	panic("not implemented")
}

func (s *stubBookingService) ExpirePayment(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error) {
	panic("not implemented")
}

func (s *stubBookingService) ExpireApproval(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error) {
	panic("not implemented")
}

func (s *stubBookingService) Complete(ctx context.Context, bookingID uuid.UUID, now time.Time) (bool, error) {
	panic("not implemented")
}

func authedRequest(method, target string, body string, userID uuid.UUID, role enums.UserRole) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	req = req.WithContext(middleware.WithRole(req.Context(), string(role)))
	return req
}

func withPathID(req *http.Request, id uuid.UUID) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("id", id.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}

func sampleBooking(customerID uuid.UUID) *models.Booking {
	start := time.Date(2026, 9, 20, 8, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:               uuid.New(),
		TourID:           uuid.New(),
		CustomerID:       customerID,
		Status:           enums.BookingStatusWaitingGuide,
		GuideDecision:    enums.GuideDecisionPending,
		OccurrenceStart:  start,
		OccurrenceEnd:    start.Add(2 * time.Hour),
		SeatCount:        2,
		TotalAmountCents: 500000,
		Currency:         "IDR",
		Participants: []models.BookingParticipant{
			{ID: uuid.New(), FullName: "Ayu Lestari", Age: 30, PriceAppliedCents: 250000, CountsSeat: true, PrimaryContact: true},
			{ID: uuid.New(), FullName: "Bayu Lestari", Age: 28, PriceAppliedCents: 250000, CountsSeat: true},
		},
	}
}

func TestCreateBookingSuccess(t *testing.T) {
	customerID := uuid.New()
	tourID := uuid.New()
	var captured bookings.CreateBookingInput
	svc := &stubBookingService{
		create: func(ctx context.Context, input bookings.CreateBookingInput) (*models.Booking, error) {
			captured = input
			booking := sampleBooking(customerID)
			booking.TourID = input.TourID
			return booking, nil
		},
	}

	body := `{
		"tour_id": "` + tourID.String() + `",
		"occurrence_start": "2026-09-20T08:00:00Z",
		"participants": [
			{"full_name": "  Ayu Lestari  ", "age": 30, "primary_contact": true},
			{"full_name": "Bayu Lestari", "age": 28}
		]
	}`
	req := authedRequest(http.MethodPost, "/api/v1/bookings", body, customerID, enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	CreateBooking(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.CustomerID != customerID {
		t.Fatalf("expected customer from context, got %s", captured.CustomerID)
	}
	if captured.TourID != tourID {
		t.Fatalf("unexpected tour id %s", captured.TourID)
	}
	if len(captured.Participants) != 2 {
		t.Fatalf("expected 2 participants got %d", len(captured.Participants))
	}
	if captured.Participants[0].FullName != "Ayu Lestari" {
		t.Fatalf("expected trimmed name, got %q", captured.Participants[0].FullName)
	}

	var payload struct {
		Data bookingResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.TourID != tourID {
		t.Fatalf("unexpected tour in response: %s", payload.Data.TourID)
	}
	if payload.Data.Status != string(enums.BookingStatusWaitingGuide) {
		t.Fatalf("unexpected status %s", payload.Data.Status)
	}
	if len(payload.Data.Participants) != 2 {
		t.Fatalf("expected participants in response")
	}
}

func TestCreateBookingRejectsUnknownFields(t *testing.T) {
	svc := &stubBookingService{}
	body := `{"tour_id": "` + uuid.NewString() + `", "surprise": true}`
	req := authedRequest(http.MethodPost, "/api/v1/bookings", body, uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	CreateBooking(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateBookingRequiresAuthContext(t *testing.T) {
	svc := &stubBookingService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	CreateBooking(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestGetBookingPropagatesServiceError(t *testing.T) {
	svc := &stubBookingService{
		get: func(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to another customer")
		},
	}

	req := withPathID(authedRequest(http.MethodGet, "/api/v1/bookings/x", "", uuid.New(), enums.UserRoleCustomer), uuid.New())
	resp := httptest.NewRecorder()
	GetBooking(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestListBookingsRoutesByRole(t *testing.T) {
	guideID := uuid.New()
	var capturedStatuses []enums.BookingStatus
	svc := &stubBookingService{
		listGuide: func(ctx context.Context, id uuid.UUID, statuses []enums.BookingStatus, params pagination.Params) ([]models.Booking, string, error) {
			if id != guideID {
				t.Fatalf("unexpected guide id %s", id)
			}
			capturedStatuses = statuses
			return []models.Booking{*sampleBooking(uuid.New())}, "next", nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/bookings?status=waiting_guide&status=paid", "", guideID, enums.UserRoleGuide)
	resp := httptest.NewRecorder()
	ListBookings(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(capturedStatuses) != 2 {
		t.Fatalf("expected 2 status filters got %d", len(capturedStatuses))
	}

	var payload struct {
		Data struct {
			Bookings   []bookingResponse `json:"bookings"`
			NextCursor string            `json:"next_cursor"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.NextCursor != "next" {
		t.Fatalf("expected cursor passthrough got %q", payload.Data.NextCursor)
	}
}

func TestListBookingsRejectsBadStatusFilter(t *testing.T) {
	svc := &stubBookingService{}
	req := authedRequest(http.MethodGet, "/api/v1/bookings?status=bogus", "", uuid.New(), enums.UserRoleGuide)
	resp := httptest.NewRecorder()
	ListBookings(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCancelBookingAcceptsEmptyBody(t *testing.T) {
	bookingID := uuid.New()
	customerID := uuid.New()
	called := false
	svc := &stubBookingService{
		cancel: func(ctx context.Context, id uuid.UUID, actor bookings.Actor, reason *string) (*models.Booking, error) {
			if id != bookingID {
				t.Fatalf("unexpected booking id %s", id)
			}
			if reason != nil {
				t.Fatalf("expected nil reason got %q", *reason)
			}
			called = true
			booking := sampleBooking(customerID)
			booking.Status = enums.BookingStatusCanceled
			return booking, nil
		},
	}

	req := withPathID(authedRequest(http.MethodPost, "/api/v1/bookings/x/cancel", "", customerID, enums.UserRoleCustomer), bookingID)
	resp := httptest.NewRecorder()
	CancelBooking(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !called {
		t.Fatalf("service not invoked")
	}
}

func TestCancelBookingPassesReason(t *testing.T) {
	bookingID := uuid.New()
	svc := &stubBookingService{
		cancel: func(ctx context.Context, id uuid.UUID, actor bookings.Actor, reason *string) (*models.Booking, error) {
			if reason == nil || *reason != "weather risk" {
				t.Fatalf("expected reason passthrough got %v", reason)
			}
			return sampleBooking(actor.UserID), nil
		},
	}

	req := withPathID(authedRequest(http.MethodPost, "/api/v1/bookings/x/cancel", `{"reason":"weather risk"}`, uuid.New(), enums.UserRoleCustomer), bookingID)
	resp := httptest.NewRecorder()
	CancelBooking(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestGuideApproveInvalidPathParam(t *testing.T) {
	svc := &stubBookingService{}
	req := authedRequest(http.MethodPost, "/api/v1/guide/bookings/nope/approve", "", uuid.New(), enums.UserRoleGuide)
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("id", "nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))

	resp := httptest.NewRecorder()
	GuideApproveBooking(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGuideRejectPassesNote(t *testing.T) {
	bookingID := uuid.New()
	guideID := uuid.New()
	svc := &stubBookingService{
		reject: func(ctx context.Context, id uuid.UUID, actor bookings.Actor, note *string) (*models.Booking, error) {
			if actor.UserID != guideID {
				t.Fatalf("unexpected actor %s", actor.UserID)
			}
			if note == nil || *note != "fully booked elsewhere" {
				t.Fatalf("expected note passthrough got %v", note)
			}
			booking := sampleBooking(uuid.New())
			booking.Status = enums.BookingStatusRejected
			return booking, nil
		},
	}

	req := withPathID(authedRequest(http.MethodPost, "/api/v1/guide/bookings/x/reject", `{"note":"fully booked elsewhere"}`, guideID, enums.UserRoleGuide), bookingID)
	resp := httptest.NewRecorder()
	GuideRejectBooking(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}
