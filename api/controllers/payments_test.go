package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/venturetrips/venture-backend/internal/bookings"
	"github.com/venturetrips/venture-backend/pkg/db/models"
	"github.com/venturetrips/venture-backend/pkg/enums"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
	"github.com/venturetrips/venture-backend/pkg/gateway"
)

type stubPaymentService struct {
	createSession func(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error)
}

func (s *stubPaymentService) CreateSession(ctx context.Context, bookingID uuid.UUID, actor bookings.Actor) (*models.Booking, error) {
	if s.createSession != nil {
		return s.createSession(ctx, bookingID, actor)
	}
	panic("not implemented")
}

func (s *stubPaymentService) HandleCallback(ctx context.Context, payload gateway.CallbackPayload) error {
	panic("not implemented")
}

func TestCreatePaymentSessionReturnsPayURL(t *testing.T) {
	bookingID := uuid.New()
	customerID := uuid.New()
	expiry := time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC)
	svc := &stubPaymentService{
		createSession: func(ctx context.Context, id uuid.UUID, actor bookings.Actor) (*models.Booking, error) {
			if id != bookingID {
				t.Fatalf("unexpected booking id %s", id)
			}
			if actor.UserID != customerID {
				t.Fatalf("unexpected actor %s", actor.UserID)
			}
			booking := sampleBooking(customerID)
			booking.ID = bookingID
			booking.Status = enums.BookingStatusAwaitingPayment
			booking.Session = models.PaymentSession{
				Gateway:     "midpay",
				ExternalRef: bookingID.String() + ":1",
				Status:      enums.SessionStatusPending,
				PayURL:      "https://pay.example/" + bookingID.String(),
				ExpiresAt:   &expiry,
			}
			return booking, nil
		},
	}

	req := withPathID(authedRequest(http.MethodPost, "/api/v1/bookings/x/payment-session", "", customerID, enums.UserRoleCustomer), bookingID)
	resp := httptest.NewRecorder()
	CreatePaymentSession(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Data bookingResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.Session == nil {
		t.Fatalf("expected payment session in response")
	}
	if payload.Data.Session.PayURL == "" || payload.Data.Session.Status != string(enums.SessionStatusPending) {
		t.Fatalf("unexpected session %+v", payload.Data.Session)
	}
}

func TestCreatePaymentSessionPropagatesStateConflict(t *testing.T) {
	svc := &stubPaymentService{
		createSession: func(ctx context.Context, id uuid.UUID, actor bookings.Actor) (*models.Booking, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting payment")
		},
	}

	req := withPathID(authedRequest(http.MethodPost, "/api/v1/bookings/x/payment-session", "", uuid.New(), enums.UserRoleCustomer), uuid.New())
	resp := httptest.NewRecorder()
	CreatePaymentSession(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}
