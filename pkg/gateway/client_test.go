package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/venturetrips/venture-backend/pkg/config"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
)

func TestCreateSessionSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Signature") == "" {
			t.Error("expected signed request")
		}
		var req SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"reference": req.Reference,
			"pay_url":   "https://pay.example.com/" + req.Reference,
		})
	}))
	defer server.Close()

	client, err := NewClient(config.GatewayConfig{
		Name:           "paygate",
		BaseURL:        server.URL,
		Secret:         "secret",
		RequestTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	session, err := client.CreateSession(context.Background(), SessionRequest{
		Reference:   "bk-1:123",
		BookingID:   "8e7db5f5-4e2c-4a9b-a3a9-6f9f9f4f1a2b",
		AmountCents: 500000,
		Currency:    "IDR",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.PayURL != "https://pay.example.com/bk-1:123" {
		t.Fatalf("unexpected pay url %s", session.PayURL)
	}
}

func TestCreateSessionTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client, err := NewClient(config.GatewayConfig{
		Name:           "paygate",
		BaseURL:        server.URL,
		Secret:         "secret",
		RequestTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CreateSession(context.Background(), SessionRequest{
		Reference:   "bk-1:123",
		BookingID:   "8e7db5f5-4e2c-4a9b-a3a9-6f9f9f4f1a2b",
		AmountCents: 500000,
		Currency:    "IDR",
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeGatewayTimeout {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("expected gateway timeout to be retryable")
	}
}

func TestCreateSessionGatewayFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(config.GatewayConfig{
		Name:           "paygate",
		BaseURL:        server.URL,
		Secret:         "secret",
		RequestTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CreateSession(context.Background(), SessionRequest{
		Reference:   "bk-1:123",
		BookingID:   "8e7db5f5-4e2c-4a9b-a3a9-6f9f9f4f1a2b",
		AmountCents: 500000,
		Currency:    "IDR",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("unexpected error: %v", err)
	}
}
