package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/venturetrips/venture-backend/pkg/config"
	pkgerrors "github.com/venturetrips/venture-backend/pkg/errors"
)

// SessionRequest asks the gateway to host a payment page for one booking.
// Reference is the correlation key echoed back on the callback.
type SessionRequest struct {
	Reference   string `json:"reference"`
	BookingID   string `json:"booking_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Session is the gateway's answer: where to send the payer.
type Session struct {
	Reference string    `json:"reference"`
	PayURL    string    `json:"pay_url"`
	ExpiresAt time.Time `json:"-"`
}

// Client talks to the external payment gateway over HTTP. All calls are
// bounded by the configured request timeout.
type Client struct {
	name       string
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewClient(cfg config.GatewayConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("gateway secret is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing gateway base url: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		secret:  cfg.Secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Name identifies the gateway in persisted sessions and ledger rows.
func (c *Client) Name() string {
	return c.name
}

// CreateSession requests a hosted payment URL. Timeouts surface as a
// retryable gateway timeout error so callers can distinguish "try again"
// from a hard failure.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.Reference == "" || req.BookingID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session reference and booking id are required")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session amount must be positive")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding session request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building session request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Signature", Sign(c.secret, SignedFields{
		Reference:   req.Reference,
		BookingID:   req.BookingID,
		Status:      "requested",
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	}))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "gateway session request timed out")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway session request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("gateway returned status %d", resp.StatusCode))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding gateway session response")
	}
	if session.PayURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway response missing pay url")
	}
	if session.Reference == "" {
		session.Reference = req.Reference
	}
	session.ExpiresAt = time.Unix(req.ExpiresAt, 0).UTC()
	return &session, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
