package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// ErrOperationNotSupported is returned for provider operations the gateway
// performs implicitly (Checkout Pro captures on approval).
var ErrOperationNotSupported = errors.New("payments: operation not supported by provider")

// CheckoutProLogger defines the logging contract for gateway operations.
type CheckoutProLogger func(ctx context.Context, event string, fields map[string]any)

// CheckoutProConfig configures the CheckoutProProvider.
type CheckoutProConfig struct {
	BaseURL         string
	AccessToken     string
	NotificationURL string
	HTTPClient      *http.Client
	Logger          CheckoutProLogger
	Clock           func() time.Time
}

// CheckoutProProvider implements Provider against a hosted-checkout gateway.
// Amounts cross the wire as decimal major units; the provider converts from
// and to minor units at the boundary.
type CheckoutProProvider struct {
	baseURL         string
	token           string
	notificationURL string
	httpClient      *http.Client
	logger          CheckoutProLogger
	clock           func() time.Time
}

// NewCheckoutProProvider constructs a gateway provider from configuration.
func NewCheckoutProProvider(cfg CheckoutProConfig) (*CheckoutProProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("checkoutpro: base url is required")
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("checkoutpro: access token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &CheckoutProProvider{
		baseURL:         baseURL,
		token:           token,
		notificationURL: strings.TrimSpace(cfg.NotificationURL),
		httpClient:      httpClient,
		logger:          logger,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

type checkoutProPreferenceItem struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CurrencyID  string  `json:"currency_id,omitempty"`
}

type checkoutProBackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type checkoutProPreferenceRequest struct {
	Items             []checkoutProPreferenceItem `json:"items"`
	ExternalReference string                      `json:"external_reference,omitempty"`
	NotificationURL   string                      `json:"notification_url,omitempty"`
	BackURLs          *checkoutProBackURLs        `json:"back_urls,omitempty"`
	AutoReturn        string                      `json:"auto_return,omitempty"`
	Metadata          map[string]string           `json:"metadata,omitempty"`
}

type checkoutProPreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
	DateOfExpiration string `json:"date_of_expiration"`
}

type checkoutProPayment struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	PaymentMethodID   string      `json:"payment_method_id"`
	TransactionAmount float64     `json:"transaction_amount"`
	CurrencyID        string      `json:"currency_id"`
	DateApproved      string      `json:"date_approved"`
}

// CreateCheckoutSession creates a hosted checkout preference.
func (p *CheckoutProProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("checkoutpro: provider is nil")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	items := make([]checkoutProPreferenceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkoutProPreferenceItem{
			Title:       item.Name,
			Description: item.Description,
			Quantity:    max64(item.Quantity, 1),
			UnitPrice:   minorToMajor(item.Amount),
			CurrencyID:  strings.ToUpper(defaultString(item.Currency, currency)),
		})
	}
	if len(items) == 0 {
		items = append(items, checkoutProPreferenceItem{
			Title:      "Order",
			Quantity:   1,
			UnitPrice:  minorToMajor(req.Amount),
			CurrencyID: currency,
		})
	}

	payload := checkoutProPreferenceRequest{
		Items:             items,
		ExternalReference: req.Metadata["external_reference"],
		NotificationURL:   p.notificationURL,
		Metadata:          req.Metadata,
	}
	if req.SuccessURL != "" || req.CancelURL != "" {
		payload.BackURLs = &checkoutProBackURLs{
			Success: req.SuccessURL,
			Failure: req.CancelURL,
			Pending: req.SuccessURL,
		}
		if req.SuccessURL != "" {
			payload.AutoReturn = "approved"
		}
	}

	var resp checkoutProPreferenceResponse
	if err := p.do(ctx, http.MethodPost, "/checkout/preferences", req.IdempotencyKey, payload, &resp); err != nil {
		return CheckoutSession{}, fmt.Errorf("checkoutpro: create preference: %w", err)
	}

	p.logger(ctx, "payments.checkoutpro.preference.created", map[string]any{
		"preferenceId":      resp.ID,
		"externalReference": payload.ExternalReference,
	})

	expiresAt := p.clock().Add(24 * time.Hour)
	if resp.DateOfExpiration != "" {
		if ts, err := time.Parse(time.RFC3339, resp.DateOfExpiration); err == nil {
			expiresAt = ts.UTC()
		}
	}

	return CheckoutSession{
		ID:          resp.ID,
		Provider:    "checkoutpro",
		RedirectURL: resp.InitPoint,
		ExpiresAt:   expiresAt,
	}, nil
}

// Confirm is not applicable; the gateway confirms on the hosted page.
func (p *CheckoutProProvider) Confirm(ctx context.Context, req ConfirmRequest) (PaymentDetails, error) {
	return PaymentDetails{}, ErrOperationNotSupported
}

// Capture is not applicable; approved payments are captured by the gateway.
func (p *CheckoutProProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	return PaymentDetails{}, ErrOperationNotSupported
}

// Refund requests a refund, optionally partial.
func (p *CheckoutProProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("checkoutpro: provider is nil")
	}
	paymentID := strings.TrimSpace(req.IntentID)
	if paymentID == "" {
		return PaymentDetails{}, errors.New("checkoutpro: payment id is required")
	}

	var payload any
	if req.Amount != nil {
		payload = map[string]float64{"amount": minorToMajor(*req.Amount)}
	}
	if err := p.do(ctx, http.MethodPost, "/v1/payments/"+paymentID+"/refunds", req.IdempotencyKey, payload, nil); err != nil {
		return PaymentDetails{}, fmt.Errorf("checkoutpro: refund payment %s: %w", paymentID, err)
	}

	p.logger(ctx, "payments.checkoutpro.payment.refunded", map[string]any{
		"paymentId": paymentID,
	})
	return p.LookupPayment(ctx, LookupRequest{IntentID: paymentID})
}

// LookupPayment fetches the current payment details from the gateway.
func (p *CheckoutProProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("checkoutpro: provider is nil")
	}
	paymentID := strings.TrimSpace(req.IntentID)
	if paymentID == "" {
		return PaymentDetails{}, errors.New("checkoutpro: payment id is required")
	}

	var payment checkoutProPayment
	if err := p.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, "", nil, &payment); err != nil {
		return PaymentDetails{}, fmt.Errorf("checkoutpro: lookup payment %s: %w", paymentID, err)
	}

	return checkoutProPaymentDetails(payment), nil
}

func checkoutProPaymentDetails(payment checkoutProPayment) PaymentDetails {
	rawStatus := strings.ToLower(strings.TrimSpace(payment.Status))

	status := StatusPending
	switch rawStatus {
	case "approved":
		status = StatusSucceeded
	case "rejected", "cancelled":
		status = StatusFailed
	case "refunded", "charged_back":
		status = StatusRefunded
	}

	var capturedAt *time.Time
	captured := status == StatusSucceeded
	if payment.DateApproved != "" {
		if ts, err := time.Parse(time.RFC3339, payment.DateApproved); err == nil {
			utc := ts.UTC()
			capturedAt = &utc
		}
	}

	return PaymentDetails{
		Provider:          "checkoutpro",
		IntentID:          payment.ID.String(),
		Status:            status,
		ProviderStatus:    rawStatus,
		ExternalReference: strings.TrimSpace(payment.ExternalReference),
		Method:            payment.PaymentMethodID,
		Amount:            majorToMinor(payment.TransactionAmount),
		Currency:          strings.ToUpper(payment.CurrencyID),
		Captured:          captured,
		CapturedAt:        capturedAt,
		Raw: map[string]any{
			"status":        rawStatus,
			"status_detail": payment.StatusDetail,
		},
	}
}

func (p *CheckoutProProvider) do(ctx context.Context, method, path, idempotencyKey string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("X-Idempotency-Key", key)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &GatewayError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GatewayError carries the HTTP status of a failed gateway call.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "payments: gateway error"
	}
	if e.Body == "" {
		return fmt.Sprintf("payments: gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("payments: gateway returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is worth retrying.
func (e *GatewayError) Temporary() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func minorToMajor(amount int64) float64 {
	return float64(amount) / 100
}

func majorToMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
