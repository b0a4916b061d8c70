package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckoutProLookupPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payments/12345" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                 12345,
			"status":             "approved",
			"status_detail":      "accredited",
			"external_reference": "42",
			"payment_method_id":  "pix",
			"transaction_amount": 159.90,
			"currency_id":        "brl",
			"date_approved":      "2025-03-01T12:00:00Z",
		})
	}))
	t.Cleanup(server.Close)

	provider, err := NewCheckoutProProvider(CheckoutProConfig{
		BaseURL:     server.URL,
		AccessToken: "token-1",
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	details, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "12345"})
	if err != nil {
		t.Fatalf("lookup payment: %v", err)
	}

	if details.Provider != "checkoutpro" {
		t.Errorf("unexpected provider %q", details.Provider)
	}
	if details.IntentID != "12345" {
		t.Errorf("unexpected intent id %q", details.IntentID)
	}
	if details.Status != StatusSucceeded {
		t.Errorf("unexpected status %q", details.Status)
	}
	if details.ProviderStatus != "approved" {
		t.Errorf("unexpected provider status %q", details.ProviderStatus)
	}
	if details.ExternalReference != "42" {
		t.Errorf("unexpected external reference %q", details.ExternalReference)
	}
	if details.Method != "pix" {
		t.Errorf("unexpected method %q", details.Method)
	}
	if details.Amount != 15990 {
		t.Errorf("expected amount in minor units 15990, got %d", details.Amount)
	}
	if details.Currency != "BRL" {
		t.Errorf("unexpected currency %q", details.Currency)
	}
	if details.CapturedAt == nil {
		t.Errorf("expected capturedAt to be set")
	}
}

func TestCheckoutProLookupPaymentGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"internal"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	provider, err := NewCheckoutProProvider(CheckoutProConfig{BaseURL: server.URL, AccessToken: "token-1"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = provider.LookupPayment(context.Background(), LookupRequest{IntentID: "9"})
	if err == nil {
		t.Fatalf("expected gateway error")
	}
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected GatewayError, got %T", err)
	}
	if gatewayErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status code %d", gatewayErr.StatusCode)
	}
	if !gatewayErr.Temporary() {
		t.Fatalf("expected 5xx to be temporary")
	}
}

func TestCheckoutProCreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/checkout/preferences" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Idempotency-Key"); got != "idem-1" {
			t.Fatalf("unexpected idempotency key %q", got)
		}

		var payload checkoutProPreferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if len(payload.Items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(payload.Items))
		}
		if payload.Items[0].UnitPrice != 49.90 {
			t.Fatalf("expected major-unit price 49.90, got %v", payload.Items[0].UnitPrice)
		}
		if payload.ExternalReference != "42" {
			t.Fatalf("unexpected external reference %q", payload.ExternalReference)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(checkoutProPreferenceResponse{
			ID:        "pref-1",
			InitPoint: "https://gateway.example/pay/pref-1",
		})
	}))
	t.Cleanup(server.Close)

	provider, err := NewCheckoutProProvider(CheckoutProConfig{BaseURL: server.URL, AccessToken: "token-1"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Currency:       "BRL",
		IdempotencyKey: "idem-1",
		Metadata:       map[string]string{"external_reference": "42"},
		Items: []CheckoutLineItem{
			{Name: "Mug", Quantity: 1, Amount: 4990},
		},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if session.ID != "pref-1" {
		t.Errorf("unexpected session id %q", session.ID)
	}
	if session.Provider != "checkoutpro" {
		t.Errorf("unexpected provider %q", session.Provider)
	}
	if session.RedirectURL != "https://gateway.example/pay/pref-1" {
		t.Errorf("unexpected redirect url %q", session.RedirectURL)
	}
}

func TestCheckoutProConfirmNotSupported(t *testing.T) {
	provider, err := NewCheckoutProProvider(CheckoutProConfig{BaseURL: "https://gateway.example", AccessToken: "token-1"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.Confirm(context.Background(), ConfirmRequest{IntentID: "1"}); !errors.Is(err, ErrOperationNotSupported) {
		t.Fatalf("expected ErrOperationNotSupported, got %v", err)
	}
	if _, err := provider.Capture(context.Background(), CaptureRequest{IntentID: "1"}); !errors.Is(err, ErrOperationNotSupported) {
		t.Fatalf("expected ErrOperationNotSupported, got %v", err)
	}
}
