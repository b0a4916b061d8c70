package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/lumamart/api/internal/services"
)

func shippingRouter(rates services.RateService) chi.Router {
	r := chi.NewRouter()
	NewShippingHandlers(rates).Routes(r)
	return r
}

func TestQuoteRatesEndpoint(t *testing.T) {
	var captured services.RateQuoteCommand
	router := shippingRouter(&stubRateService{
		quoteFunc: func(_ context.Context, cmd services.RateQuoteCommand) ([]services.RateOption, error) {
			captured = cmd
			return []services.RateOption{
				{ID: "1", Name: "PAC", Price: 1890, DeliveryDays: 8, CarrierName: "Correios"},
				{ID: "2", Name: "SEDEX", Price: 3450, DeliveryDays: 3, CarrierName: "Correios"},
			}, nil
		},
	})

	body := `{
		"postal_code": "01310-100",
		"items": [
			{"product_id": "prod_mug", "quantity": 2},
			{"product_id": "prod_tee", "quantity": 1, "unit_price": 9000}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/rates", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.PostalCode != "01310-100" || len(captured.Items) != 2 {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.Items[1].UnitPrice != 9000 {
		t.Fatalf("unit price override not forwarded: %+v", captured.Items[1])
	}

	payload := decodeJSONBody(t, rec)
	options, ok := payload["options"].([]any)
	if !ok || len(options) != 2 {
		t.Fatalf("unexpected options payload: %v", payload)
	}
	first, ok := options[0].(map[string]any)
	if !ok || first["id"] != "1" || first["name"] != "PAC" {
		t.Fatalf("unexpected first option: %v", options[0])
	}
}

func TestQuoteRatesEndpointRejectsInvalidInput(t *testing.T) {
	router := shippingRouter(&stubRateService{
		quoteFunc: func(context.Context, services.RateQuoteCommand) ([]services.RateOption, error) {
			return nil, services.ErrRateInvalidInput
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/rates", strings.NewReader(`{"postal_code":"123","items":[{"product_id":"p","quantity":1}]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQuoteRatesEndpointRejectsMalformedJSON(t *testing.T) {
	router := shippingRouter(&stubRateService{})

	req := httptest.NewRequest(http.MethodPost, "/rates", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQuoteRatesEndpointUnavailableWithoutService(t *testing.T) {
	router := shippingRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/rates", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
