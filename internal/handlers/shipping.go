package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumamart/api/internal/platform/httpx"
	"github.com/lumamart/api/internal/services"
)

const maxRateQuoteBodySize = 16 * 1024

type rateQuoteRequest struct {
	PostalCode string                 `json:"postal_code"`
	Items      []rateQuoteItemRequest `json:"items"`
}

type rateQuoteItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price,omitempty"`
}

// ShippingHandlers exposes the public shipping rate surface.
type ShippingHandlers struct {
	rates services.RateService
}

// NewShippingHandlers constructs a new ShippingHandlers instance.
func NewShippingHandlers(rates services.RateService) *ShippingHandlers {
	return &ShippingHandlers{rates: rates}
}

// Routes registers the /shipping endpoints.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/rates", h.quoteRates)
}

func (h *ShippingHandlers) quoteRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "rate service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxRateQuoteBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		}
		return
	}

	var req rateQuoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.RateQuoteCommand{PostalCode: strings.TrimSpace(req.PostalCode)}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.RateQuoteItemInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	options, err := h.rates.QuoteRates(ctx, cmd)
	if err != nil {
		if errors.Is(err, services.ErrRateInvalidInput) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "failed to quote shipping rates", http.StatusInternalServerError))
		return
	}

	payload := make([]rateOptionPayload, 0, len(options))
	for _, option := range options {
		payload = append(payload, rateOptionPayload{
			ID:           option.ID,
			Name:         option.Name,
			Price:        option.Price,
			DeliveryDays: option.DeliveryDays,
			CarrierName:  option.CarrierName,
		})
	}
	writeJSONResponse(w, http.StatusOK, rateQuoteResponse{Options: payload})
}

type rateQuoteResponse struct {
	Options []rateOptionPayload `json:"options"`
}

type rateOptionPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	DeliveryDays int    `json:"delivery_days"`
	CarrierName  string `json:"carrier_name,omitempty"`
}
