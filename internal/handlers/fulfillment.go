package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumamart/api/internal/platform/auth"
	"github.com/lumamart/api/internal/platform/httpx"
	"github.com/lumamart/api/internal/services"
)

// FulfillmentHandlers exposes the four admin label lifecycle steps.
type FulfillmentHandlers struct {
	fulfillment services.FulfillmentService
}

// NewFulfillmentHandlers constructs a new FulfillmentHandlers instance.
func NewFulfillmentHandlers(fulfillment services.FulfillmentService) *FulfillmentHandlers {
	return &FulfillmentHandlers{fulfillment: fulfillment}
}

// Routes registers the fulfillment endpoints under the admin group.
func (h *FulfillmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderID}/fulfillment:create-shipment", h.createShipment)
	r.Post("/orders/{orderID}/fulfillment:checkout", h.checkoutShipment)
	r.Post("/orders/{orderID}/fulfillment:generate-label", h.generateLabel)
	r.Post("/orders/{orderID}/fulfillment:print-label", h.printLabel)
}

func (h *FulfillmentHandlers) createShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cmd, ok := h.command(ctx, w, r)
	if !ok {
		return
	}

	result, err := h.fulfillment.CreateShipment(ctx, cmd)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shipmentStepResponse{
		OrderID:            result.OrderID,
		ExternalShipmentID: result.ExternalShipmentID,
		AlreadyExisted:     result.AlreadyExisted,
	})
}

func (h *FulfillmentHandlers) checkoutShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cmd, ok := h.command(ctx, w, r)
	if !ok {
		return
	}

	result, err := h.fulfillment.CheckoutShipment(ctx, cmd)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutStepResponse{
		OrderID:            result.OrderID,
		ExternalShipmentID: result.ExternalShipmentID,
		PurchaseID:         result.PurchaseID,
		Status:             result.Status,
	})
}

func (h *FulfillmentHandlers) generateLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cmd, ok := h.command(ctx, w, r)
	if !ok {
		return
	}

	result, err := h.fulfillment.GenerateLabel(ctx, cmd)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, labelStepResponse{
		OrderID:            result.OrderID,
		ExternalShipmentID: result.ExternalShipmentID,
		TrackingCode:       result.TrackingCode,
		Status:             string(result.Status),
	})
}

func (h *FulfillmentHandlers) printLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cmd, ok := h.command(ctx, w, r)
	if !ok {
		return
	}

	result, err := h.fulfillment.PrintLabel(ctx, cmd)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, printStepResponse{
		OrderID:            result.OrderID,
		ExternalShipmentID: result.ExternalShipmentID,
		LabelURL:           result.LabelURL,
		ArchivedObjectPath: result.ArchivedObjectPath,
	})
}

func (h *FulfillmentHandlers) command(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.FulfillmentCommand, bool) {
	if h.fulfillment == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_unavailable", "fulfillment service unavailable", http.StatusServiceUnavailable))
		return services.FulfillmentCommand{}, false
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return services.FulfillmentCommand{}, false
	}

	actor := ""
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		actor = strings.TrimSpace(identity.UID)
	}
	return services.FulfillmentCommand{OrderID: orderID, ActorID: actor}, true
}

type shipmentStepResponse struct {
	OrderID            string `json:"order_id"`
	ExternalShipmentID string `json:"external_shipment_id"`
	AlreadyExisted     bool   `json:"already_existed,omitempty"`
}

type checkoutStepResponse struct {
	OrderID            string `json:"order_id"`
	ExternalShipmentID string `json:"external_shipment_id"`
	PurchaseID         string `json:"purchase_id,omitempty"`
	Status             string `json:"status,omitempty"`
}

type labelStepResponse struct {
	OrderID            string `json:"order_id"`
	ExternalShipmentID string `json:"external_shipment_id"`
	TrackingCode       string `json:"tracking_code,omitempty"`
	Status             string `json:"status"`
}

type printStepResponse struct {
	OrderID            string `json:"order_id"`
	ExternalShipmentID string `json:"external_shipment_id"`
	LabelURL           string `json:"label_url"`
	ArchivedObjectPath string `json:"archived_object_path,omitempty"`
}

func writeFulfillmentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrFulfillmentNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_not_ready", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrFulfillmentOrderState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("fulfillment_error", "failed to process fulfillment request", http.StatusBadGateway))
	}
}
