package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumamart/api/internal/payments"
	"github.com/lumamart/api/internal/platform/httpx"
	"github.com/lumamart/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// paymentNotification is the gateway's webhook envelope. Unknown fields are
// ignored so gateway payload growth never breaks ingestion.
type paymentNotification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// WebhookHandlers receives gateway callbacks.
type WebhookHandlers struct {
	reconciler services.PaymentReconciler
}

// NewWebhookHandlers constructs the webhook handler set.
func NewWebhookHandlers(reconciler services.PaymentReconciler) *WebhookHandlers {
	return &WebhookHandlers{reconciler: reconciler}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.paymentNotification)
}

// paymentNotification acknowledges gateway notifications. The gateway retries
// on any non-2xx, so every outcome except a signature failure answers 200;
// reconciliation failures are resolved internally, never by gateway retry.
func (h *WebhookHandlers) paymentNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment reconciler unavailable", http.StatusServiceUnavailable))
		return
	}

	var notification paymentNotification
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err == nil {
		// A malformed body is acknowledged rather than retried forever.
		_ = json.Unmarshal(body, &notification)
	}

	signature := payments.ParseSignatureHeader(r.Header.Get("x-signature"))
	cmd := services.PaymentNotificationCommand{
		Type:               notification.Type,
		ResourceID:         strings.TrimSpace(notification.Data.ID),
		RequestID:          strings.TrimSpace(r.Header.Get("x-request-id")),
		SignatureTimestamp: signature.Timestamp,
		SignatureHash:      signature.Hash,
	}

	if _, err := h.reconciler.ProcessNotification(ctx, cmd); err != nil {
		if errors.Is(err, services.ErrWebhookUnauthorized) {
			httpx.WriteError(ctx, w, httpx.NewError("webhook_unauthorized", "invalid webhook signature", http.StatusUnauthorized))
			return
		}
		// Internal failures still acknowledge: the reconciler owns retries.
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"received": true})
}
