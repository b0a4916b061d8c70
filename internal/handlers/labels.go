package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumamart/api/internal/platform/auth"
	"github.com/lumamart/api/internal/platform/httpx"
	"github.com/lumamart/api/internal/platform/storage"
)

const labelDownloadExpiry = 10 * time.Minute

// LabelLinkSigner generates signed URLs for archived label objects.
type LabelLinkSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// LabelLinkHandlers exposes internal endpoints that mint short-lived download
// links for archived shipping labels.
type LabelLinkHandlers struct {
	signer LabelLinkSigner
	bucket string
}

// NewLabelLinkHandlers constructs a new LabelLinkHandlers instance.
func NewLabelLinkHandlers(signer LabelLinkSigner, bucket string) *LabelLinkHandlers {
	return &LabelLinkHandlers{signer: signer, bucket: strings.TrimSpace(bucket)}
}

// Routes registers the label link endpoints under the internal group.
func (h *LabelLinkHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/labels/{orderID}/{shipmentID}:download-url", h.downloadURL)
}

func (h *LabelLinkHandlers) downloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.signer == nil || h.bucket == "" {
		httpx.WriteError(ctx, w, httpx.NewError("labels_unavailable", "label archive is not configured", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	shipmentID := strings.TrimSpace(chi.URLParam(r, "shipmentID"))
	if orderID == "" || shipmentID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id and shipment id are required", http.StatusBadRequest))
		return
	}

	objectPath, err := storage.BuildObjectPath(storage.PurposeShippingLabel, storage.PathParams{
		OrderID:    orderID,
		ShipmentID: shipmentID,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid label identifiers", http.StatusBadRequest))
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)
	result, err := h.signer.SignedURL(ctx, h.bucket, objectPath, storage.SignedURLOptions{
		Download: &storage.DownloadOptions{
			Method:       http.MethodGet,
			ExpiresIn:    labelDownloadExpiry,
			Disposition:  fmt.Sprintf("attachment; filename=%q", shipmentID+".pdf"),
			ResponseType: "application/pdf",
			Identity:     identity,
		},
	})
	if err != nil {
		if errors.Is(err, storage.ErrPermissionDenied) {
			httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "not allowed to download labels", http.StatusForbidden))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("labels_error", "failed to sign label url", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, labelLinkResponse{
		URL:       result.URL,
		Method:    result.Method,
		ExpiresAt: formatTime(result.ExpiresAt),
	})
}

type labelLinkResponse struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	ExpiresAt string `json:"expires_at"`
}
