package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxLabelDocumentBytes = 10 << 20

// labelUploader is the slice of Archiver the label archive needs.
type labelUploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, data []byte) error
}

// LabelArchive downloads a carrier label from its ephemeral URL and stores a
// durable copy in the label bucket.
type LabelArchive struct {
	uploader   labelUploader
	bucket     string
	httpClient *http.Client
}

// LabelArchiveConfig carries the constructor inputs for LabelArchive.
type LabelArchiveConfig struct {
	Uploader   labelUploader
	Bucket     string
	HTTPClient *http.Client
}

// NewLabelArchive constructs a LabelArchive writing into the configured bucket.
func NewLabelArchive(cfg LabelArchiveConfig) (*LabelArchive, error) {
	if cfg.Uploader == nil {
		return nil, errors.New("label archive: uploader is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("label archive: bucket is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &LabelArchive{
		uploader:   cfg.Uploader,
		bucket:     bucket,
		httpClient: httpClient,
	}, nil
}

// ArchiveLabel fetches the label document and uploads it under the canonical
// label path. It returns the stored object path.
func (a *LabelArchive) ArchiveLabel(ctx context.Context, orderID, shipmentID, labelURL string) (string, error) {
	labelURL = strings.TrimSpace(labelURL)
	if labelURL == "" {
		return "", errors.New("label archive: label url is required")
	}

	objectPath, err := BuildObjectPath(PurposeShippingLabel, PathParams{
		OrderID:    orderID,
		ShipmentID: shipmentID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, labelURL, nil)
	if err != nil {
		return "", fmt.Errorf("label archive: build request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("label archive: fetch label: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("label archive: fetch label: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLabelDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("label archive: read label: %w", err)
	}
	if len(data) > maxLabelDocumentBytes {
		return "", errors.New("label archive: label document exceeds size limit")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	if err := a.uploader.Upload(ctx, a.bucket, objectPath, contentType, data); err != nil {
		return "", err
	}
	return objectPath, nil
}
