package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Archiver writes and copies objects in Cloud Storage. It backs the shipping
// label archive, which keeps a durable copy of carrier label documents after
// the carrier's ephemeral URL expires.
type Archiver struct {
	client *gcs.Client
}

// NewArchiver constructs an Archiver backed by the provided Cloud Storage client.
func NewArchiver(client *gcs.Client) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("storage archiver: client is required")
	}
	return &Archiver{client: client}, nil
}

// Upload writes the payload to the destination bucket/object.
func (a *Archiver) Upload(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if a == nil || a.client == nil {
		return errors.New("storage archiver: client is not initialised")
	}

	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return errors.New("storage archiver: bucket and object must be provided")
	}
	if len(data) == 0 {
		return errors.New("storage archiver: payload is empty")
	}

	w := a.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage archiver: write %s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage archiver: close %s/%s: %w", bucket, object, err)
	}
	return nil
}

// CopyObject copies an object from the source bucket/path to the destination.
func (a *Archiver) CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error {
	if a == nil || a.client == nil {
		return errors.New("storage archiver: client is not initialised")
	}

	srcBucket := strings.TrimSpace(sourceBucket)
	srcObject := strings.TrimSpace(sourceObject)
	dstBucket := strings.TrimSpace(destBucket)
	dstObject := strings.TrimSpace(destObject)

	if srcBucket == "" || srcObject == "" || dstBucket == "" || dstObject == "" {
		return errors.New("storage archiver: source and destination must be provided")
	}
	if srcBucket == dstBucket && srcObject == dstObject {
		return nil
	}

	src := a.client.Bucket(srcBucket).Object(srcObject)
	dst := a.client.Bucket(dstBucket).Object(dstObject)
	_, err := dst.CopierFrom(src).Run(ctx)
	return err
}
