package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureLogger defines the logging contract for signature validation.
type SignatureLogger func(ctx context.Context, event string, fields map[string]any)

// WebhookSignature carries the parsed parts of an x-signature header.
type WebhookSignature struct {
	Timestamp string
	Hash      string
}

// ParseSignatureHeader splits a header of the form "ts=<unix>,v1=<hex>".
// Malformed input yields an empty struct; validation treats it as invalid.
func ParseSignatureHeader(header string) WebhookSignature {
	var sig WebhookSignature
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			sig.Timestamp = strings.TrimSpace(value)
		case "v1":
			sig.Hash = strings.TrimSpace(value)
		}
	}
	return sig
}

// SignatureValidator verifies inbound webhook notifications against a shared
// secret. An empty secret disables verification entirely; every skipped
// validation is logged so the insecure mode cannot go unnoticed.
type SignatureValidator struct {
	secret       []byte
	logger       SignatureLogger
	clock        func() time.Time
	maxTimestamp time.Duration
}

// SignatureValidatorOption customises validator behaviour.
type SignatureValidatorOption func(*SignatureValidator)

// WithSignatureLogger overrides the validator logger.
func WithSignatureLogger(logger SignatureLogger) SignatureValidatorOption {
	return func(v *SignatureValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithSignatureClock injects a custom time source.
func WithSignatureClock(clock func() time.Time) SignatureValidatorOption {
	return func(v *SignatureValidator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithSignatureMaxAge bounds how far the signed timestamp may drift from now.
// Zero disables the check.
func WithSignatureMaxAge(window time.Duration) SignatureValidatorOption {
	return func(v *SignatureValidator) {
		v.maxTimestamp = window
	}
}

// NewSignatureValidator constructs a validator for the shared secret.
func NewSignatureValidator(secret string, opts ...SignatureValidatorOption) *SignatureValidator {
	v := &SignatureValidator{
		logger: func(context.Context, string, map[string]any) {},
		clock:  time.Now,
	}
	if secret = strings.TrimSpace(secret); secret != "" {
		v.secret = []byte(secret)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Enabled reports whether a shared secret is configured.
func (v *SignatureValidator) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Validate verifies the signature over the canonical manifest
// "id:{resourceId};request-id:{requestId};ts:{timestamp};". It never returns
// an error for malformed input; malformed means invalid.
func (v *SignatureValidator) Validate(ctx context.Context, sig WebhookSignature, requestID, resourceID string) bool {
	if v == nil {
		return false
	}
	if len(v.secret) == 0 {
		v.logger(ctx, "payments.webhook.signature.skipped", map[string]any{
			"reason":    "no webhook secret configured, accepting unverified notification",
			"requestId": requestID,
		})
		return true
	}

	timestamp := strings.TrimSpace(sig.Timestamp)
	hash := strings.ToLower(strings.TrimSpace(sig.Hash))
	requestID = strings.TrimSpace(requestID)
	resourceID = strings.TrimSpace(resourceID)
	if timestamp == "" || hash == "" || resourceID == "" {
		return false
	}

	if v.maxTimestamp > 0 {
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return false
		}
		drift := v.clock().UTC().Sub(time.Unix(unix, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > v.maxTimestamp {
			v.logger(ctx, "payments.webhook.signature.stale", map[string]any{
				"requestId": requestID,
				"driftSecs": int64(drift / time.Second),
			})
			return false
		}
	}

	manifest := "id:" + resourceID + ";request-id:" + requestID + ";ts:" + timestamp + ";"

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	provided, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	expectedBytes, _ := hex.DecodeString(expected)
	return hmac.Equal(provided, expectedBytes)
}
