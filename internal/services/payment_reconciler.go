package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumamart/api/internal/payments"
	"github.com/lumamart/api/internal/repositories"
)

const (
	defaultReconcileAttempts = 3
	defaultReconcileBackoff  = 2 * time.Second
)

// ErrWebhookUnauthorized indicates the notification signature failed verification.
var ErrWebhookUnauthorized = errors.New("payments: webhook signature rejected")

// PaymentLookup fetches payment details from the gateway for reconciliation.
type PaymentLookup interface {
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// WebhookVerifier checks notification authenticity.
type WebhookVerifier interface {
	Validate(ctx context.Context, sig payments.WebhookSignature, requestID, resourceID string) bool
}

// PaymentReconcilerDeps bundles collaborators required to construct the reconciler.
type PaymentReconcilerDeps struct {
	Orders        repositories.OrderRepository
	Payments      PaymentLookup
	Signatures    WebhookVerifier
	Notifications NotificationPublisher
	Clock         func() time.Time
	// Sleep is the backoff hook between lookup attempts. Tests inject a no-op.
	Sleep         func(ctx context.Context, d time.Duration) error
	Logger        func(ctx context.Context, event string, fields map[string]any)
	RetryAttempts int
	RetryBackoff  time.Duration
}

type paymentReconciler struct {
	orders        repositories.OrderRepository
	payments      PaymentLookup
	signatures    WebhookVerifier
	notifications NotificationPublisher
	clock         func() time.Time
	sleep         func(context.Context, time.Duration) error
	logger        func(context.Context, string, map[string]any)
	retryAttempts int
	retryBackoff  time.Duration
}

// NewPaymentReconciler wires dependencies into a concrete PaymentReconciler.
func NewPaymentReconciler(deps PaymentReconcilerDeps) (PaymentReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment reconciler: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment reconciler: payment lookup is required")
	}
	if deps.Signatures == nil {
		return nil, errors.New("payment reconciler: webhook verifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	attempts := deps.RetryAttempts
	if attempts <= 0 {
		attempts = defaultReconcileAttempts
	}
	backoff := deps.RetryBackoff
	if backoff <= 0 {
		backoff = defaultReconcileBackoff
	}

	return &paymentReconciler{
		orders:        deps.Orders,
		payments:      deps.Payments,
		signatures:    deps.Signatures,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		sleep:         sleep,
		logger:        logger,
		retryAttempts: attempts,
		retryBackoff:  backoff,
	}, nil
}

// ProcessNotification applies at most one order mutation per gateway
// notification. Replays and out-of-order deliveries resolve to noop; transient
// gateway failures exhaust the retry budget and are abandoned so the webhook
// endpoint can still acknowledge receipt.
func (r *paymentReconciler) ProcessNotification(ctx context.Context, cmd PaymentNotificationCommand) (ReconciliationResult, error) {
	if !strings.EqualFold(strings.TrimSpace(cmd.Type), "payment") {
		r.logger(ctx, "payments.reconcile.ignored", map[string]any{
			"type":      cmd.Type,
			"requestId": cmd.RequestID,
		})
		return ReconciliationResult{Outcome: ReconciliationIgnored}, nil
	}

	resourceID := strings.TrimSpace(cmd.ResourceID)
	if resourceID == "" {
		r.logger(ctx, "payments.reconcile.ignored", map[string]any{
			"reason":    "missing resource id",
			"requestId": cmd.RequestID,
		})
		return ReconciliationResult{Outcome: ReconciliationIgnored}, nil
	}

	sig := payments.WebhookSignature{Timestamp: cmd.SignatureTimestamp, Hash: cmd.SignatureHash}
	if !r.signatures.Validate(ctx, sig, cmd.RequestID, resourceID) {
		r.logger(ctx, "payments.reconcile.unauthorized", map[string]any{
			"paymentId": resourceID,
			"requestId": cmd.RequestID,
		})
		return ReconciliationResult{Outcome: ReconciliationUnauthorized}, ErrWebhookUnauthorized
	}

	details, err := r.lookupWithRetry(ctx, resourceID)
	if err != nil {
		r.logger(ctx, "payments.reconcile.abandoned", map[string]any{
			"paymentId": resourceID,
			"attempts":  r.retryAttempts,
			"error":     err.Error(),
		})
		return ReconciliationResult{Outcome: ReconciliationAbandoned}, nil
	}

	orderID := strings.TrimSpace(details.ExternalReference)
	if orderID == "" {
		r.logger(ctx, "payments.reconcile.abandoned", map[string]any{
			"paymentId": resourceID,
			"reason":    "payment carries no order reference",
		})
		return ReconciliationResult{Outcome: ReconciliationAbandoned}, nil
	}

	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			r.logger(ctx, "payments.reconcile.abandoned", map[string]any{
				"paymentId": resourceID,
				"orderId":   orderID,
				"reason":    "referenced order not found",
			})
			return ReconciliationResult{Outcome: ReconciliationAbandoned}, nil
		}
		return ReconciliationResult{}, fmt.Errorf("payment reconciler: load order: %w", err)
	}

	target, paymentStatus := MapPaymentStatus(details.ProviderStatus)
	result := ReconciliationResult{
		OrderID:        order.ID,
		PreviousStatus: order.Status,
		NewStatus:      target,
	}

	if order.Status == target && order.Payment.Status == paymentStatus {
		result.Outcome = ReconciliationNoop
		return result, nil
	}
	if order.Status != target && !canTransition(order.Status, target) {
		r.logger(ctx, "payments.reconcile.transition.blocked", map[string]any{
			"orderId":       order.ID,
			"paymentId":     resourceID,
			"currentStatus": string(order.Status),
			"targetStatus":  string(target),
		})
		result.Outcome = ReconciliationNoop
		result.NewStatus = order.Status
		return result, nil
	}

	now := r.clock()
	update := repositories.OrderTransitionUpdate{
		ExpectedStatus: order.Status,
		NewStatus:      target,
		PaymentStatus:  &paymentStatus,
		StockDeltas:    stockDeltas(order, order.Status, target),
		AuditEntry: &OrderAuditEntry{
			Actor:      "payments.webhook",
			Action:     "payment.reconciled",
			FromStatus: order.Status,
			ToStatus:   target,
			Note:       "gateway status " + details.ProviderStatus,
			OccurredAt: now,
		},
		OccurredAt: now,
	}
	if intentID := strings.TrimSpace(details.IntentID); intentID != "" {
		update.ExternalPaymentID = &intentID
	}
	if method := strings.TrimSpace(details.Method); method != "" {
		update.PaymentMethod = &method
	}
	if provider := strings.TrimSpace(details.Provider); provider != "" {
		update.PaymentProvider = &provider
	}

	updated, err := r.orders.ApplyTransition(ctx, order.ID, update)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			r.logger(ctx, "payments.reconcile.conflict", map[string]any{
				"orderId":   order.ID,
				"paymentId": resourceID,
			})
			result.Outcome = ReconciliationNoop
			return result, nil
		}
		return ReconciliationResult{}, fmt.Errorf("payment reconciler: apply transition: %w", err)
	}

	notifyLifecycle(ctx, r.notifications, r.logger, order, updated, now)

	r.logger(ctx, "payments.reconcile.applied", map[string]any{
		"orderId":       order.ID,
		"paymentId":     resourceID,
		"fromStatus":    string(order.Status),
		"toStatus":      string(updated.Status),
		"paymentStatus": string(paymentStatus),
	})
	result.Outcome = ReconciliationApplied
	result.NewStatus = updated.Status
	return result, nil
}

// lookupWithRetry queries the gateway with a doubling backoff between attempts.
func (r *paymentReconciler) lookupWithRetry(ctx context.Context, paymentID string) (payments.PaymentDetails, error) {
	var lastErr error
	backoff := r.retryBackoff
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		details, err := r.payments.LookupPayment(ctx, payments.PaymentContext{}, payments.LookupRequest{IntentID: paymentID})
		if err == nil {
			return details, nil
		}
		lastErr = err
		r.logger(ctx, "payments.reconcile.lookup.retry", map[string]any{
			"paymentId": paymentID,
			"attempt":   attempt,
			"error":     err.Error(),
		})
		if attempt == r.retryAttempts {
			break
		}
		if err := r.sleep(ctx, backoff); err != nil {
			return payments.PaymentDetails{}, err
		}
		backoff *= 2
	}
	return payments.PaymentDetails{}, lastErr
}
