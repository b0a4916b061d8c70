package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/payments"
	"github.com/lumamart/api/internal/repositories"
)

// ErrCheckoutInvalidState indicates the order cannot start a payment session.
var ErrCheckoutInvalidState = errors.New("checkout: order cannot start a payment session")

// CheckoutSessionCreator opens hosted payment sessions with the gateway.
type CheckoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps bundles collaborators required to construct the checkout starter.
type CheckoutServiceDeps struct {
	Orders   repositories.OrderRepository
	Payments CheckoutSessionCreator
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// SuccessURL and CancelURL are the storefront return pages used when the
	// command does not override them.
	SuccessURL string
	CancelURL  string
}

type checkoutService struct {
	orders     repositories.OrderRepository
	payments   CheckoutSessionCreator
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
	successURL string
	cancelURL  string
}

// NewCheckoutService wires dependencies into a concrete CheckoutStarter.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutStarter, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment session creator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:   deps.Orders,
		payments: deps.Payments,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:     logger,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
	}, nil
}

// StartCheckout opens a hosted payment session for a pending order. The order
// id travels as the session's external reference so the webhook reconciler can
// route the resulting payment back.
func (s *checkoutService) StartCheckout(ctx context.Context, cmd StartCheckoutCommand) (CheckoutRedirect, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CheckoutRedirect{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return CheckoutRedirect{}, fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		}
		return CheckoutRedirect{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return CheckoutRedirect{}, fmt.Errorf("%w: order is %s", ErrCheckoutInvalidState, order.Status)
	}

	items := make([]payments.CheckoutLineItem, 0, len(order.Items)+1)
	for _, item := range order.Items {
		items = append(items, payments.CheckoutLineItem{
			Name:     item.Name,
			SKU:      item.ProductID,
			Quantity: item.Quantity,
			Amount:   item.UnitPrice,
			Currency: order.Currency,
		})
	}
	if order.Totals.Shipping > 0 {
		items = append(items, payments.CheckoutLineItem{
			Name:     "Shipping",
			Quantity: 1,
			Amount:   order.Totals.Shipping,
			Currency: order.Currency,
		})
	}

	successURL := strings.TrimSpace(cmd.SuccessURL)
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := strings.TrimSpace(cmd.CancelURL)
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{Currency: order.Currency}, payments.CheckoutSessionRequest{
		Amount:     order.Totals.Total,
		Currency:   order.Currency,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata: map[string]string{
			"external_reference": order.ID,
			"order_number":       order.OrderNumber,
		},
		IdempotencyKey: "checkout-" + order.ID,
		Items:          items,
	})
	if err != nil {
		return CheckoutRedirect{}, fmt.Errorf("checkout: create session: %w", err)
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"orderId":   order.ID,
		"provider":  session.Provider,
		"sessionId": session.ID,
	})
	return CheckoutRedirect{
		SessionID:   session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}
