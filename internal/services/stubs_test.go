package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/payments"
	"github.com/lumamart/api/internal/repositories"
	"github.com/lumamart/api/internal/shipping"
)

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string       { return "repository error stub" }
func (e *repositoryErrorStub) IsNotFound() bool    { return e.notFound }
func (e *repositoryErrorStub) IsConflict() bool    { return e.conflict }
func (e *repositoryErrorStub) IsUnavailable() bool { return e.unavailable }

var errStubNotImplemented = errors.New("stub: not implemented")

type stubOrderRepository struct {
	insertFunc          func(ctx context.Context, order domain.Order) (domain.Order, error)
	updateFunc          func(ctx context.Context, order domain.Order) (domain.Order, error)
	findByIDFunc        func(ctx context.Context, orderID string) (domain.Order, error)
	findByPaymentFunc   func(ctx context.Context, externalPaymentID string) (domain.Order, error)
	listFunc            func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	applyTransitionFunc func(ctx context.Context, orderID string, update repositories.OrderTransitionUpdate) (domain.Order, error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.insertFunc == nil {
		return domain.Order{}, errStubNotImplemented
	}
	return s.insertFunc(ctx, order)
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.updateFunc == nil {
		return domain.Order{}, errStubNotImplemented
	}
	return s.updateFunc(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFunc == nil {
		return domain.Order{}, errStubNotImplemented
	}
	return s.findByIDFunc(ctx, orderID)
}

func (s *stubOrderRepository) FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (domain.Order, error) {
	if s.findByPaymentFunc == nil {
		return domain.Order{}, errStubNotImplemented
	}
	return s.findByPaymentFunc(ctx, externalPaymentID)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.Order]{}, errStubNotImplemented
	}
	return s.listFunc(ctx, filter)
}

func (s *stubOrderRepository) ApplyTransition(ctx context.Context, orderID string, update repositories.OrderTransitionUpdate) (domain.Order, error) {
	if s.applyTransitionFunc == nil {
		return domain.Order{}, errStubNotImplemented
	}
	return s.applyTransitionFunc(ctx, orderID, update)
}

type stubProductRepository struct {
	findByIDFunc    func(ctx context.Context, productID string) (domain.Product, error)
	findByIDsFunc   func(ctx context.Context, productIDs []string) ([]domain.Product, error)
	listFunc        func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
	adjustStockFunc func(ctx context.Context, productID string, delta int64) (domain.Product, error)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findByIDFunc == nil {
		return domain.Product{}, errStubNotImplemented
	}
	return s.findByIDFunc(ctx, productID)
}

func (s *stubProductRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if s.findByIDsFunc == nil {
		return nil, errStubNotImplemented
	}
	return s.findByIDsFunc(ctx, productIDs)
}

func (s *stubProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.Product]{}, errStubNotImplemented
	}
	return s.listFunc(ctx, filter)
}

func (s *stubProductRepository) AdjustStock(ctx context.Context, productID string, delta int64) (domain.Product, error) {
	if s.adjustStockFunc == nil {
		return domain.Product{}, errStubNotImplemented
	}
	return s.adjustStockFunc(ctx, productID, delta)
}

type stubCounterRepository struct {
	nextFunc func(ctx context.Context, name string, step int64) (int64, error)
}

func (s *stubCounterRepository) Next(ctx context.Context, name string, step int64) (int64, error) {
	if s.nextFunc == nil {
		return 0, errStubNotImplemented
	}
	return s.nextFunc(ctx, name, step)
}

type stubNotificationPublisher struct {
	publishFunc func(ctx context.Context, event NotificationEvent) error
	events      []NotificationEvent
}

func (s *stubNotificationPublisher) PublishNotification(ctx context.Context, event NotificationEvent) error {
	s.events = append(s.events, event)
	if s.publishFunc == nil {
		return nil
	}
	return s.publishFunc(ctx, event)
}

type stubPaymentLookup struct {
	lookupFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

func (s *stubPaymentLookup) LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	if s.lookupFunc == nil {
		return payments.PaymentDetails{}, errStubNotImplemented
	}
	return s.lookupFunc(ctx, paymentCtx, req)
}

type stubWebhookVerifier struct {
	validateFunc func(ctx context.Context, sig payments.WebhookSignature, requestID, resourceID string) bool
}

func (s *stubWebhookVerifier) Validate(ctx context.Context, sig payments.WebhookSignature, requestID, resourceID string) bool {
	if s.validateFunc == nil {
		return true
	}
	return s.validateFunc(ctx, sig, requestID, resourceID)
}

type stubShippingProvider struct {
	quoteFunc          func(ctx context.Context, req shipping.QuoteRequest) ([]shipping.QuoteOption, error)
	createShipmentFunc func(ctx context.Context, req shipping.CreateShipmentRequest) (shipping.Shipment, error)
	checkoutFunc       func(ctx context.Context, shipmentID string) (shipping.CheckoutResult, error)
	generateLabelFunc  func(ctx context.Context, shipmentID string) error
	getShipmentFunc    func(ctx context.Context, shipmentID string) (shipping.Shipment, error)
	printLabelFunc     func(ctx context.Context, shipmentID string) (shipping.LabelDocument, error)
}

func (s *stubShippingProvider) Quote(ctx context.Context, req shipping.QuoteRequest) ([]shipping.QuoteOption, error) {
	if s.quoteFunc == nil {
		return nil, errStubNotImplemented
	}
	return s.quoteFunc(ctx, req)
}

func (s *stubShippingProvider) CreateShipment(ctx context.Context, req shipping.CreateShipmentRequest) (shipping.Shipment, error) {
	if s.createShipmentFunc == nil {
		return shipping.Shipment{}, errStubNotImplemented
	}
	return s.createShipmentFunc(ctx, req)
}

func (s *stubShippingProvider) Checkout(ctx context.Context, shipmentID string) (shipping.CheckoutResult, error) {
	if s.checkoutFunc == nil {
		return shipping.CheckoutResult{}, errStubNotImplemented
	}
	return s.checkoutFunc(ctx, shipmentID)
}

func (s *stubShippingProvider) GenerateLabel(ctx context.Context, shipmentID string) error {
	if s.generateLabelFunc == nil {
		return errStubNotImplemented
	}
	return s.generateLabelFunc(ctx, shipmentID)
}

func (s *stubShippingProvider) GetShipment(ctx context.Context, shipmentID string) (shipping.Shipment, error) {
	if s.getShipmentFunc == nil {
		return shipping.Shipment{}, errStubNotImplemented
	}
	return s.getShipmentFunc(ctx, shipmentID)
}

func (s *stubShippingProvider) PrintLabel(ctx context.Context, shipmentID string) (shipping.LabelDocument, error) {
	if s.printLabelFunc == nil {
		return shipping.LabelDocument{}, errStubNotImplemented
	}
	return s.printLabelFunc(ctx, shipmentID)
}

type stubLabelArchiver struct {
	archiveFunc func(ctx context.Context, orderID, shipmentID, labelURL string) (string, error)
}

func (s *stubLabelArchiver) ArchiveLabel(ctx context.Context, orderID, shipmentID, labelURL string) (string, error) {
	if s.archiveFunc == nil {
		return "", errStubNotImplemented
	}
	return s.archiveFunc(ctx, orderID, shipmentID, labelURL)
}

type stubSessionCreator struct {
	createFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

func (s *stubSessionCreator) CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if s.createFunc == nil {
		return payments.CheckoutSession{}, errStubNotImplemented
	}
	return s.createFunc(ctx, paymentCtx, req)
}

type stubHealthRepository struct {
	collectFunc func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFunc == nil {
		return domain.SystemHealthReport{}, errStubNotImplemented
	}
	return s.collectFunc(ctx)
}

func noSleep(context.Context, time.Duration) error { return nil }

func timePtr(v time.Time) *time.Time { return &v }

func strPtr(v string) *string { return &v }
