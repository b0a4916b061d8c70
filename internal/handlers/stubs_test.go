package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/platform/storage"
	"github.com/lumamart/api/internal/services"
)

var errStubNotImplemented = errors.New("stub: not implemented")

type stubOrderService struct {
	createFunc     func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	getFunc        func(ctx context.Context, orderID string) (services.Order, error)
	getByNumber    func(ctx context.Context, orderNumber string) (services.Order, error)
	listFunc       func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFunc func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	overrideFunc   func(ctx context.Context, cmd services.OrderStatusOverrideCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.getFunc(ctx, orderID)
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (services.Order, error) {
	if s.getByNumber == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.getByNumber(ctx, orderNumber)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Order]{}, errStubNotImplemented
	}
	return s.listFunc(ctx, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.transitionFunc(ctx, cmd)
}

func (s *stubOrderService) OverrideStatus(ctx context.Context, cmd services.OrderStatusOverrideCommand) (services.Order, error) {
	if s.overrideFunc == nil {
		return services.Order{}, errStubNotImplemented
	}
	return s.overrideFunc(ctx, cmd)
}

type stubCheckoutStarter struct {
	startFunc func(ctx context.Context, cmd services.StartCheckoutCommand) (services.CheckoutRedirect, error)
}

func (s *stubCheckoutStarter) StartCheckout(ctx context.Context, cmd services.StartCheckoutCommand) (services.CheckoutRedirect, error) {
	if s.startFunc == nil {
		return services.CheckoutRedirect{}, errStubNotImplemented
	}
	return s.startFunc(ctx, cmd)
}

type stubReconciler struct {
	processFunc func(ctx context.Context, cmd services.PaymentNotificationCommand) (services.ReconciliationResult, error)
}

func (s *stubReconciler) ProcessNotification(ctx context.Context, cmd services.PaymentNotificationCommand) (services.ReconciliationResult, error) {
	if s.processFunc == nil {
		return services.ReconciliationResult{}, errStubNotImplemented
	}
	return s.processFunc(ctx, cmd)
}

type stubRateService struct {
	quoteFunc func(ctx context.Context, cmd services.RateQuoteCommand) ([]services.RateOption, error)
}

func (s *stubRateService) QuoteRates(ctx context.Context, cmd services.RateQuoteCommand) ([]services.RateOption, error) {
	if s.quoteFunc == nil {
		return nil, errStubNotImplemented
	}
	return s.quoteFunc(ctx, cmd)
}

type stubFulfillmentService struct {
	createFunc   func(ctx context.Context, cmd services.FulfillmentCommand) (services.FulfillmentShipmentResult, error)
	checkoutFunc func(ctx context.Context, cmd services.FulfillmentCommand) (services.FulfillmentCheckoutResult, error)
	generateFunc func(ctx context.Context, cmd services.FulfillmentCommand) (services.FulfillmentLabelResult, error)
	printFunc    func(ctx context.Context, cmd services.FulfillmentCommand) (services.FulfillmentPrintResult, error)
}

func (s *stubFulfillmentService) CreateShipment(ctx context.Context, cmd services.FulfillmentCommand) (services.FulfillmentShipmentResult, error) {
	if s.createFunc == nil {
		return services.FulfillmentShipmentResult{}, errStubNotImplemented
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubFulfillmentService) CheckoutShipment(ctx context.Context, cmd services.FulfillmentCommand) (services.FulfillmentCheckoutResult, error) {
	if s.checkoutFunc == nil {
		return services.FulfillmentCheckoutResult{}, errStubNotImplemented
	}
	return s.checkoutFunc(ctx, cmd)
}

func (s *stubFulfillmentService) GenerateLabel(ctx context.Context, cmd services.FulfillmentCommand) (services.FulfillmentLabelResult, error) {
	if s.generateFunc == nil {
		return services.FulfillmentLabelResult{}, errStubNotImplemented
	}
	return s.generateFunc(ctx, cmd)
}

func (s *stubFulfillmentService) PrintLabel(ctx context.Context, cmd services.FulfillmentCommand) (services.FulfillmentPrintResult, error) {
	if s.printFunc == nil {
		return services.FulfillmentPrintResult{}, errStubNotImplemented
	}
	return s.printFunc(ctx, cmd)
}

type stubCatalogService struct {
	getFunc  func(ctx context.Context, productID string) (services.Product, error)
	listFunc func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFunc == nil {
		return services.Product{}, errStubNotImplemented
	}
	return s.getFunc(ctx, productID)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Product]{}, errStubNotImplemented
	}
	return s.listFunc(ctx, filter)
}

type stubSystemService struct {
	healthFunc  func(ctx context.Context) (services.SystemHealthReport, error)
	counterFunc func(ctx context.Context, cmd services.CounterCommand) (int64, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.healthFunc == nil {
		return services.SystemHealthReport{}, errStubNotImplemented
	}
	return s.healthFunc(ctx)
}

func (s *stubSystemService) NextCounterValue(ctx context.Context, cmd services.CounterCommand) (int64, error) {
	if s.counterFunc == nil {
		return 0, errStubNotImplemented
	}
	return s.counterFunc(ctx, cmd)
}

type stubLabelSigner struct {
	signFunc func(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

func (s *stubLabelSigner) SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error) {
	if s.signFunc == nil {
		return storage.SignedURLResult{}, errStubNotImplemented
	}
	return s.signFunc(ctx, bucket, object, opts)
}

func decodeJSONBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response body is not valid JSON: %v (%s)", err, rec.Body.String())
	}
	return payload
}
