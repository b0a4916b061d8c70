package services

import (
	"context"
	"time"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Order              = domain.Order
	OrderTotals        = domain.OrderTotals
	OrderItem          = domain.OrderItem
	OrderCustomer      = domain.OrderCustomer
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	OrderAuditEntry    = domain.OrderAuditEntry
	Address            = domain.Address
	Product            = domain.Product
	ShippingEnvelope   = domain.ShippingEnvelope
	RateOption         = domain.RateOption
	StockDelta         = domain.StockDelta
	NotificationEvent  = domain.NotificationEvent
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService encapsulates order creation, reads, and the two status write paths.
// TransitionStatus enforces the status graph; OverrideStatus is the explicit
// admin escape hatch that bypasses graph validation but still records an audit
// entry and applies stock deltas.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	OverrideStatus(ctx context.Context, cmd OrderStatusOverrideCommand) (Order, error)
}

// PaymentReconciler converts one inbound gateway notification into at most one
// order mutation.
type PaymentReconciler interface {
	ProcessNotification(ctx context.Context, cmd PaymentNotificationCommand) (ReconciliationResult, error)
}

// RateService quotes shipping options for a destination and cart contents.
type RateService interface {
	QuoteRates(ctx context.Context, cmd RateQuoteCommand) ([]RateOption, error)
}

// FulfillmentService drives the four admin-triggered label lifecycle steps.
type FulfillmentService interface {
	CreateShipment(ctx context.Context, cmd FulfillmentCommand) (FulfillmentShipmentResult, error)
	CheckoutShipment(ctx context.Context, cmd FulfillmentCommand) (FulfillmentCheckoutResult, error)
	GenerateLabel(ctx context.Context, cmd FulfillmentCommand) (FulfillmentLabelResult, error)
	PrintLabel(ctx context.Context, cmd FulfillmentCommand) (FulfillmentPrintResult, error)
}

// CatalogService exposes the public product surface.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
}

// NotificationPublisher delivers order lifecycle notifications to downstream
// consumers. Publishing is fire-and-forget relative to the calling operation.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, event NotificationEvent) error
}

// CheckoutStarter creates a hosted payment session for an order.
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, cmd StartCheckoutCommand) (CheckoutRedirect, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// Command and DTO definitions ------------------------------------------------

type OrderListFilter = repositories.OrderListFilter

type ProductListFilter = repositories.ProductListFilter

type CreateOrderItemInput struct {
	ProductID string
	Quantity  int64
}

type CreateOrderShippingInput struct {
	OptionID    string
	ServiceName string
	Price       int64
}

type CreateOrderCommand struct {
	Items           []CreateOrderItemInput
	Customer        OrderCustomer
	ShippingAddress Address
	Shipping        CreateOrderShippingInput
	Discount        int64
	Currency        string
	Metadata        map[string]string
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Note         string
}

type OrderStatusOverrideCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Note         string
}

// PaymentNotificationCommand carries the parsed webhook payload plus the raw
// signature material needed for verification.
type PaymentNotificationCommand struct {
	Type               string
	ResourceID         string
	RequestID          string
	SignatureTimestamp string
	SignatureHash      string
}

// ReconciliationOutcome enumerates how a notification was resolved.
type ReconciliationOutcome string

const (
	ReconciliationIgnored      ReconciliationOutcome = "ignored"
	ReconciliationUnauthorized ReconciliationOutcome = "unauthorized"
	ReconciliationApplied      ReconciliationOutcome = "applied"
	ReconciliationNoop         ReconciliationOutcome = "noop"
	ReconciliationAbandoned    ReconciliationOutcome = "abandoned"
)

type ReconciliationResult struct {
	Outcome        ReconciliationOutcome
	OrderID        string
	PreviousStatus OrderStatus
	NewStatus      OrderStatus
}

type RateQuoteItemInput struct {
	ProductID string
	Quantity  int64
	UnitPrice int64
}

type RateQuoteCommand struct {
	PostalCode string
	Items      []RateQuoteItemInput
}

type FulfillmentCommand struct {
	OrderID string
	ActorID string
}

type FulfillmentShipmentResult struct {
	OrderID            string
	ExternalShipmentID string
	AlreadyExisted     bool
}

type FulfillmentCheckoutResult struct {
	OrderID            string
	ExternalShipmentID string
	PurchaseID         string
	Status             string
}

type FulfillmentLabelResult struct {
	OrderID            string
	ExternalShipmentID string
	TrackingCode       string
	Status             OrderStatus
}

type FulfillmentPrintResult struct {
	OrderID            string
	ExternalShipmentID string
	LabelURL           string
	ArchivedObjectPath string
}

type StartCheckoutCommand struct {
	OrderID    string
	SuccessURL string
	CancelURL  string
}

type CheckoutRedirect struct {
	SessionID   string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

type CounterCommand struct {
	CounterID string
	Step      int64
}
