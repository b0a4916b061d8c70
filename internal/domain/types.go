package domain

import "time"

// Pagination carries offset-style pagination hints used by admin listings.
type Pagination struct {
	Limit  int
	Cursor string
}

// SortOrder toggles ascending/descending ordering for listings.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// CursorPage wraps a result slice with the token needed to fetch the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates payment was approved and fulfillment can begin.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped indicates a carrier shipment with a tracking code exists.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier confirmed delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates the gateway-facing payment states tracked on an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Order captures the purchase record mutated by the reconciliation and
// fulfillment pipelines. Monetary fields are minor currency units.
type Order struct {
	ID          string
	OrderNumber string
	Status      OrderStatus
	Payment     OrderPayment
	Currency    string
	Totals      OrderTotals
	Items       []OrderItem
	Customer    OrderCustomer
	// ShippingAddress is snapshotted at creation time and never updated from
	// later address edits.
	ShippingAddress    Address
	ExternalShipmentID *string
	TrackingCode       *string
	ShippingService    *string
	Audit              []OrderAuditEntry
	Metadata           map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PaidAt             *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CanceledAt         *time.Time
}

// OrderPayment stores the gateway linkage for an order. ExternalPaymentID is
// the idempotency key and is never overwritten once set.
type OrderPayment struct {
	Status            PaymentStatus
	Provider          string
	ExternalPaymentID *string
	Method            string
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
// Invariant: Total == Subtotal + Shipping - Discount, all non-negative.
type OrderTotals struct {
	Subtotal int64
	Shipping int64
	Discount int64
	Total    int64
}

// OrderItem freezes a product at purchase time: unit price, name, and image are
// snapshots independent of later catalog mutation.
type OrderItem struct {
	ProductID string
	Name      string
	ImageURL  string
	UnitPrice int64
	Quantity  int64
}

// OrderCustomer stores the contact snapshot used for notification triggers.
type OrderCustomer struct {
	Name  string
	Email string
}

// OrderAuditEntry records manual interventions such as admin status overrides.
type OrderAuditEntry struct {
	Actor      string
	Action     string
	FromStatus OrderStatus
	ToStatus   OrderStatus
	Note       string
	OccurredAt time.Time
}

// Address represents the postal destination snapshot carried by orders.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	District   *string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      *string
}

// Product carries the catalog fields the pipeline reads: price and stock for
// snapshots and the ledger, plus the declared shipping envelope.
type Product struct {
	ID           string
	Name         string
	Description  string
	ImageURL     string
	Price        int64
	Stock        int64
	Envelope     ShippingEnvelope
	FreeShipping bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ShippingEnvelope is a product's declared package dimensions.
type ShippingEnvelope struct {
	WeightKg float64
	WidthCm  float64
	HeightCm float64
	LengthCm float64
}

// RateOption is the common shape every rate-quote tier maps into.
type RateOption struct {
	ID           string
	Name         string
	Price        int64
	DeliveryDays int
	CarrierName  string
}

// StockDelta describes one product-level inventory adjustment produced by the
// stock ledger for a status transition.
type StockDelta struct {
	ProductID string
	Delta     int64
}

// NotificationKind enumerates the customer notification triggers the pipeline
// emits. Rendering and delivery happen downstream.
type NotificationKind string

const (
	NotificationOrderPaid      NotificationKind = "order.paid"
	NotificationOrderShipped   NotificationKind = "order.shipped"
	NotificationOrderDelivered NotificationKind = "order.delivered"
)

// NotificationEvent is the payload published for a notification trigger.
type NotificationEvent struct {
	Kind        NotificationKind
	OrderID     string
	OrderNumber string
	Email       string
	Name        string
	OccurredAt  time.Time
}

// Health statuses reported for the service and its dependencies.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthReport aggregates dependency checks surfaced on /readyz.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// SystemHealthCheck captures a single dependency probe outcome.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// KnownOrderStatus reports whether the value is one of the five order states.
func KnownOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// TerminalOrderStatus reports whether the status ends the order lifecycle.
func TerminalOrderStatus(status OrderStatus) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled
}
