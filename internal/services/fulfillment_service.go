package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/platform/textutil"
	"github.com/lumamart/api/internal/repositories"
	"github.com/lumamart/api/internal/shipping"
)

var (
	// ErrFulfillmentNotReady indicates a step was invoked before its
	// prerequisite step completed.
	ErrFulfillmentNotReady = errors.New("fulfillment: order not ready for this step")
	// ErrFulfillmentOrderState indicates the order status does not admit fulfillment.
	ErrFulfillmentOrderState = errors.New("fulfillment: order is not in a fulfillable state")
)

// LabelArchiver persists a copy of the carrier's ephemeral label document.
type LabelArchiver interface {
	ArchiveLabel(ctx context.Context, orderID, shipmentID, labelURL string) (string, error)
}

// FulfillmentConfig carries the dispatch-side knobs resolved from configuration.
type FulfillmentConfig struct {
	// Origin is the warehouse party stamped on every shipment.
	Origin shipping.Party
	// DefaultServiceID is used when the order does not pin a carrier service.
	DefaultServiceID int
	// SettleDelay is how long to wait after label generation before reading
	// the tracking code. The aggregator assigns tracking asynchronously.
	SettleDelay time.Duration
}

// FulfillmentServiceDeps bundles collaborators required to construct the service.
type FulfillmentServiceDeps struct {
	Orders        repositories.OrderRepository
	Products      repositories.ProductRepository
	Provider      shipping.Provider
	Archiver      LabelArchiver
	Notifications NotificationPublisher
	Config        FulfillmentConfig
	Clock         func() time.Time
	Sleep         func(ctx context.Context, d time.Duration) error
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type fulfillmentService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	provider      shipping.Provider
	archiver      LabelArchiver
	notifications NotificationPublisher
	config        FulfillmentConfig
	clock         func() time.Time
	sleep         func(context.Context, time.Duration) error
	logger        func(context.Context, string, map[string]any)
}

// NewFulfillmentService wires dependencies into a concrete FulfillmentService.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("fulfillment service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("fulfillment service: product repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("fulfillment service: shipping provider is required")
	}
	if strings.TrimSpace(deps.Config.Origin.PostalCode) == "" {
		return nil, errors.New("fulfillment service: origin postal code is required")
	}
	if deps.Config.DefaultServiceID <= 0 {
		return nil, errors.New("fulfillment service: default service id is required")
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
	if deps.Config.SettleDelay <= 0 {
		deps.Config.SettleDelay = 2 * time.Second
	}

	return &fulfillmentService{
		orders:        deps.Orders,
		products:      deps.Products,
		provider:      deps.Provider,
		archiver:      deps.Archiver,
		notifications: deps.Notifications,
		config:        deps.Config,
		clock: func() time.Time {
			return clock().UTC()
		},
		sleep:  sleep,
		logger: logger,
	}, nil
}

// CreateShipment registers the order with the carrier aggregator. Repeating
// the call after a shipment exists is a no-op so a retried admin action never
// produces a second shipment.
func (s *fulfillmentService) CreateShipment(ctx context.Context, cmd FulfillmentCommand) (FulfillmentShipmentResult, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return FulfillmentShipmentResult{}, err
	}
	if existing := shipmentID(order); existing != "" {
		return FulfillmentShipmentResult{OrderID: order.ID, ExternalShipmentID: existing, AlreadyExisted: true}, nil
	}
	if order.Status != domain.OrderStatusPaid {
		return FulfillmentShipmentResult{}, fmt.Errorf("%w: order is %s, expected paid", ErrFulfillmentOrderState, order.Status)
	}

	envelope, err := s.orderEnvelope(ctx, order)
	if err != nil {
		return FulfillmentShipmentResult{}, err
	}

	shipment, err := s.provider.CreateShipment(ctx, s.buildShipmentRequest(order, envelope))
	if err != nil {
		return FulfillmentShipmentResult{}, fmt.Errorf("fulfillment: create shipment: %w", err)
	}

	if _, err := s.recordStep(ctx, order, cmd.ActorID, "fulfillment.shipment.created", func(update *repositories.OrderTransitionUpdate) {
		update.ExternalShipmentID = &shipment.ID
	}); err != nil {
		return FulfillmentShipmentResult{}, err
	}

	s.logger(ctx, "fulfillment.shipment.created", map[string]any{
		"orderId":    order.ID,
		"shipmentId": shipment.ID,
		"serviceId":  shipment.ServiceID,
	})
	return FulfillmentShipmentResult{OrderID: order.ID, ExternalShipmentID: shipment.ID}, nil
}

// CheckoutShipment purchases the previously created shipment.
func (s *fulfillmentService) CheckoutShipment(ctx context.Context, cmd FulfillmentCommand) (FulfillmentCheckoutResult, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return FulfillmentCheckoutResult{}, err
	}
	id := shipmentID(order)
	if id == "" {
		return FulfillmentCheckoutResult{}, fmt.Errorf("%w: no shipment created yet", ErrFulfillmentNotReady)
	}

	result, err := s.provider.Checkout(ctx, id)
	if err != nil {
		return FulfillmentCheckoutResult{}, fmt.Errorf("fulfillment: checkout: %w", err)
	}

	if _, err := s.recordStep(ctx, order, cmd.ActorID, "fulfillment.checkout", nil); err != nil {
		return FulfillmentCheckoutResult{}, err
	}

	s.logger(ctx, "fulfillment.checkout", map[string]any{
		"orderId":    order.ID,
		"shipmentId": id,
		"purchaseId": result.PurchaseID,
	})
	return FulfillmentCheckoutResult{
		OrderID:            order.ID,
		ExternalShipmentID: id,
		PurchaseID:         result.PurchaseID,
		Status:             result.Status,
	}, nil
}

// GenerateLabel asks the carrier to produce the label, waits for the tracking
// code to settle, and transitions the order to shipped.
func (s *fulfillmentService) GenerateLabel(ctx context.Context, cmd FulfillmentCommand) (FulfillmentLabelResult, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return FulfillmentLabelResult{}, err
	}
	id := shipmentID(order)
	if id == "" {
		return FulfillmentLabelResult{}, fmt.Errorf("%w: no shipment created yet", ErrFulfillmentNotReady)
	}

	if err := s.provider.GenerateLabel(ctx, id); err != nil {
		return FulfillmentLabelResult{}, fmt.Errorf("fulfillment: generate label: %w", err)
	}

	// Tracking assignment is asynchronous on the aggregator side.
	if err := s.sleep(ctx, s.config.SettleDelay); err != nil {
		return FulfillmentLabelResult{}, err
	}

	shipment, err := s.provider.GetShipment(ctx, id)
	if err != nil {
		return FulfillmentLabelResult{}, fmt.Errorf("fulfillment: read shipment: %w", err)
	}

	if order.Status == domain.OrderStatusShipped {
		return FulfillmentLabelResult{
			OrderID:            order.ID,
			ExternalShipmentID: id,
			TrackingCode:       shipment.TrackingCode,
			Status:             order.Status,
		}, nil
	}
	if !canTransition(order.Status, domain.OrderStatusShipped) {
		return FulfillmentLabelResult{}, fmt.Errorf("%w: order is %s", ErrFulfillmentOrderState, order.Status)
	}

	now := s.clock()
	tracking := strings.TrimSpace(shipment.TrackingCode)
	update := repositories.OrderTransitionUpdate{
		ExpectedStatus: order.Status,
		NewStatus:      domain.OrderStatusShipped,
		AuditEntry: &OrderAuditEntry{
			Actor:      actorOrSystem(cmd.ActorID),
			Action:     "fulfillment.label.generated",
			FromStatus: order.Status,
			ToStatus:   domain.OrderStatusShipped,
			OccurredAt: now,
		},
		OccurredAt: now,
	}
	if tracking != "" {
		update.TrackingCode = &tracking
	}

	updated, err := s.orders.ApplyTransition(ctx, order.ID, update)
	if err != nil {
		return FulfillmentLabelResult{}, fmt.Errorf("fulfillment: mark shipped: %w", err)
	}

	notifyLifecycle(ctx, s.notifications, s.logger, order, updated, now)

	s.logger(ctx, "fulfillment.label.generated", map[string]any{
		"orderId":    order.ID,
		"shipmentId": id,
		"tracking":   tracking,
	})
	return FulfillmentLabelResult{
		OrderID:            order.ID,
		ExternalShipmentID: id,
		TrackingCode:       tracking,
		Status:             updated.Status,
	}, nil
}

// PrintLabel resolves the ephemeral label URL and, when an archiver is
// configured, stores a durable copy.
func (s *fulfillmentService) PrintLabel(ctx context.Context, cmd FulfillmentCommand) (FulfillmentPrintResult, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return FulfillmentPrintResult{}, err
	}
	id := shipmentID(order)
	if id == "" {
		return FulfillmentPrintResult{}, fmt.Errorf("%w: no shipment created yet", ErrFulfillmentNotReady)
	}

	doc, err := s.provider.PrintLabel(ctx, id)
	if err != nil {
		return FulfillmentPrintResult{}, fmt.Errorf("fulfillment: print label: %w", err)
	}

	result := FulfillmentPrintResult{
		OrderID:            order.ID,
		ExternalShipmentID: id,
		LabelURL:           doc.URL,
	}
	if s.archiver != nil {
		path, err := s.archiver.ArchiveLabel(ctx, order.ID, id, doc.URL)
		if err != nil {
			s.logger(ctx, "fulfillment.label.archive.failed", map[string]any{
				"orderId":    order.ID,
				"shipmentId": id,
				"error":      err.Error(),
			})
		} else {
			result.ArchivedObjectPath = path
		}
	}
	return result, nil
}

func (s *fulfillmentService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		}
		return Order{}, err
	}
	return order, nil
}

// recordStep writes an audit entry (plus any extra linkage) without changing
// the order status.
func (s *fulfillmentService) recordStep(ctx context.Context, order Order, actor, action string, mutate func(*repositories.OrderTransitionUpdate)) (Order, error) {
	now := s.clock()
	update := repositories.OrderTransitionUpdate{
		ExpectedStatus: order.Status,
		NewStatus:      order.Status,
		AuditEntry: &OrderAuditEntry{
			Actor:      actorOrSystem(actor),
			Action:     action,
			FromStatus: order.Status,
			ToStatus:   order.Status,
			OccurredAt: now,
		},
		OccurredAt: now,
	}
	if mutate != nil {
		mutate(&update)
	}
	updated, err := s.orders.ApplyTransition(ctx, order.ID, update)
	if err != nil {
		return Order{}, fmt.Errorf("fulfillment: record %s: %w", action, err)
	}
	return updated, nil
}

// orderEnvelope aggregates the declared product envelopes into one package:
// weights and lengths add up per unit, width and height take the maximum.
func (s *fulfillmentService) orderEnvelope(ctx context.Context, order Order) (shipping.Envelope, error) {
	quantities := make(map[string]int64, len(order.Items))
	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if _, seen := quantities[item.ProductID]; !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return shipping.Envelope{}, fmt.Errorf("fulfillment: load products: %w", err)
	}

	envelope := shipping.Envelope{}
	for _, product := range products {
		qty := quantities[product.ID]
		envelope.WeightKg += product.Envelope.WeightKg * float64(qty)
		envelope.LengthCm += product.Envelope.LengthCm * float64(qty)
		envelope.WidthCm = maxFloat(envelope.WidthCm, product.Envelope.WidthCm)
		envelope.HeightCm = maxFloat(envelope.HeightCm, product.Envelope.HeightCm)
	}
	return clampEnvelope(envelope), nil
}

func (s *fulfillmentService) buildShipmentRequest(order Order, envelope shipping.Envelope) shipping.CreateShipmentRequest {
	items := make([]shipping.ShipmentItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, shipping.ShipmentItem{
			Name:      textutil.NormalizeLabelText(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	to := shipping.Party{
		Name:       textutil.NormalizeLabelText(order.ShippingAddress.Recipient),
		Address:    textutil.NormalizeLabelText(order.ShippingAddress.Line1),
		City:       textutil.NormalizeLabelText(order.ShippingAddress.City),
		State:      order.ShippingAddress.State,
		PostalCode: order.ShippingAddress.PostalCode,
		Country:    order.ShippingAddress.Country,
		Email:      order.Customer.Email,
	}
	if order.ShippingAddress.Line2 != nil {
		to.Complement = textutil.NormalizeLabelText(*order.ShippingAddress.Line2)
	}
	if order.ShippingAddress.District != nil {
		to.District = textutil.NormalizeLabelText(*order.ShippingAddress.District)
	}
	if order.ShippingAddress.Phone != nil {
		to.Phone = *order.ShippingAddress.Phone
	}

	return shipping.CreateShipmentRequest{
		ServiceID:      s.resolveServiceID(order),
		From:           s.config.Origin,
		To:             to,
		Envelope:       envelope,
		InsuranceValue: order.Totals.Total,
		Items:          items,
		Reference:      order.OrderNumber,
	}
}

// resolveServiceID prefers the carrier service pinned at checkout and falls
// back to the configured default.
func (s *fulfillmentService) resolveServiceID(order Order) int {
	if order.ShippingService != nil {
		if id, err := strconv.Atoi(strings.TrimSpace(*order.ShippingService)); err == nil && id > 0 {
			return id
		}
	}
	return s.config.DefaultServiceID
}

func shipmentID(order Order) string {
	if order.ExternalShipmentID == nil {
		return ""
	}
	return strings.TrimSpace(*order.ExternalShipmentID)
}

func actorOrSystem(actor string) string {
	if actor = strings.TrimSpace(actor); actor != "" {
		return actor
	}
	return "system"
}
