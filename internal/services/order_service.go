package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/platform/textutil"
	"github.com/lumamart/api/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent mutation conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrProductUnavailable indicates a referenced product is missing, inactive, or out of stock.
	ErrProductUnavailable = errors.New("order: product unavailable")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:      {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Products      repositories.ProductRepository
	Counters      repositories.CounterRepository
	Notifications NotificationPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	counters      repositories.CounterRepository
	notifications NotificationPublisher
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		products:      deps.Products,
		counters:      deps.Counters,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	customerName := strings.TrimSpace(cmd.Customer.Name)
	if customerName == "" {
		return Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	customerEmail := strings.TrimSpace(cmd.Customer.Email)
	if customerEmail == "" {
		return Order{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if err := validateAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}
	if cmd.Shipping.Price < 0 {
		return Order{}, fmt.Errorf("%w: shipping price must not be negative", ErrOrderInvalidInput)
	}
	if cmd.Discount < 0 {
		return Order{}, fmt.Errorf("%w: discount must not be negative", ErrOrderInvalidInput)
	}

	quantities := make(map[string]int64, len(cmd.Items))
	productIDs := make([]string, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return Order{}, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item quantity must be positive", ErrOrderInvalidInput)
		}
		if _, seen := quantities[id]; !seen {
			productIDs = append(productIDs, id)
		}
		quantities[id] += item.Quantity
	}

	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	var subtotal int64
	items := make([]OrderItem, 0, len(products))
	for _, product := range products {
		qty := quantities[product.ID]
		if !product.Active {
			return Order{}, fmt.Errorf("%w: product %s is not for sale", ErrProductUnavailable, product.ID)
		}
		if product.Stock < qty {
			return Order{}, fmt.Errorf("%w: product %s has %d in stock, %d requested", ErrProductUnavailable, product.ID, product.Stock, qty)
		}
		items = append(items, OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitPrice: product.Price,
			Quantity:  qty,
		})
		subtotal += product.Price * qty
	}

	totals := OrderTotals{
		Subtotal: subtotal,
		Shipping: cmd.Shipping.Price,
		Discount: cmd.Discount,
		Total:    subtotal + cmd.Shipping.Price - cmd.Discount,
	}
	if totals.Total < 0 {
		return Order{}, fmt.Errorf("%w: discount exceeds order value", ErrOrderInvalidInput)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = "BRL"
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:          orderIDPrefix + s.newID(),
		OrderNumber: number,
		Status:      domain.OrderStatusPending,
		Payment: domain.OrderPayment{
			Status: domain.PaymentStatusPending,
		},
		Currency:        currency,
		Totals:          totals,
		Items:           items,
		Customer:        OrderCustomer{Name: customerName, Email: customerEmail},
		ShippingAddress: normalizeAddress(cmd.ShippingAddress),
		Metadata:        textutil.NormalizeStringMap(cmd.Metadata),
		Audit: []OrderAuditEntry{{
			Actor:      "system",
			Action:     "order.created",
			ToStatus:   domain.OrderStatusPending,
			OccurredAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if service := strings.TrimSpace(cmd.Shipping.ServiceName); service != "" {
		order.ShippingService = &service
	}

	inserted, err := s.orders.Insert(ctx, order)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	order = inserted

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.Totals.Total,
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{Pagination: Pagination{Limit: 1}, OrderNumber: orderNumber})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if len(page.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order number %s", ErrOrderNotFound, orderNumber)
	}
	return page.Items[0], nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	order, target, err := s.loadForStatusChange(ctx, cmd.OrderID, cmd.TargetStatus)
	if err != nil {
		return Order{}, err
	}
	if order.Status == target {
		return order, nil
	}
	if !canTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}
	return s.applyStatusChange(ctx, order, target, cmd.ActorID, "status.transition", cmd.Note)
}

func (s *orderService) OverrideStatus(ctx context.Context, cmd OrderStatusOverrideCommand) (Order, error) {
	order, target, err := s.loadForStatusChange(ctx, cmd.OrderID, cmd.TargetStatus)
	if err != nil {
		return Order{}, err
	}
	if order.Status == target {
		return order, nil
	}
	s.logger(ctx, "order.status.override", map[string]any{
		"orderId": order.ID,
		"from":    string(order.Status),
		"to":      string(target),
		"actor":   cmd.ActorID,
	})
	return s.applyStatusChange(ctx, order, target, cmd.ActorID, "status.override", cmd.Note)
}

func (s *orderService) loadForStatusChange(ctx context.Context, orderID string, target domain.OrderStatus) (Order, domain.OrderStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, "", fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.KnownOrderStatus(target) {
		return Order{}, "", fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, "", s.mapRepositoryError(err)
	}
	return order, target, nil
}

// applyStatusChange writes the status change and its stock deltas as one
// conditional update keyed on the previously read status.
func (s *orderService) applyStatusChange(ctx context.Context, order Order, target domain.OrderStatus, actor, action, note string) (Order, error) {
	now := s.now()
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "system"
	}

	update := repositories.OrderTransitionUpdate{
		ExpectedStatus: order.Status,
		NewStatus:      target,
		StockDeltas:    stockDeltas(order, order.Status, target),
		AuditEntry: &OrderAuditEntry{
			Actor:      actor,
			Action:     action,
			FromStatus: order.Status,
			ToStatus:   target,
			Note:       strings.TrimSpace(note),
			OccurredAt: now,
		},
		OccurredAt: now,
	}

	updated, err := s.orders.ApplyTransition(ctx, order.ID, update)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.notify(ctx, order, updated, now)
	return updated, nil
}

func (s *orderService) notify(ctx context.Context, previous, updated Order, now time.Time) {
	notifyLifecycle(ctx, s.notifications, s.logger, previous, updated, now)
}

// notifyLifecycle publishes lifecycle notifications for first-time entries into
// paid, shipped, and delivered. Failures are logged and swallowed.
func notifyLifecycle(ctx context.Context, publisher NotificationPublisher, logger func(context.Context, string, map[string]any), previous, updated Order, now time.Time) {
	if publisher == nil {
		return
	}
	var kind domain.NotificationKind
	switch {
	case updated.Status == domain.OrderStatusPaid && previous.Status != domain.OrderStatusPaid && previous.PaidAt == nil:
		kind = domain.NotificationOrderPaid
	case updated.Status == domain.OrderStatusShipped && previous.Status != domain.OrderStatusShipped && previous.ShippedAt == nil:
		kind = domain.NotificationOrderShipped
	case updated.Status == domain.OrderStatusDelivered && previous.Status != domain.OrderStatusDelivered && previous.DeliveredAt == nil:
		kind = domain.NotificationOrderDelivered
	default:
		return
	}

	event := NotificationEvent{
		Kind:        kind,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		Email:       updated.Customer.Email,
		Name:        updated.Customer.Name,
		OccurredAt:  now,
	}
	if err := publisher.PublishNotification(ctx, event); err != nil {
		logger(ctx, "order.notification.publish.failed", map[string]any{
			"orderId": updated.ID,
			"kind":    string(kind),
			"error":   err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

// generateOrderNumber draws from a per-year counter so the sequence embedded
// in the number restarts each year alongside the year segment.
func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, fmt.Sprintf("orders-%04d", now.Year()), 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("LM-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func validateAddress(addr Address) error {
	if strings.TrimSpace(addr.Recipient) == "" {
		return fmt.Errorf("%w: shipping recipient is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: shipping address line is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.State) == "" {
		return fmt.Errorf("%w: shipping state is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		return fmt.Errorf("%w: shipping postal code is required", ErrOrderInvalidInput)
	}
	return nil
}

func normalizeAddress(addr Address) Address {
	addr.Recipient = strings.TrimSpace(addr.Recipient)
	addr.Line1 = strings.TrimSpace(addr.Line1)
	addr.City = strings.TrimSpace(addr.City)
	addr.State = strings.ToUpper(strings.TrimSpace(addr.State))
	addr.PostalCode = strings.TrimSpace(addr.PostalCode)
	if addr.Country == "" {
		addr.Country = "BR"
	}
	return addr
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
