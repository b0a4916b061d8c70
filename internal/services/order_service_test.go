package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/repositories"
)

func catalogFixture() []domain.Product {
	return []domain.Product{
		{ID: "prod_mug", Name: "Enamel Mug", ImageURL: "https://cdn.example.com/mug.png", Price: 4500, Stock: 10, Active: true},
		{ID: "prod_tee", Name: "Logo Tee", Price: 8900, Stock: 3, Active: true},
	}
}

func createOrderCommand() CreateOrderCommand {
	return CreateOrderCommand{
		Items: []CreateOrderItemInput{
			{ProductID: "prod_mug", Quantity: 2},
			{ProductID: "prod_tee", Quantity: 1},
		},
		Customer: OrderCustomer{Name: "Ana Souza", Email: "ana@example.com"},
		ShippingAddress: Address{
			Recipient:  "Ana Souza",
			Line1:      "Rua das Flores 123",
			City:       "Sao Paulo",
			State:      "sp",
			PostalCode: "01310100",
		},
		Shipping: CreateOrderShippingInput{OptionID: "1", ServiceName: "PAC", Price: 1500},
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Products == nil {
		deps.Products = &stubProductRepository{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepository{
			nextFunc: func(context.Context, string, int64) (int64, error) { return 42, nil },
		}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "01HYTESTULID" }
	}
	service, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return service
}

func TestCreateOrderBuildsSnapshotAndNumber(t *testing.T) {
	var inserted domain.Order
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			insertFunc: func(_ context.Context, order domain.Order) (domain.Order, error) {
				inserted = order
				return order, nil
			},
		},
		Products: &stubProductRepository{
			findByIDsFunc: func(_ context.Context, ids []string) ([]domain.Product, error) {
				if len(ids) != 2 {
					t.Fatalf("expected 2 deduplicated product ids, got %v", ids)
				}
				return catalogFixture(), nil
			},
		},
	})

	order, err := service.CreateOrder(context.Background(), createOrderCommand())
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}

	if order.ID != "ord_01HYTESTULID" {
		t.Fatalf("unexpected order id %q", order.ID)
	}
	if order.OrderNumber != "LM-2025-000042" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending || order.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending order and payment, got %q / %q", order.Status, order.Payment.Status)
	}
	if order.Currency != "BRL" {
		t.Fatalf("expected default BRL currency, got %q", order.Currency)
	}

	wantTotals := domain.OrderTotals{Subtotal: 17900, Shipping: 1500, Discount: 0, Total: 19400}
	if order.Totals != wantTotals {
		t.Fatalf("unexpected totals: %+v", order.Totals)
	}

	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	if order.Items[0].Name != "Enamel Mug" || order.Items[0].UnitPrice != 4500 || order.Items[0].Quantity != 2 {
		t.Fatalf("unexpected item snapshot: %+v", order.Items[0])
	}

	if order.ShippingAddress.State != "SP" || order.ShippingAddress.Country != "BR" {
		t.Fatalf("address not normalized: %+v", order.ShippingAddress)
	}
	if order.ShippingService == nil || *order.ShippingService != "PAC" {
		t.Fatalf("expected shipping service PAC, got %+v", order.ShippingService)
	}

	if len(order.Audit) != 1 || order.Audit[0].Action != "order.created" || order.Audit[0].Actor != "system" {
		t.Fatalf("unexpected audit trail: %+v", order.Audit)
	}
	if inserted.ID != order.ID {
		t.Fatalf("insert received a different order: %q", inserted.ID)
	}
}

func TestCreateOrderScopesCounterByYear(t *testing.T) {
	var counterID string
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			insertFunc: func(_ context.Context, order domain.Order) (domain.Order, error) {
				return order, nil
			},
		},
		Products: &stubProductRepository{
			findByIDsFunc: func(context.Context, []string) ([]domain.Product, error) {
				return catalogFixture(), nil
			},
		},
		Counters: &stubCounterRepository{
			nextFunc: func(_ context.Context, id string, _ int64) (int64, error) {
				counterID = id
				return 7, nil
			},
		},
		Clock: func() time.Time { return time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC) },
	})

	order, err := service.CreateOrder(context.Background(), createOrderCommand())
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if counterID != "orders-2026" {
		t.Fatalf("expected year-scoped counter id, got %q", counterID)
	}
	if order.OrderNumber != "LM-2026-000007" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
}

func TestCreateOrderNormalizesMetadata(t *testing.T) {
	var inserted domain.Order
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			insertFunc: func(_ context.Context, order domain.Order) (domain.Order, error) {
				inserted = order
				return order, nil
			},
		},
		Products: &stubProductRepository{
			findByIDsFunc: func(context.Context, []string) ([]domain.Product, error) {
				return catalogFixture(), nil
			},
		},
	})

	cmd := createOrderCommand()
	cmd.Metadata = map[string]string{" channel ": " web ", "  ": "dropped"}

	if _, err := service.CreateOrder(context.Background(), cmd); err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	want := map[string]string{"channel": "web"}
	if len(inserted.Metadata) != 1 || inserted.Metadata["channel"] != want["channel"] {
		t.Fatalf("unexpected metadata: %+v", inserted.Metadata)
	}
}

func TestCreateOrderAggregatesDuplicateItems(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			insertFunc: func(_ context.Context, order domain.Order) (domain.Order, error) {
				return order, nil
			},
		},
		Products: &stubProductRepository{
			findByIDsFunc: func(_ context.Context, ids []string) ([]domain.Product, error) {
				if len(ids) != 1 || ids[0] != "prod_mug" {
					t.Fatalf("expected single deduplicated id, got %v", ids)
				}
				return catalogFixture()[:1], nil
			},
		},
	})

	cmd := createOrderCommand()
	cmd.Items = []CreateOrderItemInput{
		{ProductID: "prod_mug", Quantity: 2},
		{ProductID: "prod_mug", Quantity: 3},
	}

	order, err := service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 5 {
		t.Fatalf("expected aggregated quantity 5, got %+v", order.Items)
	}
}

func TestCreateOrderRejectsEmptyCart(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{})

	cmd := createOrderCommand()
	cmd.Items = nil

	if _, err := service.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	products := catalogFixture()
	products[1].Active = false

	service := newTestOrderService(t, OrderServiceDeps{
		Products: &stubProductRepository{
			findByIDsFunc: func(context.Context, []string) ([]domain.Product, error) {
				return products, nil
			},
		},
	})

	if _, err := service.CreateOrder(context.Background(), createOrderCommand()); !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
}

func TestCreateOrderRejectsInsufficientStock(t *testing.T) {
	products := catalogFixture()
	products[0].Stock = 1

	service := newTestOrderService(t, OrderServiceDeps{
		Products: &stubProductRepository{
			findByIDsFunc: func(context.Context, []string) ([]domain.Product, error) {
				return products, nil
			},
		},
	})

	if _, err := service.CreateOrder(context.Background(), createOrderCommand()); !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
}

func TestCreateOrderRejectsNegativeTotal(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{
		Products: &stubProductRepository{
			findByIDsFunc: func(context.Context, []string) ([]domain.Product, error) {
				return catalogFixture(), nil
			},
		},
	})

	cmd := createOrderCommand()
	cmd.Discount = 1000000

	if _, err := service.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestGetOrderByNumber(t *testing.T) {
	stored := reconcilerOrder()
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			listFunc: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
				if filter.OrderNumber != stored.OrderNumber {
					t.Fatalf("unexpected order number filter %q", filter.OrderNumber)
				}
				if filter.Pagination.Limit != 1 {
					t.Fatalf("unexpected pagination limit %d", filter.Pagination.Limit)
				}
				return domain.CursorPage[domain.Order]{Items: []domain.Order{stored}}, nil
			},
		},
	})

	order, err := service.GetOrderByNumber(context.Background(), stored.OrderNumber)
	if err != nil {
		t.Fatalf("GetOrderByNumber returned error: %v", err)
	}
	if order.ID != stored.ID {
		t.Fatalf("unexpected order %q", order.ID)
	}
}

func TestGetOrderByNumberNotFound(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			listFunc: func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
				return domain.CursorPage[domain.Order]{}, nil
			},
		},
	})

	if _, err := service.GetOrderByNumber(context.Background(), "LM-2025-999999"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestTransitionStatusEnforcesGraph(t *testing.T) {
	order := reconcilerOrder()
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			findByIDFunc: func(context.Context, string) (domain.Order, error) {
				return order, nil
			},
		},
	})

	_, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusDelivered,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestTransitionStatusSameStatusIsIdempotent(t *testing.T) {
	order := reconcilerOrder()
	applyCalls := 0
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			findByIDFunc: func(context.Context, string) (domain.Order, error) {
				return order, nil
			},
			applyTransitionFunc: func(context.Context, string, repositories.OrderTransitionUpdate) (domain.Order, error) {
				applyCalls++
				return order, nil
			},
		},
	})

	got, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusPending,
	})
	if err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}
	if got.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected status %q", got.Status)
	}
	if applyCalls != 0 {
		t.Fatalf("expected no repository write, got %d calls", applyCalls)
	}
}

func TestTransitionStatusRejectsUnknownStatus(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{})

	_, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_01HYT",
		TargetStatus: domain.OrderStatus("refunded"),
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestTransitionStatusToPaidReservesStockAndNotifies(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	order := reconcilerOrder()

	var captured repositories.OrderTransitionUpdate
	publisher := &stubNotificationPublisher{}
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			findByIDFunc: func(context.Context, string) (domain.Order, error) {
				return order, nil
			},
			applyTransitionFunc: func(_ context.Context, _ string, update repositories.OrderTransitionUpdate) (domain.Order, error) {
				captured = update
				updated := order
				updated.Status = update.NewStatus
				updated.PaidAt = timePtr(now)
				return updated, nil
			},
		},
		Notifications: publisher,
		Clock:         func() time.Time { return now },
	})

	got, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusPaid,
		ActorID:      "admin_1",
		Note:         "manual confirmation",
	})
	if err != nil {
		t.Fatalf("TransitionStatus returned error: %v", err)
	}
	if got.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid order, got %q", got.Status)
	}

	if captured.ExpectedStatus != domain.OrderStatusPending || captured.NewStatus != domain.OrderStatusPaid {
		t.Fatalf("unexpected transition update: %+v", captured)
	}
	if len(captured.StockDeltas) != 2 || captured.StockDeltas[0].Delta != -2 {
		t.Fatalf("unexpected stock deltas: %+v", captured.StockDeltas)
	}
	if captured.AuditEntry == nil || captured.AuditEntry.Actor != "admin_1" || captured.AuditEntry.Action != "status.transition" {
		t.Fatalf("unexpected audit entry: %+v", captured.AuditEntry)
	}
	if captured.AuditEntry.Note != "manual confirmation" {
		t.Fatalf("unexpected audit note %q", captured.AuditEntry.Note)
	}

	if len(publisher.events) != 1 || publisher.events[0].Kind != domain.NotificationOrderPaid {
		t.Fatalf("expected one order.paid notification, got %+v", publisher.events)
	}
}

func TestOverrideStatusBypassesGraphAndRestocks(t *testing.T) {
	paidAt := time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)
	order := reconcilerOrder()
	order.Status = domain.OrderStatusDelivered
	order.PaidAt = &paidAt

	var captured repositories.OrderTransitionUpdate
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			findByIDFunc: func(context.Context, string) (domain.Order, error) {
				return order, nil
			},
			applyTransitionFunc: func(_ context.Context, _ string, update repositories.OrderTransitionUpdate) (domain.Order, error) {
				captured = update
				updated := order
				updated.Status = update.NewStatus
				return updated, nil
			},
		},
	})

	got, err := service.OverrideStatus(context.Background(), OrderStatusOverrideCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusCancelled,
		ActorID:      "admin_1",
		Note:         "customer returned the parcel",
	})
	if err != nil {
		t.Fatalf("OverrideStatus returned error: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %q", got.Status)
	}

	if captured.AuditEntry == nil || captured.AuditEntry.Action != "status.override" {
		t.Fatalf("unexpected audit entry: %+v", captured.AuditEntry)
	}
	if len(captured.StockDeltas) != 2 || captured.StockDeltas[0].Delta != 2 || captured.StockDeltas[1].Delta != 1 {
		t.Fatalf("expected restock deltas, got %+v", captured.StockDeltas)
	}
}

func TestTransitionStatusMapsConflict(t *testing.T) {
	order := reconcilerOrder()
	service := newTestOrderService(t, OrderServiceDeps{
		Orders: &stubOrderRepository{
			findByIDFunc: func(context.Context, string) (domain.Order, error) {
				return order, nil
			},
			applyTransitionFunc: func(context.Context, string, repositories.OrderTransitionUpdate) (domain.Order, error) {
				return domain.Order{}, &repositoryErrorStub{conflict: true}
			},
		},
	})

	_, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusPaid,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}
