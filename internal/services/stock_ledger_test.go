package services

import (
	"testing"
	"time"

	domain "github.com/lumamart/api/internal/domain"
)

func TestStockDeltasDecrementsOnFirstPaid(t *testing.T) {
	order := domain.Order{
		Items: []domain.OrderItem{
			{ProductID: "prod_1", Quantity: 2},
			{ProductID: "prod_2", Quantity: 1},
		},
	}

	deltas := stockDeltas(order, domain.OrderStatusPending, domain.OrderStatusPaid)
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	if deltas[0].ProductID != "prod_1" || deltas[0].Delta != -2 {
		t.Fatalf("unexpected first delta: %+v", deltas[0])
	}
	if deltas[1].ProductID != "prod_2" || deltas[1].Delta != -1 {
		t.Fatalf("unexpected second delta: %+v", deltas[1])
	}
}

func TestStockDeltasSkipsAlreadyPaidOrder(t *testing.T) {
	paidAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	order := domain.Order{
		PaidAt: &paidAt,
		Items:  []domain.OrderItem{{ProductID: "prod_1", Quantity: 2}},
	}

	if deltas := stockDeltas(order, domain.OrderStatusPending, domain.OrderStatusPaid); deltas != nil {
		t.Fatalf("expected no deltas for an order already marked paid, got %+v", deltas)
	}
}

func TestStockDeltasRestoresOnCancelAfterPayment(t *testing.T) {
	paidAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	order := domain.Order{
		PaidAt: &paidAt,
		Items: []domain.OrderItem{
			{ProductID: "prod_1", Quantity: 3},
		},
	}

	deltas := stockDeltas(order, domain.OrderStatusPaid, domain.OrderStatusCancelled)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if deltas[0].ProductID != "prod_1" || deltas[0].Delta != 3 {
		t.Fatalf("unexpected delta: %+v", deltas[0])
	}
}

func TestStockDeltasNoopOnCancelBeforePayment(t *testing.T) {
	order := domain.Order{
		Items: []domain.OrderItem{{ProductID: "prod_1", Quantity: 1}},
	}

	if deltas := stockDeltas(order, domain.OrderStatusPending, domain.OrderStatusCancelled); deltas != nil {
		t.Fatalf("expected no deltas for cancellation before payment, got %+v", deltas)
	}
}

func TestStockDeltasIgnoresNonPositiveQuantities(t *testing.T) {
	order := domain.Order{
		Items: []domain.OrderItem{
			{ProductID: "prod_1", Quantity: 0},
			{ProductID: "prod_2", Quantity: -4},
			{ProductID: "prod_3", Quantity: 5},
		},
	}

	deltas := stockDeltas(order, domain.OrderStatusPending, domain.OrderStatusPaid)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if deltas[0].ProductID != "prod_3" || deltas[0].Delta != -5 {
		t.Fatalf("unexpected delta: %+v", deltas[0])
	}
}
