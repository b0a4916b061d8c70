package services

import domain "github.com/lumamart/api/internal/domain"

// stockDeltas computes the inventory adjustments owed by a status change.
// Stock is decremented exactly once the first time an order enters paid, and
// incremented back exactly once when a previously paid order is cancelled.
// The net effect across pending, paid, cancelled is zero; an order cancelled
// before payment never touches stock.
func stockDeltas(order Order, previous, next domain.OrderStatus) []StockDelta {
	switch {
	case next == domain.OrderStatusPaid && previous != domain.OrderStatusPaid && order.PaidAt == nil:
		return itemDeltas(order.Items, -1)
	case next == domain.OrderStatusCancelled && previous != domain.OrderStatusCancelled && order.PaidAt != nil:
		return itemDeltas(order.Items, 1)
	default:
		return nil
	}
}

func itemDeltas(items []OrderItem, sign int64) []StockDelta {
	deltas := make([]StockDelta, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		deltas = append(deltas, StockDelta{
			ProductID: item.ProductID,
			Delta:     sign * item.Quantity,
		})
	}
	return deltas
}
