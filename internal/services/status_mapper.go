package services

import domain "github.com/lumamart/api/internal/domain"

// MapPaymentStatus maps a gateway-reported payment state to the internal
// order and payment status pair. Unknown states resolve to pending so a new
// gateway state never fails reconciliation.
func MapPaymentStatus(gatewayStatus string) (domain.OrderStatus, domain.PaymentStatus) {
	switch gatewayStatus {
	case "approved":
		return domain.OrderStatusPaid, domain.PaymentStatusApproved
	case "pending", "in_process":
		return domain.OrderStatusPending, domain.PaymentStatusPending
	case "rejected", "cancelled":
		return domain.OrderStatusCancelled, domain.PaymentStatusRejected
	default:
		return domain.OrderStatusPending, domain.PaymentStatusPending
	}
}
