package repositories

import (
	"context"
	"time"

	domain "github.com/lumamart/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders and owns the transactional transition write.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// ApplyTransition atomically re-reads the order, verifies the stored status
	// still matches update.ExpectedStatus, writes the new status plus payment
	// and fulfillment linkage, and applies every stock delta in the same
	// transaction. A concurrent transition surfaces as a conflict.
	ApplyTransition(ctx context.Context, orderID string, update OrderTransitionUpdate) (domain.Order, error)
}

// ProductRepository exposes the catalog reads the pipeline needs plus the
// stock write used outside of order transitions.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// AdjustStock applies a single delta, failing with a conflict when the
	// resulting stock would go negative.
	AdjustStock(ctx context.Context, productID string, delta int64) (domain.Product, error)
}

// CounterRepository yields monotonically increasing sequences, used for
// human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, name string, step int64) (int64, error)
}

// HealthRepository probes backing dependencies for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderTransitionUpdate carries the conditional write applied by ApplyTransition.
type OrderTransitionUpdate struct {
	// ExpectedStatus guards the write: the transaction aborts with a conflict
	// when the stored status no longer matches it.
	ExpectedStatus domain.OrderStatus
	NewStatus      domain.OrderStatus
	PaymentStatus  *domain.PaymentStatus
	// ExternalPaymentID is only written while the stored value is still empty.
	ExternalPaymentID  *string
	PaymentMethod      *string
	PaymentProvider    *string
	ExternalShipmentID *string
	TrackingCode       *string
	ShippingService    *string
	StockDeltas        []domain.StockDelta
	AuditEntry         *domain.OrderAuditEntry
	OccurredAt         time.Time
}

// OrderListFilter bounds admin order listings.
type OrderListFilter struct {
	Statuses      []domain.OrderStatus
	OrderNumber   string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Pagination    domain.Pagination
	Sort          domain.SortOrder
}

// ProductListFilter bounds catalog listings.
type ProductListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}
