package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lumamart/api/internal/domain"
	pfirestore "github.com/lumamart/api/internal/platform/firestore"
	"github.com/lumamart/api/internal/platform/pagination"
	"github.com/lumamart/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
)

type orderDocument struct {
	OrderNumber        string               `firestore:"orderNumber"`
	Status             string               `firestore:"status"`
	Payment            orderPaymentDocument `firestore:"payment"`
	Currency           string               `firestore:"currency"`
	Subtotal           int64                `firestore:"subtotal"`
	Shipping           int64                `firestore:"shipping"`
	Discount           int64                `firestore:"discount"`
	Total              int64                `firestore:"total"`
	Items              []orderItemDocument  `firestore:"items"`
	CustomerName       string               `firestore:"customerName"`
	CustomerEmail      string               `firestore:"customerEmail"`
	ShippingAddress    addressDocument      `firestore:"shippingAddress"`
	ExternalShipmentID *string              `firestore:"externalShipmentId,omitempty"`
	TrackingCode       *string              `firestore:"trackingCode,omitempty"`
	ShippingService    *string              `firestore:"shippingService,omitempty"`
	Audit              []orderAuditDocument `firestore:"audit,omitempty"`
	Metadata           map[string]string    `firestore:"metadata,omitempty"`
	CreatedAt          time.Time            `firestore:"createdAt"`
	UpdatedAt          time.Time            `firestore:"updatedAt"`
	PaidAt             *time.Time           `firestore:"paidAt,omitempty"`
	ShippedAt          *time.Time           `firestore:"shippedAt,omitempty"`
	DeliveredAt        *time.Time           `firestore:"deliveredAt,omitempty"`
	CanceledAt         *time.Time           `firestore:"canceledAt,omitempty"`
}

type orderPaymentDocument struct {
	Status            string  `firestore:"status"`
	Provider          string  `firestore:"provider,omitempty"`
	ExternalPaymentID *string `firestore:"externalPaymentId,omitempty"`
	Method            string  `firestore:"method,omitempty"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int64  `firestore:"quantity"`
}

type addressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	District   *string `firestore:"district,omitempty"`
	City       string  `firestore:"city"`
	State      string  `firestore:"state"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type orderAuditDocument struct {
	Actor      string    `firestore:"actor"`
	Action     string    `firestore:"action"`
	FromStatus string    `firestore:"fromStatus"`
	ToStatus   string    `firestore:"toStatus"`
	Note       string    `firestore:"note,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders}, nil
}

// Insert creates the order document, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order insert: order id is required")
	}

	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := ref.Create(ctx, newOrderDocument(order)); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.insert", err)
	}
	return order, nil
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order update: order id is required")
	}
	if _, err := r.orders.Set(ctx, order.ID, newOrderDocument(order)); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByExternalPaymentID resolves the order linked to a gateway payment id.
func (r *OrderRepository) FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	paymentID := strings.TrimSpace(externalPaymentID)
	if paymentID == "" {
		return domain.Order{}, errors.New("order lookup: external payment id is required")
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("payment.externalPaymentId", "==", paymentID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByExternalPaymentId",
			status.Errorf(codes.NotFound, "order with payment %s not found", paymentID))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns a page of orders matching the filter, newest first by default.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.Limit
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	if limit > maxOrderPageSize {
		limit = maxOrderPageSize
	}

	direction := firestore.Desc
	if filter.Sort == domain.SortAsc {
		direction = firestore.Asc
	}

	cursor, err := decodeOrderCursor(filter.Pagination.Cursor)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if number := strings.TrimSpace(filter.OrderNumber); number != "" {
			q = q.Where("orderNumber", "==", number)
		}
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		if filter.CreatedBefore != nil {
			q = q.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		q = q.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, direction)
		if cursor != nil {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == limit {
			last := docs[limit-1]
			token, err := encodeOrderCursor(orderCursor{CreatedAt: last.Data.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// ApplyTransition performs the guarded status write together with its stock
// deltas inside one transaction. All reads happen before any write.
func (r *OrderRepository) ApplyTransition(ctx context.Context, orderID string, update repositories.OrderTransitionUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order transition: order id is required")
	}

	products := pfirestore.NewBaseRepository[productDocument](r.provider, productsCollection, nil, nil)

	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}

		if doc.Status != string(update.ExpectedStatus) {
			return status.Errorf(codes.FailedPrecondition,
				"order %s status is %s, expected %s", id, doc.Status, update.ExpectedStatus)
		}
		if update.ExternalPaymentID != nil {
			if current := doc.Payment.ExternalPaymentID; current != nil && *current != "" && *current != *update.ExternalPaymentID {
				return status.Errorf(codes.FailedPrecondition,
					"order %s already linked to payment %s", id, *current)
			}
		}

		type stockWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		writes := make([]stockWrite, 0, len(update.StockDeltas))
		for _, delta := range update.StockDeltas {
			productID := strings.TrimSpace(delta.ProductID)
			if productID == "" || delta.Delta == 0 {
				continue
			}
			productRef, err := products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			productSnap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return status.Errorf(codes.NotFound, "product %s not found", productID)
				}
				return err
			}
			var product productDocument
			if err := productSnap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			next := product.Stock + delta.Delta
			if next < 0 {
				return status.Errorf(codes.FailedPrecondition,
					"product %s stock would go negative (%d%+d)", productID, product.Stock, delta.Delta)
			}
			product.Stock = next
			product.UpdatedAt = update.OccurredAt.UTC()
			writes = append(writes, stockWrite{ref: productRef, doc: product})
		}

		applyTransitionToDocument(&doc, update)

		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		result = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.applyTransition", err)
	}
	return result, nil
}

func applyTransitionToDocument(doc *orderDocument, update repositories.OrderTransitionUpdate) {
	now := update.OccurredAt.UTC()
	doc.Status = string(update.NewStatus)
	doc.UpdatedAt = now

	switch update.NewStatus {
	case domain.OrderStatusPaid:
		if doc.PaidAt == nil {
			doc.PaidAt = &now
		}
	case domain.OrderStatusShipped:
		if doc.ShippedAt == nil {
			doc.ShippedAt = &now
		}
	case domain.OrderStatusDelivered:
		if doc.DeliveredAt == nil {
			doc.DeliveredAt = &now
		}
	case domain.OrderStatusCancelled:
		if doc.CanceledAt == nil {
			doc.CanceledAt = &now
		}
	}

	if update.PaymentStatus != nil {
		doc.Payment.Status = string(*update.PaymentStatus)
	}
	if update.ExternalPaymentID != nil {
		if doc.Payment.ExternalPaymentID == nil || *doc.Payment.ExternalPaymentID == "" {
			value := *update.ExternalPaymentID
			doc.Payment.ExternalPaymentID = &value
		}
	}
	if update.PaymentMethod != nil {
		doc.Payment.Method = *update.PaymentMethod
	}
	if update.PaymentProvider != nil {
		doc.Payment.Provider = *update.PaymentProvider
	}
	if update.ExternalShipmentID != nil {
		value := *update.ExternalShipmentID
		doc.ExternalShipmentID = &value
	}
	if update.TrackingCode != nil {
		value := *update.TrackingCode
		doc.TrackingCode = &value
	}
	if update.ShippingService != nil {
		value := *update.ShippingService
		doc.ShippingService = &value
	}
	if update.AuditEntry != nil {
		doc.Audit = append(doc.Audit, orderAuditDocument{
			Actor:      update.AuditEntry.Actor,
			Action:     update.AuditEntry.Action,
			FromStatus: string(update.AuditEntry.FromStatus),
			ToStatus:   string(update.AuditEntry.ToStatus),
			Note:       update.AuditEntry.Note,
			OccurredAt: update.AuditEntry.OccurredAt.UTC(),
		})
	}
}

// orderCursor positions the list query after the last document of the
// previous page. It round-trips through pagination tokens as the pair
// [createdAt RFC3339Nano, document id].
type orderCursor struct {
	CreatedAt time.Time
	ID        string
}

func encodeOrderCursor(cursor orderCursor) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{cursor.CreatedAt.UTC().Format(time.RFC3339Nano), cursor.ID},
	})
}

func decodeOrderCursor(token string) (*orderCursor, error) {
	decoded, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(decoded.StartAfter) == 0 {
		return nil, nil
	}
	if len(decoded.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawCreatedAt, ok := decoded.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	id, ok := decoded.StartAfter[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return &orderCursor{CreatedAt: createdAt, ID: id}, nil
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Payment: orderPaymentDocument{
			Status:   string(order.Payment.Status),
			Provider: order.Payment.Provider,
			Method:   order.Payment.Method,
		},
		Currency:           order.Currency,
		Subtotal:           order.Totals.Subtotal,
		Shipping:           order.Totals.Shipping,
		Discount:           order.Totals.Discount,
		Total:              order.Totals.Total,
		CustomerName:       order.Customer.Name,
		CustomerEmail:      order.Customer.Email,
		ShippingAddress:    newAddressDocument(order.ShippingAddress),
		ExternalShipmentID: cloneStringPtr(order.ExternalShipmentID),
		TrackingCode:       cloneStringPtr(order.TrackingCode),
		ShippingService:    cloneStringPtr(order.ShippingService),
		Metadata:           order.Metadata,
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
		PaidAt:             cloneTimePtr(order.PaidAt),
		ShippedAt:          cloneTimePtr(order.ShippedAt),
		DeliveredAt:        cloneTimePtr(order.DeliveredAt),
		CanceledAt:         cloneTimePtr(order.CanceledAt),
	}
	if order.Payment.ExternalPaymentID != nil {
		doc.Payment.ExternalPaymentID = cloneStringPtr(order.Payment.ExternalPaymentID)
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	for _, entry := range order.Audit {
		doc.Audit = append(doc.Audit, orderAuditDocument{
			Actor:      entry.Actor,
			Action:     entry.Action,
			FromStatus: string(entry.FromStatus),
			ToStatus:   string(entry.ToStatus),
			Note:       entry.Note,
			OccurredAt: entry.OccurredAt.UTC(),
		})
	}
	return doc
}

func newAddressDocument(address domain.Address) addressDocument {
	return addressDocument{
		Recipient:  address.Recipient,
		Line1:      address.Line1,
		Line2:      cloneStringPtr(address.Line2),
		District:   cloneStringPtr(address.District),
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Country:    address.Country,
		Phone:      cloneStringPtr(address.Phone),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		Status:      domain.OrderStatus(d.Status),
		Payment: domain.OrderPayment{
			Status:            domain.PaymentStatus(d.Payment.Status),
			Provider:          d.Payment.Provider,
			ExternalPaymentID: cloneStringPtr(d.Payment.ExternalPaymentID),
			Method:            d.Payment.Method,
		},
		Currency: d.Currency,
		Totals: domain.OrderTotals{
			Subtotal: d.Subtotal,
			Shipping: d.Shipping,
			Discount: d.Discount,
			Total:    d.Total,
		},
		Customer: domain.OrderCustomer{
			Name:  d.CustomerName,
			Email: d.CustomerEmail,
		},
		ShippingAddress:    d.ShippingAddress.toDomain(),
		ExternalShipmentID: cloneStringPtr(d.ExternalShipmentID),
		TrackingCode:       cloneStringPtr(d.TrackingCode),
		ShippingService:    cloneStringPtr(d.ShippingService),
		Metadata:           d.Metadata,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
		PaidAt:             cloneTimePtr(d.PaidAt),
		ShippedAt:          cloneTimePtr(d.ShippedAt),
		DeliveredAt:        cloneTimePtr(d.DeliveredAt),
		CanceledAt:         cloneTimePtr(d.CanceledAt),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	for _, entry := range d.Audit {
		order.Audit = append(order.Audit, domain.OrderAuditEntry{
			Actor:      entry.Actor,
			Action:     entry.Action,
			FromStatus: domain.OrderStatus(entry.FromStatus),
			ToStatus:   domain.OrderStatus(entry.ToStatus),
			Note:       entry.Note,
			OccurredAt: entry.OccurredAt,
		})
	}
	return order
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      cloneStringPtr(d.Line2),
		District:   cloneStringPtr(d.District),
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      cloneStringPtr(d.Phone),
	}
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := value.UTC()
	return &out
}
