package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/platform/auth"
	"github.com/lumamart/api/internal/platform/httpx"
	"github.com/lumamart/api/internal/platform/pagination"
	"github.com/lumamart/api/internal/services"
)

const (
	defaultOrderPageSize    = 20
	maxOrderPageSize        = 100
	maxCreateOrderBodySize  = 64 * 1024
	maxStatusChangeBodySize = 4 * 1024
	maxCheckoutBodySize     = 4 * 1024
)

type createOrderRequest struct {
	Items    []createOrderItemRequest `json:"items"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer"`
	ShippingAddress addressRequest `json:"shipping_address"`
	Shipping        struct {
		OptionID    string `json:"option_id"`
		ServiceName string `json:"service_name"`
		Price       int64  `json:"price"`
	} `json:"shipping"`
	Discount int64             `json:"discount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type addressRequest struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2"`
	District   *string `json:"district"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone"`
}

type statusChangeRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type startCheckoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// OrderHandlers exposes order creation and reads publicly plus the admin
// status write paths.
type OrderHandlers struct {
	orders   services.OrderService
	checkout services.CheckoutStarter
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, checkout services.CheckoutStarter) *OrderHandlers {
	return &OrderHandlers{orders: orders, checkout: checkout}
}

// Routes registers the public /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:checkout", h.startCheckout)
}

// AdminRoutes registers the admin /orders endpoints.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}:transition", h.transitionStatus)
	r.Post("/orders/{orderID}:override-status", h.overrideStatus)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCreateOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Customer: services.OrderCustomer{
			Name:  strings.TrimSpace(req.Customer.Name),
			Email: strings.TrimSpace(req.Customer.Email),
		},
		ShippingAddress: buildAddress(req.ShippingAddress),
		Shipping: services.CreateOrderShippingInput{
			OptionID:    strings.TrimSpace(req.Shipping.OptionID),
			ServiceName: strings.TrimSpace(req.Shipping.ServiceName),
			Price:       req.Shipping.Price,
		},
		Discount: req.Discount,
		Currency: strings.TrimSpace(req.Currency),
		Metadata: req.Metadata,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CreateOrderItemInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var (
		order services.Order
		err   error
	)
	if strings.HasPrefix(orderID, "LM-") {
		order, err = h.orders.GetOrderByNumber(ctx, orderID)
	} else {
		order, err = h.orders.GetOrder(ctx, orderID)
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) startCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req startCheckoutRequest
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	redirect, err := h.checkout.StartCheckout(ctx, services.StartCheckoutCommand{
		OrderID:    orderID,
		SuccessURL: strings.TrimSpace(req.SuccessURL),
		CancelURL:  strings.TrimSpace(req.CancelURL),
	})
	if err != nil {
		if errors.Is(err, services.ErrCheckoutInvalidState) {
			httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
			return
		}
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutRedirectResponse{
		SessionID:   redirect.SessionID,
		Provider:    redirect.Provider,
		RedirectURL: redirect.RedirectURL,
		ExpiresAt:   formatTime(redirect.ExpiresAt),
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()

	var statuses []domain.OrderStatus
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.OrderStatus(raw)
		if !domain.KnownOrderStatus(status) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter must be a valid order status", http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	filter := services.OrderListFilter{
		Statuses:    statuses,
		OrderNumber: strings.TrimSpace(query.Get("order_number")),
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedAfter = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedBefore = &ts
	}

	params, err := pagination.Parse(query, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		message := "page_token is not a valid page token"
		if errors.Is(err, pagination.ErrInvalidPageSize) {
			message = "page_size must be a positive integer"
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
		return
	}
	filter.Pagination = services.Pagination{
		Limit:  params.PageSize,
		Cursor: params.PageToken,
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, false)
}

func (h *OrderHandlers) overrideStatus(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, true)
}

func (h *OrderHandlers) changeStatus(w http.ResponseWriter, r *http.Request, override bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxStatusChangeBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req statusChangeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !domain.KnownOrderStatus(target) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	actor := ""
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		actor = strings.TrimSpace(identity.UID)
	}

	var order services.Order
	if override {
		order, err = h.orders.OverrideStatus(ctx, services.OrderStatusOverrideCommand{
			OrderID:      orderID,
			TargetStatus: target,
			ActorID:      actor,
			Note:         strings.TrimSpace(req.Note),
		})
	} else {
		order, err = h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
			OrderID:      orderID,
			TargetStatus: target,
			ActorID:      actor,
			Note:         strings.TrimSpace(req.Note),
		})
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Currency      string `json:"currency"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                 string              `json:"id"`
	OrderNumber        string              `json:"order_number"`
	Status             string              `json:"status"`
	Payment            orderPaymentPayload `json:"payment"`
	Currency           string              `json:"currency"`
	Totals             orderTotalsPayload  `json:"totals"`
	Items              []orderItemPayload  `json:"items"`
	Customer           orderCustomerData   `json:"customer"`
	ShippingAddress    addressPayload      `json:"shipping_address"`
	ExternalShipmentID string              `json:"external_shipment_id,omitempty"`
	TrackingCode       string              `json:"tracking_code,omitempty"`
	ShippingService    string              `json:"shipping_service,omitempty"`
	Metadata           map[string]string   `json:"metadata,omitempty"`
	CreatedAt          string              `json:"created_at"`
	UpdatedAt          string              `json:"updated_at,omitempty"`
	PaidAt             string              `json:"paid_at,omitempty"`
	ShippedAt          string              `json:"shipped_at,omitempty"`
	DeliveredAt        string              `json:"delivered_at,omitempty"`
	CanceledAt         string              `json:"canceled_at,omitempty"`
}

type orderPaymentPayload struct {
	Status            string `json:"status"`
	Provider          string `json:"provider,omitempty"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	Method            string `json:"method,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

type orderCustomerData struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type addressPayload struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	District   *string `json:"district,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

type checkoutRedirectResponse struct {
	SessionID   string `json:"session_id"`
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirect_url"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            strings.TrimSpace(order.ID),
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		Status:        string(order.Status),
		PaymentStatus: string(order.Payment.Status),
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:         order.Totals.Total,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Status:      string(order.Status),
		Payment: orderPaymentPayload{
			Status:   string(order.Payment.Status),
			Provider: strings.TrimSpace(order.Payment.Provider),
			Method:   strings.TrimSpace(order.Payment.Method),
		},
		Currency: strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Shipping: order.Totals.Shipping,
			Discount: order.Totals.Discount,
			Total:    order.Totals.Total,
		},
		Items: make([]orderItemPayload, 0, len(order.Items)),
		Customer: orderCustomerData{
			Name:  strings.TrimSpace(order.Customer.Name),
			Email: strings.TrimSpace(order.Customer.Email),
		},
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Metadata:        order.Metadata,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		PaidAt:          formatTime(pointerTime(order.PaidAt)),
		ShippedAt:       formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:     formatTime(pointerTime(order.DeliveredAt)),
		CanceledAt:      formatTime(pointerTime(order.CanceledAt)),
	}

	if order.Payment.ExternalPaymentID != nil {
		payload.Payment.ExternalPaymentID = strings.TrimSpace(*order.Payment.ExternalPaymentID)
	}
	if order.ExternalShipmentID != nil {
		payload.ExternalShipmentID = strings.TrimSpace(*order.ExternalShipmentID)
	}
	if order.TrackingCode != nil {
		payload.TrackingCode = strings.TrimSpace(*order.TrackingCode)
	}
	if order.ShippingService != nil {
		payload.ShippingService = strings.TrimSpace(*order.ShippingService)
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			ImageURL:  strings.TrimSpace(item.ImageURL),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return payload
}

func buildAddress(req addressRequest) services.Address {
	return services.Address{
		Recipient:  strings.TrimSpace(req.Recipient),
		Line1:      strings.TrimSpace(req.Line1),
		Line2:      req.Line2,
		District:   req.District,
		City:       strings.TrimSpace(req.City),
		State:      strings.TrimSpace(req.State),
		PostalCode: strings.TrimSpace(req.PostalCode),
		Country:    strings.TrimSpace(req.Country),
		Phone:      req.Phone,
	}
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		District:   addr.District,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
