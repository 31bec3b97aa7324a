package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/service/order/application"
	"orderhub/internal/service/order/domain"
)

const (
	HeaderCustomerID     = "X-Customer-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// OrderService 是 HTTP 层使用的用例集合
type OrderService interface {
	CreateOrder(ctx context.Context, req *application.CreateOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id, customerID string) (*domain.Order, error)
	ListOrders(ctx context.Context, customerID string, query application.ListOrdersQuery) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id, status, customerID string) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id, customerID string) error
}

// OrderHandler 封装了订单服务的 HTTP 处理器
type OrderHandler struct {
	service OrderService
	metrics http.Handler
}

// NewOrderHandler metricsHandler 为空时使用默认的 promhttp.Handler
func NewOrderHandler(service OrderService, metricsHandler http.Handler) *OrderHandler {
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	return &OrderHandler{service: service, metrics: metricsHandler}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", h.metrics)

	mux.HandleFunc("POST /api/v1/orders", h.withCustomer(h.createOrder))
	mux.HandleFunc("GET /api/v1/orders", h.withCustomer(h.listOrders))
	mux.HandleFunc("GET /api/v1/orders/{id}", h.withCustomer(h.getOrder))
	mux.HandleFunc("PUT /api/v1/orders/{id}/status", h.withCustomer(h.updateStatus))
	mux.HandleFunc("DELETE /api/v1/orders/{id}", h.withCustomer(h.deleteOrder))
}

type customerHandler func(ctx context.Context, w http.ResponseWriter, r *http.Request, customerID string)

// withCustomer 提取链路上下文和调用方身份
func (h *OrderHandler) withCustomer(next customerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID := r.Header.Get(HeaderCustomerID)
		if customerID == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "missing " + HeaderCustomerID + " header"})
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next(ctx, w, r, customerID)
	}
}

type createOrderBody struct {
	Items []struct {
		ProductID string          `json:"productId"`
		Quantity  int             `json:"quantity"`
		Price     decimal.Decimal `json:"price"`
	} `json:"items"`
}

func (h *OrderHandler) createOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, customerID string) {
	var body createOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: "invalid request body"})
		return
	}

	req := &application.CreateOrderRequest{
		CustomerID:     customerID,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	}
	for _, item := range body.Items {
		req.Items = append(req.Items, application.CreateOrderItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.Price})
	}

	order, err := h.service.CreateOrder(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) getOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, customerID string) {
	order, err := h.service.GetOrder(ctx, r.PathValue("id"), customerID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) listOrders(ctx context.Context, w http.ResponseWriter, r *http.Request, customerID string) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: "page must be an integer"})
		return
	}
	size, err := optionalInt(q.Get("size"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: "size must be an integer"})
		return
	}

	orders, err := h.service.ListOrders(ctx, customerID, application.ListOrdersQuery{Status: q.Get("status"), Page: page, Size: size})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) updateStatus(ctx context.Context, w http.ResponseWriter, r *http.Request, customerID string) {
	status := r.URL.Query().Get("status")
	if status == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: "status query parameter is required"})
		return
	}
	order, err := h.service.UpdateOrderStatus(ctx, r.PathValue("id"), status, customerID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) deleteOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, customerID string) {
	if err := h.service.DeleteOrder(ctx, r.PathValue("id"), customerID); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type orderItemResponse struct {
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customerId"`
	Status      domain.State        `json:"status"`
	Items       []orderItemResponse `json:"items"`
	TotalAmount json.Number         `json:"totalAmount"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	items := o.Items()
	resp := orderResponse{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		Status:      o.Status,
		Items:       make([]orderItemResponse, 0, len(items)),
		TotalAmount: json.Number(o.TotalAmount().StringFixed(2)),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     json.Number(item.UnitPrice.StringFixed(2)),
		})
	}
	return resp
}

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Order   *orderResponse `json:"order,omitempty"`
}

// statusFor 错误类别 → HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrReconciliationRequired):
		// 订单已落库, 结果待对账
		return http.StatusAccepted
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: domain.KindLabel(err), Message: err.Error()}
	if oe, ok := domain.AsOrderError(err); ok {
		if oe.Code != nil {
			resp.Code = oe.Code.Error()
		}
		if oe.Reason != "" {
			resp.Message = oe.Reason
		}
		if oe.Order != nil {
			order := toOrderResponse(oe.Order)
			resp.Order = &order
		}
	}
	if status >= http.StatusInternalServerError {
		// 不向调用方暴露内部原因
		resp.Message = http.StatusText(status)
		logger.Ctx(ctx).Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
