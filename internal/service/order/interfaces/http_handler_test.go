package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderhub/internal/service/order/application"
	"orderhub/internal/service/order/domain"
)

type stubService struct {
	createReq *application.CreateOrderRequest
	listQuery application.ListOrdersQuery
	caller    string

	order  *domain.Order
	orders []*domain.Order
	err    error
}

func (s *stubService) CreateOrder(_ context.Context, req *application.CreateOrderRequest) (*domain.Order, error) {
	s.createReq = req
	return s.order, s.err
}

func (s *stubService) GetOrder(_ context.Context, _, customerID string) (*domain.Order, error) {
	s.caller = customerID
	return s.order, s.err
}

func (s *stubService) ListOrders(_ context.Context, customerID string, q application.ListOrdersQuery) ([]*domain.Order, error) {
	s.caller = customerID
	s.listQuery = q
	return s.orders, s.err
}

func (s *stubService) UpdateOrderStatus(_ context.Context, _, _, customerID string) (*domain.Order, error) {
	s.caller = customerID
	return s.order, s.err
}

func (s *stubService) DeleteOrder(_ context.Context, _, customerID string) error {
	s.caller = customerID
	return s.err
}

func testOrder(t *testing.T, status domain.State) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("c-1", []domain.OrderItem{
		{ProductID: "P1", Quantity: 2, UnitPrice: decimal.RequireFromString("10")},
		{ProductID: "P2", Quantity: 1, UnitPrice: decimal.RequireFromString("5")},
	}, "")
	require.NoError(t, err)
	o.ID = "o-1"
	o.Status = status
	return o
}

func serve(t *testing.T, svc OrderService, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewOrderHandler(svc, http.NotFoundHandler()).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func withCaller(req *http.Request) *http.Request {
	req.Header.Set(HeaderCustomerID, "c-1")
	return req
}

func TestCreateOrderEndpoint(t *testing.T) {
	svc := &stubService{order: testOrder(t, domain.StateConfirmed)}
	body := `{"items":[{"productId":"P1","quantity":2,"price":10.0},{"productId":"P2","quantity":1,"price":"5.00"}]}`
	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)))
	req.Header.Set(HeaderIdempotencyKey, "key-1")

	rec := serve(t, svc, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalAmount":25.00`)
	assert.Contains(t, rec.Body.String(), `"status":"CONFIRMED"`)

	require.NotNil(t, svc.createReq)
	assert.Equal(t, "c-1", svc.createReq.CustomerID)
	assert.Equal(t, "key-1", svc.createReq.IdempotencyKey)
	require.Len(t, svc.createReq.Items, 2)
	assert.True(t, decimal.NewFromInt(5).Equal(svc.createReq.Items[1].UnitPrice))

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "o-1", resp.ID)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, json.Number("10.00"), resp.Items[0].Price)
}

func TestRequestsWithoutIdentityAreUnauthorized(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, "/api/v1/orders/o-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.caller)
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, svc, withCaller(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.createReq)
}

func TestDeclinedPaymentReturnsCancelledOrder(t *testing.T) {
	cancelled := testOrder(t, domain.StateCancelled)
	oe := domain.NewOrderError(domain.ErrPaymentDeclined, "create_order", "payment", cancelled, nil)
	oe.Reason = "insufficient funds"
	svc := &stubService{err: oe}

	rec := serve(t, svc, withCaller(httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		strings.NewReader(`{"items":[{"productId":"P1","quantity":1,"price":1}]}`))))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "payment_declined", resp.Error)
	assert.Equal(t, "insufficient funds", resp.Message)
	require.NotNil(t, resp.Order)
	assert.Equal(t, domain.StateCancelled, resp.Order.Status)
}

func TestListOrdersEndpoint(t *testing.T) {
	svc := &stubService{orders: []*domain.Order{testOrder(t, domain.StatePending)}}
	rec := serve(t, svc, withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=pending&page=2&size=10", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, application.ListOrdersQuery{Status: "pending", Page: 2, Size: 10}, svc.listQuery)

	var resp []orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)

	rec = serve(t, svc, withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/orders?size=ten", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmptyListIsJSONArray(t *testing.T) {
	rec := serve(t, &stubService{}, withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestUpdateStatusEndpoint(t *testing.T) {
	svc := &stubService{order: testOrder(t, domain.StateProcessing)}
	rec := serve(t, svc, withCaller(httptest.NewRequest(http.MethodPut, "/api/v1/orders/o-1/status?status=PROCESSING", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"PROCESSING"`)

	rec = serve(t, svc, withCaller(httptest.NewRequest(http.MethodPut, "/api/v1/orders/o-1/status", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, svc, withCaller(httptest.NewRequest(http.MethodDelete, "/api/v1/orders/o-1", nil)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "c-1", svc.caller)
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	svc := &stubService{err: domain.NewOrderError(domain.ErrStorageUnavailable, "get_order", "load", nil, errors.New("dial tcp 10.0.0.7:3306"))}
	rec := serve(t, svc, withCaller(httptest.NewRequest(http.MethodGet, "/api/v1/orders/o-1", nil)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewInvalidInputError(domain.ErrInvalidTransition, "no"), http.StatusBadRequest},
		{domain.NewOrderError(domain.ErrValidationFailed, "", "", nil, nil), http.StatusUnprocessableEntity},
		{domain.NewOrderError(domain.ErrPaymentDeclined, "", "", nil, nil), http.StatusPaymentRequired},
		{domain.NewOrderError(domain.ErrNotFound, "", "", nil, nil), http.StatusNotFound},
		{domain.NewOrderError(domain.ErrStorageUnavailable, "", "", nil, domain.ErrOrderConflict), http.StatusConflict},
		{domain.NewOrderError(domain.ErrStorageUnavailable, "", "", nil, nil), http.StatusServiceUnavailable},
		{domain.NewOrderError(domain.ErrDependencyUnavailable, "", "", nil, nil), http.StatusServiceUnavailable},
		{domain.NewOrderError(domain.ErrReconciliationRequired, "", "", nil, nil), http.StatusAccepted},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
