package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"orderhub/internal/pkg/httpclient"
	"orderhub/internal/service/order/domain/port"
)

func newHTTPClient() *httpclient.Client {
	return httpclient.NewClient(noop.NewTracerProvider().Tracer("test"))
}

// 限流、超时和鉴权失败不是业务判定
var faultCodes = map[string]int{
	"P-401": http.StatusUnauthorized,
	"P-403": http.StatusForbidden,
	"P-408": http.StatusRequestTimeout,
	"P-429": http.StatusTooManyRequests,
}

func TestInventoryValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, inventoryValidatePath, r.URL.Path)
		var req validateRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || len(req.Items) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if req.Items[0].ProductID == "P-out" {
			_ = json.NewEncoder(w).Encode(validateResponse{Valid: false, Message: "P-out is out of stock"})
			return
		}
		if req.Items[0].ProductID == "P-bad" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"unknown product"}`))
			return
		}
		if req.Items[0].ProductID == "P-down" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if code, ok := faultCodes[req.Items[0].ProductID]; ok {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: true})
	}))
	defer srv.Close()

	a := NewInventoryHTTPAdapter(newHTTPClient(), httpclient.StaticResolver{"inventory-service": srv.URL}, "inventory-service")
	ctx := context.Background()

	res, err := a.Validate(ctx, []port.ValidationItem{{ProductID: "P1", Quantity: 2}})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = a.Validate(ctx, []port.ValidationItem{{ProductID: "P-out", Quantity: 1}})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "P-out is out of stock", res.Reason)

	res, err = a.Validate(ctx, []port.ValidationItem{{ProductID: "P-bad", Quantity: 1}})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "unknown product", res.Reason)

	_, err = a.Validate(ctx, []port.ValidationItem{{ProductID: "P-down", Quantity: 1}})
	assert.Error(t, err)

	for product, code := range faultCodes {
		_, err = a.Validate(ctx, []port.ValidationItem{{ProductID: product, Quantity: 1}})
		assert.Error(t, err, "status %d", code)
	}
}

func TestPaymentChargeAndStatus(t *testing.T) {
	var charges int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/payments", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&charges, 1)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, req["orderId"], r.Header.Get("Idempotency-Key"))
		assert.Equal(t, 25.0, req["amount"])

		switch req["orderId"] {
		case "o-declined":
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"reason":"insufficient funds"}`))
		case "o-slow":
			time.Sleep(200 * time.Millisecond)
		default:
			_ = json.NewEncoder(w).Encode(paymentResponse{PaymentID: "pay-1", Status: "approved"})
		}
	})
	mux.HandleFunc("GET /api/v1/payments/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("orderId") {
		case "o-missing":
			w.WriteHeader(http.StatusNotFound)
		case "o-odd":
			_ = json.NewEncoder(w).Encode(paymentResponse{Status: "ON_HOLD"})
		default:
			_ = json.NewEncoder(w).Encode(paymentResponse{PaymentID: "pay-2", Status: "PENDING"})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewPaymentHTTPAdapter(newHTTPClient(), httpclient.StaticResolver{"payment-service": srv.URL}, "payment-service")
	ctx := context.Background()
	amount := decimal.NewFromInt(25)

	res, err := a.Charge(ctx, "o-1", amount)
	require.NoError(t, err)
	assert.Equal(t, port.PaymentApproved, res.Status)
	assert.Equal(t, "pay-1", res.PaymentID)

	res, err = a.Charge(ctx, "o-declined", amount)
	require.NoError(t, err)
	assert.Equal(t, port.PaymentDeclined, res.Status)
	assert.Equal(t, "insufficient funds", res.Reason)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = a.Charge(timeoutCtx, "o-slow", amount)
	assert.ErrorIs(t, err, httpclient.ErrTransport)

	res, err = a.Status(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, port.PaymentPending, res.Status)

	res, err = a.Status(ctx, "o-missing")
	require.NoError(t, err)
	assert.Equal(t, port.PaymentUnknown, res.Status)

	res, err = a.Status(ctx, "o-odd")
	require.NoError(t, err)
	assert.Equal(t, port.PaymentUnknown, res.Status)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&charges), int32(2))
}
