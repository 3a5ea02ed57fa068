package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcforge/storefront/internal/payments"
	"github.com/pcforge/storefront/pkg/models"
)

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memIdempotency) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memIdempotency) Set(ctx context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; !ok {
		m.keys[key] = orderID
	}
	return nil
}

func newTestRouter(t *testing.T) (*mux.Router, *mockStore) {
	t.Helper()
	service, store, _, _ := newTestService(t)
	seedCatalog(store)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	handler := NewHandler(service, &memIdempotency{keys: make(map[string]string)}, logger)

	router := mux.NewRouter()
	router.HandleFunc("/orders", handler.CreateOrder).Methods("POST")
	router.HandleFunc("/orders", handler.ListOrders).Methods("GET")
	router.HandleFunc("/orders/{id}", handler.GetOrder).Methods("GET")
	router.HandleFunc("/orders/{id}/cancel", handler.CancelOrder).Methods("POST")
	router.HandleFunc("/orders/{id}/status", handler.UpdateStatus).Methods("PUT")
	router.HandleFunc("/orders/{id}/payment/verify", handler.VerifyPayment).Methods("POST")
	return router, store
}

func doRequest(router *mux.Router, method, path, userID, role string, body interface{}, extraHeaders map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func validCart() createOrderRequest {
	return createOrderRequest{
		Items: []models.OrderItem{
			{ProductID: "cpu", Quantity: 1, UnitPrice: 549.50},
		},
		ShippingAddressID: "addr-1",
	}
}

func TestHandlerRequiresIdentity(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/orders", "", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerCreateOrder(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/orders", "alice", "", validCart(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp models.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Order)
	assert.Equal(t, models.OrderPending, resp.Order.Status)
	assert.Equal(t, 549.50, resp.Order.TotalAmount)
}

func TestHandlerCreateOrderValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/orders", "alice", "", createOrderRequest{
		ShippingAddressID: "addr-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerIdempotentCreate(t *testing.T) {
	router, _ := newTestRouter(t)
	headers := map[string]string{"Idempotency-Key": "retry-1"}

	first := doRequest(router, http.MethodPost, "/orders", "alice", "", validCart(), headers)
	require.Equal(t, http.StatusCreated, first.Code)
	var firstResp models.OrderResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := doRequest(router, http.MethodPost, "/orders", "alice", "", validCart(), headers)
	require.Equal(t, http.StatusOK, second.Code)
	var secondResp models.OrderResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	assert.Equal(t, firstResp.Order.ID, secondResp.Order.ID, "retry must not create a second order")
}

func TestHandlerGetOrderScoping(t *testing.T) {
	router, store := newTestRouter(t)
	seedPendingOrder(store, "order-1", "alice", []models.OrderItem{{ProductID: "cpu", Quantity: 1, UnitPrice: 549.50}}, time.Now())

	rec := doRequest(router, http.MethodGet, "/orders/order-1", "alice", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/orders/order-1", "mallory", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodGet, "/orders/order-1", "support", "admin", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerCancelConflict(t *testing.T) {
	router, store := newTestRouter(t)
	order := seedPendingOrder(store, "order-1", "alice", []models.OrderItem{{ProductID: "cpu", Quantity: 1, UnitPrice: 549.50}}, time.Now())
	order.Status = models.OrderShipped
	store.orders["order-1"] = copyOrder(order)

	rec := doRequest(router, http.MethodPost, "/orders/order-1/cancel", "alice", "", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerUpdateStatusAdminOnly(t *testing.T) {
	router, store := newTestRouter(t)
	seedPendingOrder(store, "order-1", "alice", nil, time.Now())
	body := updateStatusRequest{Status: models.OrderProcessing}

	rec := doRequest(router, http.MethodPut, "/orders/order-1/status", "alice", "", body, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodPut, "/orders/order-1/status", "support", "admin", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerVerifyPayment(t *testing.T) {
	router, store := newTestRouter(t)
	seedPendingOrder(store, "order-1", "alice", []models.OrderItem{{ProductID: "cpu", Quantity: 1, UnitPrice: 549.50}}, time.Now())
	signature := payments.NewVerifier(testSecret).Sign("order-1", "pay_123")

	rec := doRequest(router, http.MethodPost, "/orders/order-1/payment/verify", "alice", "", verifyPaymentRequest{
		PaymentID: "pay_123",
		Signature: signature,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.OrderProcessing, resp.Order.Status)
	assert.Equal(t, models.PaymentPaid, resp.Order.PaymentStatus)
}

func TestHandlerVerifyPaymentBadSignature(t *testing.T) {
	router, store := newTestRouter(t)
	seedPendingOrder(store, "order-1", "alice", []models.OrderItem{{ProductID: "cpu", Quantity: 1, UnitPrice: 549.50}}, time.Now())

	rec := doRequest(router, http.MethodPost, "/orders/order-1/payment/verify", "alice", "", verifyPaymentRequest{
		PaymentID: "pay_123",
		Signature: fmt.Sprintf("%064d", 0),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
