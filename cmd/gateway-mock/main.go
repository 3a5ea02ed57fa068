// gateway-mock is a development stand-in for the payment gateway. It issues
// gateway order handles and, on simulated client-side completion, signs the
// payment with the shared secret exactly the way the real gateway would, so
// the storefront's verification path can be exercised end to end.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/pcforge/storefront/internal/payments"
)

type mockConfig struct {
	Port          string `envconfig:"GATEWAY_MOCK_PORT" default:"8082"`
	PaymentSecret string `envconfig:"PAYMENT_SECRET" required:"true"`
}

type gatewayOrder struct {
	GatewayOrderID string  `json:"gateway_order_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Receipt        string  `json:"receipt"`
}

type mockGateway struct {
	verifier *payments.Verifier
	logger   *logrus.Logger

	mutex  sync.RWMutex
	orders map[string]*gatewayOrder
}

func newMockGateway(verifier *payments.Verifier, logger *logrus.Logger) *mockGateway {
	return &mockGateway{
		verifier: verifier,
		logger:   logger,
		orders:   make(map[string]*gatewayOrder),
	}
}

func (g *mockGateway) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Receipt  string  `json:"receipt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 || req.Receipt == "" {
		http.Error(w, "amount and receipt are required", http.StatusBadRequest)
		return
	}

	order := &gatewayOrder{
		GatewayOrderID: "gw_" + uuid.New().String(),
		Amount:         req.Amount,
		Currency:       req.Currency,
		Receipt:        req.Receipt,
	}

	g.mutex.Lock()
	g.orders[order.GatewayOrderID] = order
	g.mutex.Unlock()

	g.logger.WithFields(logrus.Fields{
		"gateway_order_id": order.GatewayOrderID,
		"receipt":          order.Receipt,
		"amount":           order.Amount,
	}).Info("Gateway order created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// completeOrder simulates the client finishing the payment flow: the mock
// issues a payment id and signs receipt|paymentID with the shared secret. The
// receipt is the storefront order id, which is what verification signs over.
func (g *mockGateway) completeOrder(w http.ResponseWriter, r *http.Request) {
	gatewayOrderID := mux.Vars(r)["id"]

	g.mutex.RLock()
	order, ok := g.orders[gatewayOrderID]
	g.mutex.RUnlock()
	if !ok {
		http.Error(w, "unknown gateway order", http.StatusNotFound)
		return
	}

	paymentID := "pay_" + uuid.New().String()
	signature := g.verifier.Sign(order.Receipt, paymentID)

	g.logger.WithFields(logrus.Fields{
		"gateway_order_id": gatewayOrderID,
		"payment_id":       paymentID,
	}).Info("Payment completed")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"payment_id":       paymentID,
		"gateway_order_id": gatewayOrderID,
		"signature":        signature,
	})
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	var cfg mockConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	gateway := newMockGateway(payments.NewVerifier(cfg.PaymentSecret), logger)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"gateway-mock"}`))
	}).Methods("GET")
	router.HandleFunc("/v1/orders", gateway.createOrder).Methods("POST")
	router.HandleFunc("/v1/orders/{id}/complete", gateway.completeOrder).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting payment gateway mock")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}
