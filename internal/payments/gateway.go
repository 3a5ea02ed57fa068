package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pcforge/storefront/internal/circuitbreaker"
)

// ErrUnavailable means the gateway could not be reached or answered with a
// server error. No payment has been taken at this point, so retrying order
// creation is safe.
var ErrUnavailable = errors.New("payment gateway unavailable")

// GatewayOrder is the opaque handle the gateway issues for a pending charge.
type GatewayOrder struct {
	GatewayOrderID string  `json:"gateway_order_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
}

type createOrderRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Receipt  string  `json:"receipt"`
}

// GatewayClient talks to the payment gateway over HTTP. All calls go through
// a circuit breaker so a dead gateway fails fast instead of tying up request
// handlers for the full timeout.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *logrus.Logger
}

func NewGatewayClient(baseURL string, breaker *circuitbreaker.Breaker, logger *logrus.Logger) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// CreatePaymentOrder asks the gateway for a payment-order handle covering the
// given amount. Any transport or server-side failure is reported as
// ErrUnavailable.
func (c *GatewayClient) CreatePaymentOrder(ctx context.Context, amount float64, currency, receipt string) (*GatewayOrder, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	var gatewayOrder GatewayOrder
	err = c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewBuffer(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(&gatewayOrder)
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"receipt": receipt,
			"amount":  amount,
		}).Error("Payment gateway call failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.logger.WithFields(logrus.Fields{
		"receipt":          receipt,
		"gateway_order_id": gatewayOrder.GatewayOrderID,
		"amount":           gatewayOrder.Amount,
	}).Info("Payment order created at gateway")

	return &gatewayOrder, nil
}
