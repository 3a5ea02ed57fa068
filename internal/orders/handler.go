package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/pcforge/storefront/internal/payments"
	"github.com/pcforge/storefront/pkg/models"
)

// WebSocketHub pushes order updates to the admin console's live feed.
type WebSocketHub interface {
	Broadcast(messageType string, data interface{}, source string)
}

// IdempotencyStore remembers which order an Idempotency-Key produced, so a
// client retrying creation after a gateway failure cannot double-order.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, orderID string) error
}

type Handler struct {
	service     *Service
	idempotency IdempotencyStore
	logger      *logrus.Logger
	wsHub       WebSocketHub
}

func NewHandler(service *Service, idempotency IdempotencyStore, logger *logrus.Logger) *Handler {
	return &Handler{
		service:     service,
		idempotency: idempotency,
		logger:      logger,
	}
}

func (h *Handler) SetWebSocketHub(hub WebSocketHub) {
	h.wsHub = hub
}

type createOrderRequest struct {
	Items             []models.OrderItem `json:"items"`
	ShippingAddressID string             `json:"shipping_address_id"`
	BillingAddressID  string             `json:"billing_address_id,omitempty"`
}

type updateStatusRequest struct {
	Status         models.OrderStatus `json:"status"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
}

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Error("Failed to decode order request")
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" && h.idempotency != nil {
		existingID, err := h.idempotency.Get(r.Context(), idempotencyKey)
		if err != nil {
			h.logger.WithError(err).Warn("Idempotency lookup failed, proceeding without it")
		} else if existingID != "" {
			order, err := h.service.Get(r.Context(), existingID, requester)
			if err == nil {
				h.logger.WithFields(logrus.Fields{
					"order_id":        order.ID,
					"idempotency_key": idempotencyKey,
				}).Info("Returning existing order for idempotency key")
				h.respondWithJSON(w, http.StatusOK, models.OrderResponse{
					Success: true,
					Message: "Order already created",
					Order:   order,
				})
				return
			}
		}
	}

	order, err := h.service.Create(r.Context(), requester.UserID, CreateOrderInput{
		Items:             req.Items,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
	})
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	if idempotencyKey != "" && h.idempotency != nil {
		if err := h.idempotency.Set(r.Context(), idempotencyKey, order.ID); err != nil {
			h.logger.WithError(err).Warn("Failed to record idempotency key")
		}
	}

	h.broadcast("order_created", order)
	h.respondWithJSON(w, http.StatusCreated, models.OrderResponse{
		Success: true,
		Message: "Order created successfully",
		Order:   order,
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	orders, err := h.service.List(r.Context(), requester)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  orders,
		"count":   len(orders),
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	order, err := h.service.Get(r.Context(), mux.Vars(r)["id"], requester)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, order)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	order, err := h.service.Cancel(r.Context(), mux.Vars(r)["id"], requester)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.broadcast("order_cancelled", order)
	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Order cancelled",
		Order:   order,
	})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), mux.Vars(r)["id"], requester, req.Status, req.TrackingNumber)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.broadcast("order_status_changed", order)
	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Order status updated",
		Order:   order,
	})
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PaymentID == "" || req.Signature == "" {
		h.respondWithError(w, http.StatusBadRequest, "payment_id and signature are required")
		return
	}

	order, err := h.service.VerifyPayment(r.Context(), mux.Vars(r)["id"], requester.UserID, req.PaymentID, req.Signature)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.broadcast("order_paid", order)
	h.respondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Payment verified",
		Order:   order,
	})
}

// requester pulls the identity the auth layer injected. Requests without one
// are rejected before touching the service.
func (h *Handler) requester(w http.ResponseWriter, r *http.Request) (Requester, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.respondWithError(w, http.StatusUnauthorized, "Missing user identity")
		return Requester{}, false
	}
	return Requester{
		UserID: userID,
		Admin:  r.Header.Get("X-User-Role") == "admin",
	}, true
}

func (h *Handler) respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		h.respondWithError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInsufficientStock):
		h.respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payments.ErrInvalidSignature):
		h.respondWithError(w, http.StatusBadRequest, "Payment signature verification failed")
	case errors.Is(err, payments.ErrUnavailable):
		h.respondWithError(w, http.StatusBadGateway, "Payment gateway unavailable, please retry")
	default:
		h.logger.WithError(err).Error("Unhandled service error")
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) broadcast(messageType string, order *models.Order) {
	if h.wsHub == nil {
		return
	}
	h.wsHub.Broadcast(messageType, order, "storefront")
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}
