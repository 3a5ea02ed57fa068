package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pcforge/storefront/internal/payments"
	"github.com/pcforge/storefront/pkg/models"
)

// Requester identifies who is calling an operation. Identity is established
// by the upstream auth layer; this core only enforces scoping.
type Requester struct {
	UserID string
	Admin  bool
}

func (r Requester) canAccess(order *models.Order) bool {
	return r.Admin || order.UserID == r.UserID
}

// PaymentGateway obtains a payment-order handle from the remote processor.
type PaymentGateway interface {
	CreatePaymentOrder(ctx context.Context, amount float64, currency, receipt string) (*payments.GatewayOrder, error)
}

// Publisher emits order lifecycle events. Publish failures are logged, never
// surfaced: the order state in the store is the source of truth.
type Publisher interface {
	OrderCreated(order *models.Order) error
	OrderPaid(order *models.Order) error
	OrderCancelled(order *models.Order) error
	OrderStatusChanged(order *models.Order, previous models.OrderStatus) error
}

// CreateOrderInput is the cart snapshot a checkout submits. Unit prices are
// re-validated against the catalog inside the creation transaction.
type CreateOrderInput struct {
	Items             []models.OrderItem
	ShippingAddressID string
	BillingAddressID  string
}

// Service owns the order status state machine and the stock side-effects tied
// to it. Every mutation runs inside a single store transaction; the only
// external call, obtaining the gateway handle, happens after the order is
// committed and is compensated on failure.
type Service struct {
	store     Store
	gateway   PaymentGateway
	verifier  *payments.Verifier
	publisher Publisher
	currency  string
	logger    *logrus.Logger
}

func NewService(store Store, gateway PaymentGateway, verifier *payments.Verifier, publisher Publisher, currency string, logger *logrus.Logger) *Service {
	return &Service{
		store:     store,
		gateway:   gateway,
		verifier:  verifier,
		publisher: publisher,
		currency:  currency,
		logger:    logger,
	}
}

// Create builds a PENDING order from the cart snapshot. Within one
// transaction it validates each unit price against the catalog, decrements
// stock (rejecting the whole order if any item is short), and inserts the
// order with its snapshot total. The gateway handle is fetched after commit;
// if the gateway is down the order is rolled back through the cancellation
// path and the caller may retry, since no payment has occurred.
func (s *Service) Create(ctx context.Context, userID string, input CreateOrderInput) (*models.Order, error) {
	if err := s.validateInput(ctx, userID, input); err != nil {
		return nil, err
	}

	billingID := input.BillingAddressID
	if billingID == "" {
		billingID = input.ShippingAddressID
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:                uuid.New().String(),
		UserID:            userID,
		Items:             input.Items,
		Status:            models.OrderPending,
		PaymentStatus:     models.PaymentPending,
		ShippingAddressID: input.ShippingAddressID,
		BillingAddressID:  billingID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		var total float64
		for _, item := range order.Items {
			product, err := tx.ProductForUpdate(ctx, item.ProductID)
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: unknown product %s", ErrValidation, item.ProductID)
			}
			if err != nil {
				return err
			}
			if product.Price != item.UnitPrice {
				return fmt.Errorf("%w: price changed for product %s", ErrValidation, item.ProductID)
			}
			if err := tx.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
				return err
			}
			total += item.Subtotal()
		}
		order.TotalAmount = total
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	gatewayOrder, err := s.gateway.CreatePaymentOrder(ctx, order.TotalAmount, s.currency, order.ID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("Gateway unavailable, rolling back order")
		if rbErr := s.cancelPending(ctx, order.ID); rbErr != nil {
			s.logger.WithError(rbErr).WithField("order_id", order.ID).Error("Failed to roll back order after gateway failure")
		}
		return nil, err
	}

	order.GatewayOrderID = gatewayOrder.GatewayOrderID
	err = s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.OrderForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		current.GatewayOrderID = gatewayOrder.GatewayOrderID
		current.UpdatedAt = time.Now().UTC()
		return tx.UpdateOrder(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"user_id":      order.UserID,
		"total_amount": order.TotalAmount,
		"items_count":  len(order.Items),
	}).Info("Order created")

	if err := s.publisher.OrderCreated(order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to publish order created event")
	}

	return order, nil
}

func (s *Service) validateInput(ctx context.Context, userID string, input CreateOrderInput) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrValidation)
	}
	for _, item := range input.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item has no product id", ErrValidation)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item quantity must be at least 1", ErrValidation)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item price cannot be negative", ErrValidation)
		}
	}
	if input.ShippingAddressID == "" {
		return fmt.Errorf("%w: shipping address is required", ErrValidation)
	}

	addressIDs := []string{input.ShippingAddressID}
	if input.BillingAddressID != "" && input.BillingAddressID != input.ShippingAddressID {
		addressIDs = append(addressIDs, input.BillingAddressID)
	}
	for _, id := range addressIDs {
		owned, err := s.store.AddressOwnedBy(ctx, id, userID)
		if err != nil {
			return err
		}
		if !owned {
			return fmt.Errorf("%w: unknown address %s", ErrValidation, id)
		}
	}
	return nil
}

// Get returns the order only if the requester owns it or is an admin. A
// foreign order is reported as not found, not forbidden.
func (s *Service) Get(ctx context.Context, orderID string, requester Requester) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !requester.canAccess(order) {
		return nil, ErrNotFound
	}
	return order, nil
}

// List returns all orders for admins and the requester's own orders
// otherwise, newest first in both cases.
func (s *Service) List(ctx context.Context, requester Requester) ([]*models.Order, error) {
	if requester.Admin {
		return s.store.ListOrders(ctx)
	}
	return s.store.ListOrdersByUser(ctx, requester.UserID)
}

// UpdateStatus moves an order along the forward-only status lattice. Admin
// only. Cancellation is rejected here because it carries stock compensation;
// callers must go through Cancel.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, requester Requester, next models.OrderStatus, trackingNumber string) (*models.Order, error) {
	if !requester.Admin {
		return nil, ErrNotFound
	}
	if !validStatus(next) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}
	if next == models.OrderCancelled {
		return nil, fmt.Errorf("%w: use cancellation, which restores stock", ErrInvalidState)
	}

	var updated *models.Order
	var previous models.OrderStatus
	err := s.store.InTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !canTransition(order.Status, next) {
			return fmt.Errorf("%w: cannot move %s order to %s", ErrInvalidState, order.Status, next)
		}
		previous = order.Status
		order.Status = next
		if trackingNumber != "" {
			order.TrackingNumber = trackingNumber
		}
		order.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     previous,
		"to":       next,
	}).Info("Order status updated")

	if err := s.publisher.OrderStatusChanged(updated, previous); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to publish status change event")
	}

	return updated, nil
}

// Cancel cancels a still-PENDING order owned by the requester (admins may
// cancel any PENDING order). Stock restoration for every line item and the
// status write happen in one transaction, so a crash cannot leave stock
// restored with the order still PENDING.
func (s *Service) Cancel(ctx context.Context, orderID string, requester Requester) (*models.Order, error) {
	var cancelled *models.Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !requester.canAccess(order) {
			return ErrNotFound
		}
		if err := cancelTx(ctx, tx, order); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"user_id":  cancelled.UserID,
	}).Info("Order cancelled, stock restored")

	if err := s.publisher.OrderCancelled(cancelled); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to publish order cancelled event")
	}

	return cancelled, nil
}

// cancelPending is the compensation path for a gateway failure right after
// creation: same transaction shape as Cancel, no requester check.
func (s *Service) cancelPending(ctx context.Context, orderID string) error {
	return s.store.InTx(ctx, func(tx Tx) error {
		order, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return cancelTx(ctx, tx, order)
	})
}

// cancelTx restores stock for every line item and marks the order cancelled
// on both axes. Caller supplies the transaction.
func cancelTx(ctx context.Context, tx Tx, order *models.Order) error {
	if order.Status != models.OrderPending {
		return fmt.Errorf("%w: only pending orders can be cancelled", ErrInvalidState)
	}
	for _, item := range order.Items {
		if err := tx.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	order.Status = models.OrderCancelled
	order.PaymentStatus = models.PaymentCancelled
	order.UpdatedAt = time.Now().UTC()
	return tx.UpdateOrder(ctx, order)
}

// VerifyPayment confirms a payment-completion callback. Owner only: the
// ownership check is the capability gate, and the HMAC signature is the
// actual trust boundary. A valid signature moves the order PENDING ->
// PROCESSING and payment PENDING -> PAID in one atomic write; re-verifying an
// already-paid order with the same payment id is a no-op.
func (s *Service) VerifyPayment(ctx context.Context, orderID, userID, paymentID, signature string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotFound
	}

	if order.PaymentStatus == models.PaymentPaid && order.PaymentID == paymentID {
		return order, nil
	}

	if err := s.verifier.Verify(orderID, paymentID, signature); err != nil {
		s.logger.WithFields(logrus.Fields{
			"order_id":   orderID,
			"payment_id": paymentID,
		}).Warn("Payment signature rejected")
		return nil, err
	}

	var paid *models.Order
	err = s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if current.PaymentStatus == models.PaymentPaid && current.PaymentID == paymentID {
			paid = current
			return nil
		}
		if current.Status != models.OrderPending {
			return fmt.Errorf("%w: order is %s", ErrInvalidState, current.Status)
		}
		current.Status = models.OrderProcessing
		current.PaymentStatus = models.PaymentPaid
		current.PaymentID = paymentID
		current.PaymentSignature = signature
		current.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, current); err != nil {
			return err
		}
		paid = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":   orderID,
		"payment_id": paymentID,
	}).Info("Payment verified, order processing")

	if err := s.publisher.OrderPaid(paid); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("Failed to publish order paid event")
	}

	return paid, nil
}
