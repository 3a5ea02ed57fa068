package orders

import "github.com/pcforge/storefront/pkg/models"

// canTransition is the single source of truth for the order status lattice:
//
//	PENDING -> PROCESSING -> SHIPPED -> DELIVERED
//	PENDING -> CANCELLED
//
// DELIVERED and CANCELLED are terminal. Cancellation additionally restores
// stock, so the PENDING -> CANCELLED edge is only taken through Cancel, never
// through an admin status update.
func canTransition(from, to models.OrderStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case models.OrderPending:
		return to == models.OrderProcessing || to == models.OrderCancelled
	case models.OrderProcessing:
		return to == models.OrderShipped
	case models.OrderShipped:
		return to == models.OrderDelivered
	case models.OrderDelivered, models.OrderCancelled:
		return false
	}
	return false
}

func validStatus(s models.OrderStatus) bool {
	switch s {
	case models.OrderPending, models.OrderProcessing, models.OrderShipped,
		models.OrderDelivered, models.OrderCancelled:
		return true
	}
	return false
}
