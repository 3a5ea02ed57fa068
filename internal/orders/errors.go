package orders

import "errors"

var (
	// ErrValidation covers malformed input: empty carts, bad quantities,
	// missing or foreign addresses, and price snapshots that disagree with
	// the catalog.
	ErrValidation = errors.New("invalid order request")

	// ErrNotFound is returned both when an order does not exist and when the
	// requester is not allowed to see it, so callers cannot probe for the
	// existence of other users' orders.
	ErrNotFound = errors.New("order not found")

	// ErrInvalidState rejects a status transition the state machine does not
	// allow, e.g. cancelling an order that is already in flight.
	ErrInvalidState = errors.New("order is not in a valid state for this operation")

	// ErrInsufficientStock aborts order creation when any line item asks for
	// more units than the catalog has left.
	ErrInsufficientStock = errors.New("insufficient stock")
)
