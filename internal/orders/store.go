package orders

import (
	"context"

	"github.com/pcforge/storefront/pkg/models"
)

// Store is the persistence boundary of the order service. Reads outside a
// transaction go through the Store directly; every state mutation runs inside
// InTx so that stock adjustments and order writes commit or roll back as one
// unit.
type Store interface {
	// InTx runs fn inside a single database transaction. A non-nil error
	// from fn rolls the transaction back and is returned unchanged.
	InTx(ctx context.Context, fn func(Tx) error) error

	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error)

	// AddressOwnedBy reports whether the address exists and belongs to the
	// given user. Orders only ever reference addresses of their owner.
	AddressOwnedBy(ctx context.Context, addressID, userID string) (bool, error)
}

// Tx exposes the row-level operations the state machine composes. Product
// reads take row locks so concurrent orders for the same product serialize on
// the store, not on in-process mutexes.
type Tx interface {
	ProductForUpdate(ctx context.Context, productID string) (*models.Product, error)

	// AdjustStock applies a signed stock delta and fails with
	// ErrInsufficientStock if the result would go negative.
	AdjustStock(ctx context.Context, productID string, delta int) error

	InsertOrder(ctx context.Context, order *models.Order) error
	OrderForUpdate(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
}
