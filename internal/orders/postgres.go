package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pcforge/storefront/pkg/models"
)

// PostgresStore implements Store on top of database/sql. Row-level locks
// (SELECT ... FOR UPDATE) and conditional stock updates give the guarantees
// the service relies on; no in-process locking is involved.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateSchema creates the tables the store needs if they do not exist yet.
func (s *PostgresStore) CreateSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			price DECIMAL(10,2) NOT NULL,
			stock INTEGER NOT NULL CHECK (stock >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS addresses (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			line1 VARCHAR(255) NOT NULL,
			city VARCHAR(255) NOT NULL,
			postal_code VARCHAR(32) NOT NULL,
			country VARCHAR(64) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			total_amount DECIMAL(10,2) NOT NULL,
			status VARCHAR(50) NOT NULL,
			payment_status VARCHAR(50) NOT NULL,
			gateway_order_id VARCHAR(255) NOT NULL DEFAULT '',
			payment_id VARCHAR(255) NOT NULL DEFAULT '',
			payment_signature VARCHAR(255) NOT NULL DEFAULT '',
			shipping_address_id VARCHAR(255) NOT NULL,
			billing_address_id VARCHAR(255) NOT NULL,
			tracking_number VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL REFERENCES orders(id),
			product_id VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price DECIMAL(10,2) NOT NULL,
			specifications TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context) ([]*models.Order, error) {
	return s.listOrders(ctx, selectOrder+` ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	return s.listOrders(ctx, selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *PostgresStore) listOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if err := s.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *PostgresStore) loadItems(ctx context.Context, order *models.Order) error {
	items, err := queryItems(ctx, s.db, order.ID)
	if err != nil {
		return err
	}
	order.Items = items
	return nil
}

func (s *PostgresStore) AddressOwnedBy(ctx context.Context, addressID, userID string) (bool, error) {
	var owned bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)`,
		addressID, userID,
	).Scan(&owned)
	return owned, err
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) ProductForUpdate(ctx context.Context, productID string) (*models.Product, error) {
	product := &models.Product{}
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, price, stock FROM products WHERE id = $1 FOR UPDATE`,
		productID,
	).Scan(&product.ID, &product.Name, &product.Price, &product.Stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (t *pgTx) AdjustStock(ctx context.Context, productID string, delta int) error {
	// The stock >= -delta guard makes two concurrent orders for the last
	// unit impossible: only one UPDATE matches.
	result, err := t.tx.ExecContext(ctx,
		`UPDATE products SET stock = stock + $1 WHERE id = $2 AND stock + $1 >= 0`,
		delta, productID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, payment_status,
			gateway_order_id, payment_id, payment_signature,
			shipping_address_id, billing_address_id, tracking_number,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		order.ID, order.UserID, order.TotalAmount, order.Status, order.PaymentStatus,
		order.GatewayOrderID, order.PaymentID, order.PaymentSignature,
		order.ShippingAddressID, order.BillingAddressID, order.TrackingNumber,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		specJSON, err := json.Marshal(item.Specifications)
		if err != nil {
			return err
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, specifications)
			VALUES ($1, $2, $3, $4, $5)`,
			order.ID, item.ProductID, item.Quantity, item.UnitPrice, string(specJSON),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) OrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := scanOrder(t.tx.QueryRowContext(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := queryItems(ctx, t.tx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, order *models.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, payment_status = $2, gateway_order_id = $3,
			payment_id = $4, payment_signature = $5, tracking_number = $6, updated_at = $7
		WHERE id = $8`,
		order.Status, order.PaymentStatus, order.GatewayOrderID,
		order.PaymentID, order.PaymentSignature, order.TrackingNumber, order.UpdatedAt,
		order.ID,
	)
	return err
}

const selectOrder = `
	SELECT id, user_id, total_amount, status, payment_status,
		gateway_order_id, payment_id, payment_signature,
		shipping_address_id, billing_address_id, tracking_number,
		created_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.PaymentStatus,
		&order.GatewayOrderID, &order.PaymentID, &order.PaymentSignature,
		&order.ShippingAddressID, &order.BillingAddressID, &order.TrackingNumber,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryItems(ctx context.Context, q queryer, orderID string) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, specifications
		FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var specJSON string
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &specJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(specJSON), &item.Specifications); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
