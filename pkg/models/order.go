package models

import (
	"time"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type Order struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	Items             []OrderItem   `json:"items"`
	TotalAmount       float64       `json:"total_amount"`
	Status            OrderStatus   `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	GatewayOrderID    string        `json:"gateway_order_id,omitempty"`
	PaymentID         string        `json:"payment_id,omitempty"`
	PaymentSignature  string        `json:"-"`
	ShippingAddressID string        `json:"shipping_address_id"`
	BillingAddressID  string        `json:"billing_address_id"`
	TrackingNumber    string        `json:"tracking_number,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// OrderItem is a snapshot of a product at the time the order was placed.
// UnitPrice is copied from the catalog and never re-joined against it, so
// later catalog price changes do not affect existing orders.
type OrderItem struct {
	ProductID      string            `json:"product_id"`
	Quantity       int               `json:"quantity"`
	UnitPrice      float64           `json:"unit_price"`
	Specifications map[string]string `json:"specifications,omitempty"`
}

func (i OrderItem) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

type Address struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order,omitempty"`
}
