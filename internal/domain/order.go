package domain

import "time"

type OrderStatus string

// Orders are created already completed; there is no pending or payment
// confirmation state.
const OrderStatusCompleted OrderStatus = "completed"

// ShippingInfo is the caller-supplied checkout metadata.
type ShippingInfo struct {
	PaymentMethod      string `json:"payment_method"`
	ShippingName       string `json:"shipping_name"`
	ShippingPostalCode string `json:"shipping_postal_code"`
	ShippingAddress    string `json:"shipping_address"`
	ShippingPhone      string `json:"shipping_phone"`
}

// OrderDetail freezes the product name, image and unit price at the moment
// the order was created.
type OrderDetail struct {
	ID              int64   `json:"id"`
	ProductID       int64   `json:"product_id"`
	Quantity        int     `json:"quantity"`
	Price           int64   `json:"price"`
	ProductName     string  `json:"product_name"`
	ProductImageURL *string `json:"product_image_url"`
}

type Order struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"-"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`
	TotalAmount int64       `json:"total_amount"`
	ShippingInfo
	CreatedAt time.Time     `json:"created_at"`
	Details   []OrderDetail `json:"details"`
}
