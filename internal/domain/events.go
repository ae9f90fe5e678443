package domain

import "time"

// OrderCreatedEvent is published after an order has been committed.
type OrderCreatedEvent struct {
	OrderNumber  string        `json:"order_number"`
	UserID       int64         `json:"user_id"`
	Email        string        `json:"email"`
	ShippingName string        `json:"shipping_name"`
	TotalAmount  int64         `json:"total_amount"`
	Items        []OrderDetail `json:"items"`
	Timestamp    time.Time     `json:"timestamp"`
}
