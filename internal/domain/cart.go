package domain

// CartItemView is a cart line joined with the live product row.
type CartItemView struct {
	ID         int64   `json:"id"`
	ProductID  int64   `json:"product_id"`
	Quantity   int     `json:"quantity"`
	Name       string  `json:"name"`
	Price      int64   `json:"price"`
	ImageURL   *string `json:"image_url"`
	Stock      int     `json:"stock"`
	TotalPrice int64   `json:"total_price"`
}

type CartTotal struct {
	TotalItems    int   `json:"total_items"`
	TotalQuantity int   `json:"total_quantity"`
	TotalAmount   int64 `json:"total_amount"`
}
