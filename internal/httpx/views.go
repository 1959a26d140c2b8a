package httpx

import (
	"encoding/json"
	"time"

	"github.com/agrostore/order-core/internal/orders"
	"github.com/shopspring/decimal"
)

// Bentuk JSON mengikuti client mobile: angka uang dikirim sebagai number, bukan string.

type orderItemView struct {
	ProductID    string      `json:"product_id"`
	ProductName  string      `json:"product_name"`
	ProductImage string      `json:"product_image"`
	Quantity     int         `json:"quantity"`
	Price        json.Number `json:"price"`
}

type orderView struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Total           json.Number     `json:"total"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []orderItemView `json:"items"`
}

func money(d decimal.Decimal) json.Number { return json.Number(d.String()) }

func toOrderView(o orders.Order) orderView {
	v := orderView{
		ID:              o.ID,
		UserID:          o.UserID,
		Total:           money(o.Total),
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		CreatedAt:       o.CreatedAt,
		Items:           make([]orderItemView, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			Quantity:     it.Quantity,
			Price:        money(it.Price),
		})
	}
	return v
}

type createOrderResp struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}

type errorResp struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
