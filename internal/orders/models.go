package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string
	Name        string
	Category    string
	Price       decimal.Decimal
	Stock       int
	SellerID    string
	Description string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Order struct {
	ID              string
	UserID          string
	Total           decimal.Decimal
	Status          Status // lihat status.go
	ShippingAddress string
	PaymentMethod   string
	CreatedAt       time.Time
	Items           []OrderItem // terisi hanya saat dibaca
}

// OrderItem snapshots the unit price at order time.
// ProductName and ProductImage are filled from the catalog on reads.
type OrderItem struct {
	OrderID      string
	ProductID    string
	Quantity     int
	Price        decimal.Decimal
	ProductName  string
	ProductImage string
}
