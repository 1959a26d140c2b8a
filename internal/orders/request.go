package orders

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type ItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type CreateOrderRequest struct {
	UserID          string          `json:"user_id"`
	Items           []ItemRequest   `json:"items"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress string          `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
}

// Validate checks the request shape before any transaction is opened.
func (r CreateOrderRequest) Validate() error {
	var (
		problems []string
		missing  bool
	)
	required := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, name+" is required")
			missing = true
		}
	}
	required("user_id", r.UserID)
	required("shipping_address", r.ShippingAddress)
	required("payment_method", r.PaymentMethod)

	if len(r.Items) == 0 {
		problems = append(problems, "items must not be empty")
		missing = true
	}
	sum := decimal.Zero
	for i, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].product_id is required", i))
			missing = true
		}
		if it.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be greater than 0", i))
		}
		if it.Price.IsNegative() {
			problems = append(problems, fmt.Sprintf("items[%d].price must not be negative", i))
		}
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if len(r.Items) > 0 && !r.Total.Equal(sum) {
		problems = append(problems, fmt.Sprintf("total %s does not match item sum %s", r.Total, sum))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems, MissingFields: missing}
	}
	return nil
}

// demand is the total quantity requested for one product across all lines.
type demand struct {
	ProductID string
	Quantity  int
	Prices    []decimal.Decimal // harga unik per baris, untuk PRICE_POLICY=catalog
}

// aggregate merges lines of the same product and returns them sorted by
// product id, which is the order row locks must be taken in.
func aggregate(items []ItemRequest) []demand {
	byID := make(map[string]*demand, len(items))
	for _, it := range items {
		d, ok := byID[it.ProductID]
		if !ok {
			d = &demand{ProductID: it.ProductID}
			byID[it.ProductID] = d
		}
		d.Quantity += it.Quantity
		seen := false
		for _, p := range d.Prices {
			if p.Equal(it.Price) {
				seen = true
				break
			}
		}
		if !seen {
			d.Prices = append(d.Prices, it.Price)
		}
	}

	out := make([]demand, 0, len(byID))
	for _, d := range byID {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
