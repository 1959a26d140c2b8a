package orders

import (
	"context"
	"errors"
)

// ProductLocker reads a product row under an exclusive lock held until the
// surrounding transaction ends.
type ProductLocker interface {
	LockProduct(ctx context.Context, productID string) (Product, error)
}

type Availability int

const (
	Available Availability = iota
	NotFound
	InsufficientStock
)

// StockCheck is the outcome of CheckAndLock for one product.
type StockCheck struct {
	Availability Availability
	Product      Product
	Requested    int
}

func (c StockCheck) OK() bool { return c.Availability == Available }

func (c StockCheck) Problem() ItemProblem {
	p := ItemProblem{
		ProductID:   c.Product.ID,
		ProductName: c.Product.Name,
		Requested:   c.Requested,
		Available:   c.Product.Stock,
		Reason:      ReasonInsufficientStock,
	}
	if c.Availability == NotFound {
		p.Reason = ReasonNotFound
		p.Available = 0
	}
	return p
}

// CheckAndLock locks productID inside tx and reports whether qty units are
// available. It never mutates; the caller decrements while the lock is held.
// The returned error is non-nil only for storage failures.
func CheckAndLock(ctx context.Context, tx ProductLocker, productID string, qty int) (StockCheck, error) {
	p, err := tx.LockProduct(ctx, productID)
	if errors.Is(err, ErrProductNotFound) {
		return StockCheck{Availability: NotFound, Product: Product{ID: productID}, Requested: qty}, nil
	}
	if err != nil {
		return StockCheck{}, err
	}
	if p.Stock < qty {
		return StockCheck{Availability: InsufficientStock, Product: p, Requested: qty}, nil
	}
	return StockCheck{Availability: Available, Product: p, Requested: qty}, nil
}
