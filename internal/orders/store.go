package orders

import (
	"context"

	"github.com/agrostore/order-core/internal/ids"
)

// Tx is one open transaction of the relational store. Row locks taken by
// LockProduct are held until Commit or Rollback. Rollback after Commit is a no-op.
type Tx interface {
	ProductLocker
	ids.Source

	InsertOrder(ctx context.Context, o Order) error
	InsertOrderItem(ctx context.Context, it OrderItem) error
	// DecrementStock fails rather than let stock go negative.
	DecrementStock(ctx context.Context, productID string, qty int) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// GetOrder returns ErrOrderNotFound when id does not exist.
	GetOrder(ctx context.Context, id string) (Order, error)
	// ListOrdersByUser returns the user's orders newest first.
	ListOrdersByUser(ctx context.Context, userID string) ([]Order, error)
}
