package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agrostore/order-core/internal/ids"
	"github.com/agrostore/order-core/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() *Store {
	s := New()
	s.PutProduct(orders.Product{ID: "prod1", Name: "Pupuk NPK", Price: decimal.NewFromInt(50000), Stock: 5, SellerID: "seller1"})
	return s
}

func TestLockBlocksSecondTransaction(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	tx1, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx1.LockProduct(ctx, "prod1")
	require.NoError(t, err)

	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = tx2.LockProduct(waitCtx, "prod1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx1.DecrementStock(ctx, "prod1", 2))
	require.NoError(t, tx1.Commit(ctx))

	p, err := tx2.LockProduct(ctx, "prod1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestWritesInvisibleUntilCommit(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	require.NoError(t, tx.InsertOrder(ctx, orders.Order{ID: "order1", UserID: "user1"}))
	require.NoError(t, tx.InsertOrderItem(ctx, orders.OrderItem{OrderID: "order1", ProductID: "prod1", Quantity: 1}))
	require.NoError(t, tx.DecrementStock(ctx, "prod1", 1))

	_, err := s.GetOrder(ctx, "order1")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	p, _ := s.Product("prod1")
	assert.Equal(t, 5, p.Stock)

	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, 0, s.OrderCount())
	assert.NoError(t, tx.Rollback(ctx), "rollback after close is a no-op")
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
}

func TestDecrementRefusesNegativeStock(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx)

	require.NoError(t, tx.DecrementStock(ctx, "prod1", 4))
	assert.ErrorIs(t, tx.DecrementStock(ctx, "prod1", 2), ErrNegativeStock)
}

func TestDuplicateOrderID(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	tx1, _ := s.Begin(ctx)
	tx2, _ := s.Begin(ctx)
	require.NoError(t, tx1.InsertOrder(ctx, orders.Order{ID: "order1"}))
	require.NoError(t, tx2.InsertOrder(ctx, orders.Order{ID: "order1"}))
	require.NoError(t, tx1.Commit(ctx))
	err := tx2.Commit(ctx)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.ErrorIs(t, err, orders.ErrOrderIDTaken)
	assert.Equal(t, 1, s.OrderCount())

	tx3, _ := s.Begin(ctx)
	defer tx3.Rollback(ctx)
	assert.ErrorIs(t, tx3.InsertOrder(ctx, orders.Order{ID: "order1"}), orders.ErrOrderIDTaken)
}

func TestSequenceSource(t *testing.T) {
	s := seeded()
	s.PutUser("user3")
	s.PutUser("seller7")
	s.PutReview("rev2")
	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx)

	n, err := tx.MaxSequence(ctx, ids.User)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, _ = tx.MaxSequence(ctx, ids.Seller)
	assert.Equal(t, int64(7), n)
	n, _ = tx.MaxSequence(ctx, ids.Product)
	assert.Equal(t, int64(1), n)
	n, _ = tx.MaxSequence(ctx, ids.Order)
	assert.Equal(t, int64(0), n)

	ok, _ := tx.IDExists(ctx, ids.Review, "rev2")
	assert.True(t, ok)

	next, _ := tx.NextSequence(ctx, ids.Review)
	assert.Equal(t, int64(3), next)
	next, _ = tx.NextSequence(ctx, ids.Review)
	assert.Equal(t, int64(4), next)
}

func TestFailOn(t *testing.T) {
	s := seeded()
	boom := errors.New("disk full")
	s.FailOn(OpInsertOrder, boom)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	assert.ErrorIs(t, tx.InsertOrder(ctx, orders.Order{ID: "order1"}), boom)
	require.NoError(t, tx.Rollback(ctx))

	s.FailOn(OpInsertOrder, nil)
	tx, _ = s.Begin(ctx)
	assert.NoError(t, tx.InsertOrder(ctx, orders.Order{ID: "order1"}))
	require.NoError(t, tx.Rollback(ctx))
}
