package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockerFunc func(ctx context.Context, id string) (Product, error)

func (f lockerFunc) LockProduct(ctx context.Context, id string) (Product, error) { return f(ctx, id) }

func TestCheckAndLock(t *testing.T) {
	stock := map[string]Product{"prod1": {ID: "prod1", Name: "Pupuk Kandang", Stock: 5}}
	locked := []string{}
	tx := lockerFunc(func(_ context.Context, id string) (Product, error) {
		locked = append(locked, id)
		p, ok := stock[id]
		if !ok {
			return Product{}, ErrProductNotFound
		}
		return p, nil
	})
	ctx := context.Background()

	c, err := CheckAndLock(ctx, tx, "prod1", 5)
	require.NoError(t, err)
	assert.True(t, c.OK())

	c, err = CheckAndLock(ctx, tx, "prod1", 6)
	require.NoError(t, err)
	assert.Equal(t, InsufficientStock, c.Availability)
	assert.Equal(t, "Pupuk Kandang: Requested 6, Available 5", c.Problem().Detail())

	c, err = CheckAndLock(ctx, tx, "prod404", 1)
	require.NoError(t, err)
	assert.Equal(t, NotFound, c.Availability)
	assert.Equal(t, ReasonNotFound, c.Problem().Reason)
	assert.Equal(t, "Product ID prod404 not found", c.Problem().Detail())

	assert.Equal(t, []string{"prod1", "prod1", "prod404"}, locked)
}

func TestCheckAndLockStorageError(t *testing.T) {
	boom := errors.New("lock timeout")
	tx := lockerFunc(func(context.Context, string) (Product, error) { return Product{}, boom })

	_, err := CheckAndLock(context.Background(), tx, "prod1", 1)
	assert.ErrorIs(t, err, boom)
}
