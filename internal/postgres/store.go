package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrostore/order-core/internal/ids"
	"github.com/agrostore/order-core/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements orders.Store on PostgreSQL. Money columns travel as text
// so NUMERIC values round-trip through decimal.Decimal without float loss.
type Store struct{ DB DB }

var familyTables = map[ids.Family]string{
	ids.User:    "users",
	ids.Seller:  "users",
	ids.Product: "products",
	ids.Order:   "orders",
	ids.Review:  "reviews",
}

func tableOf(f ids.Family) (string, error) {
	t, ok := familyTables[f]
	if !ok {
		return "", fmt.Errorf("%w: %q", ids.ErrUnknownFamily, f)
	}
	return t, nil
}

func (s *Store) Begin(ctx context.Context) (orders.Tx, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// SQLSTATE unique_violation
const uniqueViolation = "23505"

const orderColumns = `o.id, o.user_id, o.total::text, o.status, o.shipping_address, o.payment_method, o.created_at`

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	var (
		o             orders.Order
		total, status string
	)
	err := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id=$1`, id).
		Scan(&o.ID, &o.UserID, &total, &status, &o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return orders.Order{}, fmt.Errorf("order %s total: %w", id, err)
	}

	rows, err := s.DB.Query(ctx, `
		SELECT oi.product_id, oi.quantity, oi.price::text, COALESCE(p.name, ''), COALESCE(p.image_url, '')
		FROM order_items oi LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id=$1 ORDER BY oi.id`, id)
	if err != nil {
		return orders.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		it := orders.OrderItem{OrderID: id}
		var price string
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price, &it.ProductName, &it.ProductImage); err != nil {
			return orders.Order{}, err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return orders.Order{}, fmt.Errorf("order %s item price: %w", id, err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// ListOrdersByUser joins orders with their items in one query and groups
// the rows per order, preserving the newest-first order.
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderColumns+`,
		       oi.product_id, oi.quantity, oi.price::text, p.name, p.image_url
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.user_id=$1
		ORDER BY o.created_at DESC, o.id DESC, oi.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []orders.Order
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			o                       orders.Order
			total, status           string
			productID, price        *string
			productName, productImg *string
			qty                     *int
		)
		if err := rows.Scan(&o.ID, &o.UserID, &total, &status, &o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt,
			&productID, &qty, &price, &productName, &productImg); err != nil {
			return nil, err
		}
		i, seen := index[o.ID]
		if !seen {
			o.Status = orders.Status(status)
			if o.Total, err = decimal.NewFromString(total); err != nil {
				return nil, fmt.Errorf("order %s total: %w", o.ID, err)
			}
			out = append(out, o)
			i = len(out) - 1
			index[o.ID] = i
		}
		if productID == nil {
			continue
		}
		it := orders.OrderItem{OrderID: o.ID, ProductID: *productID, ProductName: deref(productName), ProductImage: deref(productImg)}
		if qty != nil {
			it.Quantity = *qty
		}
		if it.Price, err = decimal.NewFromString(deref(price)); err != nil {
			return nil, fmt.Errorf("order %s item price: %w", o.ID, err)
		}
		out[i].Items = append(out[i].Items, it)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Tx wraps one pgx transaction for the order coordinator and the id allocator.
type Tx struct{ tx pgx.Tx }

func (t *Tx) LockProduct(ctx context.Context, productID string) (orders.Product, error) {
	var (
		p     orders.Product
		price string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, price::text, stock, seller_id
		FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.Name, &price, &p.Stock, &p.SellerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, orders.ErrProductNotFound
	}
	if err != nil {
		return orders.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return orders.Product{}, fmt.Errorf("product %s price: %w", productID, err)
	}
	return p, nil
}

func (t *Tx) MaxSequence(ctx context.Context, f ids.Family) (int64, error) {
	table, err := tableOf(f)
	if err != nil {
		return 0, err
	}
	var n int64
	err = t.tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT COALESCE(MAX(CAST(SUBSTRING(id FROM %d) AS BIGINT)), 0)
		FROM %s WHERE id ~ $1`, len(f)+1, table), f.Pattern()).Scan(&n)
	return n, err
}

func (t *Tx) IDExists(ctx context.Context, f ids.Family, id string) (bool, error) {
	table, err := tableOf(f)
	if err != nil {
		return false, err
	}
	var exists bool
	err = t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

// NextSequence bumps the id_sequences row of f. The first use seeds it from
// the existing ids, and every bump stays above ids written outside the counter.
// The row lock is held until the caller's transaction ends.
func (t *Tx) NextSequence(ctx context.Context, f ids.Family) (int64, error) {
	table, err := tableOf(f)
	if err != nil {
		return 0, err
	}
	var n int64
	err = t.tx.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO id_sequences (prefix, value)
		SELECT $1, COALESCE(MAX(CAST(SUBSTRING(id FROM %d) AS BIGINT)), 0) + 1
		FROM %s WHERE id ~ $2
		ON CONFLICT (prefix) DO UPDATE
		SET value = GREATEST(id_sequences.value, EXCLUDED.value - 1) + 1
		RETURNING value`, len(f)+1, table), string(f), f.Pattern()).Scan(&n)
	return n, err
}

func (t *Tx) InsertOrder(ctx context.Context, o orders.Order) error {
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, total, status, shipping_address, payment_method, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)`,
		o.ID, o.UserID, o.Total.String(), string(o.Status), o.ShippingAddress, o.PaymentMethod, createdAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s (%s)", orders.ErrOrderIDTaken, o.ID, pgErr.ConstraintName)
	}
	return err
}

func (t *Tx) InsertOrderItem(ctx context.Context, it orders.OrderItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4::numeric)`,
		it.OrderID, it.ProductID, it.Quantity, it.Price.String())
	return err
}

func (t *Tx) DecrementStock(ctx context.Context, productID string, qty int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("decrement stock %s by %d: no row updated", productID, qty)
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback ignores pgx.ErrTxClosed so it is safe to defer after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
