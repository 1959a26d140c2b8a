package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT UNIQUE,
	role       TEXT NOT NULL DEFAULT 'pembeli',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	price       NUMERIC(14,2) NOT NULL CHECK (price >= 0),
	stock       INT NOT NULL CHECK (stock >= 0),
	seller_id   TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	image_url   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	total            NUMERIC(14,2) NOT NULL,
	status           TEXT NOT NULL,
	shipping_address TEXT NOT NULL,
	payment_method   TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS order_items (
	id         BIGSERIAL PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(id),
	product_id TEXT NOT NULL REFERENCES products(id),
	quantity   INT NOT NULL CHECK (quantity > 0),
	price      NUMERIC(14,2) NOT NULL
);
CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id);

CREATE TABLE IF NOT EXISTS reviews (
	id         TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	rating     INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
	comment    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- satu baris per prefix id (user, seller, prod, order, rev)
CREATE TABLE IF NOT EXISTS id_sequences (
	prefix TEXT PRIMARY KEY,
	value  BIGINT NOT NULL
);
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate creates the tables when missing. Idempotent.
func Migrate(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
