package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{user_id}:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cache order lengkap: order:{order_id} -> JSON yang sama dengan GET /orders/{id}
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
