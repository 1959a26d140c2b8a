package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderCreated = "OrderCreated"

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // EventOrderCreated
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "agrostore-orders"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemSold struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	SellerID    string          `json:"seller_id"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type OrderCreatedPayload struct {
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Items   []ItemSold      `json:"items"`
	Total   decimal.Decimal `json:"total"`
}

// EventPublisher is notified after an order commits. Publishing is best
// effort: the order exists regardless of the outcome.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, p OrderCreatedPayload) error
}
