package kafka

import (
	"context"
	"encoding/json"

	"github.com/agrostore/order-core/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

type publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// OrderEvents publishes OrderCreated envelopes keyed by order id.
type OrderEvents struct {
	Producer publisher
	Service  string
}

func NewOrderEvents(p *Producer, service string) *OrderEvents {
	return &OrderEvents{Producer: p, Service: service}
}

func (e *OrderEvents) PublishOrderCreated(ctx context.Context, p orders.OrderCreatedPayload) error {
	env, err := NewEnvelope(orders.EventOrderCreated, e.Service, p.OrderID, p)
	if err != nil {
		return err
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.Producer.Publish(ctx, orders.PartitionKey(p.OrderID), value, EventHeaders(orders.EventOrderCreated)...)
}
