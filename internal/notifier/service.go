// Package notifier reacts to committed orders by telling every seller
// which of their products were bought.
package notifier

import (
	"context"
	"fmt"
	"sort"

	kafkax "github.com/agrostore/order-core/internal/kafka"
	"github.com/agrostore/order-core/internal/logging"
	"github.com/agrostore/order-core/internal/orders"
	"github.com/agrostore/order-core/internal/redisx"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const consumerName = "notifier"

// SellerNotice is what one seller learns about one order.
type SellerNotice struct {
	OrderID  string
	SellerID string
	Items    []orders.ItemSold
	Revenue  decimal.Decimal
}

type Service struct {
	Redis *redis.Client
	Log   *zap.Logger
}

// HandleOrderCreated: dipasang sebagai handler consumer.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		return backoff.Permanent(err)
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	} // ignore

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return backoff.Permanent(err)
	}

	// 2) dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, consumerName, env.EventID)
	first, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	log := s.logger(ctx).With(zap.String("event_id", env.EventID), zap.String("order_id", p.OrderID))
	for _, n := range GroupBySeller(p) {
		log.Info("seller notified",
			zap.String("seller_id", n.SellerID),
			zap.Int("items", len(n.Items)),
			zap.String("revenue", n.Revenue.String()))
	}
	return nil
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logging.FromContext(ctx)
}

// GroupBySeller splits an order into one notice per seller, sorted by seller id.
func GroupBySeller(p orders.OrderCreatedPayload) []SellerNotice {
	bySeller := map[string]*SellerNotice{}
	for _, it := range p.Items {
		n, ok := bySeller[it.SellerID]
		if !ok {
			n = &SellerNotice{OrderID: p.OrderID, SellerID: it.SellerID}
			bySeller[it.SellerID] = n
		}
		n.Items = append(n.Items, it)
		n.Revenue = n.Revenue.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	out := make([]SellerNotice, 0, len(bySeller))
	for _, n := range bySeller {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SellerID < out[j].SellerID })
	return out
}
