package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrostore/order-core/internal/ids"
	"github.com/agrostore/order-core/internal/logging"
	"github.com/agrostore/order-core/internal/metrics"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/agrostore/order-core/internal/orders")

const publishTimeout = 2 * time.Second

type PricePolicy string

const (
	// PriceTrust stores the unit price sent by the client.
	PriceTrust PricePolicy = "trust"
	// PriceCatalog rejects lines whose price differs from the locked product row.
	PriceCatalog PricePolicy = "catalog"
)

type Result struct {
	OrderID string
	Total   decimal.Decimal
}

// Service creates orders atomically: every line is checked under a row lock,
// then the order, its items and all stock decrements commit as one
// transaction, or nothing does.
type Service struct {
	Store     Store
	IDs       ids.Allocator
	Publisher EventPublisher // optional
	Metrics   *metrics.Metrics

	// TxTimeout bounds one CreateOrder transaction; zero means no bound.
	TxTimeout   time.Duration
	// IDAttempts bounds whole-transaction retries when the minted order id
	// was committed elsewhere first. Zero means ids.DefaultMaxAttempts.
	IDAttempts  int
	PricePolicy PricePolicy
	Now         func() time.Time
}

func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "orders.CreateOrder")
	defer span.End()
	log := logging.FromContext(ctx).With(zap.String("user_id", req.UserID))

	if err := req.Validate(); err != nil {
		s.Metrics.OrderRejected("validation")
		span.SetStatus(codes.Error, "validation")
		return Result{}, err
	}
	demands := aggregate(req.Items)
	span.SetAttributes(attribute.Int("order.lines", len(req.Items)), attribute.Int("order.products", len(demands)))

	// Id yang sudah di-mint bisa keduluan transaksi lain (strategi scan);
	// ulangi seluruh transaksi dengan id baru.
	limit := s.idAttempts()
	for attempt := 1; ; attempt++ {
		res, err := s.createOnce(ctx, log, span, req, demands)
		if !errors.Is(err, ErrOrderIDTaken) {
			if err == nil {
				s.Metrics.OrderCreated(time.Since(start))
			}
			return res, err
		}
		s.Metrics.MintAttempt(string(ids.Order), "collision")
		if attempt >= limit {
			log.Error("order id collisions exhausted", zap.Int("attempts", attempt), zap.Error(err))
			s.Metrics.OrderRejected("id_exhausted")
			span.SetStatus(codes.Error, "id exhausted")
			return Result{}, fmt.Errorf("%w: order id taken on %d attempts", ids.ErrIDCollisionExhausted, attempt)
		}
		log.Info("order id taken by a concurrent order, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
}

// createOnce runs one order transaction. It returns ErrOrderIDTaken untouched
// so the caller can retry with a freshly minted id.
func (s *Service) createOnce(ctx context.Context, log *zap.Logger, span trace.Span, req CreateOrderRequest, demands []demand) (Result, error) {
	if s.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TxTimeout)
		defer cancel()
	}

	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return Result{}, s.persistFailed(log, span, "begin", err)
	}
	// rollback tetap jalan walau ctx sudah habis; no-op setelah commit
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	// Validating: kunci semua produk (urut id), kumpulkan SEMUA masalah dulu.
	products := make(map[string]Product, len(demands))
	var problems []ItemProblem
	for _, d := range demands {
		c, err := CheckAndLock(ctx, tx, d.ProductID, d.Quantity)
		if err != nil {
			return Result{}, s.persistFailed(log, span, "lock product "+d.ProductID, err)
		}
		if !c.OK() {
			p := c.Problem()
			log.Info("order item rejected",
				zap.String("product_id", p.ProductID),
				zap.String("reason", string(p.Reason)),
				zap.Int("requested", p.Requested),
				zap.Int("available", p.Available))
			problems = append(problems, p)
			continue
		}
		products[d.ProductID] = c.Product
		if s.PricePolicy == PriceCatalog {
			problems = append(problems, priceProblems(d, c.Product)...)
		}
	}

	if len(problems) > 0 {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
			log.Warn("rollback after rejected order", zap.Error(err))
		}
		serr := &StockError{Problems: problems}
		log.Warn("order rejected", zap.Strings("details", serr.Details()))
		s.Metrics.OrderRejected("stock")
		span.SetStatus(codes.Error, "stock")
		return Result{}, serr
	}

	// Committing
	orderID, err := s.IDs.Mint(ctx, tx, ids.Order)
	if err != nil {
		if errors.Is(err, ids.ErrIDCollisionExhausted) {
			log.Error("order id mint exhausted", zap.Error(err))
			s.Metrics.OrderRejected("id_exhausted")
			span.SetStatus(codes.Error, "id exhausted")
			return Result{}, err
		}
		return Result{}, s.persistFailed(log, span, "mint order id", err)
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	order := Order{
		ID:              orderID,
		UserID:          req.UserID,
		Total:           req.Total,
		Status:          initialStatus,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       s.now(),
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		if errors.Is(err, ErrOrderIDTaken) {
			return Result{}, err
		}
		return Result{}, s.persistFailed(log, span, "insert order", err)
	}
	for _, it := range req.Items {
		item := OrderItem{OrderID: orderID, ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
		if err := tx.InsertOrderItem(ctx, item); err != nil {
			return Result{}, s.persistFailed(log, span, "insert order item", err)
		}
	}
	for _, d := range demands {
		if err := tx.DecrementStock(ctx, d.ProductID, d.Quantity); err != nil {
			return Result{}, s.persistFailed(log, span, "decrement stock "+d.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, ErrOrderIDTaken) {
			return Result{}, err
		}
		return Result{}, s.persistFailed(log, span, "commit", err)
	}

	log.Info("order created",
		zap.String("order_id", orderID),
		zap.Int("items", len(req.Items)),
		zap.String("total", req.Total.String()))

	s.publish(ctx, log, order, req.Items, products)
	return Result{OrderID: orderID, Total: req.Total}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	return s.Store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.Store.ListOrdersByUser(ctx, userID)
}

func (s *Service) persistFailed(log *zap.Logger, span trace.Span, op string, err error) error {
	log.Error("order transaction failed", zap.String("op", op), zap.Error(err))
	s.Metrics.OrderRejected("persistence")
	span.SetStatus(codes.Error, op)
	return &PersistenceError{Op: op, Err: err}
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, o Order, lines []ItemRequest, products map[string]Product) {
	if s.Publisher == nil {
		return
	}
	items := make([]ItemSold, 0, len(lines))
	for _, it := range lines {
		p := products[it.ProductID]
		items = append(items, ItemSold{
			ProductID:   it.ProductID,
			ProductName: p.Name,
			SellerID:    p.SellerID,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	payload := OrderCreatedPayload{OrderID: o.ID, UserID: o.UserID, Items: items, Total: o.Total}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.Publisher.PublishOrderCreated(pctx, payload); err != nil {
		log.Warn("publish order created", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) idAttempts() int {
	if s.IDAttempts <= 0 {
		return ids.DefaultMaxAttempts
	}
	return s.IDAttempts
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func priceProblems(d demand, p Product) []ItemProblem {
	var out []ItemProblem
	for _, price := range d.Prices {
		if !price.Equal(p.Price) {
			out = append(out, ItemProblem{
				ProductID:      p.ID,
				ProductName:    p.Name,
				Reason:         ReasonPriceMismatch,
				Requested:      d.Quantity,
				Available:      p.Stock,
				RequestedPrice: price,
				CatalogPrice:   p.Price,
			})
		}
	}
	return out
}
