// Package memstore is an in-process orders.Store. It keeps the transactional
// behaviour the coordinator relies on: per-product row locks held until
// commit/rollback, writes invisible until commit, unique order ids and a
// non-negative stock constraint. Used by tests and by STORE=memory.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agrostore/order-core/internal/ids"
	"github.com/agrostore/order-core/internal/orders"
)

var (
	ErrTxDone        = errors.New("memstore: transaction already closed")
	ErrDuplicateKey  = errors.New("memstore: duplicate key")
	ErrNegativeStock = errors.New("memstore: stock would go negative")
)

// Fault points for FailOn.
const (
	OpLockProduct     = "lock_product"
	OpInsertOrder     = "insert_order"
	OpInsertOrderItem = "insert_order_item"
	OpDecrementStock  = "decrement_stock"
	OpCommit          = "commit"
)

type Store struct {
	mu       sync.Mutex
	products map[string]orders.Product
	orders   map[string]orders.Order
	users    map[string]struct{}
	reviews  map[string]struct{}
	counters map[ids.Family]int64
	rowLocks map[string]chan struct{}
	faults   map[string]error
}

func New() *Store {
	return &Store{
		products: map[string]orders.Product{},
		orders:   map[string]orders.Order{},
		users:    map[string]struct{}{},
		reviews:  map[string]struct{}{},
		counters: map[ids.Family]int64{},
		rowLocks: map[string]chan struct{}{},
		faults:   map[string]error{},
	}
}

// PutProduct inserts or replaces a catalog row (catalog edits are external to
// the order flow).
func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *Store) Product(id string) (orders.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

// PutUser registers a user or seller id.
func (s *Store) PutUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = struct{}{}
}

func (s *Store) PutReview(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[id] = struct{}{}
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// FailOn makes every later call of op fail with err; nil clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults[op]
}

func (s *Store) rowLock(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.rowLocks[id] = l
	}
	return l
}

func (s *Store) Begin(ctx context.Context) (orders.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{s: s, held: map[string]chan struct{}{}, decrements: map[string]int{}}, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return s.withCatalog(o), nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, s.withCatalog(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// withCatalog copies o and joins product name/image into its items. Caller holds mu.
func (s *Store) withCatalog(o orders.Order) orders.Order {
	items := make([]orders.OrderItem, len(o.Items))
	for i, it := range o.Items {
		if p, ok := s.products[it.ProductID]; ok {
			it.ProductName, it.ProductImage = p.Name, p.ImageURL
		}
		items[i] = it
	}
	o.Items = items
	return o
}

// familyIDs lists committed ids that can belong to f. Caller holds mu.
func (s *Store) familyIDs(f ids.Family) []string {
	var out []string
	switch f {
	case ids.User, ids.Seller:
		for id := range s.users {
			out = append(out, id)
		}
	case ids.Product:
		for id := range s.products {
			out = append(out, id)
		}
	case ids.Order:
		for id := range s.orders {
			out = append(out, id)
		}
	case ids.Review:
		for id := range s.reviews {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) maxSequence(f ids.Family, extra []string) int64 {
	var maxSeq int64
	for _, id := range append(s.familyIDs(f), extra...) {
		if n, ok := f.Parse(id); ok && n > maxSeq {
			maxSeq = n
		}
	}
	return maxSeq
}

func duplicateOrder(id string) error {
	return fmt.Errorf("%w: %w: orders.id=%s", ErrDuplicateKey, orders.ErrOrderIDTaken, id)
}

type tx struct {
	s          *Store
	held       map[string]chan struct{}
	orders     []orders.Order
	items      []orders.OrderItem
	decrements map[string]int
	done       bool
}

func (t *tx) lock(ctx context.Context, productID string) error {
	if _, ok := t.held[productID]; ok {
		return nil
	}
	l := t.s.rowLock(productID)
	select {
	case l <- struct{}{}:
		t.held[productID] = l
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *tx) LockProduct(ctx context.Context, productID string) (orders.Product, error) {
	if t.done {
		return orders.Product{}, ErrTxDone
	}
	if err := t.s.fault(OpLockProduct); err != nil {
		return orders.Product{}, err
	}
	if err := t.lock(ctx, productID); err != nil {
		return orders.Product{}, err
	}
	p, ok := t.s.Product(productID)
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	p.Stock -= t.decrements[productID]
	return p, nil
}

func (t *tx) pendingOrderIDs() []string {
	out := make([]string, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o.ID)
	}
	return out
}

func (t *tx) MaxSequence(_ context.Context, f ids.Family) (int64, error) {
	if t.done {
		return 0, ErrTxDone
	}
	var pending []string
	if f == ids.Order {
		pending = t.pendingOrderIDs()
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.maxSequence(f, pending), nil
}

func (t *tx) IDExists(_ context.Context, f ids.Family, id string) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	if f == ids.Order {
		for _, o := range t.orders {
			if o.ID == id {
				return true, nil
			}
		}
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range t.s.familyIDs(f) {
		if existing == id {
			return true, nil
		}
	}
	return false, nil
}

// NextSequence is atomic but not transactional: a rolled back mint leaves a gap.
func (t *tx) NextSequence(_ context.Context, f ids.Family) (int64, error) {
	if t.done {
		return 0, ErrTxDone
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	cur := t.s.counters[f]
	if m := t.s.maxSequence(f, nil); m > cur {
		cur = m
	}
	cur++
	t.s.counters[f] = cur
	return cur, nil
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.s.fault(OpInsertOrder); err != nil {
		return err
	}
	for _, p := range t.orders {
		if p.ID == o.ID {
			return duplicateOrder(o.ID)
		}
	}
	t.s.mu.Lock()
	_, exists := t.s.orders[o.ID]
	t.s.mu.Unlock()
	if exists {
		return duplicateOrder(o.ID)
	}
	o.Items = nil
	t.orders = append(t.orders, o)
	return nil
}

func (t *tx) InsertOrderItem(_ context.Context, it orders.OrderItem) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.s.fault(OpInsertOrderItem); err != nil {
		return err
	}
	found := false
	for _, o := range t.orders {
		if o.ID == it.OrderID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("memstore: order_items.order_id %s references no order", it.OrderID)
	}
	t.items = append(t.items, it)
	return nil
}

func (t *tx) DecrementStock(ctx context.Context, productID string, qty int) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.s.fault(OpDecrementStock); err != nil {
		return err
	}
	if err := t.lock(ctx, productID); err != nil {
		return err
	}
	p, ok := t.s.Product(productID)
	if !ok {
		return fmt.Errorf("memstore: update products: %w", orders.ErrProductNotFound)
	}
	if p.Stock-t.decrements[productID]-qty < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeStock, productID)
	}
	t.decrements[productID] += qty
	return nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.s.fault(OpCommit); err != nil {
		t.release()
		return err
	}
	defer t.release()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, o := range t.orders {
		if _, exists := t.s.orders[o.ID]; exists {
			return duplicateOrder(o.ID)
		}
	}
	for id, n := range t.decrements {
		p := t.s.products[id]
		p.Stock -= n
		t.s.products[id] = p
	}
	for _, o := range t.orders {
		for _, it := range t.items {
			if it.OrderID == o.ID {
				o.Items = append(o.Items, it)
			}
		}
		t.s.orders[o.ID] = o
	}
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *tx) release() {
	t.done = true
	for id, l := range t.held {
		<-l
		delete(t.held, id)
	}
}
