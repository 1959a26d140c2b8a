package ids

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeSource struct {
	mu       sync.Mutex
	taken    map[string]bool
	counters map[Family]int64
	// phantom ids that the max scan does not see but the verify step does
	phantom map[string]bool
	scans   int
	failMax error
}

func newFakeSource(existing ...string) *fakeSource {
	s := &fakeSource{taken: map[string]bool{}, counters: map[Family]int64{}, phantom: map[string]bool{}}
	for _, id := range existing {
		s.taken[id] = true
	}
	return s
}

func (s *fakeSource) MaxSequence(_ context.Context, f Family) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	if s.failMax != nil {
		return 0, s.failMax
	}
	var maxSeq int64
	for id := range s.taken {
		if n, ok := f.Parse(id); ok && n > maxSeq {
			maxSeq = n
		}
	}
	return maxSeq, nil
}

func (s *fakeSource) IDExists(_ context.Context, _ Family, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken[id] || s.phantom[id], nil
}

func (s *fakeSource) NextSequence(ctx context.Context, f Family) (int64, error) {
	maxSeq, _ := s.MaxSequence(ctx, f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[f] < maxSeq {
		s.counters[f] = maxSeq
	}
	s.counters[f]++
	return s.counters[f], nil
}

func (s *fakeSource) take(id string) {
	s.mu.Lock()
	s.taken[id] = true
	s.mu.Unlock()
}

func TestScanAllocatorStartsAtOne(t *testing.T) {
	a := &ScanAllocator{}
	id, err := a.Mint(context.Background(), newFakeSource(), Order)
	require.NoError(t, err)
	assert.Equal(t, "order1", id)
}

func TestScanAllocatorIgnoresUnrelatedIDs(t *testing.T) {
	src := newFakeSource("order16", "order3", "orderX9", "legacy-order-99", "prod40", "order")
	id, err := (&ScanAllocator{}).Mint(context.Background(), src, Order)
	require.NoError(t, err)
	assert.Equal(t, "order17", id)
}

func TestScanAllocatorFamiliesAreIndependent(t *testing.T) {
	src := newFakeSource("user5", "seller2", "prod9", "rev1")
	a := &ScanAllocator{}
	want := map[Family]string{User: "user6", Seller: "seller3", Product: "prod10", Order: "order1", Review: "rev2"}
	for f, w := range want {
		id, err := a.Mint(context.Background(), src, f)
		require.NoError(t, err)
		assert.Equal(t, w, id)
	}
}

func TestScanAllocatorRetriesOnCollision(t *testing.T) {
	src := newFakeSource("order4")
	// order5 and order6 were written by a concurrent writer the scan missed
	src.phantom["order5"] = true
	src.phantom["order6"] = true

	id, err := (&ScanAllocator{MaxAttempts: 5}).Mint(context.Background(), src, Order)
	require.NoError(t, err)
	assert.Equal(t, "order7", id)
	assert.Equal(t, 3, src.scans)
}

func TestScanAllocatorExhausted(t *testing.T) {
	src := newFakeSource()
	for i := 1; i <= 10; i++ {
		src.phantom[fmt.Sprintf("rev%d", i)] = true
	}

	_, err := (&ScanAllocator{MaxAttempts: 3}).Mint(context.Background(), src, Review)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIDCollisionExhausted)
	assert.Equal(t, 3, src.scans)
}

func TestScanAllocatorSourceErrorIsNotRetried(t *testing.T) {
	boom := errors.New("connection reset")
	src := newFakeSource()
	src.failMax = boom

	_, err := (&ScanAllocator{MaxAttempts: 5}).Mint(context.Background(), src, Order)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrIDCollisionExhausted)
	assert.Equal(t, 1, src.scans)
}

func TestMintUnknownFamily(t *testing.T) {
	for _, a := range []Allocator{&ScanAllocator{}, &CounterAllocator{}} {
		_, err := a.Mint(context.Background(), newFakeSource(), Family("invoice"))
		assert.ErrorIs(t, err, ErrUnknownFamily)
	}
}

func TestCounterAllocatorSkipsTakenIDs(t *testing.T) {
	src := newFakeSource("prod2")
	src.phantom["prod3"] = true

	id, err := (&CounterAllocator{}).Mint(context.Background(), src, Product)
	require.NoError(t, err)
	assert.Equal(t, "prod4", id)
}

func TestCounterAllocatorExhausted(t *testing.T) {
	src := newFakeSource()
	for i := 1; i <= 4; i++ {
		src.phantom[fmt.Sprintf("user%d", i)] = true
	}
	_, err := (&CounterAllocator{MaxAttempts: 2}).Mint(context.Background(), src, User)
	assert.ErrorIs(t, err, ErrIDCollisionExhausted)
}

func TestCounterAllocatorConcurrentMintsAreUnique(t *testing.T) {
	src := newFakeSource("order16")
	a := New("counter", 0, nil)

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			id, err := a.Mint(context.Background(), src, Order)
			if err != nil {
				return err
			}
			src.take(id)
			mu.Lock()
			defer mu.Unlock()
			if seen[id] {
				return fmt.Errorf("duplicate id %s", id)
			}
			seen[id] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, 100)
	assert.True(t, seen["order17"])
	assert.True(t, seen["order116"])
}

func TestNewPicksStrategy(t *testing.T) {
	assert.IsType(t, &ScanAllocator{}, New("scan", 3, nil))
	assert.IsType(t, &CounterAllocator{}, New("counter", 3, nil))
	assert.IsType(t, &CounterAllocator{}, New("", 0, nil))
}
