// Package ids mints sequential readable identifiers of the form <prefix><n>.
//
// Allocators never hold a transaction of their own: the caller passes the
// Source (normally its open transaction) so the mint shares the caller's
// transaction boundary.
package ids

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrostore/order-core/internal/metrics"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrIDCollisionExhausted = errors.New("id collision retries exhausted")
	ErrUnknownFamily        = errors.New("unknown id family")

	errCollision = errors.New("id already taken")
)

var tracer = otel.Tracer("github.com/agrostore/order-core/internal/ids")

// Source is what an allocator reads (and for counters, increments) to mint.
type Source interface {
	// MaxSequence returns the highest sequence among ids matching the family, 0 if none.
	MaxSequence(ctx context.Context, f Family) (int64, error)
	IDExists(ctx context.Context, f Family, id string) (bool, error)
	// NextSequence atomically advances the family counter and returns the new value.
	NextSequence(ctx context.Context, f Family) (int64, error)
}

type Allocator interface {
	Mint(ctx context.Context, src Source, f Family) (string, error)
}

const (
	DefaultMaxAttempts     = 8
	defaultInitialInterval = 5 * time.Millisecond
	defaultMaxInterval     = 200 * time.Millisecond
)

// New returns the allocator for a configured strategy ("counter" or "scan").
func New(strategy string, attempts int, m *metrics.Metrics) Allocator {
	if strategy == "scan" {
		return &ScanAllocator{MaxAttempts: attempts, Metrics: m}
	}
	return &CounterAllocator{MaxAttempts: attempts, Metrics: m}
}

// ScanAllocator proposes max(existing)+1 and verifies the proposal is still free.
// A collision re-scans and moves past both the new max and the rejected value,
// with exponential backoff, up to MaxAttempts.
type ScanAllocator struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Metrics         *metrics.Metrics
}

func (a *ScanAllocator) Mint(ctx context.Context, src Source, f Family) (string, error) {
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, f)
	}
	ctx, span := tracer.Start(ctx, "ids.ScanAllocator.Mint")
	defer span.End()

	var next int64
	attempts := 0
	op := func() (string, error) {
		attempts++
		maxSeq, err := src.MaxSequence(ctx, f)
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("scan %s ids: %w", f, err))
		}
		if next <= maxSeq {
			next = maxSeq + 1
		}
		id := f.Format(next)

		taken, err := src.IDExists(ctx, f, id)
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("verify %s: %w", id, err))
		}
		if taken {
			a.Metrics.MintAttempt(string(f), "collision")
			next++
			return "", errCollision
		}
		return id, nil
	}

	id, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(a.backoff()),
		backoff.WithMaxTries(uint(maxAttempts(a.MaxAttempts))),
	)
	span.SetAttributes(attribute.String("id.family", string(f)), attribute.Int("id.attempts", attempts))
	if err != nil {
		if errors.Is(err, errCollision) {
			a.Metrics.MintAttempt(string(f), "exhausted")
			return "", fmt.Errorf("%w: family %s after %d attempts", ErrIDCollisionExhausted, f, attempts)
		}
		a.Metrics.MintAttempt(string(f), "error")
		return "", err
	}
	a.Metrics.MintAttempt(string(f), "ok")
	return id, nil
}

func (a *ScanAllocator) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialInterval
	if a.InitialInterval > 0 {
		b.InitialInterval = a.InitialInterval
	}
	b.MaxInterval = defaultMaxInterval
	if a.MaxInterval > 0 {
		b.MaxInterval = a.MaxInterval
	}
	b.Reset()
	return b
}

// CounterAllocator advances a per-family counter through the Source.
// When the Source increments inside the caller's transaction the counter row
// lock serializes concurrent minters, so the verify step only guards against
// ids written outside the counter (imports, manual fixes).
type CounterAllocator struct {
	MaxAttempts int
	Metrics     *metrics.Metrics
}

func (a *CounterAllocator) Mint(ctx context.Context, src Source, f Family) (string, error) {
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, f)
	}
	ctx, span := tracer.Start(ctx, "ids.CounterAllocator.Mint")
	defer span.End()
	span.SetAttributes(attribute.String("id.family", string(f)))

	limit := maxAttempts(a.MaxAttempts)
	for i := 0; i < limit; i++ {
		seq, err := src.NextSequence(ctx, f)
		if err != nil {
			a.Metrics.MintAttempt(string(f), "error")
			return "", fmt.Errorf("advance %s counter: %w", f, err)
		}
		id := f.Format(seq)
		taken, err := src.IDExists(ctx, f, id)
		if err != nil {
			a.Metrics.MintAttempt(string(f), "error")
			return "", fmt.Errorf("verify %s: %w", id, err)
		}
		if !taken {
			a.Metrics.MintAttempt(string(f), "ok")
			return id, nil
		}
		a.Metrics.MintAttempt(string(f), "collision")
	}
	a.Metrics.MintAttempt(string(f), "exhausted")
	return "", fmt.Errorf("%w: family %s after %d attempts", ErrIDCollisionExhausted, f, limit)
}

func maxAttempts(n int) int {
	if n <= 0 {
		return DefaultMaxAttempts
	}
	return n
}
