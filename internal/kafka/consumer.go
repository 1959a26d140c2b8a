package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
// Wrap an error with backoff.Permanent to skip the retries.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       reader
	workers int
	log     *zap.Logger

	// MaxTries bounds handler attempts per message.
	MaxTries     uint
	RetryInitial time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log.With(zap.String("topic", topic), zap.String("group", group)))
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: log, MaxTries: 3, RetryInitial: 200 * time.Millisecond}
}

// Start fetches messages and fans them out to the worker pool until ctx is
// done. Offsets are committed only after the handler succeeded.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, c.workers*2)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				c.process(ctx, id, h, m)
			}
		}(i)
	}

	err := c.dispatch(ctx, jobs)
	close(jobs)
	wg.Wait()
	return err
}

func (c *Consumer) dispatch(ctx context.Context, jobs chan<- kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, worker int, h Handler, m kafka.Message) {
	log := c.log.With(zap.Int("worker", worker), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInitial
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, h(ctx, m)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.MaxTries))
	if err != nil {
		log.Error("handler failed, offset not committed", zap.Error(err))
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil {
		log.Warn("commit offset", zap.Error(err))
	}
}
