package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka: producer closed")

const writeTimeout = 10 * time.Second

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox and writes them from one goroutine,
// so Publish never waits on the broker unless the inbox is full.
type Producer struct {
	w   writer
	log *zap.Logger

	inbox    chan kafka.Message
	stopping chan struct{}
	closeCh  chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, buf, log.With(zap.String("topic", topic)))
}

func newProducer(w writer, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w:        w,
		log:      log,
		inbox:    make(chan kafka.Message, buf),
		stopping: make(chan struct{}),
		closeCh:  make(chan struct{}),
	}
}

// Start runs the write loop until Close is called or ctx is done. Either way
// the messages already accepted are flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		defer func() {
			if err := p.w.Close(); err != nil {
				p.log.Warn("kafka writer close", zap.Error(err))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				p.Close()
				for m := range p.inbox {
					p.write(m)
				}
				return
			case m, ok := <-p.inbox:
				if !ok {
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// Publish enqueues one message. It fails once the producer is closing, and
// gives up when ctx ends while the inbox is full.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	m := kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}
	select {
	case p.inbox <- m:
		return nil
	case <-p.stopping:
		return ErrProducerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tutup inbox supaya goroutine nge-flush sisa pesan lalu exit rapi. Aman dipanggil berkali-kali.
func (p *Producer) Close() {
	p.once.Do(func() {
		close(p.stopping)
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

// Tunggu sampai goroutine selesai. Only valid after Start.
func (p *Producer) WaitClosed() { <-p.closeCh }
