package broadcaster

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gnuser/red-envelope-server/infra/logging"
	"github.com/gnuser/red-envelope-server/infra/metrics"
	exitwal "github.com/gnuser/red-envelope-server/infra/wal/exit"
)

const (
	defaultInterval   = 250 * time.Millisecond
	defaultBatch      = 512
	defaultMaxRetries = 10
)

// Publisher hands one outbox message to a broker. Publish returns only
// after the broker acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, m exitwal.Message) error
	Close() error
}

// Broadcaster drains the outbox in sequence order. Delivery is at least
// once: a message is marked SENT before publishing and re-queued after a
// crash.
type Broadcaster struct {
	log      *logging.Logger
	outbox   *exitwal.Outbox
	pub      Publisher
	interval time.Duration

	batch      int
	maxRetries uint32

	wg sync.WaitGroup
}

type Option func(*Broadcaster)

func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.interval = d
		}
	}
}

func WithMaxRetries(n uint32) Option {
	return func(b *Broadcaster) {
		b.maxRetries = n
	}
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(log *logging.Logger, outbox *exitwal.Outbox, pub Publisher, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		log:        log.Named("broadcaster"),
		outbox:     outbox,
		pub:        pub,
		interval:   defaultInterval,
		batch:      defaultBatch,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) error {
	if err := b.requeueSent(); err != nil {
		return err
	}
	b.log.Info("started", zap.Duration("interval", b.interval))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				if _, err := b.RunOnce(ctx); err != nil {
					b.log.Error("outbox scan failed", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

// requeueSent moves messages left in SENT by a crash back to NEW.
func (b *Broadcaster) requeueSent() error {
	var stuck []exitwal.Message
	if err := b.outbox.ScanByState(exitwal.StateSent, 0, func(m exitwal.Message) error {
		stuck = append(stuck, m)
		return nil
	}); err != nil {
		return err
	}
	for _, m := range stuck {
		if err := b.outbox.UpdateState(m.Seq, exitwal.StateNew, m.Retries); err != nil {
			return err
		}
	}
	if len(stuck) > 0 {
		b.log.Warn("requeued unacknowledged messages", zap.Int("count", len(stuck)))
	}
	return nil
}

// ------------------------------------------------
// REPLAY LOGIC
// ------------------------------------------------

// RunOnce publishes one batch of NEW messages and returns how many were
// acknowledged. It stops at the first failure so that messages are
// never published out of order.
func (b *Broadcaster) RunOnce(ctx context.Context) (int, error) {
	var pending []exitwal.Message
	if err := b.outbox.ScanByState(exitwal.StateNew, b.batch, func(m exitwal.Message) error {
		pending = append(pending, m)
		return nil
	}); err != nil {
		return 0, err
	}

	acked := 0
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return acked, nil
		}

		// 1. Mark SENT (idempotent)
		if err := b.outbox.UpdateState(m.Seq, exitwal.StateSent, m.Retries); err != nil {
			return acked, err
		}

		// 2. Publish
		if err := b.pub.Publish(ctx, m); err != nil {
			metrics.OutboxPublishedInc(string(m.Kind), false)
			return acked, b.failed(m, err)
		}
		metrics.OutboxPublishedInc(string(m.Kind), true)

		// 3. ACKED, then cleanup
		if err := b.outbox.UpdateState(m.Seq, exitwal.StateAcked, m.Retries); err != nil {
			return acked, err
		}
		if err := b.outbox.Delete(m.Seq); err != nil {
			return acked, err
		}
		acked++
	}
	return acked, nil
}

func (b *Broadcaster) failed(m exitwal.Message, cause error) error {
	retries := m.Retries + 1
	state := exitwal.StateNew
	if b.maxRetries > 0 && retries >= b.maxRetries {
		state = exitwal.StateFailed
		b.log.Error("giving up on message",
			zap.Uint64("seq", m.Seq),
			zap.String("kind", string(m.Kind)),
			zap.Uint32("retries", retries),
			zap.Error(cause))
	} else {
		b.log.Warn("publish failed, will retry",
			zap.Uint64("seq", m.Seq),
			zap.String("kind", string(m.Kind)),
			zap.Uint32("retries", retries),
			zap.Error(cause))
	}
	return b.outbox.UpdateState(m.Seq, state, retries)
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

// Close waits for the loop to exit, so cancel its context first.
func (b *Broadcaster) Close() error {
	b.wg.Wait()
	return b.pub.Close()
}
