package relayer

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ethos-works/threadqueue/pkg/queue"
	"github.com/ethos-works/threadqueue/pkg/types"
)

// Source yields the messages to relay. Receive returns io.EOF once the
// source is exhausted.
type Source interface {
	Receive(ctx context.Context) (*types.Message, error)
}

// Sink accepts relayed messages. SubmitMessage blocks while the sink has no
// room and returns an error wrapping queue.ErrQueueClosed once it no longer
// accepts messages.
type Sink interface {
	SubmitMessage(ctx context.Context, msg *types.Message) error
}

// QueueSink returns a Sink that puts messages straight into q.
func QueueSink(q queue.Producer[*types.Message]) Sink {
	return queueSink{q}
}

type queueSink struct {
	producer queue.Producer[*types.Message]
}

func (s queueSink) SubmitMessage(ctx context.Context, msg *types.Message) error {
	return s.producer.PutContext(ctx, msg)
}

// Config holds settings for running the Coordinator
type Config struct {
	// WorkerPoolCount specifies the number of producers receiving from the source concurrently
	WorkerPoolCount int
	// PutTimeout bounds how long a producer waits for room in the queue before
	// dropping a message. Zero waits until there is room or the queue closes.
	PutTimeout time.Duration
}

// Stats counts what a Coordinator did with received messages.
type Stats struct {
	Relayed uint64
	Dropped uint64
}

// Coordinator moves messages from a source into the queue.
type Coordinator interface {
	// Start runs the producers and blocks until the source is exhausted, the
	// queue is closed, Stop is called or a fatal source error occurs. Only
	// the fatal error is returned.
	Start(ctx context.Context) error
	// Stop asks a running Start to return.
	Stop()
	// Stats returns the relay counters.
	Stats() Stats
}

var _ Coordinator = (*coordinator)(nil)

type coordinator struct {
	config *Config
	logger zerolog.Logger
	sink   Sink
	source Source

	mu     sync.Mutex
	cancel context.CancelFunc

	relayed atomic.Uint64
	dropped atomic.Uint64
}

// NewCoordinator returns a Coordinator relaying source into sink.
func NewCoordinator(c *Config, logger zerolog.Logger, sink Sink, source Source) Coordinator {
	return &coordinator{
		config: c,
		logger: logger,
		sink:   sink,
		source: source,
	}
}

func (c *coordinator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < max(c.config.WorkerPoolCount, 1); i++ {
		id := i
		g.Go(func() error {
			return c.produce(ctx, id)
		})
	}

	return g.Wait()
}

func (c *coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
}

func (c *coordinator) Stats() Stats {
	return Stats{
		Relayed: c.relayed.Load(),
		Dropped: c.dropped.Load(),
	}
}

func (c *coordinator) produce(ctx context.Context, id int) error {
	logger := c.logger.With().Int("producer", id).Logger()
	logger.Info().Msg("starting producer...")

	for {
		msg, err := c.source.Receive(ctx)
		switch {
		case err == nil:

		case errors.Is(err, io.EOF):
			logger.Info().Msg("source exhausted; stopping producer...")
			return nil

		case ctx.Err() != nil:
			logger.Info().Msg("stopping producer...")
			return nil

		case IsFatal(err):
			logger.Error().Err(err).Msg("fatal source failure")
			return err

		default:
			logger.Warn().Err(err).Msg("failed to receive message")
			continue
		}

		if err := c.relay(ctx, msg); err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				logger.Info().Uint64("seq", msg.Seq).Msg("queue closed; stopping producer...")
			} else {
				logger.Info().Msg("stopping producer...")
			}

			return nil
		}
	}
}

// relay enqueues msg. A message that finds no room within the put timeout is
// dropped and counted; that is not an error.
func (c *coordinator) relay(ctx context.Context, msg *types.Message) error {
	if c.config.PutTimeout <= 0 {
		if err := c.sink.SubmitMessage(ctx, msg); err != nil {
			return err
		}

		c.relayed.Add(1)
		return nil
	}

	putCtx, cancel := context.WithTimeout(ctx, c.config.PutTimeout)
	defer cancel()

	err := c.sink.SubmitMessage(putCtx, msg)
	switch {
	case err == nil:
		c.relayed.Add(1)
		return nil

	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		c.dropped.Add(1)
		c.logger.Warn().
			Str("topic", msg.Topic).
			Uint64("seq", msg.Seq).
			Dur("put_timeout", c.config.PutTimeout).
			Msg("queue full; dropping message")
		return nil

	default:
		return err
	}
}
