package executor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ethos-works/threadqueue/pkg/db"
	"github.com/ethos-works/threadqueue/pkg/queue"
	"github.com/ethos-works/threadqueue/pkg/types"
)

// DefaultQueueSize defines the size of the message queue, which when full,
// will block.
const DefaultQueueSize = 1024

// ErrDeliveryNotFound is returned by GetDelivery for an unknown sequence.
var ErrDeliveryNotFound = errors.New("delivery not found")

// Handler consumes a single message.
type Handler interface {
	Handle(ctx context.Context, msg *types.Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *types.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *types.Message) error {
	return f(ctx, msg)
}

// Stats summarizes the deliveries an executor has made.
type Stats struct {
	Done   uint64
	Failed uint64
}

// Executor defines the message executor. It is responsible for enqueuing,
// recording and handing messages to the handler. The caller must ensure to
// start the executor, which will consume submitted messages from the queue
// until the queue is done or the context is canceled.
type Executor struct {
	logger  zerolog.Logger
	db      db.DB
	queue   queue.Queue[*types.Message]
	handler Handler

	done   atomic.Uint64
	failed atomic.Uint64
}

func New(logger zerolog.Logger, db db.DB, q queue.Queue[*types.Message], handler Handler) (*Executor, error) {
	if db == nil {
		return nil, errors.New("executor requires a db")
	}

	if q == nil {
		return nil, errors.New("executor requires a queue")
	}

	if handler == nil {
		return nil, errors.New("executor requires a handler")
	}

	return &Executor{
		logger:  logger,
		db:      db,
		queue:   q,
		handler: handler,
	}, nil
}

// SubmitMessage records msg as pending and enqueues it, blocking while the
// queue is full or until ctx is done. If the message cannot be enqueued, its
// delivery is recorded as failed and the returned error wraps the cause
// (queue.ErrQueueClosed or the context error).
func (e *Executor) SubmitMessage(ctx context.Context, msg *types.Message) error {
	delivery := &types.Delivery{
		Seq:       msg.Seq,
		Topic:     msg.Topic,
		Status:    types.DeliveryStatus_PENDING,
		UpdatedAt: time.Now(),
	}

	if err := e.SaveDelivery(delivery); err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}

	if err := e.queue.PutContext(ctx, msg); err != nil {
		delivery.Status = types.DeliveryStatus_FAILED
		delivery.Error = err.Error()
		delivery.UpdatedAt = time.Now()

		if err := e.SaveDelivery(delivery); err != nil {
			e.logger.Error().Err(err).Uint64("seq", msg.Seq).Msg("failed to save delivery")
		}

		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	return nil
}

// Start runs numWorkers workers and blocks until all of them have exited.
// Workers exit once the queue is done or ctx is canceled.
func (e *Executor) Start(ctx context.Context, numWorkers int) {
	wg := new(sync.WaitGroup)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.startWorker(ctx, id)
		}(i)
	}

	wg.Wait()
}

func (e *Executor) startWorker(ctx context.Context, id int) {
	logger := e.logger.With().Int("worker", id).Logger()
	logger.Info().Msg("starting worker...")

	for {
		msg, err := e.queue.GetContext(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				logger.Info().Msg("queue drained; stopping worker...")
			} else {
				logger.Info().Msg("stopping worker...")
			}

			return
		}

		logger.Debug().Str("topic", msg.Topic).Uint64("seq", msg.Seq).Msg("handling message...")

		delivery := &types.Delivery{
			Seq:    msg.Seq,
			Topic:  msg.Topic,
			Status: types.DeliveryStatus_DONE,
			Worker: id,
		}

		if err := e.handler.Handle(ctx, msg); err != nil {
			logger.Error().Err(err).Str("topic", msg.Topic).Uint64("seq", msg.Seq).Msg("failed to handle message")

			delivery.Status = types.DeliveryStatus_FAILED
			delivery.Error = err.Error()
			e.failed.Add(1)
		} else {
			e.done.Add(1)
		}

		delivery.UpdatedAt = time.Now()
		if err := e.SaveDelivery(delivery); err != nil {
			logger.Error().Err(err).Uint64("seq", msg.Seq).Msg("failed to save delivery")
		}
	}
}

// Stats returns the number of messages handled so far.
func (e *Executor) Stats() Stats {
	return Stats{
		Done:   e.done.Load(),
		Failed: e.failed.Load(),
	}
}

func (e *Executor) SaveDelivery(d *types.Delivery) error {
	bz, err := types.MarshalDelivery(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	return e.db.Set(seqKey(d.Seq), bz)
}

// GetDelivery returns the delivery recorded in store for seq.
func GetDelivery(store db.DB, seq uint64) (*types.Delivery, error) {
	bz, err := store.Get(seqKey(seq))
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	if bz == nil {
		return nil, ErrDeliveryNotFound
	}

	return types.UnmarshalDelivery(bz)
}

// Deliveries returns every delivery recorded in store in sequence order.
func Deliveries(store db.DB) ([]*types.Delivery, error) {
	var (
		result []*types.Delivery
		decErr error
	)

	err := store.Iterate(func(_, val []byte) bool {
		d, err := types.UnmarshalDelivery(val)
		if err != nil {
			decErr = err
			return false
		}

		result = append(result, d)
		return true
	})
	if err != nil {
		return nil, err
	}

	if decErr != nil {
		return nil, decErr
	}

	return result, nil
}

func seqKey(seq uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, seq)
	return bz
}
