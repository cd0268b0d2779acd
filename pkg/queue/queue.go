// Package queue provides a bounded, closable, blocking FIFO queue for handing
// items between goroutines.
package queue

import (
	"context"
	"errors"
	"math"
	"time"
)

// MaxCapacity is the capacity of a queue created without a bound. It is
// effectively unbounded; the queue never blocks producers in that mode.
const MaxCapacity = math.MaxInt

// Sentinel errors that can be returned by the queue.
var (
	// ErrQueueClosed is returned by a blocking enqueue once the queue is
	// closed, and by a blocking dequeue once the queue is closed and drained.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrInvalidArgument is returned when a dequeue is given a nil destination.
	ErrInvalidArgument = errors.New("invalid argument: nil destination")
)

// Producer defines the enqueue side of a queue.
type Producer[T any] interface {
	// Put adds an item, blocking while the queue is full. It returns
	// ErrQueueClosed, without enqueuing, if the queue is or becomes closed.
	Put(T) error
	// PutContext is Put bounded by ctx.
	PutContext(context.Context, T) error
	// TryPut adds an item only if there is room and the queue is open.
	TryPut(T) bool
	// TryPutFor waits up to the given duration for room.
	TryPutFor(T, time.Duration) bool
	// TryPutUntil waits up to the given deadline for room.
	TryPutUntil(T, time.Time) bool
}

// Consumer defines the dequeue side of a queue.
type Consumer[T any] interface {
	// Get removes the front item, blocking while the queue is empty. It
	// returns ErrQueueClosed once the queue is closed and drained.
	Get() (T, error)
	// GetContext is Get bounded by ctx.
	GetContext(context.Context) (T, error)
	// GetInto is Get writing the item into dst.
	GetInto(dst *T) error
	// TryGet removes the front item if there is one.
	TryGet() (T, bool)
	// TryGetInto is TryGet writing the item into dst.
	TryGetInto(dst *T) (bool, error)
	// TryGetFor waits up to the given duration for an item.
	TryGetFor(time.Duration) (T, bool)
	// TryGetUntil waits up to the given deadline for an item.
	TryGetUntil(time.Time) (T, bool)
}

// Queue defines a bounded, closable FIFO queue that hands items of type T
// between goroutines.
type Queue[T any] interface {
	Producer[T]
	Consumer[T]

	// Size returns the number of items in the queue.
	Size() int
	// IsEmpty reports whether the queue holds no items.
	IsEmpty() bool
	// Capacity returns the maximum number of items before producers block.
	Capacity() int
	// SetCapacity changes the bound. Items above a reduced bound are kept.
	SetCapacity(int)
	// Close stops the queue from accepting items. Queued items can still be
	// retrieved until the queue is drained.
	Close()
	// IsClosed reports whether Close was called.
	IsClosed() bool
	// IsDone reports whether the queue is closed and empty.
	IsDone() bool
	// Clear discards all queued items.
	Clear()
}
