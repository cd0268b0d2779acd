package queue

import (
	"container/list"
	"context"
	"sync"
	"time"
)

var _ Queue[int] = (*MemQueue[int])(nil)

// MemQueue is an in-memory thread-safe implementation of the Queue interface
// using FIFO order.
//
// Producers block while the queue holds Capacity items and consumers block
// while it is empty. Once closed, the queue rejects new items but keeps
// handing out the ones it holds until it is drained, at which point it is
// done for good.
//
// Dequeued items are unlinked from the queue, so it never retains a
// reference to an item it has handed out.
type MemQueue[T any] struct {
	mu        sync.Mutex
	notEmpty  cond
	notFull   cond
	capacity  int
	closed    bool
	container *list.List
}

// NewMemQueue returns an unbounded queue.
func NewMemQueue[T any]() *MemQueue[T] {
	return NewBoundedMemQueue[T](MaxCapacity)
}

// NewBoundedMemQueue returns a queue holding at most capacity items. A
// capacity below one is raised to one.
func NewBoundedMemQueue[T any](capacity int) *MemQueue[T] {
	return &MemQueue[T]{
		capacity:  max(capacity, 1),
		container: list.New(),
	}
}

func (m *MemQueue[T]) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.container.Len()
}

func (m *MemQueue[T]) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.container.Len() == 0
}

func (m *MemQueue[T]) Capacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.capacity
}

// SetCapacity sets the bound to n, or one if n is smaller. Shrinking below
// the current size evicts nothing; producers stay blocked until consumers
// bring the size back under the bound.
func (m *MemQueue[T]) SetCapacity(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.capacity = max(n, 1)
	if m.capacity > m.container.Len() {
		m.notFull.broadcast()
	}
}

// Close closes the queue and wakes every blocked producer and consumer.
// Closing an already closed queue has no effect.
func (m *MemQueue[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.notFull.broadcast()
	m.notEmpty.broadcast()
}

func (m *MemQueue[T]) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func (m *MemQueue[T]) IsDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.isDone()
}

// Clear discards every queued item without closing the queue.
func (m *MemQueue[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.container.Init()
	m.notFull.broadcast()
}

func (m *MemQueue[T]) Put(x T) error {
	return m.PutContext(context.Background(), x)
}

func (m *MemQueue[T]) PutContext(ctx context.Context, x T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.waitNotFull(ctx.Done()) {
		return ctx.Err()
	}

	if m.closed {
		return ErrQueueClosed
	}

	m.push(x)
	return nil
}

func (m *MemQueue[T]) TryPut(x T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.container.Len() >= m.capacity {
		return false
	}

	m.push(x)
	return true
}

func (m *MemQueue[T]) TryPutFor(x T, d time.Duration) bool {
	return m.TryPutUntil(x, time.Now().Add(d))
}

// TryPutUntil returns false, leaving the queue untouched, if the deadline
// passes or the queue closes before there is room for x.
func (m *MemQueue[T]) TryPutUntil(x T, deadline time.Time) bool {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	return m.PutContext(ctx, x) == nil
}

func (m *MemQueue[T]) Get() (T, error) {
	return m.GetContext(context.Background())
}

func (m *MemQueue[T]) GetContext(ctx context.Context) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result T

	if !m.waitNotEmpty(ctx.Done()) {
		return result, ctx.Err()
	}

	// the wait only ends on an empty queue once it is closed
	if m.container.Len() == 0 {
		return result, ErrQueueClosed
	}

	return m.pop(), nil
}

func (m *MemQueue[T]) GetInto(dst *T) error {
	if dst == nil {
		return ErrInvalidArgument
	}

	x, err := m.Get()
	if err != nil {
		return err
	}

	*dst = x
	return nil
}

func (m *MemQueue[T]) TryGet() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result T

	if m.container.Len() == 0 {
		return result, false
	}

	return m.pop(), true
}

func (m *MemQueue[T]) TryGetInto(dst *T) (bool, error) {
	if dst == nil {
		return false, ErrInvalidArgument
	}

	x, ok := m.TryGet()
	if ok {
		*dst = x
	}

	return ok, nil
}

func (m *MemQueue[T]) TryGetFor(d time.Duration) (T, bool) {
	return m.TryGetUntil(time.Now().Add(d))
}

// TryGetUntil returns false if the deadline passes with the queue still
// empty, or if the queue is closed and drained.
func (m *MemQueue[T]) TryGetUntil(deadline time.Time) (T, bool) {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	x, err := m.GetContext(ctx)
	return x, err == nil
}

// waitNotFull blocks until there is room or the queue is closed. It returns
// false if done fired first.
func (m *MemQueue[T]) waitNotFull(done <-chan struct{}) bool {
	for m.container.Len() >= m.capacity && !m.closed {
		if !m.notFull.wait(&m.mu, done) {
			return false
		}
	}

	return true
}

// waitNotEmpty blocks until there is an item or the queue is closed. It
// returns false if done fired first.
func (m *MemQueue[T]) waitNotEmpty(done <-chan struct{}) bool {
	for m.container.Len() == 0 && !m.closed {
		if !m.notEmpty.wait(&m.mu, done) {
			return false
		}
	}

	return true
}

func (m *MemQueue[T]) push(x T) {
	m.container.PushBack(x)
	m.notEmpty.signal()
}

func (m *MemQueue[T]) pop() T {
	x := m.container.Remove(m.container.Front()).(T)
	m.notFull.signal()
	return x
}

func (m *MemQueue[T]) isDone() bool {
	return m.closed && m.container.Len() == 0
}
