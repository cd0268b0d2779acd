package queue

import (
	"container/list"
	"sync"
)

// cond is a condition variable whose waits can be abandoned. Waiters are
// parked on their own channel so a signal can target exactly one of them,
// and a waiter that gives up removes itself without eating a signal meant
// for someone else.
//
// All methods must be called with the owning mutex held.
type cond struct {
	waiters list.List // of chan struct{}
}

// signal wakes the longest waiting goroutine, if any.
func (c *cond) signal() {
	e := c.waiters.Front()
	if e == nil {
		return
	}

	close(c.waiters.Remove(e).(chan struct{}))
}

// broadcast wakes every waiting goroutine.
func (c *cond) broadcast() {
	for e := c.waiters.Front(); e != nil; e = e.Next() {
		close(e.Value.(chan struct{}))
	}

	c.waiters.Init()
}

// wait releases mu until the goroutine is signaled or done is closed, and
// reacquires it before returning. It reports false only when done fired
// before any signal arrived. A nil done waits for a signal forever.
//
// Callers must re-check their predicate after every return.
func (c *cond) wait(mu *sync.Mutex, done <-chan struct{}) bool {
	ch := make(chan struct{})
	e := c.waiters.PushBack(ch)

	mu.Unlock()

	select {
	case <-ch:
		mu.Lock()
		return true

	case <-done:
		mu.Lock()

		// a signal may have raced the expiry while we were unlocked
		select {
		case <-ch:
			return true
		default:
			c.waiters.Remove(e)
			return false
		}
	}
}

func (c *cond) len() int {
	return c.waiters.Len()
}
