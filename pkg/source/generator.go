package source

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethos-works/threadqueue/pkg/types"
)

// DefaultTopic is used when a Generator is given no topics.
const DefaultTopic = "threadqueue/default"

// Generator is an in-process message source. It yields a fixed number of
// messages, rotating through its topics, and then reports io.EOF. It is
// safe for concurrent use; sequence numbers start at 1 and are never reused.
type Generator struct {
	mu       sync.Mutex
	topics   []string
	total    uint64
	next     uint64
	interval time.Duration
}

// NewGenerator returns a Generator yielding n messages across topics.
func NewGenerator(n uint64, topics ...string) *Generator {
	if len(topics) == 0 {
		topics = []string{DefaultTopic}
	}

	return &Generator{
		topics: topics,
		total:  n,
	}
}

// WithInterval paces Receive so consecutive messages are at least d apart
// per caller.
func (g *Generator) WithInterval(d time.Duration) *Generator {
	g.interval = d
	return g
}

// Receive returns the next message, io.EOF once all messages were handed
// out, or ctx.Err() if ctx ends while pacing.
func (g *Generator) Receive(ctx context.Context) (*types.Message, error) {
	if g.interval > 0 {
		t := time.NewTimer(g.interval)
		defer t.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next >= g.total {
		return nil, io.EOF
	}

	g.next++
	topic := g.topics[(g.next-1)%uint64(len(g.topics))]

	return &types.Message{
		Topic:      topic,
		Payload:    []byte(fmt.Sprintf("message %d on %s", g.next, topic)),
		Seq:        g.next,
		ReceivedAt: time.Now(),
	}, nil
}

// Remaining returns how many messages are left to hand out.
func (g *Generator) Remaining() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.total - g.next
}
