package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const DedupPolicyDrop = "drop"

// MemoryQueue is an in-process go-job queue for a single ingest node. Messages
// with an idempotency key are dropped while an earlier copy is still pending,
// so a slow task never piles up behind its own ticks.
type MemoryQueue struct {
	mu          sync.Mutex
	ready       chan *memoryEntry
	pending     map[string]struct{}
	deadLetters []*job.ExecutionMessage
	closed      bool
}

type memoryEntry struct {
	msg     *job.ExecutionMessage
	attempt int
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &MemoryQueue{
		ready:   make(chan *memoryEntry, capacity),
		pending: map[string]struct{}{},
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key := strings.TrimSpace(msg.IdempotencyKey)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("gojob: queue is closed")
	}
	if key != "" {
		if _, exists := q.pending[key]; exists && msg.DedupPolicy == job.DeduplicationPolicy(DedupPolicyDrop) {
			return nil
		}
	}
	select {
	case q.ready <- &memoryEntry{msg: msg}:
	default:
		return fmt.Errorf("gojob: queue is full")
	}
	if key != "" {
		q.pending[key] = struct{}{}
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case entry, ok := <-q.ready:
		if !ok {
			return nil, fmt.Errorf("gojob: queue is closed")
		}
		entry.attempt++
		return &memoryDelivery{queue: q, entry: entry}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports messages waiting to be dequeued.
func (q *MemoryQueue) Len() int {
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetters...)
}

func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}

func (q *MemoryQueue) release(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

func (q *MemoryQueue) requeue(entry *memoryEntry, delay time.Duration) {
	push := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		select {
		case q.ready <- entry:
		default:
			q.deadLetters = append(q.deadLetters, entry.msg)
			delete(q.pending, strings.TrimSpace(entry.msg.IdempotencyKey))
		}
	}
	if delay <= 0 {
		push()
		return
	}
	time.AfterFunc(delay, push)
}

type memoryDelivery struct {
	queue *MemoryQueue
	entry *memoryEntry
	once  sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.entry.msg
}

func (d *memoryDelivery) Attempt() int {
	return d.entry.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.once.Do(func() {
		d.queue.release(strings.TrimSpace(d.entry.msg.IdempotencyKey))
	})
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.once.Do(func() {
		if opts.DeadLetter || !opts.Requeue {
			d.queue.mu.Lock()
			d.queue.deadLetters = append(d.queue.deadLetters, d.entry.msg)
			d.queue.mu.Unlock()
			d.queue.release(strings.TrimSpace(d.entry.msg.IdempotencyKey))
			return
		}
		d.queue.requeue(d.entry, opts.Delay)
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
