package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMemoryBuffer = 128

// MemoryQueue is a Queue backed by a buffered channel. Received messages stay
// in an in-flight set until deleted so callers can observe unacknowledged work.
type MemoryQueue struct {
	ch chan Message

	mu       sync.Mutex
	inflight map[string]string
}

// NewMemoryQueue creates a MemoryQueue holding up to buffer pending messages.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	return &MemoryQueue{
		ch:       make(chan Message, buffer),
		inflight: make(map[string]string),
	}
}

// Send blocks while the buffer is full.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	msg := Message{ID: uuid.NewString(), Body: body, ReceiptHandle: uuid.NewString()}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for at least one message. With waitSeconds > 0 it returns an
// empty batch once the wait elapses, mirroring SQS long polling.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case first := <-q.ch:
		batch := []Message{first}
	drain:
		for len(batch) < maxMessages {
			select {
			case msg := <-q.ch:
				batch = append(batch, msg)
			default:
				break drain
			}
		}
		q.track(batch)
		return batch, nil
	}
}

// Delete acknowledges a received message. Unknown handles are ignored.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	delete(q.inflight, receiptHandle)
	q.mu.Unlock()
	return nil
}

// Pending is the number of messages waiting to be received.
func (q *MemoryQueue) Pending() int {
	return len(q.ch)
}

// InFlight is the number of received messages not yet deleted.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

func (q *MemoryQueue) track(batch []Message) {
	q.mu.Lock()
	for _, m := range batch {
		q.inflight[m.ReceiptHandle] = m.ID
	}
	q.mu.Unlock()
}
