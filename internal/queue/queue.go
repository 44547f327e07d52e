package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wolfman30/payment-sms-relay/internal/sms"
)

// Message is one queued inbound SMS as returned by Receive.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Queue carries encoded inbound messages from ingestion sources to the relay
// workers. Messages are deleted after a single handling attempt.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Publisher encodes inbound messages onto a Queue.
type Publisher struct {
	queue Queue
}

func NewPublisher(q Queue) *Publisher {
	if q == nil {
		panic("queue: queue cannot be nil")
	}
	return &Publisher{queue: q}
}

// Publish enqueues msg as JSON.
func (p *Publisher) Publish(ctx context.Context, msg sms.InboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: encode message: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}

// Decode parses a queued body back into an InboundMessage.
func Decode(m Message) (sms.InboundMessage, error) {
	var msg sms.InboundMessage
	if err := json.Unmarshal([]byte(m.Body), &msg); err != nil {
		return sms.InboundMessage{}, fmt.Errorf("queue: decode message %s: %w", m.ID, err)
	}
	return msg, nil
}
