package sms

import "time"

// InboundMessage is a single text message as received by the device.
// Values are produced once by an ingestion source and never modified.
type InboundMessage struct {
	Sender          string `json:"sender"`
	Body            string `json:"body"`
	TimestampMillis int64  `json:"timestamp"`
}

// NewInboundMessage builds a message stamped with receivedAt in epoch millis.
func NewInboundMessage(sender, body string, receivedAt time.Time) InboundMessage {
	return InboundMessage{
		Sender:          sender,
		Body:            body,
		TimestampMillis: receivedAt.UnixMilli(),
	}
}

// ReceivedAt returns the message timestamp as a time.Time in UTC.
func (m InboundMessage) ReceivedAt() time.Time {
	return time.UnixMilli(m.TimestampMillis).UTC()
}
