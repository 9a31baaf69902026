package store

import (
	"context"
	"time"
)

// DedupRecord is an inbound provider message that has been seen.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	CustomerID  string     `json:"customer_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards against providers redelivering the same inbound message.
type DedupRepo interface {
	// RecordInbound records a provider message ID. It returns false when the
	// ID was already recorded, meaning the message is a redelivery.
	RecordInbound(ctx context.Context, messageID, customerID string) (bool, error)

	// MarkProcessed stamps the time the message finished processing.
	MarkProcessed(ctx context.Context, messageID string) error
}
