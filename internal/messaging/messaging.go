// Package messaging delivers outbound text messages to customers.
package messaging

import (
	"context"
	"errors"
)

// MaxSMSLength is the longest body Twilio accepts for a single message.
const MaxSMSLength = 1600

const truncatedSuffix = "..."

var (
	// ErrEmptyRecipient is returned when a message has no destination.
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	// ErrEmptyBody is returned when a message has nothing to say.
	ErrEmptyBody = errors.New("message body cannot be empty")
)

// Sender sends a single text message to a customer address.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// SenderFunc adapts a plain function to the Sender interface.
type SenderFunc func(ctx context.Context, to string, body string) error

func (f SenderFunc) SendMessage(ctx context.Context, to string, body string) error {
	return f(ctx, to, body)
}

// Truncate shortens body to fit in one message, ending it with "..." when cut.
func Truncate(body string) string {
	r := []rune(body)
	if len(r) <= MaxSMSLength {
		return body
	}
	return string(r[:MaxSMSLength-len(truncatedSuffix)]) + truncatedSuffix
}
