package events

import (
	"context"
	"time"
)

// Event types published by the send and redemption flows.
const (
	TypeMessageSent     = "message.sent"
	TypeMessageAnswered = "message.answered"
	TypeCodeRedeemed    = "code.redeemed"
)

// Event is the envelope published to the broker.
type Event struct {
	Type       string    `json:"type"`
	MessageID  string    `json:"messageId,omitempty"`
	UserID     int       `json:"userId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Producer publishes domain events. Publishing is fire-and-forget from the
// caller's point of view; a nil Producer is a valid "broker unavailable"
// degraded mode handled at the call site.
type Producer interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
