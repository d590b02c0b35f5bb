package message

import (
	"time"

	"github.com/uptrace/bun"
)

// Content bounds per sending surface.
const (
	MaxContentLengthEmail = 1000
	MaxContentLengthLink  = 300
)

// Message is an anonymous message. The sender's identity is never exposed to
// the recipient; only the account that consumed quota and the contact used
// for reply notifications are stored. Immutable after creation except for the
// response linkage.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID                string    `bun:"id,pk" json:"id"`
	UserID            int       `bun:"user_id,notnull" json:"-"`
	SenderContact     string    `bun:"sender_contact,notnull" json:"-"`
	RecipientEmail    string    `bun:"recipient_email" json:"-"`
	RecipientUsername string    `bun:"recipient_username" json:"-"`
	Subject           string    `bun:"subject,notnull" json:"subject"`
	Content           string    `bun:"content,notnull" json:"content"`
	Template          string    `bun:"template,notnull" json:"template"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	HasResponse       bool      `bun:"has_response,notnull,default:false" json:"hasResponse"`
	ResponseID        *string   `bun:"response_id,nullzero" json:"responseId,omitempty"`
}

// Response is the single anonymous reply a message may receive.
type Response struct {
	bun.BaseModel `bun:"table:responses,alias:resp"`

	ID        string    `bun:"id,pk" json:"id"`
	MessageID string    `bun:"message_id,unique,notnull" json:"messageId"`
	Contact   string    `bun:"contact" json:"-"`
	Content   string    `bun:"content,notnull" json:"content"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// SendMessageRequest is the request body for sending a message. Exactly one
// of recipientEmail / recipientUsername must be set.
type SendMessageRequest struct {
	RecipientEmail    string `json:"recipientEmail" validate:"omitempty,email"`
	RecipientUsername string `json:"recipientUsername"`
	Subject           string `json:"subject" validate:"required,max=200"`
	Content           string `json:"content" validate:"required"`
	Template          string `json:"template" validate:"required"`
}

// RespondRequest is the request body for the one-time reply link.
type RespondRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Contact   string `json:"contact" validate:"omitempty,email"`
	Content   string `json:"content" validate:"required,max=1000"`
}
