package user

import (
	"time"

	"github.com/uptrace/bun"
)

// WeeklyAllowance is the baseline quota every account starts with and
// returns to on a weekly reset.
const WeeklyAllowance = 3

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                int        `bun:"id,pk,autoincrement" json:"id"`
	Username          string     `bun:"username,unique,notnull" json:"username" validate:"required"`
	Email             string     `bun:"email,unique,notnull" json:"email" validate:"required,email"`
	Password          string     `bun:"password,notnull" json:"-"` // Never expose password in JSON
	AcceptingMessages bool       `bun:"accepting_messages,notnull,default:true" json:"acceptingMessages"`
	MessagesLeft      int        `bun:"messages_left,notnull,default:3" json:"messagesLeft"`
	LastMessageSent   *time.Time `bun:"last_message_sent,nullzero" json:"lastMessageSent,omitempty"`
	CreatedAt         time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}
