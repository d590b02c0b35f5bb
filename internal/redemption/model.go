package redemption

import (
	"time"

	"github.com/uptrace/bun"
)

// Code is a single-use token exchanged for additional quota. Consumed codes
// are kept as audit records, never deleted.
type Code struct {
	bun.BaseModel `bun:"table:redemption_codes,alias:rc"`

	ID        string     `bun:"id,pk" json:"id"`
	Code      string     `bun:"code,unique,notnull" json:"code"`
	Used      bool       `bun:"used,notnull,default:false" json:"used"`
	UsedBy    *int       `bun:"used_by,nullzero" json:"usedBy,omitempty"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UsedAt    *time.Time `bun:"used_at,nullzero" json:"usedAt,omitempty"`
}

// RedeemRequest is the request body for redeeming a code
type RedeemRequest struct {
	Code string `json:"code" validate:"required,len=8"`
}
