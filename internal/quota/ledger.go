package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"confession-service/internal/user"
)

var ErrQuotaExhausted = errors.New("no messages left: wait for the weekly reset or redeem a code")

// resetWindowDays is how many whole days must elapse since the last send
// before the weekly allowance is restored.
const resetWindowDays = 7

// Ledger owns the remaining-message counter of each account. It is the single
// source of truth for send eligibility; all mutations go through conditional
// updates in the user repository so concurrent requests cannot observe an
// intermediate state.
type Ledger struct {
	users  user.Repository
	logger *slog.Logger
}

func NewLedger(users user.Repository, logger *slog.Logger) *Ledger {
	return &Ledger{
		users:  users,
		logger: logger,
	}
}

// CanSend reports whether the account may send right now: either quota
// remains, or enough time has elapsed that a weekly reset is due. Eligibility
// from elapsed time alone does not refill the counter - RefreshIfDue does.
func (l *Ledger) CanSend(u *user.User) bool {
	if u.MessagesLeft > 0 {
		return true
	}
	return daysSince(u.LastMessageSent, time.Now()) >= resetWindowDays
}

// RefreshIfDue restores the weekly allowance when the reset window has
// elapsed. Idempotent: a second call within the same window is a no-op.
// The applied allowance is reflected on u.
func (l *Ledger) RefreshIfDue(ctx context.Context, u *user.User) error {
	applied, err := l.users.ResetQuotaIfDue(ctx, u.ID, time.Now())
	if err != nil {
		return err
	}
	if applied {
		u.MessagesLeft = user.WeeklyAllowance
		l.logger.InfoContext(ctx, "weekly quota restored", "user_id", u.ID)
	}
	return nil
}

// Debit consumes one message from the account's quota and stamps the send
// time. This is the only path that decreases the counter. Fails with
// ErrQuotaExhausted when the counter is already zero.
func (l *Ledger) Debit(ctx context.Context, userID int) error {
	debited, err := l.users.DebitQuota(ctx, userID, time.Now())
	if err != nil {
		return err
	}
	if !debited {
		return ErrQuotaExhausted
	}
	return nil
}

// Credit grants additional quota, typically from a redeemed code. No cap.
func (l *Ledger) Credit(ctx context.Context, userID int, amount int) error {
	return l.users.CreditQuota(ctx, userID, amount)
}

// daysSince counts whole days between then and now, truncating: two
// timestamps 23h59m apart count as zero days. A nil timestamp counts as a
// full window elapsed.
func daysSince(then *time.Time, now time.Time) int {
	if then == nil {
		return resetWindowDays
	}
	return int(now.Sub(*then).Hours() / 24)
}
