package redemption

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"confession-service/internal/events"
	"confession-service/internal/quota"

	"github.com/google/uuid"
)

var (
	ErrCodeNotFound    = errors.New("redemption code not found")
	ErrCodeAlreadyUsed = errors.New("redemption code has already been used")
)

const (
	// PackCredit is how many messages a redeemed code grants.
	PackCredit = 5

	codeLength   = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Vault issues single-use redemption codes and consumes them atomically.
type Vault struct {
	repo     Repository
	ledger   *quota.Ledger
	producer events.Producer
	logger   *slog.Logger
}

func NewVault(repo Repository, ledger *quota.Ledger, producer events.Producer, logger *slog.Logger) *Vault {
	return &Vault{
		repo:     repo,
		ledger:   ledger,
		producer: producer,
		logger:   logger,
	}
}

// Issue mints a fresh unused code. Uniqueness is backed by the unique index
// on the code column; at expected volumes a random collision is negligible
// and would surface as an insert error.
func (v *Vault) Issue(ctx context.Context) (*Code, error) {
	token, err := generateCode()
	if err != nil {
		return nil, err
	}

	code := &Code{
		ID:        uuid.NewString(),
		Code:      token,
		Used:      false,
		CreatedAt: time.Now(),
	}

	created, err := v.repo.Create(ctx, code)
	if err != nil {
		return nil, err
	}

	v.logger.InfoContext(ctx, "redemption code issued", "code_id", created.ID)
	return created, nil
}

// Redeem validates and consumes a code on behalf of userID, then applies the
// pack credit through the quota ledger. The check-and-mark step is a single
// conditional update: two concurrent redemptions of the same code cannot both
// succeed.
func (v *Vault) Redeem(ctx context.Context, code string, userID int) (int, error) {
	if _, err := v.repo.GetByCode(ctx, code); err != nil {
		return 0, err
	}

	consumed, err := v.repo.Consume(ctx, code, userID, time.Now())
	if err != nil {
		return 0, err
	}
	if !consumed {
		return 0, ErrCodeAlreadyUsed
	}

	if err := v.ledger.Credit(ctx, userID, PackCredit); err != nil {
		// The code is burned but the credit failed to apply. Surface the
		// storage error; the audit record identifies the affected user.
		v.logger.ErrorContext(ctx, "code consumed but credit failed", "user_id", userID, "error", err)
		return 0, err
	}

	v.logger.InfoContext(ctx, "redemption code consumed", "user_id", userID, "credit", PackCredit)

	go v.publishRedeemed(context.WithoutCancel(ctx), userID)

	return PackCredit, nil
}

func (v *Vault) publishRedeemed(ctx context.Context, userID int) {
	if v.producer == nil {
		return
	}
	event := events.Event{
		Type:       events.TypeCodeRedeemed,
		UserID:     userID,
		OccurredAt: time.Now(),
	}
	if err := v.producer.Publish(ctx, event); err != nil {
		v.logger.ErrorContext(ctx, "failed to publish event", "type", event.Type, "error", err)
	}
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
