package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

var ErrUserNotFound = errors.New("user not found")

type Repository interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id int) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetAcceptingMessages(ctx context.Context, id int, accepting bool) error

	// DebitQuota decrements messages_left by one and stamps last_message_sent,
	// but only if the counter is still positive. The condition lives in the
	// UPDATE itself so two concurrent sends can never drive the counter
	// negative. Returns false when the precondition did not hold.
	DebitQuota(ctx context.Context, id int, now time.Time) (bool, error)

	// CreditQuota increases messages_left by amount. No upper bound.
	CreditQuota(ctx context.Context, id int, amount int) error

	// ResetQuotaIfDue restores the weekly allowance iff last_message_sent is
	// absent or at least seven whole days old. Idempotent within the window.
	ResetQuotaIfDue(ctx context.Context, id int, now time.Time) (bool, error)
}

type repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, u *User) (*User, error) {
	_, err := r.db.NewInsert().Model(u).Returning("*").Exec(ctx)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*User, error) {
	u := new(User)
	err := r.db.NewSelect().Model(u).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	u := new(User)
	err := r.db.NewSelect().Model(u).Where("email = ?", email).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	u := new(User)
	err := r.db.NewSelect().Model(u).Where("username = ?", username).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *repository) SetAcceptingMessages(ctx context.Context, id int, accepting bool) error {
	result, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("accepting_messages = ?", accepting).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) DebitQuota(ctx context.Context, id int, now time.Time) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("messages_left = messages_left - 1").
		Set("last_message_sent = ?", now).
		Where("id = ?", id).
		Where("messages_left > 0").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *repository) CreditQuota(ctx context.Context, id int, amount int) error {
	result, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("messages_left = messages_left + ?", amount).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) ResetQuotaIfDue(ctx context.Context, id int, now time.Time) (bool, error) {
	cutoff := now.Add(-7 * 24 * time.Hour)
	result, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("messages_left = ?", WeeklyAllowance).
		Where("id = ?", id).
		Where("last_message_sent IS NULL OR last_message_sent <= ?", cutoff).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}
