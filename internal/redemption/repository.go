package redemption

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

type Repository interface {
	Create(ctx context.Context, code *Code) (*Code, error)
	GetByCode(ctx context.Context, code string) (*Code, error)

	// Consume flips used from false to true, recording who and when. The
	// was-unused precondition is part of the UPDATE statement itself, so of
	// any number of concurrent consumers exactly one observes true.
	Consume(ctx context.Context, code string, userID int, now time.Time) (bool, error)
}

type repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, code *Code) (*Code, error) {
	_, err := r.db.NewInsert().Model(code).Returning("*").Exec(ctx)
	if err != nil {
		return nil, err
	}
	return code, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Code, error) {
	c := new(Code)
	err := r.db.NewSelect().Model(c).Where("code = ?", code).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *repository) Consume(ctx context.Context, code string, userID int, now time.Time) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*Code)(nil)).
		Set("used = true").
		Set("used_by = ?", userID).
		Set("used_at = ?", now).
		Where("code = ?", code).
		Where("used = false").
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
