package message

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

type Repository interface {
	CreateMessage(ctx context.Context, m *Message) (*Message, error)
	GetMessageByID(ctx context.Context, id string) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	CreateResponse(ctx context.Context, resp *Response) (*Response, error)

	// MarkAnswered links a response to its message, but only if the message
	// is still unanswered. The first-reply-wins invariant is enforced by the
	// has_response precondition inside the UPDATE. Returns false when another
	// reply already won.
	MarkAnswered(ctx context.Context, messageID, responseID string) (bool, error)
}

type repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateMessage(ctx context.Context, m *Message) (*Message, error) {
	_, err := r.db.NewInsert().Model(m).Returning("*").Exec(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repository) GetMessageByID(ctx context.Context, id string) (*Message, error) {
	m := new(Message)
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *repository) DeleteMessage(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().
		Model((*Message)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *repository) CreateResponse(ctx context.Context, resp *Response) (*Response, error) {
	_, err := r.db.NewInsert().Model(resp).Returning("*").Exec(ctx)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *repository) MarkAnswered(ctx context.Context, messageID, responseID string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*Message)(nil)).
		Set("has_response = true").
		Set("response_id = ?", responseID).
		Where("id = ?", messageID).
		Where("has_response = false").
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
