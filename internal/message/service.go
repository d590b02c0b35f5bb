package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"confession-service/internal/events"
	"confession-service/internal/mailer"
	"confession-service/internal/moderation"
	"confession-service/internal/quota"
	"confession-service/internal/user"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrContentRejected       = errors.New("the message was judged inappropriate and was not sent")
	ErrRecipientNotFound     = errors.New("recipient not found")
	ErrRecipientNotAccepting = errors.New("this recipient is not accepting messages at the moment")
	ErrMessageNotFound       = errors.New("message not found")
	ErrAlreadyAnswered       = errors.New("this message has already received a reply")
)

// Service is the send pipeline: moderation gate, quota check, persistence,
// debit, then best-effort notification. Ordering is strict; nothing is
// persisted and no quota is touched before the gate and the quota check pass.
type Service struct {
	repo     Repository
	users    user.Repository
	ledger   *quota.Ledger
	gate     *moderation.Gate
	mailer   mailer.Mailer
	producer events.Producer
	baseURL  string
	logger   *slog.Logger
}

func NewService(
	repo Repository,
	users user.Repository,
	ledger *quota.Ledger,
	gate *moderation.Gate,
	m mailer.Mailer,
	producer events.Producer,
	baseURL string,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		ledger:   ledger,
		gate:     gate,
		mailer:   m,
		producer: producer,
		baseURL:  baseURL,
		logger:   logger,
	}
}

// Send runs one send attempt for the given account.
func (s *Service) Send(ctx context.Context, senderID int, req SendMessageRequest) (*Message, error) {
	if err := validateSendRequest(req); err != nil {
		return nil, err
	}

	// Moderate before anything is persisted or quota is touched.
	if !s.gate.Check(ctx, req.Content) {
		return nil, ErrContentRejected
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	// Restore the weekly allowance first so time-based eligibility turns
	// into actual quota before the check.
	if err := s.ledger.RefreshIfDue(ctx, sender); err != nil {
		return nil, err
	}
	if !s.ledger.CanSend(sender) {
		return nil, quota.ErrQuotaExhausted
	}

	recipientEmail := req.RecipientEmail
	if req.RecipientUsername != "" {
		recipient, err := s.users.GetByUsername(ctx, req.RecipientUsername)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				return nil, ErrRecipientNotFound
			}
			return nil, err
		}
		if !recipient.AcceptingMessages {
			return nil, ErrRecipientNotAccepting
		}
		recipientEmail = recipient.Email
	}

	msg := &Message{
		ID:                uuid.NewString(),
		UserID:            sender.ID,
		SenderContact:     sender.Email,
		RecipientEmail:    recipientEmail,
		RecipientUsername: req.RecipientUsername,
		Subject:           req.Subject,
		Content:           req.Content,
		Template:          req.Template,
		CreatedAt:         time.Now(),
		HasResponse:       false,
	}

	created, err := s.repo.CreateMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	// A concurrent send may have consumed the last message between the check
	// and here; the debit's own precondition is authoritative. Undo the
	// persisted message when we lose that race.
	if err := s.ledger.Debit(ctx, sender.ID); err != nil {
		if errors.Is(err, quota.ErrQuotaExhausted) {
			if delErr := s.repo.DeleteMessage(ctx, created.ID); delErr != nil {
				s.logger.ErrorContext(ctx, "failed to remove message after lost debit race", "message_id", created.ID, "error", delErr)
			}
		}
		return nil, err
	}

	// Delivery is best-effort: the send already succeeded.
	go s.notifyRecipient(context.WithoutCancel(ctx), created)

	return created, nil
}

// GetMessage fetches a message for the one-time reply page.
func (s *Service) GetMessage(ctx context.Context, id string) (*Message, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.GetMessageByID(ctx, id)
}

// Respond records the single anonymous reply a message may receive. The
// answered-marking is conditional; a second reply attempt fails with
// ErrAlreadyAnswered and leaves the first response untouched.
func (s *Service) Respond(ctx context.Context, req RespondRequest) (*Response, error) {
	msg, err := s.repo.GetMessageByID(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.HasResponse {
		return nil, ErrAlreadyAnswered
	}

	responseID := uuid.NewString()

	answered, err := s.repo.MarkAnswered(ctx, msg.ID, responseID)
	if err != nil {
		return nil, err
	}
	if !answered {
		return nil, ErrAlreadyAnswered
	}

	resp := &Response{
		ID:        responseID,
		MessageID: msg.ID,
		Contact:   req.Contact,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}

	created, err := s.repo.CreateResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	go s.notifySender(context.WithoutCancel(ctx), msg, created)

	return created, nil
}

func (s *Service) notifyRecipient(ctx context.Context, msg *Message) {
	if s.mailer != nil && msg.RecipientEmail != "" {
		replyLink := fmt.Sprintf("%s/respond/%s", s.baseURL, msg.ID)
		subject, html, text := mailer.MessageReceived(msg.Subject, msg.Content, replyLink)
		if err := s.mailer.Send(ctx, msg.RecipientEmail, subject, html, text); err != nil {
			s.logger.ErrorContext(ctx, "failed to send message notification", "message_id", msg.ID, "error", err)
		}
	}

	s.publish(ctx, events.Event{
		Type:       events.TypeMessageSent,
		MessageID:  msg.ID,
		UserID:     msg.UserID,
		OccurredAt: time.Now(),
	})
}

func (s *Service) notifySender(ctx context.Context, msg *Message, resp *Response) {
	if s.mailer != nil && msg.SenderContact != "" {
		subject, html, text := mailer.ResponseReceived(msg.Subject, resp.Content)
		if err := s.mailer.Send(ctx, msg.SenderContact, subject, html, text); err != nil {
			s.logger.ErrorContext(ctx, "failed to send reply notification", "message_id", msg.ID, "error", err)
		}
	}

	s.publish(ctx, events.Event{
		Type:       events.TypeMessageAnswered,
		MessageID:  msg.ID,
		UserID:     msg.UserID,
		OccurredAt: time.Now(),
	})
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event", "type", event.Type, "error", err)
	}
}

func validateSendRequest(req SendMessageRequest) error {
	hasEmail := req.RecipientEmail != ""
	hasUsername := req.RecipientUsername != ""
	if hasEmail == hasUsername {
		return fmt.Errorf("%w: exactly one of recipientEmail or recipientUsername is required", ErrInvalidInput)
	}

	limit := MaxContentLengthEmail
	if hasUsername {
		limit = MaxContentLengthLink
	}
	if len(req.Content) > limit {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidInput, limit)
	}

	return nil
}
