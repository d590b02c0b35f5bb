package message_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"confession-service/internal/events"
	"confession-service/internal/message"
	"confession-service/internal/moderation"
	"confession-service/internal/quota"
	"confession-service/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessageRepo keeps messages in memory; MarkAnswered checks and mutates
// under one lock, like the conditional UPDATE it stands in for.
type fakeMessageRepo struct {
	mu        sync.Mutex
	messages  map[string]*message.Message
	responses map[string]*message.Response
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages:  make(map[string]*message.Message),
		responses: make(map[string]*message.Response),
	}
}

func (f *fakeMessageRepo) CreateMessage(ctx context.Context, m *message.Message) (*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *m
	f.messages[m.ID] = &copied
	return m, nil
}

func (f *fakeMessageRepo) GetMessageByID(ctx context.Context, id string) (*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, message.ErrMessageNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMessageRepo) DeleteMessage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, id)
	return nil
}

func (f *fakeMessageRepo) CreateResponse(ctx context.Context, resp *message.Response) (*message.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *resp
	f.responses[resp.ID] = &copied
	return resp, nil
}

func (f *fakeMessageRepo) MarkAnswered(ctx context.Context, messageID, responseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok || m.HasResponse {
		return false, nil
	}
	m.HasResponse = true
	m.ResponseID = &responseID
	return true, nil
}

func (f *fakeMessageRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeMessageRepo) stored(id string) *message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id]
}

// fakeUserRepo mirrors the storage layer's conditional quota updates. The
// denyDebit switch forces the debit precondition to fail regardless of
// balance, standing in for a concurrent send winning the race.
type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[int]*user.User
	denyDebit bool
}

func newFakeUserRepo(users ...*user.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[int]*user.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) Create(ctx context.Context, u *user.User) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (f *fakeUserRepo) SetAcceptingMessages(ctx context.Context, id int, accepting bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.ErrUserNotFound
	}
	u.AcceptingMessages = accepting
	return nil
}

func (f *fakeUserRepo) DebitQuota(ctx context.Context, id int, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || f.denyDebit || u.MessagesLeft <= 0 {
		return false, nil
	}
	u.MessagesLeft--
	ts := now
	u.LastMessageSent = &ts
	return true, nil
}

func (f *fakeUserRepo) CreditQuota(ctx context.Context, id int, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.ErrUserNotFound
	}
	u.MessagesLeft += amount
	return nil
}

func (f *fakeUserRepo) ResetQuotaIfDue(ctx context.Context, id int, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return false, nil
	}
	if u.LastMessageSent != nil && now.Sub(*u.LastMessageSent) < 7*24*time.Hour {
		return false, nil
	}
	u.MessagesLeft = user.WeeklyAllowance
	return true, nil
}

func (f *fakeUserRepo) stored(id int) *user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id]
}

// fakeClassifier returns a fixed verdict.
type fakeClassifier struct {
	predictions []moderation.Prediction
	err         error
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) ([]moderation.Prediction, error) {
	return f.predictions, f.err
}

// fakeMailer records sends on a channel so tests can observe the async
// notification goroutine.
type sentEmail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type fakeMailer struct {
	sent chan sentEmail
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{sent: make(chan sentEmail, 8)}
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	f.sent <- sentEmail{To: to, Subject: subject, HTML: htmlBody, Text: textBody}
	return nil
}

func (f *fakeMailer) waitForEmail(t *testing.T) sentEmail {
	t.Helper()
	select {
	case email := <-f.sent:
		return email
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification email")
		return sentEmail{}
	}
}

type fakeProducer struct {
	mu     sync.Mutex
	events []events.Event
	done   chan struct{}
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{done: make(chan struct{}, 8)}
}

func (f *fakeProducer) Publish(ctx context.Context, event events.Event) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) waitForEvent(t *testing.T) events.Event {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[len(f.events)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func daysAgo(n int) *time.Time {
	ts := time.Now().Add(-time.Duration(n) * 24 * time.Hour)
	return &ts
}

type serviceFixture struct {
	svc      *message.Service
	repo     *fakeMessageRepo
	users    *fakeUserRepo
	mailer   *fakeMailer
	producer *fakeProducer
}

func newFixture(classifier moderation.Classifier, users *fakeUserRepo) *serviceFixture {
	logger := testLogger()
	repo := newFakeMessageRepo()
	m := newFakeMailer()
	producer := newFakeProducer()
	gate := moderation.NewGate(classifier, 0.8, true, logger)
	ledger := quota.NewLedger(users, logger)
	svc := message.NewService(repo, users, ledger, gate, m, producer, "http://localhost:3000", logger)
	return &serviceFixture{svc: svc, repo: repo, users: users, mailer: m, producer: producer}
}

func cleanVerdict() *fakeClassifier {
	return &fakeClassifier{predictions: []moderation.Prediction{{Label: "toxic", Score: 0.01}}}
}

func toxicVerdict() *fakeClassifier {
	return &fakeClassifier{predictions: []moderation.Prediction{{Label: "toxic", Score: 0.97}}}
}

func sender(messagesLeft int) *user.User {
	return &user.User{ID: 1, Username: "sender", Email: "sender@example.com", MessagesLeft: messagesLeft, AcceptingMessages: true}
}

func emailRequest() message.SendMessageRequest {
	return message.SendMessageRequest{
		RecipientEmail: "crush@example.com",
		Subject:        "something I never told you",
		Content:        "I always admired your work on the team.",
		Template:       "classic",
	}
}

func TestServiceSend(t *testing.T) {
	ctx := context.Background()

	t.Run("ToEmail", func(t *testing.T) {
		fx := newFixture(cleanVerdict(), newFakeUserRepo(sender(3)))

		created, err := fx.svc.Send(ctx, 1, emailRequest())
		require.NoError(t, err)

		assert.NotEmpty(t, created.ID)
		assert.Equal(t, 1, created.UserID)
		assert.Equal(t, "sender@example.com", created.SenderContact)
		assert.Equal(t, "crush@example.com", created.RecipientEmail)
		assert.False(t, created.HasResponse)

		assert.Equal(t, 2, fx.users.stored(1).MessagesLeft)
		require.NotNil(t, fx.users.stored(1).LastMessageSent)
		assert.Equal(t, 1, fx.repo.count())

		email := fx.mailer.waitForEmail(t)
		assert.Equal(t, "crush@example.com", email.To)
		assert.Contains(t, email.HTML, created.Content)
		assert.Contains(t, email.HTML, "/respond/"+created.ID)

		event := fx.producer.waitForEvent(t)
		assert.Equal(t, events.TypeMessageSent, event.Type)
		assert.Equal(t, created.ID, event.MessageID)
	})

	t.Run("ToUsernameResolvesEmail", func(t *testing.T) {
		users := newFakeUserRepo(
			sender(3),
			&user.User{ID: 2, Username: "recipient", Email: "recipient@example.com", AcceptingMessages: true},
		)
		fx := newFixture(cleanVerdict(), users)

		req := message.SendMessageRequest{
			RecipientUsername: "recipient",
			Subject:           "hello",
			Content:           "short note",
			Template:          "classic",
		}
		created, err := fx.svc.Send(ctx, 1, req)
		require.NoError(t, err)

		assert.Equal(t, "recipient@example.com", created.RecipientEmail)
		assert.Equal(t, "recipient", created.RecipientUsername)

		email := fx.mailer.waitForEmail(t)
		assert.Equal(t, "recipient@example.com", email.To)
	})

	t.Run("BlockedContentPersistsNothing", func(t *testing.T) {
		fx := newFixture(toxicVerdict(), newFakeUserRepo(sender(3)))

		_, err := fx.svc.Send(ctx, 1, emailRequest())
		assert.ErrorIs(t, err, message.ErrContentRejected)

		assert.Equal(t, 0, fx.repo.count())
		assert.Equal(t, 3, fx.users.stored(1).MessagesLeft)
		assert.Nil(t, fx.users.stored(1).LastMessageSent)
	})

	t.Run("QuotaExhaustedWithinWindow", func(t *testing.T) {
		u := sender(0)
		u.LastMessageSent = daysAgo(2)
		fx := newFixture(cleanVerdict(), newFakeUserRepo(u))

		_, err := fx.svc.Send(ctx, 1, emailRequest())
		assert.ErrorIs(t, err, quota.ErrQuotaExhausted)
		assert.Equal(t, 0, fx.repo.count())
	})

	t.Run("WeeklyWindowRestoresAllowance", func(t *testing.T) {
		u := sender(0)
		u.LastMessageSent = daysAgo(8)
		fx := newFixture(cleanVerdict(), newFakeUserRepo(u))

		_, err := fx.svc.Send(ctx, 1, emailRequest())
		require.NoError(t, err)

		// Allowance restored to 3, then one debit
		assert.Equal(t, user.WeeklyAllowance-1, fx.users.stored(1).MessagesLeft)
		assert.Equal(t, 1, fx.repo.count())
	})

	t.Run("RecipientNotFound", func(t *testing.T) {
		fx := newFixture(cleanVerdict(), newFakeUserRepo(sender(3)))

		req := message.SendMessageRequest{
			RecipientUsername: "nobody",
			Subject:           "hello",
			Content:           "short note",
			Template:          "classic",
		}
		_, err := fx.svc.Send(ctx, 1, req)
		assert.ErrorIs(t, err, message.ErrRecipientNotFound)
		assert.Equal(t, 3, fx.users.stored(1).MessagesLeft)
	})

	t.Run("RecipientNotAccepting", func(t *testing.T) {
		users := newFakeUserRepo(
			sender(3),
			&user.User{ID: 2, Username: "recipient", Email: "recipient@example.com", AcceptingMessages: false},
		)
		fx := newFixture(cleanVerdict(), users)

		req := message.SendMessageRequest{
			RecipientUsername: "recipient",
			Subject:           "hello",
			Content:           "short note",
			Template:          "classic",
		}
		_, err := fx.svc.Send(ctx, 1, req)
		assert.ErrorIs(t, err, message.ErrRecipientNotAccepting)
		assert.Equal(t, 0, fx.repo.count())
	})

	t.Run("LostDebitRaceRemovesMessage", func(t *testing.T) {
		users := newFakeUserRepo(sender(1))
		users.denyDebit = true
		fx := newFixture(cleanVerdict(), users)

		_, err := fx.svc.Send(ctx, 1, emailRequest())
		assert.ErrorIs(t, err, quota.ErrQuotaExhausted)
		assert.Equal(t, 0, fx.repo.count())
	})
}

func TestServiceSendValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("BothRecipients", func(t *testing.T) {
		fx := newFixture(cleanVerdict(), newFakeUserRepo(sender(3)))

		req := emailRequest()
		req.RecipientUsername = "recipient"
		_, err := fx.svc.Send(ctx, 1, req)
		assert.ErrorIs(t, err, message.ErrInvalidInput)
	})

	t.Run("NoRecipient", func(t *testing.T) {
		fx := newFixture(cleanVerdict(), newFakeUserRepo(sender(3)))

		req := emailRequest()
		req.RecipientEmail = ""
		_, err := fx.svc.Send(ctx, 1, req)
		assert.ErrorIs(t, err, message.ErrInvalidInput)
	})

	t.Run("LinkContentLimit", func(t *testing.T) {
		users := newFakeUserRepo(
			sender(3),
			&user.User{ID: 2, Username: "recipient", Email: "recipient@example.com", AcceptingMessages: true},
		)
		fx := newFixture(cleanVerdict(), users)

		req := message.SendMessageRequest{
			RecipientUsername: "recipient",
			Subject:           "hello",
			Content:           strings.Repeat("a", message.MaxContentLengthLink+1),
			Template:          "classic",
		}
		_, err := fx.svc.Send(ctx, 1, req)
		assert.ErrorIs(t, err, message.ErrInvalidInput)
	})

	t.Run("EmailContentLimit", func(t *testing.T) {
		fx := newFixture(cleanVerdict(), newFakeUserRepo(sender(3)))

		req := emailRequest()
		req.Content = strings.Repeat("a", message.MaxContentLengthEmail)
		_, err := fx.svc.Send(ctx, 1, req)
		require.NoError(t, err)

		req.Content = strings.Repeat("a", message.MaxContentLengthEmail+1)
		_, err = fx.svc.Send(ctx, 1, req)
		assert.ErrorIs(t, err, message.ErrInvalidInput)
	})
}

func TestServiceRespond(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) (*serviceFixture, *message.Message) {
		t.Helper()
		fx := newFixture(cleanVerdict(), newFakeUserRepo(sender(3)))
		created, err := fx.svc.Send(ctx, 1, emailRequest())
		require.NoError(t, err)
		// Drain the send's own notification so later waits see the reply's
		fx.mailer.waitForEmail(t)
		fx.producer.waitForEvent(t)
		return fx, created
	}

	t.Run("Success", func(t *testing.T) {
		fx, created := seed(t)

		resp, err := fx.svc.Respond(ctx, message.RespondRequest{
			MessageID: created.ID,
			Contact:   "anon@example.com",
			Content:   "thank you for telling me",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, created.ID, resp.MessageID)

		stored := fx.repo.stored(created.ID)
		assert.True(t, stored.HasResponse)
		require.NotNil(t, stored.ResponseID)
		assert.Equal(t, resp.ID, *stored.ResponseID)

		email := fx.mailer.waitForEmail(t)
		assert.Equal(t, "sender@example.com", email.To)
		assert.Contains(t, email.HTML, resp.Content)

		event := fx.producer.waitForEvent(t)
		assert.Equal(t, events.TypeMessageAnswered, event.Type)
	})

	t.Run("SecondReplyRejected", func(t *testing.T) {
		fx, created := seed(t)

		first, err := fx.svc.Respond(ctx, message.RespondRequest{MessageID: created.ID, Content: "first"})
		require.NoError(t, err)

		_, err = fx.svc.Respond(ctx, message.RespondRequest{MessageID: created.ID, Content: "second"})
		assert.ErrorIs(t, err, message.ErrAlreadyAnswered)

		// First response is untouched
		stored := fx.repo.stored(created.ID)
		require.NotNil(t, stored.ResponseID)
		assert.Equal(t, first.ID, *stored.ResponseID)
	})

	t.Run("ExactlyOneConcurrentWinner", func(t *testing.T) {
		fx, created := seed(t)

		const callers = 10
		var wg sync.WaitGroup
		results := make(chan error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := fx.svc.Respond(ctx, message.RespondRequest{MessageID: created.ID, Content: "reply"})
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var succeeded int
		for err := range results {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, message.ErrAlreadyAnswered)
			}
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("MessageNotFound", func(t *testing.T) {
		fx := newFixture(cleanVerdict(), newFakeUserRepo(sender(3)))

		_, err := fx.svc.Respond(ctx, message.RespondRequest{MessageID: "missing", Content: "reply"})
		assert.ErrorIs(t, err, message.ErrMessageNotFound)
	})
}

func TestServiceGetMessage(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(cleanVerdict(), newFakeUserRepo(sender(3)))

	_, err := fx.svc.GetMessage(ctx, "")
	assert.ErrorIs(t, err, message.ErrInvalidInput)

	_, err = fx.svc.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, message.ErrMessageNotFound)

	created, err := fx.svc.Send(ctx, 1, emailRequest())
	require.NoError(t, err)

	got, err := fx.svc.GetMessage(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}
