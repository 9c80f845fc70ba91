package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"fitgent/domain"
	"fitgent/errors"
	"fitgent/moderation"
	"fitgent/repositories"
)

// recordingSink captures fan-out payloads so tests can assert on what a
// write path raised, independently of the notification storage.
type recordingSink struct {
	mu            sync.Mutex
	notifications []domain.Notification
	err           error
}

func (s *recordingSink) Notify(_ context.Context, notifications ...domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.notifications = append(s.notifications, notifications...)
	return nil
}

func (s *recordingSink) forUser(userID string) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.User == userID {
			out = append(out, n)
		}
	}
	return out
}

type chatFixture struct {
	service *ChatService
	sink    *recordingSink
	users   repositories.IUserRepository
}

func newChatFixture(t *testing.T) chatFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = writer.Close()
		_ = db.Close()
	})

	log := logs.GetLoggerFromLevel(slog.LevelError)
	moderator, err := moderation.NewModerator([]string{"slacker"}, '*')
	require.NoError(t, err)

	sink := &recordingSink{}
	service := NewChatService(
		repositories.NewConversationRepository(db, log),
		repositories.NewMessageRepository(db, writer, log),
		repositories.NewUserRepository(db),
		sink,
		&moderator,
		log,
	)
	return chatFixture{service: service, sink: sink, users: repositories.NewUserRepository(db)}
}

func (f chatFixture) newUser(t *testing.T, firstName, lastName string) domain.Actor {
	t.Helper()
	email := fmt.Sprintf("%s.%s@example.com", firstName, uuid.NewString())
	id, err := f.users.Create(email, "hash", firstName, lastName)
	require.NoError(t, err)
	return domain.Actor{ID: id, Role: domain.RoleUser}
}

func TestChatService_CreateConversation_Private(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")

	conv, created, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)
	req.True(created)
	req.Equal(domain.ConversationPrivate, conv.Type)
	req.ElementsMatch([]string{alice.ID, bob.ID}, conv.Participants)

	// Bob opening it from his side lands on the same conversation
	same, created, err := f.service.CreateConversation(bob, []string{alice.ID}, domain.ConversationPrivate, "")
	req.NoError(err)
	req.False(created)
	req.Equal(conv.ID, same.ID)

	// Three people cannot share a private conversation
	carol := f.newUser(t, "Carol", "Dupont")
	_, _, err = f.service.CreateConversation(alice, []string{bob.ID, carol.ID}, domain.ConversationPrivate, "")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestChatService_CreateConversation_Group(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")

	conv, created, err := f.service.CreateConversation(alice, []string{bob.ID}, domain.ConversationGroup, "Morning crew")
	req.NoError(err)
	req.True(created)
	req.Equal(alice.ID, conv.Admin)
	req.ElementsMatch([]string{alice.ID, bob.ID}, conv.Participants)

	_, _, err = f.service.CreateConversation(alice, []string{bob.ID}, "broadcast", "Nope")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestChatService_GetConversation_Authorization(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")
	eve := f.newUser(t, "Eve", "Li")

	conv, _, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)

	_, err = f.service.GetConversation(bob, conv.ID)
	req.NoError(err)

	_, err = f.service.GetConversation(eve, conv.ID)
	req.ErrorIs(err, errors.ErrForbidden)

	_, err = f.service.ListMessages(eve, conv.ID, repositories.ListFilter{})
	req.ErrorIs(err, errors.ErrForbidden)

	_, err = f.service.SearchMessages(context.Background(), eve, conv.ID, "anything", 10)
	req.ErrorIs(err, errors.ErrForbidden)

	_, err = f.service.GetConversation(alice, uuid.NewString())
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestChatService_SendMessage(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")

	conv, _, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)

	message, err := f.service.SendMessage(context.Background(), alice, conv.ID, SendMessageInput{
		Content: "  ready for leg day?  ",
	})
	req.NoError(err)
	req.Equal("ready for leg day?", message.Content)
	req.Equal(domain.ContentText, message.ContentType)
	// The sender has already read their own message
	req.True(message.IsReadBy(alice.ID))

	// Aggregate updated
	got, err := f.service.GetConversation(bob, conv.ID)
	req.NoError(err)
	req.NotNil(got.LastMessage)
	req.Equal(message.ID, got.LastMessage.ID)
	req.Equal(1, got.UnreadCount[bob.ID])
	req.Equal(0, got.UnreadCount[alice.ID])

	// Exactly one notification, to Bob, with the routing data
	req.Empty(f.sink.forUser(alice.ID))
	raised := f.sink.forUser(bob.ID)
	req.Len(raised, 1)
	req.Equal(domain.NotifyMessage, raised[0].Type)
	req.Equal(alice.ID, raised[0].Sender)
	req.Contains(raised[0].Message, "Alice Martin")
	req.Equal(conv.ID, raised[0].Data["conversationId"])
	req.Equal(message.ID, raised[0].Data["messageId"])
	req.NotNil(raised[0].Related)
	req.Equal(domain.RelatedConversation, raised[0].Related.Model)
}

func TestChatService_SendMessage_Validation(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")

	conv, _, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)
	ctx := context.Background()

	_, err = f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{Content: "   "})
	req.ErrorIs(err, errors.ErrValidation)

	long := make([]byte, domain.MaxContentLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{Content: string(long)})
	req.ErrorIs(err, errors.ErrValidation)

	_, err = f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{
		ContentType: domain.ContentImage, Content: "caption",
	})
	req.ErrorIs(err, errors.ErrValidation)

	_, err = f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{
		ContentType: "hologram", Content: "hi",
	})
	req.ErrorIs(err, errors.ErrValidation)

	// Outsiders cannot post
	eve := f.newUser(t, "Eve", "Li")
	_, err = f.service.SendMessage(ctx, eve, conv.ID, SendMessageInput{Content: "hi"})
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestChatService_SendMessage_FileAndModeration(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")

	conv, _, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)
	ctx := context.Background()

	// Content type inferred from the file name
	message, err := f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{
		FileURL:  "https://cdn.example.com/progress.jpg",
		FileName: "progress.jpg",
		FileSize: 2048,
	})
	req.NoError(err)
	req.Equal(domain.ContentImage, message.ContentType)

	// Censored words never reach storage
	message, err = f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{
		Content: "bob you slacker",
	})
	req.NoError(err)
	req.NotContains(message.Content, "slacker")

	stored, err := f.service.ListMessages(bob, conv.ID, repositories.ListFilter{Limit: 1})
	req.NoError(err)
	req.Len(stored, 1)
	req.NotContains(stored[0].Content, "slacker")
}

func TestChatService_SendMessage_SinkFailureDoesNotFailSend(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")

	conv, _, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)

	f.sink.err = fmt.Errorf("notification store down")
	message, err := f.service.SendMessage(context.Background(), alice, conv.ID, SendMessageInput{
		Content: "still delivered",
	})
	req.NoError(err)

	// The message made it to storage despite the sink failure
	messages, err := f.service.ListMessages(bob, conv.ID, repositories.ListFilter{})
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(message.ID, messages[0].ID)
}

func TestChatService_MarkConversationRead(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")

	conv, _, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err = f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{Content: fmt.Sprintf("message %d", i)})
		req.NoError(err)
	}

	marked, err := f.service.MarkConversationRead(bob, conv.ID)
	req.NoError(err)
	req.Equal(3, marked)

	got, err := f.service.GetConversation(bob, conv.ID)
	req.NoError(err)
	req.Equal(0, got.UnreadCount[bob.ID])

	// Second pass marks nothing
	marked, err = f.service.MarkConversationRead(bob, conv.ID)
	req.NoError(err)
	req.Equal(0, marked)
}

func TestChatService_AddParticipants(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")
	carol := f.newUser(t, "Carol", "Dupont")
	ctx := context.Background()

	group, _, err := f.service.CreateConversation(alice, []string{bob.ID}, domain.ConversationGroup, "Crew")
	req.NoError(err)

	// Non-admin participants cannot add people
	_, err = f.service.AddParticipants(ctx, bob, group.ID, []string{carol.ID})
	req.ErrorIs(err, errors.ErrForbidden)

	// Unknown users are rejected before any mutation
	_, err = f.service.AddParticipants(ctx, alice, group.ID, []string{uuid.NewString()})
	req.ErrorIs(err, errors.ErrNotFound)

	updated, err := f.service.AddParticipants(ctx, alice, group.ID, []string{carol.ID})
	req.NoError(err)
	req.ElementsMatch([]string{alice.ID, bob.ID, carol.ID}, updated.Participants)

	// Carol was told, with the group referenced
	raised := f.sink.forUser(carol.ID)
	req.Len(raised, 1)
	req.Equal(domain.NotifySystem, raised[0].Type)
	req.Equal(group.ID, raised[0].Related.ID)

	// Re-adding raises nothing new
	_, err = f.service.AddParticipants(ctx, alice, group.ID, []string{carol.ID})
	req.NoError(err)
	req.Len(f.sink.forUser(carol.ID), 1)

	// A platform admin who is not the group admin may add
	dave := f.newUser(t, "Dave", "Nguyen")
	admin := domain.Actor{ID: f.newUser(t, "Root", "Admin").ID, Role: domain.RoleAdmin}
	_, err = f.service.AddParticipants(ctx, admin, group.ID, []string{dave.ID})
	req.NoError(err)

	// Private conversations never grow
	private, _, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)
	_, err = f.service.AddParticipants(ctx, alice, private.ID, []string{carol.ID})
	req.ErrorIs(err, errors.ErrInvalidOperation)
}

func TestChatService_DeleteMessage(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	alice := f.newUser(t, "Alice", "Martin")
	bob := f.newUser(t, "Bob", "Durand")
	ctx := context.Background()

	conv, _, err := f.service.CreateConversation(alice, []string{bob.ID}, "", "")
	req.NoError(err)
	message, err := f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{Content: "typo"})
	req.NoError(err)

	// Only the sender (or a platform admin) may delete
	_, err = f.service.DeleteMessage(bob, message.ID)
	req.ErrorIs(err, errors.ErrForbidden)

	deleted, err := f.service.DeleteMessage(alice, message.ID)
	req.NoError(err)
	req.True(deleted.IsDeleted)

	admin := domain.Actor{ID: uuid.NewString(), Role: domain.RoleAdmin}
	second, err := f.service.SendMessage(ctx, alice, conv.ID, SendMessageInput{Content: "another"})
	req.NoError(err)
	_, err = f.service.DeleteMessage(admin, second.ID)
	req.NoError(err)

	_, err = f.service.DeleteMessage(alice, uuid.NewString())
	req.ErrorIs(err, errors.ErrNotFound)
}
