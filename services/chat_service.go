package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"fitgent/contract"
	"fitgent/domain"
	"fitgent/domain/mimetypes"
	"fitgent/errors"
	"fitgent/moderation"
	"fitgent/repositories"
)

type IChatService interface {
	ListConversations(userID string) ([]domain.Conversation, error)
	CreateConversation(actor domain.Actor, participants []string, convType domain.ConversationType, name string) (domain.Conversation, bool, error)
	GetConversation(actor domain.Actor, id string) (domain.Conversation, error)
	ListMessages(actor domain.Actor, conversationID string, filter repositories.ListFilter) ([]domain.Message, error)
	SearchMessages(ctx context.Context, actor domain.Actor, conversationID, terms string, limit int) ([]domain.Message, error)
	SendMessage(ctx context.Context, actor domain.Actor, conversationID string, input SendMessageInput) (domain.Message, error)
	MarkConversationRead(actor domain.Actor, conversationID string) (int, error)
	AddParticipants(ctx context.Context, actor domain.Actor, conversationID string, userIDs []string) (domain.Conversation, error)
	DeleteMessage(actor domain.Actor, messageID string) (domain.Message, error)
}

// ChatService coordinates the two cross-entity flows: message send
// (message + conversation aggregate + notification fan-out) and
// participant addition. It is the only component that touches more
// than one store per operation.
type ChatService struct {
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	users         repositories.IUserRepository
	sink          contract.NotificationSink
	moderator     *moderation.Moderator
	log           *slog.Logger
}

func NewChatService(
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	sink contract.NotificationSink,
	moderator *moderation.Moderator,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		sink:          sink,
		moderator:     moderator,
		log:           log,
	}
}

type SendMessageInput struct {
	Content     string
	ContentType domain.ContentType
	FileURL     string
	FileName    string
	FileSize    int64
}

func (s *ChatService) ListConversations(userID string) ([]domain.Conversation, error) {
	return s.conversations.ListForUser(userID)
}

// CreateConversation resolves the POST /conversations semantics: a two-party
// request without an explicit group type reuses the existing private
// conversation when there is one. The boolean reports whether a conversation
// was actually created.
func (s *ChatService) CreateConversation(actor domain.Actor, participants []string,
	convType domain.ConversationType, name string) (domain.Conversation, bool, error) {
	members := participants
	found := false
	for _, p := range members {
		if p == actor.ID {
			found = true
			break
		}
	}
	if !found {
		members = append(members, actor.ID)
	}

	if convType == "" {
		convType = domain.ConversationPrivate
	}

	switch convType {
	case domain.ConversationPrivate:
		if len(members) != 2 {
			return domain.Conversation{}, false, fmt.Errorf(
				"%w: a private conversation has exactly two participants", errors.ErrValidation)
		}
		return s.conversations.GetOrCreatePrivate(members[0], members[1])
	case domain.ConversationGroup:
		conv, err := s.conversations.CreateGroup(name, actor.ID, members)
		if err != nil {
			return domain.Conversation{}, false, err
		}
		return conv, true, nil
	default:
		return domain.Conversation{}, false, fmt.Errorf("%w: unknown conversation type %q", errors.ErrValidation, convType)
	}
}

func (s *ChatService) GetConversation(actor domain.Actor, id string) (domain.Conversation, error) {
	conv, err := s.conversations.Get(id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conv.HasParticipant(actor.ID) {
		return domain.Conversation{}, fmt.Errorf("%w: not a participant of this conversation", errors.ErrForbidden)
	}
	return conv, nil
}

func (s *ChatService) ListMessages(actor domain.Actor, conversationID string, filter repositories.ListFilter) ([]domain.Message, error) {
	if _, err := s.GetConversation(actor, conversationID); err != nil {
		return nil, err
	}
	return s.messages.List(conversationID, filter)
}

func (s *ChatService) SearchMessages(ctx context.Context, actor domain.Actor, conversationID, terms string, limit int) ([]domain.Message, error) {
	if _, err := s.GetConversation(actor, conversationID); err != nil {
		return nil, err
	}
	return s.messages.Search(ctx, conversationID, terms, limit)
}

// SendMessage is the send flow: authorize, validate, persist the message,
// update the conversation aggregate, then fan out notifications. The message
// is the durable source of truth; once it is stored, aggregate and
// notification failures are retried or logged but never undo the send.
func (s *ChatService) SendMessage(ctx context.Context, actor domain.Actor,
	conversationID string, input SendMessageInput) (domain.Message, error) {
	// 1. Authorize: only participants may post.
	conv, err := s.GetConversation(actor, conversationID)
	if err != nil {
		return domain.Message{}, err
	}

	// 2. Validate and normalize the content.
	message, err := s.buildMessage(actor.ID, conversationID, input)
	if err != nil {
		return domain.Message{}, err
	}

	// 3. Persist the message first.
	if err = s.messages.Store(message); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}

	// 4. Update the conversation aggregate. The repository already retries
	// write conflicts; on any other failure retry once, since the message
	// is durable and the aggregate must catch up.
	if err = s.conversations.TouchOnNewMessage(conversationID, actor.ID, message); err != nil {
		s.log.Warn("Conversation update failed after send, retrying", "conversation", conversationID, "error", err)
		if err = s.conversations.TouchOnNewMessage(conversationID, actor.ID, message); err != nil {
			s.log.Error("Conversation aggregate out of date after send", "conversation", conversationID, "error", err)
		}
	}

	// 5. Notify every other participant, best effort.
	s.fanOutMessage(ctx, conv, message)

	return message, nil
}

func (s *ChatService) buildMessage(senderID, conversationID string, input SendMessageInput) (domain.Message, error) {
	contentType := input.ContentType
	if contentType == "" {
		if input.FileName != "" {
			contentType = mimetypes.ContentTypeFor(input.FileName)
		} else {
			contentType = domain.ContentText
		}
	}
	if !domain.ValidContentType(contentType) {
		return domain.Message{}, fmt.Errorf("%w: unknown content type %q", errors.ErrValidation, contentType)
	}

	content := strings.TrimSpace(input.Content)
	if contentType == domain.ContentText && content == "" {
		return domain.Message{}, fmt.Errorf("%w: message content is required", errors.ErrValidation)
	}
	if contentType != domain.ContentText && input.FileURL == "" {
		return domain.Message{}, fmt.Errorf("%w: file messages need a file url", errors.ErrValidation)
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return domain.Message{}, fmt.Errorf("%w: message content exceeds %d characters", errors.ErrValidation, domain.MaxContentLength)
	}

	lang := ""
	if contentType == domain.ContentText && s.moderator != nil {
		review := s.moderator.Review(content)
		if review.Censored {
			s.log.Info("Message content censored", "conversation", conversationID, "sender", senderID)
		}
		content = review.Content
		lang = review.Lang
	}

	now := time.Now().UTC()
	return domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         senderID,
		Content:        content,
		ContentType:    contentType,
		FileURL:        input.FileURL,
		FileName:       input.FileName,
		FileSize:       input.FileSize,
		Lang:           lang,
		// The sender has read their own message by definition.
		ReadBy:    []domain.ReadReceipt{{User: senderID, ReadAt: now}},
		CreatedAt: now,
	}, nil
}

// fanOutMessage creates one message notification per participant other than
// the sender. Failures are logged and swallowed: notification delivery is
// best effort, message delivery is the guarantee.
func (s *ChatService) fanOutMessage(ctx context.Context, conv domain.Conversation, message domain.Message) {
	senderName := "Someone"
	if sender, err := s.users.GetByID(message.Sender); err == nil {
		senderName = sender.FullName()
	}

	var notifications []domain.Notification
	for _, p := range conv.Participants {
		if p == message.Sender {
			continue
		}
		notifications = append(notifications,
			NewMessageNotification(p, senderName, conv.ID, message))
	}
	if len(notifications) == 0 {
		return
	}

	if err := s.sink.Notify(ctx, notifications...); err != nil {
		s.log.Warn("Message notification fan-out failed", "conversation", conv.ID, "error", err)
	}
}

// MarkConversationRead appends a read receipt to every unread message of the
// caller and resets their unread counter. Idempotent: a second call in a row
// marks zero messages.
func (s *ChatService) MarkConversationRead(actor domain.Actor, conversationID string) (int, error) {
	if _, err := s.GetConversation(actor, conversationID); err != nil {
		return 0, err
	}

	marked, err := s.messages.MarkAsRead(conversationID, actor.ID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	if err = s.conversations.ResetUnread(conversationID, actor.ID); err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	return marked, nil
}

// AddParticipants adds users to a group conversation. Only the group admin or
// a platform admin may do it; users already present are skipped silently.
// Every user actually added gets a system notification.
func (s *ChatService) AddParticipants(ctx context.Context, actor domain.Actor,
	conversationID string, userIDs []string) (domain.Conversation, error) {
	// 1. Authorize against the current conversation state.
	conv, err := s.conversations.Get(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conv.Type != domain.ConversationGroup {
		return domain.Conversation{}, fmt.Errorf(
			"%w: cannot add participants to a private conversation", errors.ErrInvalidOperation)
	}
	if conv.Admin != actor.ID && !actor.IsPlatformAdmin() {
		return domain.Conversation{}, fmt.Errorf("%w: only the group admin can add participants", errors.ErrForbidden)
	}

	// 2. Every requested user must exist.
	for _, userID := range userIDs {
		if _, err = s.users.GetByID(userID); err != nil {
			return domain.Conversation{}, err
		}
	}

	// 3. Mutate the conversation.
	conv, added, err := s.conversations.AddParticipants(conversationID, userIDs)
	if err != nil {
		return domain.Conversation{}, err
	}

	// 4. Tell each newly added user, best effort.
	if len(added) > 0 {
		actorName := "An admin"
		if actingUser, err := s.users.GetByID(actor.ID); err == nil {
			actorName = actingUser.FullName()
		}
		notifications := make([]domain.Notification, 0, len(added))
		for _, userID := range added {
			notifications = append(notifications,
				NewGroupAdditionNotification(userID, actor.ID, actorName, conv))
		}
		if err = s.sink.Notify(ctx, notifications...); err != nil {
			s.log.Warn("Group addition notification failed", "conversation", conv.ID, "error", err)
		}
	}

	return conv, nil
}

// DeleteMessage soft-deletes a message. Only the sender or a platform admin
// may remove it; the content stays on disk behind the flag.
func (s *ChatService) DeleteMessage(actor domain.Actor, messageID string) (domain.Message, error) {
	message, err := s.messages.Get(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if message.Sender != actor.ID && !actor.IsPlatformAdmin() {
		return domain.Message{}, fmt.Errorf("%w: only the sender can delete a message", errors.ErrForbidden)
	}
	return s.messages.SoftDelete(messageID, time.Now().UTC())
}
