package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"fitgent/domain"
	"fitgent/errors"
	"fitgent/repositories"
)

var validate = validator.New()

type INotificationService interface {
	Create(ctx context.Context, n domain.Notification) (domain.Notification, error)
	CreateMany(ctx context.Context, ns []domain.Notification) (int, error)
	Notify(ctx context.Context, notifications ...domain.Notification) error
	List(userID string, filter repositories.NotificationFilter) ([]domain.Notification, int, error)
	UnreadCount(userID string) (int, error)
	MarkRead(id string, actor domain.Actor) (domain.Notification, error)
	MarkAllRead(userID string) (int, error)
	Delete(id string, actor domain.Actor) error
	DeleteRead(userID string) (int, error)
}

// NotificationService is the single validated entry point through which every
// domain write path raises notifications. It decides nothing about when to
// notify; it only checks the payload shape and stores.
type NotificationService struct {
	repository repositories.INotificationRepository
	log        *slog.Logger
}

func NewNotificationService(repository repositories.INotificationRepository, log *slog.Logger) *NotificationService {
	return &NotificationService{repository: repository, log: log}
}

// notificationPayload mirrors the shape rules of a notification document.
type notificationPayload struct {
	User     string `validate:"required"`
	Type     string `validate:"required,oneof=workout water meal achievement message comment like follow plan_assigned reminder system"`
	Title    string `validate:"required,max=100"`
	Message  string `validate:"required,max=500"`
	Priority string `validate:"required,oneof=low medium high"`
}

type relatedPayload struct {
	Model string `validate:"required,oneof=Workout WorkoutPlan Meal Post Comment Message Conversation"`
	ID    string `validate:"required"`
}

func (s *NotificationService) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	n, err := s.prepare(n)
	if err != nil {
		return domain.Notification{}, err
	}
	if err = s.repository.Store(n); err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	return n, nil
}

// CreateMany is the bulk variant used for fan-out to many recipients.
// Entries failing validation are skipped with a log line so one malformed
// record never sinks the whole batch.
func (s *NotificationService) CreateMany(ctx context.Context, ns []domain.Notification) (int, error) {
	valid := make([]domain.Notification, 0, len(ns))
	for _, n := range ns {
		prepared, err := s.prepare(n)
		if err != nil {
			s.log.Warn("Skipping malformed notification in batch", "user", n.User, "type", n.Type, "error", err)
			continue
		}
		valid = append(valid, prepared)
	}
	if len(valid) == 0 {
		return 0, nil
	}
	stored, err := s.repository.StoreMany(valid)
	if err != nil {
		return stored, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	return stored, nil
}

// Notify implements contract.NotificationSink.
func (s *NotificationService) Notify(ctx context.Context, notifications ...domain.Notification) error {
	_, err := s.CreateMany(ctx, notifications)
	return err
}

// prepare fills defaults and enforces the notification shape invariant:
// required fields, closed enums, length bounds, and the related reference
// carrying both model and id or being absent entirely.
func (s *NotificationService) prepare(n domain.Notification) (domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityMedium
	}

	payload := notificationPayload{
		User:     n.User,
		Type:     string(n.Type),
		Title:    n.Title,
		Message:  n.Message,
		Priority: string(n.Priority),
	}
	if err := validate.Struct(payload); err != nil {
		return domain.Notification{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}

	if n.Related != nil {
		related := relatedPayload{Model: string(n.Related.Model), ID: n.Related.ID}
		if err := validate.Struct(related); err != nil {
			return domain.Notification{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
		}
	}
	return n, nil
}

func (s *NotificationService) List(userID string, filter repositories.NotificationFilter) ([]domain.Notification, int, error) {
	notifications, err := s.repository.List(userID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	unread, err := s.repository.UnreadCount(userID)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	return notifications, unread, nil
}

func (s *NotificationService) UnreadCount(userID string) (int, error) {
	return s.repository.UnreadCount(userID)
}

// MarkRead flips the read flag. Only the recipient may do it.
func (s *NotificationService) MarkRead(id string, actor domain.Actor) (domain.Notification, error) {
	n, err := s.repository.Get(id)
	if err != nil {
		return domain.Notification{}, err
	}
	if n.User != actor.ID {
		return domain.Notification{}, fmt.Errorf("%w: notification belongs to another user", errors.ErrForbidden)
	}
	return s.repository.MarkRead(id)
}

func (s *NotificationService) MarkAllRead(userID string) (int, error) {
	return s.repository.MarkAllRead(userID)
}

// Delete removes one notification. The recipient may always delete their own;
// a platform admin may delete anyone's.
func (s *NotificationService) Delete(id string, actor domain.Actor) error {
	n, err := s.repository.Get(id)
	if err != nil {
		return err
	}
	if n.User != actor.ID && !actor.IsPlatformAdmin() {
		return fmt.Errorf("%w: notification belongs to another user", errors.ErrForbidden)
	}
	return s.repository.Delete(id)
}

func (s *NotificationService) DeleteRead(userID string) (int, error) {
	return s.repository.DeleteRead(userID)
}
