package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"fitgent/domain"
	"fitgent/errors"
	"fitgent/repositories"
)

func newNotificationService(t *testing.T) *NotificationService {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelError)
	return NewNotificationService(repositories.NewNotificationRepository(db, log), log)
}

func validNotification(user string) domain.Notification {
	return domain.Notification{
		User:    user,
		Type:    domain.NotifyAchievement,
		Title:   "Personal Best",
		Message: "You beat your deadlift record",
	}
}

func TestNotificationService_Create(t *testing.T) {
	req := require.New(t)
	service := newNotificationService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, validNotification("bob"))
	req.NoError(err)
	// Defaults filled in
	req.NotEmpty(created.ID)
	req.False(created.CreatedAt.IsZero())
	req.Equal(domain.PriorityMedium, created.Priority)
	req.False(created.IsRead)
}

func TestNotificationService_Create_Validation(t *testing.T) {
	req := require.New(t)
	service := newNotificationService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*domain.Notification)
	}{
		{"missing user", func(n *domain.Notification) { n.User = "" }},
		{"missing title", func(n *domain.Notification) { n.Title = "" }},
		{"missing message", func(n *domain.Notification) { n.Message = "" }},
		{"unknown type", func(n *domain.Notification) { n.Type = "telegram" }},
		{"unknown priority", func(n *domain.Notification) { n.Priority = "urgent" }},
		{"title too long", func(n *domain.Notification) {
			for i := 0; i < 11; i++ {
				n.Title += "0123456789"
			}
		}},
		{"related without id", func(n *domain.Notification) {
			n.Related = &domain.RelatedRef{Model: domain.RelatedPost}
		}},
		{"related with unknown model", func(n *domain.Notification) {
			n.Related = &domain.RelatedRef{Model: "Badge", ID: "b1"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := validNotification("bob")
			tc.mutate(&n)
			_, err := service.Create(ctx, n)
			req.ErrorIs(err, errors.ErrValidation)
		})
	}
}

func TestNotificationService_CreateMany_SkipsMalformed(t *testing.T) {
	req := require.New(t)
	service := newNotificationService(t)
	ctx := context.Background()

	broken := validNotification("carol")
	broken.Type = "smoke-signal"

	stored, err := service.CreateMany(ctx, []domain.Notification{
		validNotification("bob"),
		broken,
		validNotification("dave"),
	})
	req.NoError(err)
	req.Equal(2, stored)

	count, err := service.UnreadCount("carol")
	req.NoError(err)
	req.Equal(0, count)
}

func TestNotificationService_List_ReturnsUnreadCount(t *testing.T) {
	req := require.New(t)
	service := newNotificationService(t)
	ctx := context.Background()

	first, err := service.Create(ctx, validNotification("bob"))
	req.NoError(err)
	time.Sleep(time.Millisecond)
	_, err = service.Create(ctx, validNotification("bob"))
	req.NoError(err)

	bob := domain.Actor{ID: "bob", Role: domain.RoleUser}
	_, err = service.MarkRead(first.ID, bob)
	req.NoError(err)

	notifications, unread, err := service.List("bob", repositories.NotificationFilter{})
	req.NoError(err)
	req.Len(notifications, 2)
	req.Equal(1, unread)

	unreadOnly, _, err := service.List("bob", repositories.NotificationFilter{IsRead: lo.ToPtr(false)})
	req.NoError(err)
	req.Len(unreadOnly, 1)
}

func TestNotificationService_MarkRead_OwnerOnly(t *testing.T) {
	req := require.New(t)
	service := newNotificationService(t)
	ctx := context.Background()

	n, err := service.Create(ctx, validNotification("bob"))
	req.NoError(err)

	eve := domain.Actor{ID: "eve", Role: domain.RoleUser}
	_, err = service.MarkRead(n.ID, eve)
	req.ErrorIs(err, errors.ErrForbidden)

	// Not even a platform admin reads someone else's notifications
	admin := domain.Actor{ID: "root", Role: domain.RoleAdmin}
	_, err = service.MarkRead(n.ID, admin)
	req.ErrorIs(err, errors.ErrForbidden)

	bob := domain.Actor{ID: "bob", Role: domain.RoleUser}
	read, err := service.MarkRead(n.ID, bob)
	req.NoError(err)
	req.True(read.IsRead)
}

func TestNotificationService_Delete_OwnerOrAdmin(t *testing.T) {
	req := require.New(t)
	service := newNotificationService(t)
	ctx := context.Background()

	n, err := service.Create(ctx, validNotification("bob"))
	req.NoError(err)

	eve := domain.Actor{ID: "eve", Role: domain.RoleUser}
	req.ErrorIs(service.Delete(n.ID, eve), errors.ErrForbidden)

	admin := domain.Actor{ID: "root", Role: domain.RoleAdmin}
	req.NoError(service.Delete(n.ID, admin))

	req.ErrorIs(service.Delete(n.ID, admin), errors.ErrNotFound)
}

func TestNotificationService_DeleteRead(t *testing.T) {
	req := require.New(t)
	service := newNotificationService(t)
	ctx := context.Background()

	first, err := service.Create(ctx, validNotification("bob"))
	req.NoError(err)
	time.Sleep(time.Millisecond)
	_, err = service.Create(ctx, validNotification("bob"))
	req.NoError(err)

	bob := domain.Actor{ID: "bob", Role: domain.RoleUser}
	_, err = service.MarkRead(first.ID, bob)
	req.NoError(err)

	deleted, err := service.DeleteRead("bob")
	req.NoError(err)
	req.Equal(1, deleted)

	notifications, unread, err := service.List("bob", repositories.NotificationFilter{})
	req.NoError(err)
	req.Len(notifications, 1)
	req.Equal(1, unread)
}
