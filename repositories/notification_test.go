package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"fitgent/domain"
	"fitgent/errors"
)

func notificationFor(user string, notifType domain.NotificationType, at time.Time) domain.Notification {
	return domain.Notification{
		ID:        uuid.NewString(),
		User:      user,
		Type:      notifType,
		Title:     "New message",
		Message:   "Alice sent you a message",
		Priority:  domain.PriorityMedium,
		CreatedAt: at,
	}
}

func TestNotificationRepository_StoreAndList(t *testing.T) {
	req := require.New(t)
	repo := NewNotificationRepository(newTestDB(t), testLogger())

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		n := notificationFor("bob", domain.NotifyMessage, base.Add(time.Duration(i)*time.Second))
		n.Title = fmt.Sprintf("notification %d", i)
		req.NoError(repo.Store(n))
	}
	req.NoError(repo.Store(notificationFor("carol", domain.NotifyLike, base)))

	notifications, err := repo.List("bob", NotificationFilter{})
	req.NoError(err)
	req.Len(notifications, 3)
	// Newest first
	req.Equal("notification 2", notifications[0].Title)
	req.Equal("notification 0", notifications[2].Title)
}

func TestNotificationRepository_List_Filters(t *testing.T) {
	req := require.New(t)
	repo := NewNotificationRepository(newTestDB(t), testLogger())

	base := time.Now().UTC()
	message := notificationFor("bob", domain.NotifyMessage, base)
	like := notificationFor("bob", domain.NotifyLike, base.Add(time.Second))
	req.NoError(repo.Store(message))
	req.NoError(repo.Store(like))
	_, err := repo.MarkRead(like.ID)
	req.NoError(err)

	notifications, err := repo.List("bob", NotificationFilter{Type: lo.ToPtr(domain.NotifyLike)})
	req.NoError(err)
	req.Len(notifications, 1)
	req.Equal(like.ID, notifications[0].ID)

	notifications, err = repo.List("bob", NotificationFilter{IsRead: lo.ToPtr(false)})
	req.NoError(err)
	req.Len(notifications, 1)
	req.Equal(message.ID, notifications[0].ID)
}

func TestNotificationRepository_StoreMany(t *testing.T) {
	req := require.New(t)
	repo := NewNotificationRepository(newTestDB(t), testLogger())

	base := time.Now().UTC()
	stored, err := repo.StoreMany([]domain.Notification{
		notificationFor("bob", domain.NotifyMessage, base),
		notificationFor("carol", domain.NotifyMessage, base),
	})
	req.NoError(err)
	req.Equal(2, stored)

	count, err := repo.UnreadCount("bob")
	req.NoError(err)
	req.Equal(1, count)
}

func TestNotificationRepository_ReadTracking(t *testing.T) {
	req := require.New(t)
	repo := NewNotificationRepository(newTestDB(t), testLogger())

	base := time.Now().UTC()
	first := notificationFor("bob", domain.NotifyMessage, base)
	second := notificationFor("bob", domain.NotifyLike, base.Add(time.Second))
	req.NoError(repo.Store(first))
	req.NoError(repo.Store(second))

	count, err := repo.UnreadCount("bob")
	req.NoError(err)
	req.Equal(2, count)

	marked, err := repo.MarkRead(first.ID)
	req.NoError(err)
	req.True(marked.IsRead)

	// Marking twice stays read
	marked, err = repo.MarkRead(first.ID)
	req.NoError(err)
	req.True(marked.IsRead)

	count, err = repo.UnreadCount("bob")
	req.NoError(err)
	req.Equal(1, count)

	markedAll, err := repo.MarkAllRead("bob")
	req.NoError(err)
	req.Equal(1, markedAll)

	count, err = repo.UnreadCount("bob")
	req.NoError(err)
	req.Equal(0, count)

	_, err = repo.MarkRead(uuid.NewString())
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestNotificationRepository_Delete(t *testing.T) {
	req := require.New(t)
	repo := NewNotificationRepository(newTestDB(t), testLogger())

	n := notificationFor("bob", domain.NotifyMessage, time.Now().UTC())
	req.NoError(repo.Store(n))
	req.NoError(repo.Delete(n.ID))

	_, err := repo.Get(n.ID)
	req.ErrorIs(err, errors.ErrNotFound)

	req.ErrorIs(repo.Delete(n.ID), errors.ErrNotFound)
}

func TestNotificationRepository_DeleteRead(t *testing.T) {
	req := require.New(t)
	repo := NewNotificationRepository(newTestDB(t), testLogger())

	base := time.Now().UTC()
	read := notificationFor("bob", domain.NotifyMessage, base)
	unread := notificationFor("bob", domain.NotifyLike, base.Add(time.Second))
	req.NoError(repo.Store(read))
	req.NoError(repo.Store(unread))
	_, err := repo.MarkRead(read.ID)
	req.NoError(err)

	deleted, err := repo.DeleteRead("bob")
	req.NoError(err)
	req.Equal(1, deleted)

	notifications, err := repo.List("bob", NotificationFilter{})
	req.NoError(err)
	req.Len(notifications, 1)
	req.Equal(unread.ID, notifications[0].ID)
}

func TestNotificationRepository_DeleteExpired(t *testing.T) {
	req := require.New(t)
	repo := NewNotificationRepository(newTestDB(t), testLogger())

	now := time.Now().UTC()
	expired := notificationFor("bob", domain.NotifyMessage, now.Add(-time.Hour))
	expired.ExpiresAt = lo.ToPtr(now.Add(-time.Minute))
	fresh := notificationFor("bob", domain.NotifyLike, now)
	fresh.ExpiresAt = lo.ToPtr(now.Add(time.Hour))
	forever := notificationFor("bob", domain.NotifySystem, now)
	req.NoError(repo.Store(expired))
	req.NoError(repo.Store(fresh))
	req.NoError(repo.Store(forever))

	deleted, err := repo.DeleteExpired(now)
	req.NoError(err)
	req.Equal(1, deleted)

	// Idempotent: a second sweep finds nothing
	deleted, err = repo.DeleteExpired(now)
	req.NoError(err)
	req.Equal(0, deleted)

	notifications, err := repo.List("bob", NotificationFilter{})
	req.NoError(err)
	req.Len(notifications, 2)
}
