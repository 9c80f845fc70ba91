//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"fitgent/domain"
	"fitgent/errors"
)

// DefaultNotificationPageSize is used when a listing does not ask for a limit.
const DefaultNotificationPageSize = 20

type NotificationFilter struct {
	Type   *domain.NotificationType
	IsRead *bool
	Page   int
	Limit  int
}

type INotificationRepository interface {
	Store(n domain.Notification) error
	StoreMany(ns []domain.Notification) (int, error)
	Get(id string) (domain.Notification, error)
	List(userID string, filter NotificationFilter) ([]domain.Notification, error)
	UnreadCount(userID string) (int, error)
	MarkRead(id string) (domain.Notification, error)
	MarkAllRead(userID string) (int, error)
	Delete(id string) error
	DeleteRead(userID string) (int, error)
	DeleteExpired(now time.Time) (int, error)
}

type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) NotificationRepository {
	return NotificationRepository{db: db, log: log}
}

// notificationKey formats the key as "notif:{user}:{timestamp_padded}:{id}":
// per-user prefix scans walk notifications in time order, reverse iteration
// gives newest first.
func notificationKey(userID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("notif:%s:%019d:%s", userID, at.UnixNano(), id))
}

func notificationRefKey(id string) []byte { return []byte("nref:" + id) }

// Store persists a notification. When ExpiresAt is set the entry carries a
// Badger TTL so the engine drops it on its own; the sweep worker removes
// whatever the TTL machinery has not reclaimed yet.
func (r NotificationRepository) Store(n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := notificationKey(n.User, n.CreatedAt, n.ID)

	return r.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		refEntry := badger.NewEntry(notificationRefKey(n.ID), key)
		if n.ExpiresAt != nil {
			if ttl := time.Until(*n.ExpiresAt); ttl > 0 {
				entry = entry.WithTTL(ttl)
				refEntry = refEntry.WithTTL(ttl)
			}
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		return txn.SetEntry(refEntry)
	})
}

// StoreMany persists a batch of notifications, one entry at a time, so a
// failing record never sinks the rest of the fan-out. Returns how many were
// stored.
func (r NotificationRepository) StoreMany(ns []domain.Notification) (int, error) {
	stored := 0
	var firstErr error
	for _, n := range ns {
		if err := r.Store(n); err != nil {
			r.log.Warn("Notification store failed during fan-out", "user", n.User, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored++
	}
	if stored == 0 && firstErr != nil {
		return 0, firstErr
	}
	return stored, nil
}

func (r NotificationRepository) Get(id string) (domain.Notification, error) {
	var n domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = getNotificationByRef(txn, id)
		return err
	})
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// List returns the user's notifications newest first, after filters and paging.
func (r NotificationRepository) List(userID string, filter NotificationFilter) ([]domain.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultNotificationPageSize
	}
	skip := 0
	if filter.Page > 1 {
		skip = (filter.Page - 1) * limit
	}

	var notifications []domain.Notification
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("notif:" + userID + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var n domain.Notification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return err
			}
			if filter.Type != nil && n.Type != *filter.Type {
				continue
			}
			if filter.IsRead != nil && n.IsRead != *filter.IsRead {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			notifications = append(notifications, n)
			if len(notifications) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r NotificationRepository) UnreadCount(userID string) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		return r.forEachOfUser(txn, userID, func(_ []byte, n domain.Notification) error {
			if !n.IsRead {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r NotificationRepository) MarkRead(id string) (domain.Notification, error) {
	var n domain.Notification
	err := r.retryUpdate(func(txn *badger.Txn) error {
		var err error
		n, err = getNotificationByRef(txn, id)
		if err != nil {
			return err
		}
		if n.IsRead {
			return nil
		}
		n.IsRead = true
		return putNotification(txn, n)
	})
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func (r NotificationRepository) MarkAllRead(userID string) (int, error) {
	marked := 0
	err := r.retryUpdate(func(txn *badger.Txn) error {
		marked = 0
		return r.forEachOfUser(txn, userID, func(_ []byte, n domain.Notification) error {
			if n.IsRead {
				return nil
			}
			n.IsRead = true
			if err := putNotification(txn, n); err != nil {
				return err
			}
			marked++
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func (r NotificationRepository) Delete(id string) error {
	return r.retryUpdate(func(txn *badger.Txn) error {
		n, err := getNotificationByRef(txn, id)
		if err != nil {
			return err
		}
		if err = txn.Delete(notificationKey(n.User, n.CreatedAt, n.ID)); err != nil {
			return err
		}
		return txn.Delete(notificationRefKey(n.ID))
	})
}

// DeleteRead removes every already-read notification of the user and returns
// how many were removed.
func (r NotificationRepository) DeleteRead(userID string) (int, error) {
	deleted := 0
	err := r.retryUpdate(func(txn *badger.Txn) error {
		deleted = 0
		return r.forEachOfUser(txn, userID, func(key []byte, n domain.Notification) error {
			if !n.IsRead {
				return nil
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(notificationRefKey(n.ID)); err != nil {
				return err
			}
			deleted++
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteExpired sweeps notifications whose expiry instant has passed.
// The sweep is idempotent and safe to run concurrently with reads; it backs
// up the entry-level TTL for documents written before a restart or clock skew.
func (r NotificationRepository) DeleteExpired(now time.Time) (int, error) {
	deleted := 0
	err := r.retryUpdate(func(txn *badger.Txn) error {
		deleted = 0
		prefix := []byte("notif:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var n domain.Notification
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return err
			}
			if n.ExpiresAt == nil || n.ExpiresAt.After(now) {
				continue
			}
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
			if err := txn.Delete(notificationRefKey(n.ID)); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r NotificationRepository) forEachOfUser(txn *badger.Txn, userID string,
	fn func(key []byte, n domain.Notification) error) error {
	prefix := []byte("notif:" + userID + ":")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var n domain.Notification
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &n)
		}); err != nil {
			return err
		}
		if err := fn(it.Item().KeyCopy(nil), n); err != nil {
			return err
		}
	}
	return nil
}

func (r NotificationRepository) retryUpdate(fn func(txn *badger.Txn) error) error {
	for {
		err := r.db.Update(fn)
		if goerrors.Is(err, badger.ErrConflict) {
			r.log.Debug("Notification transaction conflict, retrying")
			continue
		}
		return err
	}
}

func getNotificationByRef(txn *badger.Txn, id string) (domain.Notification, error) {
	refItem, err := txn.Get(notificationRefKey(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Notification{}, fmt.Errorf("%w: notification %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Notification{}, err
	}

	var key []byte
	if err = refItem.Value(func(val []byte) error {
		key = append([]byte{}, val...)
		return nil
	}); err != nil {
		return domain.Notification{}, err
	}

	item, err := txn.Get(key)
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Notification{}, fmt.Errorf("%w: notification %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Notification{}, err
	}

	var n domain.Notification
	if err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &n)
	}); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func putNotification(txn *badger.Txn, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	entry := badger.NewEntry(notificationKey(n.User, n.CreatedAt, n.ID), data)
	if n.ExpiresAt != nil {
		if ttl := time.Until(*n.ExpiresAt); ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
	}
	return txn.SetEntry(entry)
}
