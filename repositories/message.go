//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"

	"fitgent/domain"
	"fitgent/errors"
)

// DefaultPageSize is the message page size when the caller does not ask
// for one.
const DefaultPageSize = 50

// ListFilter carries the optional creation-time bounds and paging of a
// message listing. Strict and inclusive bounds can be combined.
type ListFilter struct {
	CreatedGT  *time.Time
	CreatedGTE *time.Time
	CreatedLT  *time.Time
	CreatedLTE *time.Time
	Sender     string
	Page       int
	Limit      int
	Ascending  bool
}

type IMessageRepository interface {
	Store(m domain.Message) error
	Get(id string) (domain.Message, error)
	List(conversationID string, filter ListFilter) ([]domain.Message, error)
	MarkAsRead(conversationID, userID string, at time.Time) (int, error)
	SoftDelete(id string, at time.Time) (domain.Message, error)
	Search(ctx context.Context, conversationID, terms string, limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	db    *badger.DB
	index *bluge.Writer
	log   *slog.Logger
}

func NewMessageRepository(db *badger.DB, index *bluge.Writer, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, index: index, log: log}
}

// messageKey formats the key as "msg:{conversation}:{timestamp_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using the message id as a collision disconnector if two
//     messages arrive at the same nanosecond.
func messageKey(conversationID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, at.UnixNano(), id))
}

// messageRefKey maps a message id to its full time-sorted key, so single
// messages can be located without knowing their timestamp.
func messageRefKey(id string) []byte { return []byte("mref:" + id) }

// Store persists the message document and indexes its content for search.
// The search index is secondary: an indexing failure is logged, not returned,
// because the Badger document is the durable source of truth.
func (m MessageRepository) Store(message domain.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	key := messageKey(message.ConversationID, message.CreatedAt, message.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageRefKey(message.ID), key)
	})
	if err != nil {
		return err
	}

	if m.index != nil && message.ContentType == domain.ContentText {
		doc := bluge.NewDocument(message.ID).
			AddField(bluge.NewTextField("content", message.Content)).
			AddField(bluge.NewKeywordField("conversation", message.ConversationID)).
			AddField(bluge.NewKeywordField("sender", message.Sender))
		if err := m.index.Update(doc.ID(), doc); err != nil {
			m.log.Warn("Message indexing failed", "message", message.ID, "error", err)
		}
	}
	return nil
}

func (m MessageRepository) Get(id string) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = getMessageByRef(txn, id)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// List retrieves messages for a conversation, newest first by default.
// Thanks to the padded timestamp in the key, messages are naturally sorted by
// time; creation-time bounds and paging are applied during the scan.
func (m MessageRepository) List(conversationID string, filter ListFilter) ([]domain.Message, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	skip := 0
	if filter.Page > 1 {
		skip = (filter.Page - 1) * limit
	}

	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte("msg:" + conversationID + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = !filter.Ascending
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if options.Reverse {
			// Position past the newest possible key, then walk backwards.
			seekKey = append(append([]byte{}, prefix...), 0xFF)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var message domain.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &message)
			}); err != nil {
				return err
			}
			if !matchesFilter(message, filter) {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			messages = append(messages, message)
			if len(messages) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func matchesFilter(message domain.Message, filter ListFilter) bool {
	at := message.CreatedAt
	if filter.CreatedGT != nil && !at.After(*filter.CreatedGT) {
		return false
	}
	if filter.CreatedGTE != nil && at.Before(*filter.CreatedGTE) {
		return false
	}
	if filter.CreatedLT != nil && !at.Before(*filter.CreatedLT) {
		return false
	}
	if filter.CreatedLTE != nil && at.After(*filter.CreatedLTE) {
		return false
	}
	if filter.Sender != "" && message.Sender != filter.Sender {
		return false
	}
	return true
}

// MarkAsRead appends a read receipt to every message of the conversation the
// user has not read and did not send, and returns how many were newly marked.
// Running it twice in a row marks nothing the second time.
func (m MessageRepository) MarkAsRead(conversationID, userID string, at time.Time) (int, error) {
	marked := 0
	err := m.retryUpdate(func(txn *badger.Txn) error {
		marked = 0
		prefix := []byte("msg:" + conversationID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var message domain.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &message)
			}); err != nil {
				return err
			}
			if message.Sender == userID || message.IsReadBy(userID) {
				continue
			}
			message.ReadBy = append(message.ReadBy, domain.ReadReceipt{User: userID, ReadAt: at})
			data, err := json.Marshal(message)
			if err != nil {
				return err
			}
			if err = txn.Set(it.Item().KeyCopy(nil), data); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// SoftDelete flags the message as deleted without erasing it.
// The content stays on disk; only the flag and timestamp change.
func (m MessageRepository) SoftDelete(id string, at time.Time) (domain.Message, error) {
	var message domain.Message
	err := m.retryUpdate(func(txn *badger.Txn) error {
		var err error
		message, err = getMessageByRef(txn, id)
		if err != nil {
			return err
		}
		message.IsDeleted = true
		message.DeletedAt = &at
		data, err := json.Marshal(message)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(message.ConversationID, message.CreatedAt, message.ID), data)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// Search runs a full-text query over the message contents of one conversation
// and resolves the hits back to their stored documents.
func (m MessageRepository) Search(ctx context.Context, conversationID, terms string, limit int) ([]domain.Message, error) {
	if m.index == nil {
		return nil, fmt.Errorf("%w: search index is not configured", errors.ErrInternal)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	reader, err := m.index.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(conversationID).SetField("conversation"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var ids []string
	for match, err := iterator.Next(); match != nil; match, err = iterator.Next() {
		if err != nil {
			return nil, err
		}
		if err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
			}
			return true
		}); err != nil {
			return nil, err
		}
	}

	var messages []domain.Message
	err = m.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			message, err := getMessageByRef(txn, id)
			if goerrors.Is(err, errors.ErrNotFound) {
				// Index entry outlived the document, skip it.
				continue
			}
			if err != nil {
				return err
			}
			if message.IsDeleted {
				continue
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (m MessageRepository) retryUpdate(fn func(txn *badger.Txn) error) error {
	for {
		err := m.db.Update(fn)
		if goerrors.Is(err, badger.ErrConflict) {
			m.log.Debug("Message transaction conflict, retrying")
			continue
		}
		return err
	}
}

func getMessageByRef(txn *badger.Txn, id string) (domain.Message, error) {
	refItem, err := txn.Get(messageRefKey(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, err
	}

	var key []byte
	if err = refItem.Value(func(val []byte) error {
		key = append([]byte{}, val...)
		return nil
	}); err != nil {
		return domain.Message{}, err
	}

	item, err := txn.Get(key)
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, err
	}

	var message domain.Message
	if err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &message)
	}); err != nil {
		return domain.Message{}, err
	}
	return message, nil
}
