//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"fitgent/domain"
	"fitgent/errors"
)

type IConversationRepository interface {
	GetOrCreatePrivate(userA, userB string) (domain.Conversation, bool, error)
	CreateGroup(name, admin string, participants []string) (domain.Conversation, error)
	Get(id string) (domain.Conversation, error)
	ListForUser(userID string) ([]domain.Conversation, error)
	AddParticipants(id string, userIDs []string) (domain.Conversation, []string, error)
	TouchOnNewMessage(id, sender string, last domain.Message) error
	ResetUnread(id, userID string) error
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

// Keys:
//
//	conv:{id}            conversation document (JSON)
//	pconv:{lo}:{hi}      private-pair uniqueness key, value is the conversation id
//	cidx:{user}:{convID} membership index for per-user listing
func convKey(id string) []byte { return []byte("conv:" + id) }

func pairKey(userA, userB string) []byte {
	lo, hi := userA, userB
	if strings.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	return []byte("pconv:" + lo + ":" + hi)
}

func memberKey(userID, convID string) []byte {
	return []byte("cidx:" + userID + ":" + convID)
}

// update retries the transaction on Badger's serializable-snapshot conflicts.
// This is the compare-and-set that keeps concurrent unread increments and
// pair creation race-free: the losing writer re-reads and re-applies.
func (r ConversationRepository) update(fn func(txn *badger.Txn) error) error {
	for {
		err := r.db.Update(fn)
		if goerrors.Is(err, badger.ErrConflict) {
			r.log.Debug("Conversation transaction conflict, retrying")
			continue
		}
		return err
	}
}

// GetOrCreatePrivate returns the existing private conversation between the two
// users, or creates one with both unread counters at zero. The pair key and the
// document are written in the same transaction, so two concurrent calls for the
// same pair can never both create.
func (r ConversationRepository) GetOrCreatePrivate(userA, userB string) (domain.Conversation, bool, error) {
	if userA == "" || userB == "" || userA == userB {
		return domain.Conversation{}, false, fmt.Errorf("%w: a private conversation needs two distinct participants", errors.ErrValidation)
	}

	var (
		conv    domain.Conversation
		created bool
	)
	err := r.update(func(txn *badger.Txn) error {
		created = false
		pk := pairKey(userA, userB)

		item, err := txn.Get(pk)
		if err == nil {
			var id string
			if err = item.Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			conv, err = getConversation(txn, id)
			return err
		}
		if !goerrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := time.Now().UTC()
		conv = domain.Conversation{
			ID:           uuid.New().String(),
			Participants: []string{userA, userB},
			Type:         domain.ConversationPrivate,
			UnreadCount:  map[string]int{userA: 0, userB: 0},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err = putConversation(txn, conv); err != nil {
			return err
		}
		if err = txn.Set(pk, []byte(conv.ID)); err != nil {
			return err
		}
		for _, p := range conv.Participants {
			if err = txn.Set(memberKey(p, conv.ID), nil); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, created, nil
}

// CreateGroup creates a group conversation. The admin is always a participant,
// even when the caller forgot to list them.
func (r ConversationRepository) CreateGroup(name, admin string, participants []string) (domain.Conversation, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Conversation{}, fmt.Errorf("%w: a group conversation needs a name", errors.ErrValidation)
	}
	if admin == "" {
		return domain.Conversation{}, fmt.Errorf("%w: a group conversation needs an admin", errors.ErrValidation)
	}

	members := lo.Uniq(participants)
	if !lo.Contains(members, admin) {
		members = append(members, admin)
	}

	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:           uuid.New().String(),
		Participants: members,
		Type:         domain.ConversationGroup,
		Name:         strings.TrimSpace(name),
		Admin:        admin,
		UnreadCount:  make(map[string]int, len(members)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, p := range members {
		conv.UnreadCount[p] = 0
	}

	err := r.update(func(txn *badger.Txn) error {
		if err := putConversation(txn, conv); err != nil {
			return err
		}
		for _, p := range members {
			if err := txn.Set(memberKey(p, conv.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (r ConversationRepository) Get(id string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversation(txn, id)
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// ListForUser returns every conversation the user belongs to,
// newest activity first.
func (r ConversationRepository) ListForUser(userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("cidx:" + userID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			convID := string(it.Item().Key()[len(prefix):])
			conv, err := getConversation(txn, convID)
			if err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
	return conversations, nil
}

// AddParticipants appends the given users to the conversation, skipping those
// already present, and returns the users actually added. Each new member starts
// with an unread counter of zero.
func (r ConversationRepository) AddParticipants(id string, userIDs []string) (domain.Conversation, []string, error) {
	var (
		conv  domain.Conversation
		added []string
	)
	err := r.update(func(txn *badger.Txn) error {
		added = added[:0]
		var err error
		conv, err = getConversation(txn, id)
		if err != nil {
			return err
		}
		for _, userID := range lo.Uniq(userIDs) {
			if conv.HasParticipant(userID) {
				continue
			}
			conv.Participants = append(conv.Participants, userID)
			conv.UnreadCount[userID] = 0
			if err = txn.Set(memberKey(userID, conv.ID), nil); err != nil {
				return err
			}
			added = append(added, userID)
		}
		if len(added) == 0 {
			return nil
		}
		conv.UpdatedAt = time.Now().UTC()
		return putConversation(txn, conv)
	})
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	return conv, added, nil
}

// TouchOnNewMessage applies the per-message aggregate update: last message
// snapshot, unread increment for every participant except the sender, and the
// activity timestamp. Called exactly once per successful send.
func (r ConversationRepository) TouchOnNewMessage(id, sender string, last domain.Message) error {
	return r.update(func(txn *badger.Txn) error {
		conv, err := getConversation(txn, id)
		if err != nil {
			return err
		}
		conv.LastMessage = &last
		if conv.UnreadCount == nil {
			conv.UnreadCount = make(map[string]int, len(conv.Participants))
		}
		for _, p := range conv.Participants {
			if p != sender {
				conv.UnreadCount[p]++
			}
		}
		conv.UpdatedAt = last.CreatedAt
		return putConversation(txn, conv)
	})
}

func (r ConversationRepository) ResetUnread(id, userID string) error {
	return r.update(func(txn *badger.Txn) error {
		conv, err := getConversation(txn, id)
		if err != nil {
			return err
		}
		if conv.UnreadCount == nil {
			conv.UnreadCount = make(map[string]int)
		}
		conv.UnreadCount[userID] = 0
		return putConversation(txn, conv)
	})
}

func getConversation(txn *badger.Txn, id string) (domain.Conversation, error) {
	item, err := txn.Get(convKey(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}

	var conv domain.Conversation
	if err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func putConversation(txn *badger.Txn, conv domain.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return txn.Set(convKey(conv.ID), data)
}
