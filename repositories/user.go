//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"fitgent/domain"
	"fitgent/errors"
)

type IUserRepository interface {
	Create(email, hashedPassword, firstName, lastName string) (string, error)
	GetByEmail(email string) (domain.User, error)
	GetByID(id string) (domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

func userKey(email string) []byte { return []byte("user:" + email) }
func userRefKey(id string) []byte { return []byte("uref:" + id) }

// Create persists the user and returns the newly generated user id.
// The email key doubles as the uniqueness constraint.
func (u UserRepository) Create(email, hashedPassword, firstName, lastName string) (string, error) {
	user := domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashedPassword,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         domain.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := marshalUser(user)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(userRefKey(user.ID), []byte(email))
	})
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func (u UserRepository) GetByEmail(email string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUserByEmail(txn, email)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u UserRepository) GetByID(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		refItem, err := txn.Get(userRefKey(id))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		var email string
		if err = refItem.Value(func(val []byte) error {
			email = string(val)
			return nil
		}); err != nil {
			return err
		}
		user, err = getUserByEmail(txn, email)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func getUserByEmail(txn *badger.Txn, email string) (domain.User, error) {
	item, err := txn.Get(userKey(email))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("%w: no account for this email", errors.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}

	var stored storedUser
	if err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	}); err != nil {
		return domain.User{}, err
	}
	return stored.toUser(), nil
}

// storedUser is the disk shape: unlike the API shape, it must keep the
// password hash.
type storedUser struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"passwordHash"`
	FirstName    string      `json:"firstName"`
	LastName     string      `json:"lastName"`
	Role         domain.Role `json:"role"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func (s storedUser) toUser() domain.User {
	return domain.User{
		ID:           s.ID,
		Email:        s.Email,
		PasswordHash: s.PasswordHash,
		FirstName:    s.FirstName,
		LastName:     s.LastName,
		Role:         s.Role,
		CreatedAt:    s.CreatedAt,
	}
}

func marshalUser(user domain.User) ([]byte, error) {
	return json.Marshal(storedUser{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         user.Role,
		CreatedAt:    user.CreatedAt,
	})
}
