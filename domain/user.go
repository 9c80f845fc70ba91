package domain

import "time"

type Role string

const (
	RoleUser    Role = "user"
	RoleTrainer Role = "trainer"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Actor is the authenticated identity attached to every request
// by the auth middleware.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsPlatformAdmin() bool { return a.Role == RoleAdmin }
