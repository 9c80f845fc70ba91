package services

import (
	"fmt"
	"time"

	"fitgent/auth"
	"fitgent/errors"
	"fitgent/repositories"
)

type IAuthService interface {
	Register(email, password, firstName, lastName string) (Token, error)
	Login(email, password string) (Token, error)
}

type AuthService struct {
	users         repositories.IUserRepository
	tokenDuration time.Duration
}

type Token string

func NewAuthService(users repositories.IUserRepository, tokenDuration time.Duration) IAuthService {
	return &AuthService{users: users, tokenDuration: tokenDuration}
}

func (s *AuthService) Register(email, password, firstName, lastName string) (Token, error) {
	valReq := auth.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: firstName,
		LastName:  lastName,
	}

	// 1. Validate business rules (email format, password complexity)
	// We check this before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash
	userID, err := s.users.Create(email, hashedPassword, firstName, lastName)
	if err != nil {
		return "", err // Will propagate ErrUserAlreadyExists if email is taken
	}

	// 4. Generate the initial session token
	user, err := s.users.GetByID(userID)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	token, err := auth.GenerateToken(user.ID, user.Role, s.tokenDuration)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	// 1. Retrieve user by email from storage
	user, err := s.users.GetByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	// 3. Issue the JWT token
	token, err := auth.GenerateToken(user.ID, user.Role, s.tokenDuration)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}
