package service

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"
)

// Account validation failures
var (
	ErrMissingFields   = errors.New("All fields are required")
	ErrPasswordTooWeak = errors.New("Password must be at least 8 characters")
	ErrMissingLogin    = errors.New("Email and password are required")
)

const (
	registerSuccessMessage = "Registration successful! Welcome to CryptoVerse."
	loginSuccessMessage    = "Login successful! Welcome back."
	minPasswordLength      = 8
)

// RegisterRequest is the sign-up form
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the sign-in form
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountService simulates the sign-up and sign-in flows. Nothing is stored.
type AccountService struct {
	latency time.Duration
	logger  *slog.Logger
}

// NewAccountService creates a simulator that answers after latency.
func NewAccountService(latency time.Duration) *AccountService {
	return &AccountService{
		latency: latency,
		logger:  slog.Default().With("module", "account"),
	}
}

// Register validates req and returns the welcome message.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return "", ErrMissingFields
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return "", ErrPasswordTooWeak
	}
	if err := s.wait(ctx); err != nil {
		return "", err
	}

	s.logger.Info("Account registered")
	return registerSuccessMessage, nil
}

// Login validates req and returns the welcome-back message.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (string, error) {
	if req.Email == "" || req.Password == "" {
		return "", ErrMissingLogin
	}
	if err := s.wait(ctx); err != nil {
		return "", err
	}

	s.logger.Info("Account signed in")
	return loginSuccessMessage, nil
}

// IsValidationError reports whether err is a form validation failure
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrPasswordTooWeak) ||
		errors.Is(err, ErrMissingLogin)
}

func (s *AccountService) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
