package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAccountService_Register(t *testing.T) {
	svc := NewAccountService(0)

	tests := []struct {
		name    string
		req     RegisterRequest
		want    string
		wantErr error
	}{
		{"missing name", RegisterRequest{Email: "a@b.c", Password: "password1"}, "", ErrMissingFields},
		{"missing email", RegisterRequest{Name: "Ada", Password: "password1"}, "", ErrMissingFields},
		{"short password", RegisterRequest{Name: "Ada", Email: "a@b.c", Password: "short"}, "", ErrPasswordTooWeak},
		{"ok", RegisterRequest{Name: "Ada", Email: "a@b.c", Password: "password1"}, registerSuccessMessage, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Register(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Register error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Register = %q, want %q", got, tt.want)
			}
			if tt.wantErr != nil && !IsValidationError(err) {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestAccountService_Login(t *testing.T) {
	svc := NewAccountService(0)

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "a@b.c"}); !errors.Is(err, ErrMissingLogin) {
		t.Errorf("Expected ErrMissingLogin, got %v", err)
	}
	msg, err := svc.Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "x"})
	if err != nil || msg != loginSuccessMessage {
		t.Errorf("Login = %q, %v", msg, err)
	}
}

func TestAccountService_CancelledWait(t *testing.T) {
	svc := NewAccountService(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Login(ctx, LoginRequest{Email: "a@b.c", Password: "password1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if IsValidationError(err) {
		t.Error("Cancellation is not a validation error")
	}
}
