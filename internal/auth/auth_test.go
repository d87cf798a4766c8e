package auth

import (
	"testing"

	"github.com/haasonsaas/wizardd/pkg/models"
)

func TestServiceValidateAPIKey(t *testing.T) {
	service := NewService(Config{APIKeys: []APIKeyConfig{{Key: "abc123", UserID: "user-1", Email: "user@example.com"}}})
	user, err := service.ValidateAPIKey("abc123")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user id, got %q", user.ID)
	}
	if user.Email != "user@example.com" {
		t.Fatalf("expected email, got %q", user.Email)
	}
}

func TestServiceValidateAPIKeyUnknown(t *testing.T) {
	service := NewService(Config{APIKeys: []APIKeyConfig{{Key: "abc123"}}})
	if _, err := service.ValidateAPIKey("wrong"); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestServiceDisabledWithNoConfig(t *testing.T) {
	service := NewService(Config{})
	if service.Enabled() {
		t.Fatal("expected disabled service with no JWT secret or API keys")
	}
	if _, err := service.ValidateJWT("anything"); err != ErrAuthDisabled {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
}

func TestServiceGenerateAndValidateJWT(t *testing.T) {
	service := NewService(Config{JWTSecret: "s3cr3t"})
	if !service.Enabled() {
		t.Fatal("expected service enabled with JWT secret configured")
	}
	fixture := &models.User{ID: "user-42", Email: "user@example.com"}
	token, err := service.GenerateJWT(fixture)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	user, err := service.ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if user.ID != fixture.ID {
		t.Fatalf("expected user id %q, got %q", fixture.ID, user.ID)
	}
}
