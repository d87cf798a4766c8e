package auth

import (
	"testing"
	"time"

	"github.com/haasonsaas/wizardd/pkg/models"
)

func TestJWTServiceGenerateValidate(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	token, err := service.Generate(&models.User{ID: "user-1", Email: "user@example.com", Name: "User"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	user, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user id, got %q", user.ID)
	}
	if user.Email != "user@example.com" {
		t.Fatalf("expected email, got %q", user.Email)
	}
	if user.Name != "User" {
		t.Fatalf("expected name, got %q", user.Name)
	}
}

func TestJWTServiceRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTService("secret-a", time.Hour)
	verifier := NewJWTService("secret-b", time.Hour)

	token, err := issuer.Generate(&models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := verifier.Validate(token); err == nil {
		t.Fatal("expected validation to fail under a different secret")
	}
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	service := NewJWTService("secret", -time.Minute)
	token, err := service.Generate(&models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := service.Validate(token); err == nil {
		t.Fatal("expected validation to fail for an expired token")
	}
}

func TestJWTServiceRequiresUserID(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	if _, err := service.Generate(&models.User{}); err == nil {
		t.Fatal("expected Generate to reject an empty user id")
	}
}
