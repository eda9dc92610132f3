package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	m := NewManager("test-secret", time.Hour, "imara")

	token, err := m.GenerateToken("user-1", "amina", []string{"requester"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", claims.UserID)
	}
	if claims.Username != "amina" {
		t.Errorf("Username = %q, want amina", claims.Username)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "requester" {
		t.Errorf("Roles = %v, want [requester]", claims.Roles)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	m1 := NewManager("secret-one", time.Hour, "imara")
	m2 := NewManager("secret-two", time.Hour, "imara")

	token, err := m1.GenerateToken("user-1", "amina", nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := m2.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute, "imara")

	token, err := m.GenerateToken("user-1", "amina", nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := m.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("ValidateToken error = %v, want ErrExpiredToken", err)
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour, "imara")

	if _, err := m.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken error = %v, want ErrInvalidToken", err)
	}
}
