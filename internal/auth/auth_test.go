package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIssueAndParse(t *testing.T) {
	m := NewTokenManager("secret", "carbonledger", time.Minute)
	userID := uuid.New()

	token, expiresAt, err := m.Issue(userID)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("expiry should be in the future")
	}

	got, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != userID {
		t.Fatalf("user id want %s got %s", userID, got)
	}
}

func TestParseRejects(t *testing.T) {
	m := NewTokenManager("secret", "carbonledger", time.Minute)
	userID := uuid.New()

	expired := NewTokenManager("secret", "carbonledger", -time.Minute)
	expiredToken, _, err := expired.Issue(userID)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	otherKey := NewTokenManager("other", "carbonledger", time.Minute)
	forged, _, _ := otherKey.Issue(userID)
	otherIssuer := NewTokenManager("secret", "someone-else", time.Minute)
	foreign, _, _ := otherIssuer.Issue(userID)

	for name, token := range map[string]string{
		"expired":      expiredToken,
		"wrong key":    forged,
		"wrong issuer": foreign,
		"garbage":      "not-a-token",
	} {
		if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: want ErrInvalidToken got %v", name, err)
		}
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("hash should not equal plaintext")
	}
	if !CheckPassword(hash, "correct horse") {
		t.Fatal("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("expected mismatch")
	}
}
