package auth

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	assert.Equal(t, true, svc.ValidateToken(token, "alice"))
	// a token is only valid for the identity it was issued to
	assert.Equal(t, false, svc.ValidateToken(token, "bob"))
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	assert.Equal(t, false, svc.ValidateToken("", "alice"))
	assert.Equal(t, false, svc.ValidateToken("not.a.jwt", "alice"))
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)

	token, err := issuer.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	assert.Equal(t, false, verifier.ValidateToken(token, "alice"))
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewService("test-secret", -time.Minute)

	token, err := svc.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	assert.Equal(t, false, svc.ValidateToken(token, "alice"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	assert.Equal(t, true, CheckPassword(hash, "hunter2"))
	assert.Equal(t, false, CheckPassword(hash, "hunter3"))
	assert.Equal(t, false, CheckPassword(nil, "hunter2"))
}
