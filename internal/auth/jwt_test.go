package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJWTRoundTrip(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()

	token, err := GenerateJWT(secret, userID, RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	claims, err := ParseJWT(secret, token)
	if err != nil {
		t.Fatalf("ParseJWT failed: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
}

func TestGenerateJWTDefaults(t *testing.T) {
	token, err := GenerateJWT("secret", uuid.New(), "", 0)
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}
	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("ParseJWT failed: %v", err)
	}
	if claims.Role != RoleUser {
		t.Errorf("Role = %q, want %q", claims.Role, RoleUser)
	}
}

func TestParseJWTRejects(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateJWT(secret, userID, RoleUser, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ParseJWT("other-secret", token); err == nil {
			t.Error("token signed with a different secret should not parse")
		}
	})

	t.Run("expired", func(t *testing.T) {
		token, err := GenerateJWT(secret, userID, RoleUser, time.Nanosecond)
		if err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
		if _, err := ParseJWT(secret, token); err == nil {
			t.Error("expired token should not parse")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ParseJWT(secret, "not.a.token"); err == nil {
			t.Error("garbage token should not parse")
		}
	})
}
