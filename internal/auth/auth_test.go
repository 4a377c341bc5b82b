package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"simple-bank/internal/domain"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "secret" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("Hash() returned %q", hash)
	}
	if !h.Verify("secret", hash) {
		t.Fatal("Verify() rejected the right password")
	}
	if h.Verify("wrong", hash) {
		t.Fatal("Verify() accepted a wrong password")
	}
	if h.Verify("secret", "not-a-bcrypt-hash") {
		t.Fatal("Verify() accepted a malformed hash")
	}
}

func TestPasswordHasherFallsBackToDefaultCost(t *testing.T) {
	if got := NewPasswordHasher(99).cost; got != bcrypt.DefaultCost {
		t.Fatalf("cost=%d want=%d", got, bcrypt.DefaultCost)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("s3cr3t", "simple-bank", time.Hour)

	raw, err := tm.Generate("ana@x.com", domain.RoleUser)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	claims, err := tm.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Email != "ana@x.com" || claims.Subject != "ana@x.com" || claims.Role != domain.RoleUser {
		t.Fatalf("claims=%+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Fatalf("token lifetime=%v want 1h", got)
	}
}

func TestTokenRejections(t *testing.T) {
	tm := NewTokenManager("s3cr3t", "simple-bank", time.Hour)
	raw, err := tm.Generate("ana@x.com", domain.RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other", "simple-bank", time.Hour)
		if _, err := other.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		late := NewTokenManager("s3cr3t", "simple-bank", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		if _, err := late.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want ErrInvalidToken", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenManager("s3cr3t", "someone-else", time.Hour)
		if _, err := other.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want ErrInvalidToken", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := tm.Parse("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("err=%v want ErrInvalidToken", err)
		}
	})
}
