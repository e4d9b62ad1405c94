package jwtsign

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s := New("shared-secret", time.Minute)
	if !s.Enabled() {
		t.Fatal("signer with secret should be enabled")
	}

	token, err := s.Sign(map[string]interface{}{"status": float64(2), "key": "abc123"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims["status"] != float64(2) || claims["key"] != "abc123" {
		t.Fatalf("unexpected claims: %v", claims)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	a := New("secret-a", 0)
	b := New("secret-b", 0)

	token, err := a.Sign(map[string]interface{}{"url": "https://ds/file.docx"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	s := New("shared-secret", 0)
	for _, token := range []string{"", "x", "a.b.c"} {
		if _, err := s.Verify(token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Verify(%q): want ErrUnauthorized, got %v", token, err)
		}
	}
}

func TestExpiryLeeway(t *testing.T) {
	strict := New("shared-secret", 0)
	lenient := New("shared-secret", time.Minute)

	expired, err := strict.Sign(map[string]interface{}{
		"exp": time.Now().Add(-30 * time.Second).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := strict.Verify(expired); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("strict signer should reject expired token, got %v", err)
	}
	if _, err := lenient.Verify(expired); err != nil {
		t.Fatalf("leeway should cover 30s of skew: %v", err)
	}
}

func TestPassthroughMode(t *testing.T) {
	s := New("", time.Minute)
	if s.Enabled() {
		t.Fatal("signer without secret should be disabled")
	}
	token, err := s.Sign(map[string]interface{}{"a": 1})
	if err != nil || token != "" {
		t.Fatalf("passthrough Sign = (%q, %v)", token, err)
	}
	if _, err := s.Verify("anything"); err != nil {
		t.Fatalf("passthrough Verify: %v", err)
	}
}

func TestTokenFromHeader(t *testing.T) {
	h := http.Header{}
	if _, ok := TokenFromHeader(h, "Authorization"); ok {
		t.Fatal("empty header should not yield a token")
	}

	h.Set("Authorization", "Bearer tok123")
	if tok, ok := TokenFromHeader(h, ""); !ok || tok != "tok123" {
		t.Fatalf("got (%q, %t)", tok, ok)
	}

	h.Set("X-Docs-Auth", "raw456")
	if tok, ok := TokenFromHeader(h, "X-Docs-Auth"); !ok || tok != "raw456" {
		t.Fatalf("custom header: got (%q, %t)", tok, ok)
	}
}
