package security

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-social-backend/internal/domain"
)

func TestTokenIssuer_SignAndAuthenticate(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Minute)
	tok, err := iss.Sign(domain.Identity{ID: 42, Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	id, err := iss.Authenticate(tok)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.ID != 42 || id.Role != domain.RoleAdmin {
		t.Fatalf("identity = %+v", id)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Minute)
	good, _ := iss.Sign(domain.Identity{ID: 1, Role: domain.RoleUser})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer("other", time.Minute)
		if _, err := other.Authenticate(good); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})
	t.Run("expired", func(t *testing.T) {
		past := NewTokenIssuer("secret", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		old, _ := past.Sign(domain.Identity{ID: 1})
		if _, err := iss.Authenticate(old); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
		}
	})
	t.Run("garbage", func(t *testing.T) {
		if _, err := iss.Authenticate("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})
	t.Run("non-hmac alg", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}})
		s, _ := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if _, err := iss.Authenticate(s); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
		}
	})
	t.Run("bad subject", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "abc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}})
		s, _ := tok.SignedString([]byte("secret"))
		if _, err := iss.Authenticate(s); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for non-numeric subject, got %v", err)
		}
	})
}

func TestRefreshTokenAndHash(t *testing.T) {
	a, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	b, _ := NewRefreshToken()
	if len(a) != 128 || a == b {
		t.Fatalf("refresh tokens should be 128 hex chars and unique: %q %q", a, b)
	}
	if h := HashToken(a); len(h) != 64 || h != HashToken(a) || h == HashToken(b) {
		t.Fatalf("HashToken not a stable sha256 hex: %q", h)
	}
}

func TestNewVerificationCode(t *testing.T) {
	re := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 20; i++ {
		c, err := NewVerificationCode()
		if err != nil || !re.MatchString(c) {
			t.Fatalf("code %q err=%v", c, err)
		}
	}
}

func TestPasswords(t *testing.T) {
	h, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if strings.Contains(h, "correct horse") {
		t.Fatalf("hash contains plaintext")
	}
	if err := CheckPassword(h, "correct horse"); err != nil {
		t.Fatalf("CheckPassword: %v", err)
	}
	if err := CheckPassword(h, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestSanitizer(t *testing.T) {
	s := NewSanitizer()
	cases := []struct{ in, want string }{
		{"  hello  ", "hello"},
		{"<b>bold</b> & more", "bold & more"},
		{"<script>alert(1)</script>hi", "hi"},
		{"a\x00b", "ab"},
		{`<img src=x onerror="alert(1)">`, ""},
		{"Tom & Jerry's \"quote\"", "Tom & Jerry's \"quote\""},
	}
	for _, tc := range cases {
		if got := s.Sanitize(tc.in); got != tc.want {
			t.Fatalf("Sanitize(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
