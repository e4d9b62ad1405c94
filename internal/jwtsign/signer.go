package jwtsign

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for every verification failure. Callers map it
// to an access-denied response without revealing which check failed.
var ErrUnauthorized = errors.New("unauthorized request")

// Signer signs outgoing document-server requests and verifies inbound ones.
// Two implementations exist: HMACSigner when a shared secret is configured,
// and PassthroughSigner when signing is disabled and network-layer security
// is trusted instead. The choice is made once at startup.
type Signer interface {
	// Enabled reports whether requests are actually signed and verified.
	Enabled() bool

	// Sign produces a token over the given claims.
	Sign(claims map[string]interface{}) (string, error)

	// Verify checks a token and returns its claims.
	Verify(token string) (map[string]interface{}, error)
}

// New selects the signer variant for the configured secret.
func New(secret string, leeway time.Duration) Signer {
	if secret == "" {
		return PassthroughSigner{}
	}
	return &HMACSigner{secret: []byte(secret), leeway: leeway}
}

// HMACSigner signs with HS256 using the shared document-server secret.
type HMACSigner struct {
	secret []byte
	leeway time.Duration
}

func (s *HMACSigner) Enabled() bool { return true }

func (s *HMACSigner) Sign(claims map[string]interface{}) (string, error) {
	mapped := jwt.MapClaims{}
	for k, v := range claims {
		mapped[k] = v
	}
	if _, ok := mapped["iat"]; !ok {
		mapped["iat"] = time.Now().Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapped)
	return token.SignedString(s.secret)
}

func (s *HMACSigner) Verify(tokenString string) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithLeeway(s.leeway))
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// PassthroughSigner is the explicit no-secret mode: nothing is signed and
// every verification succeeds with no claims.
type PassthroughSigner struct{}

func (PassthroughSigner) Enabled() bool { return false }

func (PassthroughSigner) Sign(map[string]interface{}) (string, error) { return "", nil }

func (PassthroughSigner) Verify(string) (map[string]interface{}, error) { return nil, nil }

// TokenFromHeader extracts a bearer token from the named request header.
func TokenFromHeader(h http.Header, name string) (string, bool) {
	if name == "" {
		name = "Authorization"
	}
	value := h.Get(name)
	if value == "" {
		return "", false
	}
	if strings.HasPrefix(value, "Bearer ") {
		return strings.TrimPrefix(value, "Bearer "), true
	}
	return value, true
}
