package hashtoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Action describes what the holder of a token is allowed to do.
type Action string

const (
	ActionDownload Action = "download"
	ActionEmpty    Action = "empty"
	ActionTrack    Action = "track"
	ActionDirect   Action = "direct"
)

// Fields is the payload sealed inside a hash token. Tokens stand in for
// server-side session state: the document server receives them embedded in
// URLs and presents them back unmodified.
type Fields struct {
	Action     Action `json:"action"`
	FileID     int64  `json:"fileId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	FilePath   string `json:"filePath,omitempty"`
	ShareToken string `json:"shareToken,omitempty"`
	Version    int    `json:"version,omitempty"`
	Changes    bool   `json:"changes,omitempty"`
	Template   bool   `json:"template,omitempty"`
}

// ErrInvalidToken is returned for every decode failure. The cause is never
// distinguished so a caller probing with forged tokens learns nothing.
var ErrInvalidToken = errors.New("invalid token")

const nonceSize = 12

// Codec encrypts and authenticates hash tokens with AES-256-GCM. The key is
// derived from the installation secret, so the same codec mints and verifies
// and tokens stay valid across restarts.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the token key from the installation secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("hashtoken: empty secret")
	}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("docbridge-hashtoken-v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encode seals the fields into an opaque URL-safe token.
func (c *Codec) Encode(f Fields) (string, error) {
	plaintext, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token minted by Encode. Any malformed, truncated or
// tampered input fails with ErrInvalidToken and no partial data.
func (c *Codec) Decode(token string) (Fields, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) <= nonceSize {
		return Fields{}, ErrInvalidToken
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return Fields{}, ErrInvalidToken
	}
	var f Fields
	if err := json.Unmarshal(plaintext, &f); err != nil {
		return Fields{}, ErrInvalidToken
	}
	return f, nil
}
