package dockey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MaxLength is the document server's limit on key length. Hex-encoded
// SHA-256 output is 64 characters, comfortably under it.
const MaxLength = 128

// Generate derives the opaque revision key the document server uses to
// identify a document session. It is deterministic: the same seed always
// maps to the same key, across processes and restarts, which is what makes
// repeated conversions and redelivered callbacks idempotent.
func Generate(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// ForFile keys a file's current content state by id and modification time.
func ForFile(fileID int64, mtime time.Time) string {
	return Generate(fmt.Sprintf("%d_%d", fileID, mtime.Unix()))
}

// ForVersion keys a historical version of a file.
func ForVersion(fileID int64, version int) string {
	return Generate(fmt.Sprintf("%d_v%d", fileID, version))
}
