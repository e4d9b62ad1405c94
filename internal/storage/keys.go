package storage

import "fmt"

// FileContentKey is where a file's current content lives.
func FileContentKey(userID string, fileID int64) string {
	return fmt.Sprintf("users/%s/files/%d", userID, fileID)
}

// FileVersionKey is where a snapshot of a past version lives.
func FileVersionKey(userID string, fileID int64, version int) string {
	return fmt.Sprintf("users/%s/versions/%d/%d", userID, fileID, version)
}

// EmptyTemplateKey is where the canned new-document template for an
// extension lives.
func EmptyTemplateKey(ext string) string {
	return fmt.Sprintf("templates/new.%s", ext)
}
