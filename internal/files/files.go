package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/docbridge/docbridge/internal/database"
	"github.com/docbridge/docbridge/internal/logging"
	"github.com/docbridge/docbridge/internal/storage"
)

var (
	// ErrNotFound means the file, share or version could not be resolved.
	ErrNotFound = errors.New("file not found")

	// ErrLocked means another writer holds the file's advisory lock. It is
	// transient: callers retry with a bounded budget.
	ErrLocked = errors.New("file is locked")

	// ErrNotPermitted means the resolved share does not allow the operation.
	ErrNotPermitted = errors.New("operation not permitted")
)

// Node is a resolved file handle. It is borrowed for the duration of one
// request and never cached.
type Node struct {
	ID      int64
	UserID  string
	Path    string
	Name    string
	Size    int64
	Version int
	MTime   time.Time
}

// Ext returns the node's lowercase file extension without the dot.
func (n *Node) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(n.Name)), ".")
}

// Service resolves nodes and moves whole-file content between the metadata
// store and the content backend.
type Service struct {
	db      *gorm.DB
	backend storage.Backend
	lockTTL time.Duration
}

func NewService(db *gorm.DB, backend storage.Backend) *Service {
	return &Service{db: db, backend: backend, lockTTL: 30 * time.Minute}
}

func nodeFromRecord(f *database.File) *Node {
	return &Node{
		ID:      f.ID,
		UserID:  f.UserID,
		Path:    f.Path,
		Name:    f.Name,
		Size:    f.Size,
		Version: f.Version,
		MTime:   f.MTime,
	}
}

// NodeByID resolves a file owned by userID.
func (s *Service) NodeByID(ctx context.Context, userID string, fileID int64) (*Node, error) {
	var f database.File
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", fileID, userID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %d: %w", fileID, err)
	}
	return nodeFromRecord(&f), nil
}

// NodeByPath resolves a file by its owner-relative path.
func (s *Service) NodeByPath(ctx context.Context, userID, filePath string) (*Node, error) {
	var f database.File
	err := s.db.WithContext(ctx).Where("user_id = ? AND path = ?", userID, filePath).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", filePath, err)
	}
	return nodeFromRecord(&f), nil
}

// NodeByShare resolves a file through a public share token. A fileID of 0
// means the shared file itself; a non-zero fileID must match the share's
// target (shares point at single files, not folders).
func (s *Service) NodeByShare(ctx context.Context, token string, fileID int64) (*Node, error) {
	share, err := s.ShareByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if fileID != 0 && fileID != share.FileID {
		return nil, ErrNotPermitted
	}

	var f database.File
	err = s.db.WithContext(ctx).Where("id = ?", share.FileID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve shared file %d: %w", share.FileID, err)
	}
	return nodeFromRecord(&f), nil
}

// ShareByToken looks up a live share. Expired shares resolve as missing.
func (s *Service) ShareByToken(ctx context.Context, token string) (*database.Share, error) {
	var share database.Share
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve share: %w", err)
	}
	if share.ExpiresAt != nil && share.ExpiresAt.Before(time.Now()) {
		return nil, ErrNotFound
	}
	return &share, nil
}

// CreateShare mints a public link for a file owned by userID.
func (s *Service) CreateShare(ctx context.Context, userID string, fileID int64, canEdit bool, expiresAt *time.Time) (*database.Share, error) {
	if _, err := s.NodeByID(ctx, userID, fileID); err != nil {
		return nil, err
	}
	share := database.Share{FileID: fileID, CanEdit: canEdit, ExpiresAt: expiresAt}
	if err := s.db.WithContext(ctx).Create(&share).Error; err != nil {
		return nil, fmt.Errorf("failed to create share: %w", err)
	}
	return &share, nil
}

// DeleteShare removes a share owned by userID.
func (s *Service) DeleteShare(ctx context.Context, userID, token string) error {
	share, err := s.ShareByToken(ctx, token)
	if err != nil {
		return err
	}
	var f database.File
	if err := s.db.WithContext(ctx).Where("id = ?", share.FileID).First(&f).Error; err != nil {
		return ErrNotFound
	}
	if f.UserID != userID {
		return ErrNotPermitted
	}
	return s.db.WithContext(ctx).Delete(&database.Share{}, "token = ?", token).Error
}

// Read streams the node's current content.
func (s *Service) Read(ctx context.Context, n *Node) (io.ReadCloser, error) {
	reader, err := s.backend.Get(ctx, storage.FileContentKey(n.UserID, n.ID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return reader, nil
}

// ReadVersion streams a snapshot of a past version.
func (s *Service) ReadVersion(ctx context.Context, n *Node, version int) (io.ReadCloser, error) {
	var v database.FileVersion
	err := s.db.WithContext(ctx).Where("file_id = ? AND version = ?", n.ID, version).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	reader, err := s.backend.Get(ctx, v.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return reader, nil
}

// Write replaces the node's content. The previous content is snapshotted as
// a version first, so saves are always whole-file replace with history. A
// live advisory lock held by someone other than author fails with ErrLocked.
func (s *Service) Write(ctx context.Context, n *Node, data []byte, author string) error {
	if err := s.checkLock(ctx, n.ID, author); err != nil {
		return err
	}

	contentKey := storage.FileContentKey(n.UserID, n.ID)
	exists, err := s.backend.Exists(ctx, contentKey)
	if err != nil {
		return err
	}
	if exists {
		versionKey := storage.FileVersionKey(n.UserID, n.ID, n.Version)
		if err := s.backend.Copy(ctx, contentKey, versionKey); err != nil {
			return fmt.Errorf("failed to snapshot version %d of file %d: %w", n.Version, n.ID, err)
		}
		record := database.FileVersion{
			FileID:     n.ID,
			Version:    n.Version,
			StorageKey: versionKey,
			Author:     author,
			Size:       n.Size,
		}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record version %d of file %d: %w", n.Version, n.ID, err)
		}
	}

	if err := s.backend.Put(ctx, contentKey, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store content of file %d: %w", n.ID, err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"size":    int64(len(data)),
		"version": n.Version + 1,
		"m_time":  now,
	}
	if err := s.db.WithContext(ctx).Model(&database.File{}).Where("id = ?", n.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update metadata of file %d: %w", n.ID, err)
	}

	n.Size = int64(len(data))
	n.Version++
	n.MTime = now
	logging.Logf("[FILES] Saved file %d (v%d, %d bytes) by %s", n.ID, n.Version, len(data), author)
	return nil
}

// Create registers a new file for userID at filePath and stores its content.
func (s *Service) Create(ctx context.Context, userID, filePath string, data []byte) (*Node, error) {
	f := database.File{
		UserID: userID,
		Path:   filePath,
		Name:   path.Base(filePath),
		Size:   int64(len(data)),
		MTime:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&f).Error; err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}
	if err := s.backend.Put(ctx, storage.FileContentKey(userID, f.ID), bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to store content: %w", err)
	}
	return nodeFromRecord(&f), nil
}

// ListByUser returns all file records owned by userID.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]database.File, error) {
	var records []database.File
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("path").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Versions returns the version history of a file, newest first.
func (s *Service) Versions(ctx context.Context, fileID int64) ([]database.FileVersion, error) {
	var versions []database.FileVersion
	if err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Order("version desc").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// Lock takes the advisory lock on a file for owner.
func (s *Service) Lock(ctx context.Context, fileID int64, owner string) error {
	if err := s.checkLock(ctx, fileID, owner); err != nil {
		return err
	}
	lock := database.FileLock{FileID: fileID, Owner: owner, ExpiresAt: time.Now().Add(s.lockTTL)}
	return s.db.WithContext(ctx).Save(&lock).Error
}

// Unlock releases the advisory lock if owner holds it.
func (s *Service) Unlock(ctx context.Context, fileID int64, owner string) error {
	return s.db.WithContext(ctx).Delete(&database.FileLock{}, "file_id = ? AND owner = ?", fileID, owner).Error
}

func (s *Service) checkLock(ctx context.Context, fileID int64, owner string) error {
	var lock database.FileLock
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if lock.ExpiresAt.Before(time.Now()) {
		// stale lock left by a crashed client
		s.db.WithContext(ctx).Delete(&database.FileLock{}, "file_id = ?", fileID)
		return nil
	}
	if lock.Owner == owner {
		return nil
	}
	return ErrLocked
}
