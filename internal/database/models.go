package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a file owner. IDs are the platform's unique user identifiers, the
// same strings that appear (instance-prefixed) in callback payloads.
type User struct {
	ID          string `gorm:"primaryKey" json:"id"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `gorm:"default:false" json:"is_admin"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Files []File `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// File is the metadata row for a stored document. Content lives in the
// storage backend under a key derived from (owner, id); bytes are never
// stored in the database.
type File struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"index;uniqueIndex:idx_owner_path;not null" json:"user_id"`
	Path   string `gorm:"uniqueIndex:idx_owner_path;not null" json:"path"`
	Name   string `gorm:"not null" json:"name"`
	Size   int64  `json:"size"`

	// Version counts saves; MTime is the content-modification marker the
	// revision key is derived from.
	Version int       `gorm:"default:0" json:"version"`
	MTime   time.Time `json:"mtime"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Shares   []Share       `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE" json:"-"`
	Versions []FileVersion `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE" json:"-"`
}

// Share is a public link to a file. Its token is the capability presented by
// unauthenticated editor sessions.
type Share struct {
	Token     string     `gorm:"primaryKey" json:"token"`
	FileID    int64      `gorm:"index;not null" json:"file_id"`
	CanEdit   bool       `gorm:"default:false" json:"can_edit"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// BeforeCreate assigns a random token if none was set.
func (s *Share) BeforeCreate(tx *gorm.DB) error {
	if s.Token == "" {
		s.Token = uuid.NewString()
	}
	return nil
}

// FileVersion records a content snapshot taken before each overwrite.
type FileVersion struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID     int64     `gorm:"index;not null" json:"file_id"`
	Version    int       `gorm:"not null" json:"version"`
	StorageKey string    `gorm:"not null" json:"-"`
	Author     string    `json:"author"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// FileLock is an advisory lock row. A save callback that finds a live lock
// backs off and retries; locks expire on their own so a crashed client
// cannot wedge a file forever.
type FileLock struct {
	FileID    int64     `gorm:"primaryKey" json:"file_id"`
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
