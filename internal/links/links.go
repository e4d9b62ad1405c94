package links

import (
	"fmt"
	"net/url"

	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/hashtoken"
)

// Builder mints the URLs handed to the document server. Every link embeds a
// hash token; the token is the only state the server needs to present back.
type Builder struct {
	codec *hashtoken.Codec
	cfg   config.Settings
}

func NewBuilder(codec *hashtoken.Codec, cfg config.Settings) *Builder {
	return &Builder{codec: codec, cfg: cfg}
}

// DownloadOptions selects what a download link points at.
type DownloadOptions struct {
	FileID     int64
	UserID     string
	FilePath   string
	ShareToken string
	Version    int
	Changes    bool
	Template   bool
}

// Download mints a link the document server can fetch file content from.
// Unless it is a changes link, the link is rewritten to the storage-facing
// address when one is configured.
func (b *Builder) Download(opts DownloadOptions) (string, error) {
	token, err := b.codec.Encode(hashtoken.Fields{
		Action:     hashtoken.ActionDownload,
		FileID:     opts.FileID,
		UserID:     opts.UserID,
		FilePath:   opts.FilePath,
		ShareToken: opts.ShareToken,
		Version:    opts.Version,
		Changes:    opts.Changes,
		Template:   opts.Template,
	})
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/editor/download?doc=%s", b.cfg.BaseURL, url.QueryEscape(token))
	if opts.Changes {
		return link, nil
	}
	return b.cfg.ReplaceStorageURL(link), nil
}

// Callback mints the track URL embedded in editor configuration. The
// document server calls it to report editing lifecycle events.
func (b *Builder) Callback(fileID int64, userID, filePath, shareToken string) (string, error) {
	token, err := b.codec.Encode(hashtoken.Fields{
		Action:     hashtoken.ActionTrack,
		FileID:     fileID,
		UserID:     userID,
		FilePath:   filePath,
		ShareToken: shareToken,
	})
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/editor/track?doc=%s", b.cfg.BaseURL, url.QueryEscape(token))
	return b.cfg.ReplaceStorageURL(link), nil
}

// Direct mints a link that opens the editor on a file without an existing
// session; the token carries the identity the editor page resolves against.
func (b *Builder) Direct(fileID int64, userID, filePath string) (string, error) {
	token, err := b.codec.Encode(hashtoken.Fields{
		Action:   hashtoken.ActionDirect,
		FileID:   fileID,
		UserID:   userID,
		FilePath: filePath,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/editor/direct?doc=%s", b.cfg.BaseURL, url.QueryEscape(token)), nil
}

// Empty mints a link serving the canned new-document template for ext.
func (b *Builder) Empty(ext string) (string, error) {
	token, err := b.codec.Encode(hashtoken.Fields{
		Action:   hashtoken.ActionEmpty,
		FilePath: "new." + ext,
	})
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/editor/empty?doc=%s", b.cfg.BaseURL, url.QueryEscape(token))
	return b.cfg.ReplaceStorageURL(link), nil
}
