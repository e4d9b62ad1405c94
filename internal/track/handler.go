package track

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/dockey"
	"github.com/docbridge/docbridge/internal/files"
	"github.com/docbridge/docbridge/internal/hashtoken"
	"github.com/docbridge/docbridge/internal/jwtsign"
	"github.com/docbridge/docbridge/internal/logging"
	"github.com/docbridge/docbridge/internal/security"
	"github.com/docbridge/docbridge/internal/storage"
)

const (
	// saveAttempts is the total write budget under lock contention. The
	// document server redelivers the callback if we ultimately fail.
	saveAttempts = 4
	saveBackoff  = 500 * time.Millisecond
)

// FileService is the slice of the file collaborator the protocol needs.
type FileService interface {
	NodeByID(ctx context.Context, userID string, fileID int64) (*files.Node, error)
	NodeByPath(ctx context.Context, userID, filePath string) (*files.Node, error)
	NodeByShare(ctx context.Context, token string, fileID int64) (*files.Node, error)
	Read(ctx context.Context, n *files.Node) (io.ReadCloser, error)
	ReadVersion(ctx context.Context, n *files.Node, version int) (io.ReadCloser, error)
	Write(ctx context.Context, n *files.Node, data []byte, author string) error
}

// DocumentClient is the slice of the document-server client the protocol
// needs.
type DocumentClient interface {
	RequestConversion(ctx context.Context, sourceURL, fromExt, toExt, key string) (string, error)
	FetchContent(ctx context.Context, url string) ([]byte, error)
}

// Handler serves the document server's callback endpoints: file download,
// empty-template download, and the track state machine.
type Handler struct {
	codec     *hashtoken.Codec
	signer    jwtsign.Signer
	files     FileService
	client    DocumentClient
	templates storage.Backend
	cfg       config.Settings
	sleep     func(time.Duration)
}

func NewHandler(codec *hashtoken.Codec, signer jwtsign.Signer, fileSvc FileService, client DocumentClient, templates storage.Backend, cfg config.Settings) *Handler {
	return &Handler{
		codec:     codec,
		signer:    signer,
		files:     fileSvc,
		client:    client,
		templates: templates,
		cfg:       cfg,
		sleep:     time.Sleep,
	}
}

// Event is a track callback payload.
type Event struct {
	Key    string   `json:"key"`
	Status int      `json:"status"`
	URL    string   `json:"url"`
	Users  []string `json:"users"`
	Token  string   `json:"token,omitempty"`
}

// Download serves file bytes for a download hash token.
func (h *Handler) Download(c *gin.Context) {
	fields, ok := h.decodeAction(c, hashtoken.ActionDownload)
	if !ok {
		return
	}
	if !h.authorizeServerRequest(c) {
		return
	}

	ctx := c.Request.Context()
	node, err := h.resolveDownload(ctx, fields)
	if err != nil {
		respondResolveError(c, err)
		return
	}

	var reader io.ReadCloser
	if fields.Version > 0 && fields.Version < node.Version {
		reader, err = h.files.ReadVersion(ctx, node, fields.Version)
	} else {
		reader, err = h.files.Read(ctx, node)
	}
	if err != nil {
		respondResolveError(c, err)
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to read file"})
		return
	}

	contentType := mimetype.Detect(data).String()
	c.Header("Content-Disposition", `attachment; filename="`+node.Name+`"`)
	c.Data(http.StatusOK, contentType, data)
}

// Direct resolves a direct-edit token and redirects to the editor page for
// the file it names. The token stands in for a session: holders open the
// editor without logging in first.
func (h *Handler) Direct(c *gin.Context) {
	fields, ok := h.decodeAction(c, hashtoken.ActionDirect)
	if !ok {
		return
	}

	node, err := h.resolveDownload(c.Request.Context(), fields)
	if err != nil {
		respondResolveError(c, err)
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/editor?fileId=%d", h.cfg.BaseURL, node.ID))
}

// Empty serves the canned new-document template named by an empty token.
func (h *Handler) Empty(c *gin.Context) {
	fields, ok := h.decodeAction(c, hashtoken.ActionEmpty)
	if !ok {
		return
	}
	if !h.authorizeServerRequest(c) {
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(fields.FilePath)), ".")
	if ext == "" {
		ext = "docx"
	}

	reader, err := h.templates.Get(c.Request.Context(), storage.EmptyTemplateKey(ext))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to read template"})
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to read template"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="new.`+ext+`"`)
	c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
}

// Track is the editing-lifecycle callback. Business failures never change
// the HTTP status: the document server keys its redelivery logic off the
// {"error": 0|1} body, so everything past authentication answers 200.
func (h *Handler) Track(c *gin.Context) {
	fields, ok := h.decodeAction(c, hashtoken.ActionTrack)
	if !ok {
		return
	}

	var ev Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	if h.signer.Enabled() {
		verified, ok := h.verifyEvent(c, ev)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
			return
		}
		ev = verified
	}

	status := Status(ev.Status)
	logging.Logf("[TRACK] file %d: status %d (%s), key %s", fields.FileID, ev.Status, status, ev.Key)

	switch status {
	case StatusEditing, StatusClosed:
		c.JSON(http.StatusOK, gin.H{"error": 0})

	case StatusNotFound:
		// the server lost the session without producing content; there is
		// nothing to persist, so acknowledge instead of forcing redelivery
		logging.Logf("[TRACK] file %d: session not found on document server", fields.FileID)
		c.JSON(http.StatusOK, gin.H{"error": 0})

	case StatusMustSave, StatusCorrupted:
		if ev.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Url not found"})
			return
		}
		if len(ev.Users) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
			return
		}
		if err := h.save(c.Request.Context(), fields, ev); err != nil {
			logging.Logf("[TRACK] file %d: save failed: %v", fields.FileID, err)
			c.JSON(http.StatusOK, gin.H{"error": 1})
			return
		}
		c.JSON(http.StatusOK, gin.H{"error": 0})

	default:
		logging.Logf("[TRACK] file %d: unhandled status %d", fields.FileID, ev.Status)
		c.JSON(http.StatusOK, gin.H{"error": 1})
	}
}

// decodeAction decodes the doc query token and checks it grants the
// endpoint's action. Decode failures answer 403, wrong actions 400.
func (h *Handler) decodeAction(c *gin.Context, want hashtoken.Action) (hashtoken.Fields, bool) {
	fields, err := h.codec.Decode(c.Query("doc"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
		return hashtoken.Fields{}, false
	}
	if fields.Action != want {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return hashtoken.Fields{}, false
	}
	return fields, true
}

// authorizeServerRequest requires a verified bearer token on direct
// server-to-server calls. Requests from an authenticated user session are
// exempt, as is everything when signing is disabled.
func (h *Handler) authorizeServerRequest(c *gin.Context) bool {
	if !h.signer.Enabled() {
		return true
	}
	if _, hasSession := c.Get("user"); hasSession {
		return true
	}
	token, ok := jwtsign.TokenFromHeader(c.Request.Header, h.cfg.JWTHeader)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
		return false
	}
	if _, err := h.signer.Verify(token); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
		return false
	}
	return true
}

// verifyEvent authenticates a track payload. A token embedded in the body
// is preferred; otherwise the configured header must carry one wrapping the
// payload. The verified claims replace the raw request fields.
func (h *Handler) verifyEvent(c *gin.Context, ev Event) (Event, bool) {
	if ev.Token != "" {
		claims, err := h.signer.Verify(ev.Token)
		if err != nil {
			return Event{}, false
		}
		return eventFromClaims(claims)
	}

	token, ok := jwtsign.TokenFromHeader(c.Request.Header, h.cfg.JWTHeader)
	if !ok {
		return Event{}, false
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		return Event{}, false
	}
	payload, ok := claims["payload"].(map[string]interface{})
	if !ok {
		return Event{}, false
	}
	return eventFromClaims(payload)
}

func eventFromClaims(claims map[string]interface{}) (Event, bool) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, false
	}
	return ev, true
}

// save is the persistence path: resolve the target file, convert if the
// callback content is in a different format, fetch the bytes and write them
// with a bounded retry on lock contention.
func (h *Handler) save(ctx context.Context, fields hashtoken.Fields, ev Event) error {
	actingUser := stripInstancePrefix(ev.Users[0], h.cfg.InstanceID)

	node, err := h.resolveTarget(ctx, fields, actingUser)
	if err != nil {
		return err
	}

	if err := security.ValidateURL(ev.URL); err != nil {
		return err
	}

	fetchURL := ev.URL
	urlExt := extensionOf(ev.URL)
	if urlExt != "" && urlExt != node.Ext() {
		key := dockey.Generate(fmt.Sprintf("%d%s", node.ID, ev.URL))
		converted, err := h.client.RequestConversion(ctx, ev.URL, urlExt, node.Ext(), key)
		if err != nil {
			return err
		}
		fetchURL = converted
	}

	data, err := h.client.FetchContent(ctx, fetchURL)
	if err != nil {
		return err
	}

	var writeErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		writeErr = h.files.Write(ctx, node, data, actingUser)
		if !errors.Is(writeErr, files.ErrLocked) {
			break
		}
		if attempt < saveAttempts {
			logging.Logf("[TRACK] file %d locked, retrying (%d/%d)", node.ID, attempt, saveAttempts)
			h.sleep(saveBackoff)
		}
	}
	return writeErr
}

// resolveTarget picks the file a save callback applies to. The link-minting
// user's own edits land at the exact embedded path, even if the file was
// renamed since the link was minted; otherwise the acting user's file id is
// tried, falling back to the token owner.
func (h *Handler) resolveTarget(ctx context.Context, fields hashtoken.Fields, actingUser string) (*files.Node, error) {
	if fields.ShareToken != "" {
		return h.files.NodeByShare(ctx, fields.ShareToken, fields.FileID)
	}

	if actingUser != "" && actingUser == fields.UserID && fields.FilePath != "" {
		if node, err := h.files.NodeByPath(ctx, fields.UserID, fields.FilePath); err == nil {
			return node, nil
		}
	}
	if actingUser != "" {
		if node, err := h.files.NodeByID(ctx, actingUser, fields.FileID); err == nil {
			return node, nil
		}
	}
	if fields.UserID != "" && fields.UserID != actingUser {
		return h.files.NodeByID(ctx, fields.UserID, fields.FileID)
	}
	return nil, files.ErrNotFound
}

func (h *Handler) resolveDownload(ctx context.Context, fields hashtoken.Fields) (*files.Node, error) {
	if fields.ShareToken != "" {
		return h.files.NodeByShare(ctx, fields.ShareToken, fields.FileID)
	}
	if fields.FileID != 0 {
		return h.files.NodeByID(ctx, fields.UserID, fields.FileID)
	}
	if fields.FilePath != "" {
		return h.files.NodeByPath(ctx, fields.UserID, fields.FilePath)
	}
	return nil, files.ErrNotFound
}

func respondResolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, files.ErrNotPermitted):
		c.JSON(http.StatusForbidden, gin.H{"message": "Access denied"})
	case errors.Is(err, files.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "File not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal error"})
	}
}

// stripInstancePrefix removes the multi-instance prefix from a user id sent
// by the document server.
func stripInstancePrefix(userID, instanceID string) string {
	if instanceID == "" {
		return userID
	}
	return strings.TrimPrefix(userID, instanceID+"_")
}

func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
}
