package files

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docbridge/docbridge/internal/auth"
	"github.com/docbridge/docbridge/internal/logging"
)

// maxUploadSize bounds a single uploaded document.
const maxUploadSize = 256 << 20

// Handler exposes the file and share surface to authenticated sessions.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List answers GET /api/files.
func (h *Handler) List(c *gin.Context) {
	records, err := h.svc.ListByUser(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list files"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": records})
}

// Upload answers POST /api/files: multipart upload of a new document.
func (h *Handler) Upload(c *gin.Context) {
	user := auth.CurrentUser(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}
	if int64(len(data)) > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	filePath := c.PostForm("path")
	if filePath == "" {
		filePath = "/" + path.Base(fileHeader.Filename)
	}

	node, err := h.svc.Create(c.Request.Context(), user, filePath, data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}
	logging.Logf("[FILES] %s uploaded %s (%d bytes)", user, node.Path, node.Size)
	c.JSON(http.StatusCreated, gin.H{"id": node.ID, "path": node.Path, "size": node.Size})
}

// Versions answers GET /api/files/:id/versions.
func (h *Handler) Versions(c *gin.Context) {
	fileID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
		return
	}

	// ownership check before exposing history
	if _, err := h.svc.NodeByID(c.Request.Context(), auth.CurrentUser(c), fileID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	versions, err := h.svc.Versions(c.Request.Context(), fileID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list versions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

type createShareRequest struct {
	FileID    int64      `json:"fileId" binding:"required"`
	CanEdit   bool       `json:"canEdit"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// CreateShare answers POST /api/shares.
func (h *Handler) CreateShare(c *gin.Context) {
	var req createShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	share, err := h.svc.CreateShare(c.Request.Context(), auth.CurrentUser(c), req.FileID, req.CanEdit, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create share"})
		return
	}
	c.JSON(http.StatusCreated, share)
}

// DeleteShare answers DELETE /api/shares/:token.
func (h *Handler) DeleteShare(c *gin.Context) {
	err := h.svc.DeleteShare(c.Request.Context(), auth.CurrentUser(c), c.Param("token"))
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Share not found"})
	case errors.Is(err, ErrNotPermitted):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not permitted"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete share"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
