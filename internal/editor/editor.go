package editor

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docbridge/docbridge/internal/auth"
	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/dockey"
	"github.com/docbridge/docbridge/internal/files"
	"github.com/docbridge/docbridge/internal/jobs"
	"github.com/docbridge/docbridge/internal/jwtsign"
	"github.com/docbridge/docbridge/internal/links"
	"github.com/docbridge/docbridge/internal/logging"
)

// documentTypes maps file extensions to the editor component that opens them.
var documentTypes = map[string]string{
	"docx": "word", "doc": "word", "odt": "word", "rtf": "word", "txt": "word",
	"xlsx": "cell", "xls": "cell", "ods": "cell", "csv": "cell",
	"pptx": "slide", "ppt": "slide", "odp": "slide",
	"pdf": "word",
}

// DocumentType returns the editor component name for an extension, or "" when
// the format is not editable.
func DocumentType(ext string) string {
	return documentTypes[strings.ToLower(ext)]
}

// Converter is the slice of the document-server client conversion needs.
type Converter interface {
	RequestConversion(ctx context.Context, sourceURL, fromExt, toExt, key string) (string, error)
	FetchContent(ctx context.Context, url string) ([]byte, error)
}

// FileService is the file collaborator surface used here.
type FileService interface {
	NodeByID(ctx context.Context, userID string, fileID int64) (*files.Node, error)
	Create(ctx context.Context, userID, filePath string, data []byte) (*files.Node, error)
}

// Handler builds editor session configuration and runs on-demand conversions.
type Handler struct {
	files  FileService
	links  *links.Builder
	signer jwtsign.Signer
	client Converter
	jobs   *jobs.Store
	cfg    config.Settings
}

func NewHandler(fileSvc FileService, linkBuilder *links.Builder, signer jwtsign.Signer, client Converter, jobStore *jobs.Store, cfg config.Settings) *Handler {
	return &Handler{
		files:  fileSvc,
		links:  linkBuilder,
		signer: signer,
		client: client,
		jobs:   jobStore,
		cfg:    cfg,
	}
}

// Config answers GET /api/editor/config: everything the browser-side editor
// needs to open a document against this service.
func (h *Handler) Config(c *gin.Context) {
	user := auth.CurrentUser(c)

	fileID, err := strconv.ParseInt(c.Query("fileId"), 10, 64)
	if err != nil || fileID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid fileId"})
		return
	}

	node, err := h.files.NodeByID(c.Request.Context(), user, fileID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	docType := DocumentType(node.Ext())
	if docType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported format"})
		return
	}

	downloadURL, err := h.links.Download(links.DownloadOptions{
		FileID:   node.ID,
		UserID:   node.UserID,
		FilePath: node.Path,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build links"})
		return
	}
	callbackURL, err := h.links.Callback(node.ID, node.UserID, node.Path, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build links"})
		return
	}

	// The key changes whenever the content does, forcing the document server
	// to drop any cached editing session for the old revision.
	cfg := map[string]interface{}{
		"documentType": docType,
		"document": map[string]interface{}{
			"fileType": node.Ext(),
			"key":      dockey.ForFile(node.ID, node.MTime),
			"title":    node.Name,
			"url":      downloadURL,
			"permissions": map[string]interface{}{
				"edit":     true,
				"download": true,
			},
		},
		"editorConfig": map[string]interface{}{
			"callbackUrl": callbackURL,
			"mode":        "edit",
			"user": map[string]interface{}{
				"id":   node.UserID,
				"name": node.UserID,
			},
		},
	}

	if h.signer.Enabled() {
		token, err := h.signer.Sign(cfg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign config"})
			return
		}
		cfg["token"] = token
	}

	c.JSON(http.StatusOK, gin.H{
		"config":            cfg,
		"documentServerUrl": h.cfg.DocumentServerURL,
	})
}

type convertRequest struct {
	FileID    int64  `json:"fileId" binding:"required"`
	TargetExt string `json:"targetExt" binding:"required"`
}

// Convert answers POST /api/editor/convert: kick off an asynchronous
// conversion of a stored file into another format. The result is saved as a
// sibling file; progress is polled on the status endpoint.
func (h *Handler) Convert(c *gin.Context) {
	user := auth.CurrentUser(c)

	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	targetExt := strings.ToLower(strings.TrimPrefix(req.TargetExt, "."))
	if DocumentType(targetExt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported target format"})
		return
	}

	node, err := h.files.NodeByID(c.Request.Context(), user, req.FileID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if node.Ext() == targetExt {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is already in the target format"})
		return
	}

	sourceURL, err := h.links.Download(links.DownloadOptions{
		FileID:   node.ID,
		UserID:   node.UserID,
		FilePath: node.Path,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build links"})
		return
	}

	jobID := uuid.NewString()
	h.jobs.Create(jobID)

	go h.runConversion(jobID, node, sourceURL, targetExt, user)

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

func (h *Handler) runConversion(jobID string, node *files.Node, sourceURL, targetExt, user string) {
	deadline := h.cfg.ConvertTimeout + h.cfg.RequestTimeout
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	h.jobs.UpdateWithOperation(jobID, "running", "Converting document", nil, "converting")

	key := dockey.Generate(strconv.FormatInt(node.ID, 10) + sourceURL + targetExt)
	resultURL, err := h.client.RequestConversion(ctx, sourceURL, node.Ext(), targetExt, key)
	if err != nil {
		logging.Logf("[CONVERT] job %s: conversion failed: %v", jobID, err)
		h.jobs.Update(jobID, "error", err.Error(), nil)
		return
	}

	h.jobs.UpdateProgress(jobID, 50)
	h.jobs.UpdateWithOperation(jobID, "running", "Downloading result", nil, "downloading")

	data, err := h.client.FetchContent(ctx, resultURL)
	if err != nil {
		logging.Logf("[CONVERT] job %s: download failed: %v", jobID, err)
		h.jobs.Update(jobID, "error", err.Error(), nil)
		return
	}

	h.jobs.UpdateProgress(jobID, 80)
	h.jobs.UpdateWithOperation(jobID, "running", "Saving file", nil, "saving")

	base := strings.TrimSuffix(node.Path, path.Ext(node.Path))
	newPath := base + "." + targetExt
	created, err := h.files.Create(ctx, user, newPath, data)
	if err != nil {
		logging.Logf("[CONVERT] job %s: save failed: %v", jobID, err)
		h.jobs.Update(jobID, "error", "Failed to store converted file", nil)
		return
	}

	h.jobs.UpdateProgress(jobID, 100)
	h.jobs.Update(jobID, "success", "Conversion complete", map[string]string{
		"fileId": strconv.FormatInt(created.ID, 10),
		"path":   created.Path,
	})
	logging.Logf("[CONVERT] job %s: %s converted to %s", jobID, node.Path, created.Path)
}

// ConvertStatus answers GET /api/editor/convert/:id.
func (h *Handler) ConvertStatus(c *gin.Context) {
	job, ok := h.jobs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
