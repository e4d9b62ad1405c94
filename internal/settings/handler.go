package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/healthcheck"
	"github.com/docbridge/docbridge/internal/version"
)

// Handler exposes the admin settings surface. Secrets never leave the
// process; the view only reports whether they are configured.
type Handler struct {
	cfg     config.Settings
	monitor *healthcheck.Monitor
}

func NewHandler(cfg config.Settings, monitor *healthcheck.Monitor) *Handler {
	return &Handler{cfg: cfg, monitor: monitor}
}

// Get answers GET /api/settings.
func (h *Handler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"baseUrl":                   h.cfg.BaseURL,
		"documentServerUrl":         h.cfg.DocumentServerURL,
		"documentServerInternalUrl": h.cfg.DocumentServerInternalURL,
		"storageUrl":                h.cfg.StorageURL,
		"jwtEnabled":                h.cfg.SigningEnabled(),
		"jwtHeader":                 h.cfg.JWTHeader,
		"instanceId":                h.cfg.InstanceID,
		"skipTlsVerify":             h.cfg.SkipTLSVerify,
		"convertTimeout":            h.cfg.ConvertTimeout.String(),
		"documentServer":            h.monitor.Last(),
		"version":                   version.String(),
	})
}

// Check answers POST /api/settings/check: probe the document server now
// instead of waiting for the background interval.
func (h *Handler) Check(c *gin.Context) {
	result := h.monitor.Check(c.Request.Context())
	status := http.StatusOK
	if !result.Healthy {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}
