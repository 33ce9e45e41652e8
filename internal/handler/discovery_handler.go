// internal/handler/discovery_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"screen-streamer/internal/model"
	"screen-streamer/internal/utils"
)

// ScreenDiscoverer is the discovery side the handler needs
type ScreenDiscoverer interface {
	Discover(ctx context.Context) ([]model.ScreenDeviceInfo, error)
	LastResult() ([]model.ScreenDeviceInfo, time.Time)
	AvailableScanners() []string
	ProbeCacheSize() int
}

// ActiveScreen reports the screen the render loop is driving
type ActiveScreen interface {
	Active() (model.ScreenDeviceInfo, bool)
}

// DiscoveryHandler handles screen discovery requests
type DiscoveryHandler struct {
	discoverer ScreenDiscoverer
	active     ActiveScreen
	logger     *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler. active may be nil
// when the render loop is disabled.
func NewDiscoveryHandler(discoverer ScreenDiscoverer, active ActiveScreen, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoverer: discoverer,
		active:     active,
		logger:     utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers screen routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	screens := router.Group("/screens")
	{
		screens.GET("", h.ScanScreens)
		screens.GET("/last", h.LastScan)
		screens.GET("/active", h.ActiveScreen)
		screens.GET("/scanners", h.Scanners)
	}
}

// ScanScreens runs discovery now
// @Summary Scan for screens
// @Tags Screens
// @Produce json
// @Success 200 {object} utils.APIResponse "Screen scan completed"
// @Router /screens [get]
func (h *DiscoveryHandler) ScanScreens(c *gin.Context) {
	devices, err := h.discoverer.Discover(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to scan screens", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan screens", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Screen scan completed", gin.H{
		"screens_found": len(devices),
		"screens":       devices,
	})
}

// LastScan returns the previous scan without touching the hardware
func (h *DiscoveryHandler) LastScan(c *gin.Context) {
	devices, at := h.discoverer.LastResult()
	data := gin.H{
		"screens_found": len(devices),
		"screens":       devices,
	}
	if !at.IsZero() {
		data["scanned_at"] = at
	}
	utils.SuccessResponse(c, http.StatusOK, "Last screen scan", data)
}

// ActiveScreen returns the screen currently being drawn to
// @Summary Active screen
// @Tags Screens
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.ScreenDeviceInfo}
// @Failure 404 {object} utils.APIResponse "No screen open"
// @Router /screens/active [get]
func (h *DiscoveryHandler) ActiveScreen(c *gin.Context) {
	if h.active == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Screen render loop disabled", nil)
		return
	}
	info, ok := h.active.Active()
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "No screen open", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Active screen", info)
}

// Scanners lists the scanners usable on this host
func (h *DiscoveryHandler) Scanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Available scanners", gin.H{
		"scanners":          h.discoverer.AvailableScanners(),
		"probe_cache_ports": h.discoverer.ProbeCacheSize(),
	})
}
