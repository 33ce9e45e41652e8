// internal/handler/wifi_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"screen-streamer/internal/model"
	"screen-streamer/internal/service"
	"screen-streamer/internal/utils"
	"screen-streamer/internal/wifi"
)

// WiFiController is the WiFi side the handler needs
type WiFiController interface {
	Status() model.WiFiStatus
	Stats() wifi.Stats
	Connect(ctx context.Context, endpoint string) error
	Disconnect(ctx context.Context) error
	SetDelay(delay time.Duration)
	Probe(ctx context.Context, endpoint string) (*model.DisplayConfig, error)
}

// WiFiHandler handles WiFi screen control requests
type WiFiHandler struct {
	wifi   WiFiController
	logger *utils.ServiceLogger
}

// NewWiFiHandler creates a new WiFi handler
func NewWiFiHandler(controller WiFiController, logger *zap.Logger) *WiFiHandler {
	return &WiFiHandler{
		wifi:   controller,
		logger: utils.NewServiceLogger(logger, "wifi-handler"),
	}
}

// RegisterRoutes registers WiFi routes
func (h *WiFiHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/wifi")
	{
		group.GET("/status", h.GetStatus)
		group.POST("/connect", h.Connect)
		group.POST("/disconnect", h.Disconnect)
		group.PUT("/delay", h.SetDelay)
		group.POST("/probe", h.Probe)
	}
}

// GetStatus returns the session state and frame counters
// @Summary WiFi status
// @Tags WiFi
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /wifi/status [get]
func (h *WiFiHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WiFi status", gin.H{
		"status": h.wifi.Status(),
		"stats":  h.wifi.Stats(),
	})
}

// Connect points the session at a new endpoint
// @Summary Connect WiFi screen
// @Tags WiFi
// @Accept json
// @Produce json
// @Param request body EndpointRequest true "Screen endpoint"
// @Success 202 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Router /wifi/connect [post]
func (h *WiFiHandler) Connect(c *gin.Context) {
	var req EndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.wifi.Connect(c.Request.Context(), req.Endpoint); err != nil {
		h.respondError(c, "Failed to connect", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Connect requested", h.wifi.Status())
}

// Disconnect drops the connection
func (h *WiFiHandler) Disconnect(c *gin.Context) {
	if err := h.wifi.Disconnect(c.Request.Context()); err != nil {
		h.respondError(c, "Failed to disconnect", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Disconnect requested", nil)
}

// SetDelay changes the pause after each frame
func (h *WiFiHandler) SetDelay(c *gin.Context) {
	var req DelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.DelayMS == nil || *req.DelayMS < 0 {
		utils.ValidationErrorResponse(c, map[string]string{"delay_ms": "must be a non-negative number"})
		return
	}

	h.wifi.SetDelay(time.Duration(*req.DelayMS) * time.Millisecond)
	utils.SuccessResponse(c, http.StatusOK, "Delay updated", h.wifi.Status())
}

// Probe fetches the display config of an endpoint and draws a greeting
// @Summary Probe WiFi screen
// @Tags WiFi
// @Accept json
// @Produce json
// @Param request body EndpointRequest true "Screen endpoint"
// @Success 200 {object} utils.APIResponse{data=model.DisplayConfig}
// @Failure 502 {object} utils.APIResponse "Screen unreachable"
// @Router /wifi/probe [post]
func (h *WiFiHandler) Probe(c *gin.Context) {
	var req EndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg, err := h.wifi.Probe(c.Request.Context(), req.Endpoint)
	if err != nil {
		if errors.Is(err, service.ErrEndpointRequired) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Endpoint is required", err)
			return
		}
		h.logger.Warn("WiFi probe failed", zap.String("endpoint", req.Endpoint), zap.Error(err))
		utils.ErrorResponse(c, http.StatusBadGateway, "Screen unreachable", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Screen reachable", cfg)
}

func (h *WiFiHandler) respondError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, service.ErrEndpointRequired):
		utils.ErrorResponse(c, http.StatusBadRequest, message, err)
	case errors.Is(err, wifi.ErrSessionStopped):
		utils.ErrorResponse(c, http.StatusServiceUnavailable, message, err)
	default:
		h.logger.Error(message, zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, message, err)
	}
}

// EndpointRequest names a WiFi screen by host[:port]
type EndpointRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DelayRequest sets the per-frame delay
type DelayRequest struct {
	DelayMS *int64 `json:"delay_ms" binding:"required"`
}
