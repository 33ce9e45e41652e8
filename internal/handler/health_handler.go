// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"screen-streamer/internal/config"
	"screen-streamer/internal/model"
	"screen-streamer/internal/utils"
)

// WiFiStatusReader reports the WiFi session state
type WiFiStatusReader interface {
	Status() model.WiFiStatus
}

// HealthHandler handles health check requests
type HealthHandler struct {
	config    *config.Config
	scanners  ScreenDiscoverer
	active    ActiveScreen
	wifi      WiFiStatusReader
	startTime time.Time
	logger    *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler. active and wifi may be
// nil when the matching feature is disabled.
func NewHealthHandler(
	cfg *config.Config,
	scanners ScreenDiscoverer,
	active ActiveScreen,
	wifi WiFiStatusReader,
	logger *zap.Logger,
) *HealthHandler {
	return &HealthHandler{
		config:    cfg,
		scanners:  scanners,
		active:    active,
		wifi:      wifi,
		startTime: time.Now(),
		logger:    utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports scanners, the active screen and the WiFi session.
// Missing hardware degrades the status but never fails the check.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	scanners := h.scanners.AvailableScanners()
	if len(scanners) == 0 {
		health.Status = "degraded"
		health.Checks["scanners"] = CheckResult{Status: "unhealthy", Message: "No scanner available on this host"}
	} else {
		health.Checks["scanners"] = CheckResult{
			Status: "healthy",
			Data:   map[string]interface{}{"available": scanners},
		}
	}

	if h.active != nil {
		if info, ok := h.active.Active(); ok {
			health.Checks["screen"] = CheckResult{
				Status:  "healthy",
				Message: info.String(),
			}
		} else {
			health.Checks["screen"] = CheckResult{Status: "idle", Message: "No screen open"}
		}
	}

	if h.wifi != nil {
		status := h.wifi.Status()
		result := CheckResult{
			Status: "healthy",
			Data: map[string]interface{}{
				"state":    status.State.String(),
				"endpoint": status.Endpoint,
			},
		}
		if status.State != model.StateConnected {
			result.Status = "idle"
		}
		health.Checks["wifi"] = result
	}

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck reports ready once the server answers
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for liveness probes
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
