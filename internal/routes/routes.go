// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"screen-streamer/internal/config"
	"screen-streamer/internal/handler"
	"screen-streamer/internal/middleware"
	"screen-streamer/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config     *config.Config
	logger     *zap.Logger
	discoverer handler.ScreenDiscoverer
	active     handler.ActiveScreen
	wifi       handler.WiFiController
	websocket  *handler.WebSocketHandler
	metrics    http.Handler
}

// NewRouter creates a new router instance. active and wifi are nil when
// the render loop or WiFi streaming is disabled; their routes are then
// not registered.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	discoverer handler.ScreenDiscoverer,
	active handler.ActiveScreen,
	wifi handler.WiFiController,
	websocket *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:     config,
		logger:     logger,
		discoverer: discoverer,
		active:     active,
		wifi:       wifi,
		websocket:  websocket,
	}
}

// WithMetrics serves h at /metrics
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.App.Environment == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	var wifiStatus handler.WiFiStatusReader
	if r.wifi != nil {
		wifiStatus = r.wifi
	}
	healthHandler := handler.NewHealthHandler(r.config, r.discoverer, r.active, wifiStatus, r.logger)
	healthHandler.RegisterRoutes(&router.RouterGroup)

	apiV1 := router.Group("/api/v1")
	handler.NewDiscoveryHandler(r.discoverer, r.active, r.logger).RegisterRoutes(apiV1)
	if r.wifi != nil {
		handler.NewWiFiHandler(r.wifi, r.logger).RegisterRoutes(apiV1)
	}

	if r.websocket != nil {
		r.websocket.RegisterRoutes(router.Group("/ws"))
	}

	if r.metrics != nil {
		router.GET("/metrics", gin.WrapH(r.metrics))
	}

	r.logger.Info("All routes configured successfully")
}
