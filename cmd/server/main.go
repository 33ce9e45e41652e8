// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"screen-streamer/internal/config"
	"screen-streamer/internal/handler"
	"screen-streamer/internal/metrics"
	"screen-streamer/internal/protocol"
	"screen-streamer/internal/routes"
	"screen-streamer/internal/service"
	"screen-streamer/internal/utils"
	"screen-streamer/internal/wifi"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	eventBus  *handler.EventBus
	websocket *handler.WebSocketHandler

	// Services
	discoveryService *service.DiscoveryService
	screenService    *service.ScreenService
	wifiService      *service.WiFiService

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config.yaml")
	pflag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "screen-streamer")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	app.initializeEvents()
	app.initializeServices()

	if cfg.Server.Enabled {
		if err := app.initializeServer(); err != nil {
			return nil, fmt.Errorf("failed to initialize server: %w", err)
		}
	}

	return app, nil
}

// initializeEvents creates the event bus and the websocket fan-out
func (app *Application) initializeEvents() {
	app.eventBus = handler.NewEventBus(app.logger)
	app.websocket = handler.NewWebSocketHandler(app.eventBus, app.config.Security.AllowedOrigins, app.logger)
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	app.discoveryService = service.NewDiscoveryService(&app.config.Screen, app.eventBus, app.logger)

	if app.config.Screen.Enabled {
		serialConfig, usbConfig := protocol.ConfigsFromScreen(&app.config.Screen)
		opener := protocol.NewOpener(serialConfig, usbConfig, app.logger)
		app.screenService = service.NewScreenService(
			app.discoveryService,
			service.OpenerFunc(opener),
			service.TestCardSource(app.config.App.Name),
			app.config.Screen,
			app.eventBus,
			app.logger,
		)
	}

	if app.config.WiFi.Enabled {
		wifiConfig := app.config.WiFi
		fetcher := wifi.NewHTTPConfigFetcher(wifiConfig.ConfigTimeout)
		session := wifi.NewSession(
			wifi.OptionsFromConfig(&wifiConfig),
			wifi.NewWebsocketDialer(wifiConfig.ConfigTimeout, app.logger),
			fetcher,
			app.logger,
		)
		app.wifiService = service.NewWiFiService(
			session,
			fetcher,
			service.TestCardSource("WiFi"),
			wifiConfig,
			app.eventBus,
			app.logger,
		)
	}

	app.logger.Info("Services initialized successfully",
		zap.Bool("screen_enabled", app.screenService != nil),
		zap.Bool("wifi_enabled", app.wifiService != nil),
	)
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	// disabled features must reach the router as untyped nil
	var active handler.ActiveScreen
	if app.screenService != nil {
		active = app.screenService
	}
	var wifiController handler.WiFiController
	if app.wifiService != nil {
		wifiController = app.wifiService
	}

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.discoveryService,
		active,
		wifiController,
		app.websocket,
	)

	if app.config.Server.MetricsEnabled {
		var screenSource metrics.ScreenSource
		if app.screenService != nil {
			screenSource = app.screenService
		}
		var wifiSource metrics.WiFiSource
		if app.wifiService != nil {
			wifiSource = app.wifiService
		}
		metricsHandler, err := metrics.Handler(metrics.NewCollector(wifiSource, screenSource, app.discoveryService))
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		routerManager.WithMetrics(metricsHandler)
	}

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
	return nil
}

// startBackgroundServices starts the event bus and the render loops
func (app *Application) startBackgroundServices(ctx context.Context) error {
	app.run(app.eventBus.Start)
	app.run(func() { app.websocket.Run(ctx) })

	if app.screenService != nil {
		app.run(func() { app.screenService.Run(ctx) })
	}

	if app.wifiService != nil {
		if err := app.wifiService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start wifi session: %w", err)
		}
		app.run(func() { app.wifiService.Run(ctx) })
	}

	app.logger.Info("Background services started")
	return nil
}

func (app *Application) run(fn func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		fn()
	}()
}

// Start runs the application until SIGINT or SIGTERM
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	if err := app.startBackgroundServices(ctx); err != nil {
		cancel()
		return err
	}

	if app.server != nil {
		go func() {
			app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
			if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
			}
		}()
	}

	app.waitForShutdown()
	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown stops the HTTP server, the loops and the WiFi session, in that
// order, so the screen is released before the logger is flushed
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "screen-streamer")
	serviceLogger.LogServiceStop("shutdown signal received")

	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Error("HTTP server shutdown error", zap.Error(err))
		} else {
			app.logger.Info("HTTP server stopped")
		}
		cancel()
	}

	app.cancel()
	if app.wifiService != nil {
		app.wifiService.Stop()
	}
	app.eventBus.Close()
	app.wg.Wait()

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
