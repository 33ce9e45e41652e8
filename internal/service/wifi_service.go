// internal/service/wifi_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"screen-streamer/internal/config"
	"screen-streamer/internal/model"
	"screen-streamer/internal/utils"
	"screen-streamer/internal/wifi"
)

var ErrEndpointRequired = errors.New("wifi endpoint is required")

// EndpointProber checks a WiFi screen before streaming to it
type EndpointProber interface {
	ProbeEndpoint(ctx context.Context, endpoint string) (*model.DisplayConfig, error)
}

// WiFiService drives a WiFi screen session: it keeps the session
// connected to the chosen endpoint and pushes frames while connected
type WiFiService struct {
	session *wifi.Session
	prober  EndpointProber
	source  FrameSource
	config  config.WiFiConfig
	events  EventPublisher
	logger  *utils.ServiceLogger

	mutex       sync.Mutex
	target      string
	lastConnect time.Time
}

// NewWiFiService wraps session and publishes its status changes
func NewWiFiService(
	session *wifi.Session,
	prober EndpointProber,
	source FrameSource,
	cfg config.WiFiConfig,
	events EventPublisher,
	logger *zap.Logger,
) *WiFiService {
	if events == nil {
		events = noopPublisher{}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 100 * time.Millisecond
	}

	ws := &WiFiService{
		session: session,
		prober:  prober,
		source:  source,
		config:  cfg,
		events:  events,
		logger:  utils.NewServiceLogger(logger, "wifi-service"),
	}

	session.OnStatusChange(func(status model.WiFiStatus) {
		severity := "INFO"
		if status.State == model.StateConnectFail || status.State == model.StateDisconnected {
			severity = "WARNING"
		}
		ws.events.Publish(model.NewScreenEvent(model.EventWiFiStatusChange, "wifi-service", severity, map[string]interface{}{
			"state":    status.State.String(),
			"endpoint": status.Endpoint,
		}).WithAddress(status.Endpoint))
	})
	return ws
}

// Start runs the session worker and, when an endpoint is configured,
// connects to it
func (ws *WiFiService) Start(ctx context.Context) error {
	ws.session.Start(ctx)
	if ws.config.Endpoint == "" {
		return nil
	}
	return ws.Connect(ctx, ws.config.Endpoint)
}

// Stop ends the session worker
func (ws *WiFiService) Stop() {
	ws.session.Stop()
}

// Connect points the session at endpoint
func (ws *WiFiService) Connect(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ErrEndpointRequired
	}

	ws.mutex.Lock()
	ws.target = endpoint
	ws.lastConnect = time.Now()
	ws.mutex.Unlock()

	if err := ws.session.Send(ctx, wifi.Connect{Endpoint: endpoint}); err != nil {
		return fmt.Errorf("failed to queue connect: %w", err)
	}
	ws.logger.Info("WiFi connect requested", zap.String("endpoint", endpoint))
	return nil
}

// Disconnect drops the connection and stops reconnecting
func (ws *WiFiService) Disconnect(ctx context.Context) error {
	ws.mutex.Lock()
	ws.target = ""
	ws.mutex.Unlock()

	if err := ws.session.Send(ctx, wifi.Disconnect{}); err != nil {
		return fmt.Errorf("failed to queue disconnect: %w", err)
	}
	ws.logger.Info("WiFi disconnect requested")
	return nil
}

// Status returns the session status
func (ws *WiFiService) Status() model.WiFiStatus {
	return ws.session.Status()
}

// Stats returns the session frame counters
func (ws *WiFiService) Stats() wifi.Stats {
	return ws.session.Stats()
}

// SetDelay changes the pause the worker takes after each frame
func (ws *WiFiService) SetDelay(delay time.Duration) {
	ws.session.SetDelay(delay)
}

// Probe fetches the screen geometry and shows a greeting
func (ws *WiFiService) Probe(ctx context.Context, endpoint string) (*model.DisplayConfig, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	return ws.prober.ProbeEndpoint(ctx, endpoint)
}

// PushFrame offers img to the session. While connected the frame is
// dropped if the worker is busy; otherwise a connect to the last chosen
// endpoint is requested at most once per retry interval.
func (ws *WiFiService) PushFrame(img image.Image) error {
	status := ws.session.Status()

	switch {
	case status.State == model.StateConnected:
		return ws.session.TrySend(wifi.Image{Frame: img})
	case status.State.CanConnect():
		ws.mutex.Lock()
		target := ws.target
		due := time.Since(ws.lastConnect) >= ws.config.ConnectRetry
		if target != "" && due {
			ws.lastConnect = time.Now()
		}
		ws.mutex.Unlock()

		if target != "" && due {
			return ws.session.TrySend(wifi.Connect{Endpoint: target})
		}
	}
	return nil
}

// Run pushes a frame every frame interval until ctx is done
func (ws *WiFiService) Run(ctx context.Context) {
	ticker := time.NewTicker(ws.config.FrameInterval)
	defer ticker.Stop()

	ws.logger.Info("WiFi frame loop started", zap.Duration("frame_interval", ws.config.FrameInterval))
	for {
		select {
		case <-ctx.Done():
			ws.logger.Info("WiFi frame loop stopped")
			return
		case now := <-ticker.C:
			width, height := int(model.DefaultESP32Width), int(model.DefaultESP32Height)
			if err := ws.PushFrame(ws.source(width, height, now)); err != nil && !errors.Is(err, wifi.ErrQueueFull) {
				ws.logger.Debug("Frame not queued", zap.Error(err))
			}
		}
	}
}
