// internal/service/screen_service.go
package service

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"screen-streamer/internal/config"
	"screen-streamer/internal/model"
	"screen-streamer/internal/protocol"
	"screen-streamer/internal/render"
	"screen-streamer/internal/utils"
)

// Screen is an open USB or serial screen
type Screen interface {
	Info() model.ScreenDeviceInfo
	DrawImage(ctx context.Context, x, y uint16, img image.Image) error
	Close() error
}

// Discoverer lists attached screens
type Discoverer interface {
	Discover(ctx context.Context) ([]model.ScreenDeviceInfo, error)
}

// OpenFunc opens one discovered screen
type OpenFunc func(info model.ScreenDeviceInfo) (Screen, error)

// FrameSource renders the next frame for a screen of the given size
type FrameSource func(width, height int, now time.Time) image.Image

// OpenerFunc adapts a protocol opener to OpenFunc
func OpenerFunc(opener *protocol.Opener) OpenFunc {
	return func(info model.ScreenDeviceInfo) (Screen, error) {
		session, err := opener.Open(info)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// TestCardSource draws the built-in test card
func TestCardSource(caption string) FrameSource {
	return func(width, height int, now time.Time) image.Image {
		return render.TestCard(width, height, now, caption)
	}
}

// ScreenService keeps one USB or serial screen open and feeds it frames
type ScreenService struct {
	discoverer Discoverer
	open       OpenFunc
	source     FrameSource
	config     config.ScreenConfig
	events     EventPublisher
	logger     *utils.ServiceLogger

	mutex  sync.RWMutex
	active Screen
}

// NewScreenService creates the render loop service
func NewScreenService(
	discoverer Discoverer,
	open OpenFunc,
	source FrameSource,
	cfg config.ScreenConfig,
	events EventPublisher,
	logger *zap.Logger,
) *ScreenService {
	if events == nil {
		events = noopPublisher{}
	}
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = time.Second
	}
	return &ScreenService{
		discoverer: discoverer,
		open:       open,
		source:     source,
		config:     cfg,
		events:     events,
		logger:     utils.NewServiceLogger(logger, "screen-service"),
	}
}

// FindAndOpen discovers screens and opens the first one that opens
func (ss *ScreenService) FindAndOpen(ctx context.Context) (Screen, error) {
	devices, err := ss.discoverer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}

	for _, info := range devices {
		screen, err := ss.open(info)
		if err != nil {
			ss.logger.Warn("Screen open failed",
				zap.String("screen", info.Label),
				zap.String("address", info.Address),
				zap.Error(err),
			)
			continue
		}
		return screen, nil
	}
	return nil, protocol.ErrDeviceNotFound
}

// Run renders to the active screen every render interval. A screen whose
// draw fails is closed and discovery is retried after the discovery
// interval.
func (ss *ScreenService) Run(ctx context.Context) {
	renderTicker := time.NewTicker(ss.config.RenderInterval)
	defer renderTicker.Stop()
	defer ss.Close()

	var lastDiscovery time.Time
	ss.logger.Info("Screen render loop started",
		zap.Duration("render_interval", ss.config.RenderInterval),
		zap.Duration("discovery_interval", ss.config.DiscoveryInterval),
	)

	for {
		if ss.current() == nil && time.Since(lastDiscovery) >= ss.config.DiscoveryInterval {
			lastDiscovery = time.Now()
			ss.tryOpen(ctx)
		}

		if screen := ss.current(); screen != nil {
			ss.drawFrame(ctx, screen)
		}

		select {
		case <-ctx.Done():
			ss.logger.Info("Screen render loop stopped")
			return
		case <-renderTicker.C:
		}
	}
}

func (ss *ScreenService) tryOpen(ctx context.Context) {
	screen, err := ss.FindAndOpen(ctx)
	if err != nil {
		ss.logger.Debug("No screen available", zap.Error(err))
		return
	}

	info := screen.Info()
	ss.mutex.Lock()
	ss.active = screen
	ss.mutex.Unlock()

	ss.logger.Info("Screen opened",
		zap.String("screen", info.Label),
		zap.Uint16("width", info.Width),
		zap.Uint16("height", info.Height),
	)
	ss.events.Publish(model.NewScreenEvent(model.EventScreenOpened, "screen-service", "INFO", map[string]interface{}{
		"screen": info,
	}).WithAddress(info.Address))
}

func (ss *ScreenService) drawFrame(ctx context.Context, screen Screen) {
	info := screen.Info()
	frame := ss.source(int(info.Width), int(info.Height), time.Now())

	if err := screen.DrawImage(ctx, 0, 0, frame); err != nil {
		ss.logger.Warn("Screen draw failed, dropping session",
			zap.String("screen", info.Label),
			zap.Error(err),
		)
		ss.events.Publish(model.NewScreenEvent(model.EventScreenError, "screen-service", "ERROR", map[string]interface{}{
			"error": err.Error(),
		}).WithAddress(info.Address))
		ss.Close()
	}
}

// Active returns the screen currently being driven
func (ss *ScreenService) Active() (model.ScreenDeviceInfo, bool) {
	screen := ss.current()
	if screen == nil {
		return model.ScreenDeviceInfo{}, false
	}
	return screen.Info(), true
}

// Close releases the active screen, if any
func (ss *ScreenService) Close() {
	ss.mutex.Lock()
	screen := ss.active
	ss.active = nil
	ss.mutex.Unlock()

	if screen == nil {
		return
	}

	info := screen.Info()
	if err := screen.Close(); err != nil {
		ss.logger.Warn("Screen close failed", zap.String("screen", info.Label), zap.Error(err))
	}
	ss.events.Publish(model.NewScreenEvent(model.EventScreenClosed, "screen-service", "INFO", nil).WithAddress(info.Address))
}

func (ss *ScreenService) current() Screen {
	ss.mutex.RLock()
	defer ss.mutex.RUnlock()
	return ss.active
}
