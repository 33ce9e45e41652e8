// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"screen-streamer/internal/config"
	"screen-streamer/internal/discovery"
	"screen-streamer/internal/discovery/serial"
	"screen-streamer/internal/discovery/usb"
	"screen-streamer/internal/model"
	"screen-streamer/internal/utils"
)

// EventPublisher receives service events
type EventPublisher interface {
	Publish(event *model.ScreenEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(*model.ScreenEvent) {}

// DiscoveryService finds attached screens
type DiscoveryService struct {
	scannerManager *discovery.ScannerManager
	probeCache     *serial.ProbeCache
	events         EventPublisher
	logger         *utils.ServiceLogger

	// scans probe serial ports and must not overlap
	scanMutex sync.Mutex

	mutex    sync.RWMutex
	last     []model.ScreenDeviceInfo
	lastScan time.Time
}

// NewDiscoveryService creates a discovery service with the raw USB and
// serial scanners registered in that order
func NewDiscoveryService(cfg *config.ScreenConfig, events EventPublisher, logger *zap.Logger) *DiscoveryService {
	probeCache := serial.NewProbeCache()
	probeConfig := serial.ProbeConfig{
		BaudRate:     cfg.Probe.BaudRate,
		ReadTimeout:  cfg.Probe.ReadTimeout,
		TotalTimeout: cfg.Probe.TotalTimeout,
	}

	manager := discovery.NewScannerManager(logger)
	manager.RegisterScanner(usb.NewScanner(logger).WithSerialPrefix(cfg.SerialPrefix))
	manager.RegisterScanner(serial.NewScanner(serial.NewReadInfoProber(probeConfig, logger), probeCache, logger).
		WithSerialPrefix(cfg.SerialPrefix))

	ds := NewDiscoveryServiceWithManager(manager, events, logger)
	ds.probeCache = probeCache

	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", manager.GetAvailableScanners()),
	)
	return ds
}

// NewDiscoveryServiceWithManager wraps an already populated scanner manager
func NewDiscoveryServiceWithManager(manager *discovery.ScannerManager, events EventPublisher, logger *zap.Logger) *DiscoveryService {
	if events == nil {
		events = noopPublisher{}
	}
	return &DiscoveryService{
		scannerManager: manager,
		events:         events,
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}
}

// Discover runs all scanners and publishes an update when the set of
// screens changed since the previous scan
func (ds *DiscoveryService) Discover(ctx context.Context) ([]model.ScreenDeviceInfo, error) {
	ds.scanMutex.Lock()
	defer ds.scanMutex.Unlock()

	start := time.Now()
	devices, err := ds.scannerManager.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	ds.mutex.Lock()
	changed := !sameScreens(ds.last, devices)
	ds.last = devices
	ds.lastScan = time.Now()
	ds.mutex.Unlock()

	ds.logger.Debug("Screen discovery completed",
		zap.Int("screens_found", len(devices)),
		zap.Duration("duration", time.Since(start)),
	)

	if changed {
		ds.logger.Info("Screen set changed", zap.Int("screens", len(devices)))
		ds.events.Publish(model.NewScreenEvent(model.EventDiscoveryUpdate, "discovery-service", "INFO", map[string]interface{}{
			"screens": devices,
		}))
	}
	return devices, nil
}

// LastResult returns the screens found by the most recent scan
func (ds *DiscoveryService) LastResult() ([]model.ScreenDeviceInfo, time.Time) {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	out := make([]model.ScreenDeviceInfo, len(ds.last))
	copy(out, ds.last)
	return out, ds.lastScan
}

// LastCount returns how many screens the most recent scan found
func (ds *DiscoveryService) LastCount() int {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return len(ds.last)
}

// AvailableScanners lists the scanners that can run on this host
func (ds *DiscoveryService) AvailableScanners() []string {
	return ds.scannerManager.GetAvailableScanners()
}

// ProbeCacheSize reports how many ESP32 ports have been memoized
func (ds *DiscoveryService) ProbeCacheSize() int {
	if ds.probeCache == nil {
		return 0
	}
	return ds.probeCache.Len()
}

func sameScreens(a, b []model.ScreenDeviceInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
