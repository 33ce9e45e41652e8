// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"screen-streamer/internal/model"
)

// DeviceScanner finds screens on one kind of link
type DeviceScanner interface {
	Scan(ctx context.Context) ([]model.ScreenDeviceInfo, error)
	GetScannerType() string
	IsAvailable() bool
}

// ScannerManager runs scanners in registration order and merges results
type ScannerManager struct {
	scanners []DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		logger: logger.With(zap.String("component", "discovery")),
	}
}

// RegisterScanner appends a scanner; earlier scanners win on duplicates
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	sm.scanners = append(sm.scanners, scanner)
	sm.logger.Info("Scanner registered", zap.String("type", scanner.GetScannerType()))
}

// ScanAll runs every available scanner. A failing scanner is logged and
// skipped so one broken link type never hides the others.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]model.ScreenDeviceInfo, error) {
	start := time.Now()
	seen := make(map[string]bool)
	devices := []model.ScreenDeviceInfo{}

	for _, scanner := range sm.scanners {
		if err := ctx.Err(); err != nil {
			return devices, err
		}

		scannerType := scanner.GetScannerType()
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		found, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		for _, d := range found {
			if seen[d.Key()] {
				sm.logger.Debug("Removing duplicate screen", zap.String("key", d.Key()))
				continue
			}
			seen[d.Key()] = true
			devices = append(devices, d)
		}

		sm.logger.Debug("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("devices_found", len(found)),
		)
	}

	if len(devices) == 0 {
		sm.logger.Warn("No available screen", zap.Duration("scan_duration", time.Since(start)))
	} else {
		sm.logger.Info("Screen scan completed",
			zap.Int("devices_found", len(devices)),
			zap.Duration("scan_duration", time.Since(start)),
		)
	}
	return devices, nil
}

// ScanByType scans with a single registered scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]model.ScreenDeviceInfo, error) {
	for _, scanner := range sm.scanners {
		if scanner.GetScannerType() != scannerType {
			continue
		}
		if !scanner.IsAvailable() {
			return nil, fmt.Errorf("scanner not available: %s", scannerType)
		}
		return scanner.Scan(ctx)
	}
	return nil, fmt.Errorf("scanner type not found: %s", scannerType)
}

// GetAvailableScanners returns list of available scanner types
func (sm *ScannerManager) GetAvailableScanners() []string {
	available := []string{}
	for _, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scanner.GetScannerType())
		}
	}
	return available
}
