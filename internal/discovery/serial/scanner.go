// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"screen-streamer/internal/discovery"
	"screen-streamer/internal/model"
)

// PortLister enumerates serial ports with their USB metadata
type PortLister interface {
	ListPorts() ([]*enumerator.PortDetails, error)
}

// PortListerFunc adapts a function to PortLister
type PortListerFunc func() ([]*enumerator.PortDetails, error)

// ListPorts calls f
func (f PortListerFunc) ListPorts() ([]*enumerator.PortDetails, error) {
	return f()
}

// Scanner classifies serial ports as screens in three passes: serial
// number match, ReadInfo probe, then probe cache recovery.
type Scanner struct {
	lister PortLister
	prober Prober
	cache  *ProbeCache
	filter discovery.SerialFilter
	logger *zap.Logger
}

// NewScanner creates a scanner over the OS port list
func NewScanner(prober Prober, cache *ProbeCache, logger *zap.Logger) *Scanner {
	return NewScannerWithLister(PortListerFunc(enumerator.GetDetailedPortsList), prober, cache, logger)
}

// NewScannerWithLister creates a scanner over a custom port lister
func NewScannerWithLister(lister PortLister, prober Prober, cache *ProbeCache, logger *zap.Logger) *Scanner {
	if cache == nil {
		cache = NewProbeCache()
	}
	return &Scanner{
		lister: lister,
		prober: prober,
		cache:  cache,
		filter: discovery.NewSerialFilter(""),
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// WithSerialPrefix sets the serial number prefix matched in the first pass
func (s *Scanner) WithSerialPrefix(prefix string) *Scanner {
	s.filter = discovery.NewSerialFilter(prefix)
	return s
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable checks if serial scanning is available
func (s *Scanner) IsAvailable() bool {
	return s.lister != nil
}

// Cache exposes the probe cache
func (s *Scanner) Cache() *ProbeCache {
	return s.cache
}

// Scan performs serial port screen discovery
func (s *Scanner) Scan(ctx context.Context) ([]model.ScreenDeviceInfo, error) {
	startTime := time.Now()

	ports, err := s.lister.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	var usbPorts []*enumerator.PortDetails
	for _, p := range ports {
		if p == nil {
			continue
		}
		s.logger.Debug("Serial port",
			zap.String("port", p.Name),
			zap.Bool("usb", p.IsUSB),
			zap.String("vid", p.VID),
			zap.String("pid", p.PID),
			zap.String("serial", p.SerialNumber),
		)
		if p.IsUSB {
			usbPorts = append(usbPorts, p)
		}
	}

	devices := []model.ScreenDeviceInfo{}
	identified := make(map[string]bool)

	// Pass 1: serial number convention, no I/O
	for _, p := range usbPorts {
		if !s.filter.Matches(p.SerialNumber) {
			continue
		}
		width, height := s.filter.ScreenSize(p.SerialNumber)
		devices = append(devices, serialScreen(p.Name, width, height, false))
		identified[p.Name] = true
	}

	// Pass 2: ReadInfo probe on the remaining USB ports
	if s.prober != nil {
		for _, p := range usbPorts {
			if identified[p.Name] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return devices, err
			}

			width, height, ok := s.prober.Probe(ctx, p.Name)
			if !ok {
				continue
			}
			s.logger.Info("ESP32 WiFi screen found by ReadInfo",
				zap.String("port", p.Name),
				zap.Uint16("width", width),
				zap.Uint16("height", height),
			)
			s.cache.Put(p.Name, width, height)
			devices = append(devices, serialScreen(p.Name, width, height, true))
			identified[p.Name] = true
		}
	}

	// Pass 3: ports still visible but unprobeable, most likely held open
	for _, p := range usbPorts {
		if identified[p.Name] {
			continue
		}
		width, height, ok := s.cache.Get(p.Name)
		if !ok {
			continue
		}
		s.logger.Debug("Recovered ESP32 screen from probe cache",
			zap.String("port", p.Name),
			zap.Uint16("width", width),
			zap.Uint16("height", height),
		)
		devices = append(devices, serialScreen(p.Name, width, height, true))
		identified[p.Name] = true
	}

	s.logger.Debug("Serial scan completed",
		zap.Int("ports_examined", len(ports)),
		zap.Int("screens_found", len(devices)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return devices, nil
}

func serialScreen(port string, width, height uint16, wifiClass bool) model.ScreenDeviceInfo {
	return model.ScreenDeviceInfo{
		Label:       model.SerialLabel(port, wifiClass),
		Address:     port,
		Width:       width,
		Height:      height,
		IsWiFiClass: wifiClass,
		Transport:   model.TransportSerial,
	}
}
