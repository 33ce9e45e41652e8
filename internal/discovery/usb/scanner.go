// internal/discovery/usb/scanner.go
package usb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"screen-streamer/internal/discovery"
	"screen-streamer/internal/model"
)

// DeviceRecord is the identity a USB device exposes without claiming it
type DeviceRecord struct {
	Bus          int    `json:"bus"`
	Address      int    `json:"address"`
	Vendor       uint16 `json:"vendor"`
	Product      uint16 `json:"product"`
	ProductName  string `json:"product_name"`
	SerialNumber string `json:"serial_number"`
}

// DeviceLister enumerates attached USB devices
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]DeviceRecord, error)
}

// Scanner finds raw bulk screens
type Scanner struct {
	lister DeviceLister
	filter discovery.SerialFilter
	logger *zap.Logger
}

// NewScanner creates a scanner backed by libusb
func NewScanner(logger *zap.Logger) *Scanner {
	return NewScannerWithLister(&gousbLister{logger: logger}, logger)
}

// NewScannerWithLister creates a scanner over a custom lister
func NewScannerWithLister(lister DeviceLister, logger *zap.Logger) *Scanner {
	return &Scanner{
		lister: lister,
		filter: discovery.NewSerialFilter(""),
		logger: logger.With(zap.String("scanner", "usb")),
	}
}

// WithSerialPrefix sets the serial number prefix screens must carry
func (s *Scanner) WithSerialPrefix(prefix string) *Scanner {
	s.filter = discovery.NewSerialFilter(prefix)
	return s
}

// GetScannerType returns scanner type identifier
func (s *Scanner) GetScannerType() string {
	return "usb"
}

// IsAvailable reports whether USB enumeration can run
func (s *Scanner) IsAvailable() bool {
	return s.lister != nil
}

// Scan lists USB devices and keeps the ones that are screens
func (s *Scanner) Scan(ctx context.Context) ([]model.ScreenDeviceInfo, error) {
	startTime := time.Now()

	records, err := s.lister.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("device enumeration failed: %w", err)
	}

	devices := []model.ScreenDeviceInfo{}
	for _, rec := range records {
		s.logger.Debug("USB device",
			zap.String("vendor_id", fmt.Sprintf("0x%04X", rec.Vendor)),
			zap.String("product_id", fmt.Sprintf("0x%04X", rec.Product)),
			zap.String("product", rec.ProductName),
			zap.String("serial", rec.SerialNumber),
			zap.Int("address", rec.Address),
		)
		if info, ok := Classify(rec, s.filter); ok {
			devices = append(devices, info)
		}
	}

	s.logger.Debug("USB scan completed",
		zap.Int("devices_examined", len(records)),
		zap.Int("screens_found", len(devices)),
		zap.Duration("scan_duration", time.Since(startTime)),
	)
	return devices, nil
}

// Classify turns a device record into a screen when its product name and
// serial number match the screen firmware
func Classify(rec DeviceRecord, filter discovery.SerialFilter) (model.ScreenDeviceInfo, bool) {
	if rec.ProductName != discovery.ScreenProductName || !filter.Matches(rec.SerialNumber) {
		return model.ScreenDeviceInfo{}, false
	}

	address := strconv.Itoa(rec.Address)
	width, height := filter.ScreenSize(rec.SerialNumber)
	return model.ScreenDeviceInfo{
		Label:     model.USBRawLabel(address),
		Address:   address,
		Width:     width,
		Height:    height,
		Transport: model.TransportUSBRaw,
	}, true
}

// gousbLister reads device strings through libusb
type gousbLister struct {
	logger *zap.Logger
}

// ListDevices opens each device just long enough to read its strings
func (l *gousbLister) ListDevices(ctx context.Context) ([]DeviceRecord, error) {
	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			l.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	// Devices we lack permission for fail to open; the rest are still usable.
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return ctx.Err() == nil
	})
	defer closeAllDevices(devices, l.logger)

	if err != nil {
		if len(devices) == 0 {
			return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
		}
		l.logger.Debug("Some USB devices could not be opened", zap.Error(err))
	}

	records := make([]DeviceRecord, 0, len(devices))
	for _, d := range devices {
		if d == nil || d.Desc == nil {
			continue
		}
		rec := DeviceRecord{
			Bus:     d.Desc.Bus,
			Address: d.Desc.Address,
			Vendor:  uint16(d.Desc.Vendor),
			Product: uint16(d.Desc.Product),
		}
		if product, err := d.Product(); err == nil {
			rec.ProductName = product
		}
		if serial, err := d.SerialNumber(); err == nil {
			rec.SerialNumber = serial
		}
		records = append(records, rec)
	}
	return records, nil
}

// closeAllDevices safely closes all opened USB devices
func closeAllDevices(devices []*gousb.Device, logger *zap.Logger) {
	for i, device := range devices {
		if device == nil {
			continue
		}
		if err := device.Close(); err != nil {
			logger.Warn("Failed to close USB device",
				zap.Int("device_index", i),
				zap.Error(err),
			)
		}
	}
}
