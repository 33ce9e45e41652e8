// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"screen-streamer/internal/model"
)

// OutEndpoint is the bulk-out side of a claimed USB interface.
// *gousb.OutEndpoint satisfies it.
type OutEndpoint interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

var framePartNames = [...]string{"header", "payload", "trailer"}

// BulkWriter sends each frame as three bulk-out transfers, each bounded by
// its own timeout. A failure in any transfer aborts the whole frame.
type BulkWriter struct {
	statsRecorder
	endpoint OutEndpoint
	timeout  time.Duration
	logger   *zap.Logger

	closeOnce sync.Once
	closer    func() error
	closeErr  error
}

// NewBulkWriter wraps an endpoint. closer releases the underlying device
// and may be nil.
func NewBulkWriter(endpoint OutEndpoint, timeout time.Duration, closer func() error, logger *zap.Logger) *BulkWriter {
	return &BulkWriter{
		endpoint: endpoint,
		timeout:  timeout,
		closer:   closer,
		logger:   logger.With(zap.String("protocol", "usb")),
	}
}

// WriteFrame writes header, payload and trailer in order
func (bw *BulkWriter) WriteFrame(ctx context.Context, frame *Frame) error {
	start := time.Now()
	total := 0

	for i, part := range frame.Parts() {
		if err := bw.transfer(ctx, part); err != nil {
			bw.recordError()
			bw.logger.Warn("USB bulk transfer failed",
				zap.String("part", framePartNames[i]),
				zap.Int("bytes", len(part)),
				zap.Error(err),
			)
			return fmt.Errorf("failed to write frame %s: %w", framePartNames[i], err)
		}
		total += len(part)
	}

	bw.recordFrame(total, time.Since(start))
	return nil
}

// transfer performs one bulk-out write bounded by the transfer timeout
func (bw *BulkWriter) transfer(ctx context.Context, buf []byte) error {
	tctx, cancel := context.WithTimeout(ctx, bw.timeout)
	defer cancel()

	n, err := bw.endpoint.WriteContext(tctx, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(buf))
	}
	return nil
}

// Transport returns the link kind
func (bw *BulkWriter) Transport() model.TransportKind {
	return model.TransportUSBRaw
}

// Close releases the device once
func (bw *BulkWriter) Close() error {
	bw.closeOnce.Do(func() {
		if bw.closer != nil {
			bw.closeErr = bw.closer()
		}
	})
	return bw.closeErr
}

// OpenUSBConnection claims the raw bulk screen at a device address
func OpenUSBConnection(address string, cfg USBConfig, logger *zap.Logger) (*BulkWriter, error) {
	deviceAddr, err := strconv.Atoi(address)
	if err != nil {
		return nil, fmt.Errorf("invalid USB device address %q: %w", address, err)
	}

	logger.Info("Opening USB screen",
		zap.String("address", address),
		zap.Int("endpoint", cfg.Endpoint),
	)

	usbCtx := gousb.NewContext()

	device, err := findScreenDevice(usbCtx, deviceAddr, cfg.SerialPrefix)
	if err != nil {
		usbCtx.Close()
		return nil, err
	}

	if err := device.SetAutoDetach(true); err != nil {
		logger.Debug("Kernel driver auto-detach unavailable", zap.Error(err))
	}

	intf, done, err := device.DefaultInterface()
	if err != nil {
		device.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	outEndpt, err := intf.OutEndpoint(cfg.Endpoint)
	if err != nil {
		done()
		device.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("failed to get out endpoint: %w", err)
	}

	closer := func() error {
		done()
		if err := device.Close(); err != nil {
			usbCtx.Close()
			return fmt.Errorf("failed to close USB device: %w", err)
		}
		return usbCtx.Close()
	}

	logger.Info("USB screen opened successfully", zap.String("address", address))
	return NewBulkWriter(outEndpt, cfg.TransferTimeout, closer, logger), nil
}

// findScreenDevice opens the device at addr whose serial carries the
// screen prefix, closing every other handle it opened along the way.
func findScreenDevice(usbCtx *gousb.Context, addr int, prefix string) (*gousb.Device, error) {
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Address == addr
	})
	if len(devices) == 0 {
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
		}
		return nil, fmt.Errorf("%w: USB address %d", ErrDeviceNotFound, addr)
	}

	var found *gousb.Device
	for _, d := range devices {
		if found == nil {
			if serial, err := d.SerialNumber(); err == nil && strings.HasPrefix(serial, prefix) {
				found = d
				continue
			}
		}
		d.Close()
	}

	if found == nil {
		return nil, fmt.Errorf("%w: USB address %d", ErrDeviceNotFound, addr)
	}
	return found, nil
}
