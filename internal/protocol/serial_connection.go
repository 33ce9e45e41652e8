// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"screen-streamer/internal/model"
)

// ErrWriteTimeout marks a serial write or drain that did not finish in time.
// The port is closed when it is returned.
var ErrWriteTimeout = errors.New("serial write timed out")

// SerialPort is the subset of serial.Port a frame writer needs
type SerialPort interface {
	io.Writer
	Drain() error
	Close() error
}

// SerialWriter sends frames over a serial link. Legacy firmware gets the
// header, payload and trailer as separate write+drain steps; combined mode
// sends the whole frame in one write and one drain.
type SerialWriter struct {
	statsRecorder
	port     SerialPort
	combined bool
	timeout  time.Duration
	baudRate int
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewSerialWriter wraps an open port. Each write+drain step is bounded by
// the default serial timeout until WithWriteTimeout says otherwise.
func NewSerialWriter(port SerialPort, combined bool, logger *zap.Logger) *SerialWriter {
	mode := "legacy"
	if combined {
		mode = "combined"
	}
	return &SerialWriter{
		port:     port,
		combined: combined,
		timeout:  DefaultSerialConfig().Timeout,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("framing", mode),
		),
	}
}

// WithWriteTimeout sets the per-step bound. A non-zero baud rate extends
// the bound by the time the chunk needs on the wire.
func (sw *SerialWriter) WithWriteTimeout(timeout time.Duration, baudRate int) *SerialWriter {
	sw.timeout = timeout
	sw.baudRate = baudRate
	return sw
}

// WriteFrame writes a frame using the configured framing variant
func (sw *SerialWriter) WriteFrame(ctx context.Context, frame *Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	var chunks [][]byte
	if sw.combined {
		chunks = [][]byte{frame.Bytes()}
	} else {
		chunks = frame.Parts()
	}

	total := 0
	for _, chunk := range chunks {
		if err := sw.writeAndDrain(ctx, chunk); err != nil {
			sw.recordError()
			sw.logger.Warn("Serial frame write failed", zap.Int("bytes", len(chunk)), zap.Error(err))
			return err
		}
		total += len(chunk)
	}

	sw.recordFrame(total, time.Since(start))
	return nil
}

// writeAndDrain runs one blocking write+drain step in a goroutine, bounded
// by the context and the step deadline. On timeout the port is closed,
// which also unblocks the pending write.
func (sw *SerialWriter) writeAndDrain(ctx context.Context, buf []byte) error {
	limit := sw.stepTimeout(len(buf))
	tctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sw.writeAll(buf)
	}()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		sw.Close()
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w after %s (%d bytes)", ErrWriteTimeout, limit, len(buf))
	}
}

func (sw *SerialWriter) stepTimeout(n int) time.Duration {
	limit := sw.timeout
	if limit <= 0 {
		limit = DefaultSerialConfig().Timeout
	}
	if sw.baudRate > 0 {
		// 10 bits per byte on an 8N1 line
		limit += time.Duration(n) * 10 * time.Second / time.Duration(sw.baudRate)
	}
	return limit
}

func (sw *SerialWriter) writeAll(buf []byte) error {
	for len(buf) > 0 {
		n, err := sw.port.Write(buf)
		if err != nil {
			return fmt.Errorf("failed to write to serial port: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("failed to write to serial port: %w", io.ErrShortWrite)
		}
		buf = buf[n:]
	}
	if err := sw.port.Drain(); err != nil {
		return fmt.Errorf("failed to flush serial port: %w", err)
	}
	return nil
}

// Transport returns the link kind
func (sw *SerialWriter) Transport() model.TransportKind {
	return model.TransportSerial
}

// Close closes the port once
func (sw *SerialWriter) Close() error {
	sw.closeOnce.Do(func() {
		if err := sw.port.Close(); err != nil {
			sw.closeErr = fmt.Errorf("failed to close serial port: %w", err)
		}
	})
	return sw.closeErr
}

// OpenSerialConnection opens a classified serial screen at the baud rate
// its device class requires
func OpenSerialConnection(info model.ScreenDeviceInfo, cfg SerialConfig, logger *zap.Logger) (*SerialWriter, error) {
	baudRate := cfg.baudRateFor(info)

	logger.Info("Opening serial screen",
		zap.String("port", info.Address),
		zap.Int("baud_rate", baudRate),
		zap.Bool("wifi_class", info.IsWiFiClass),
	)

	port, err := serial.Open(info.Address, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	logger.Info("Serial screen opened successfully", zap.String("port", info.Address))
	return NewSerialWriter(port, info.IsWiFiClass, logger).WithWriteTimeout(cfg.Timeout, baudRate), nil
}
