// internal/discovery/serial/probe.go
package serial

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"screen-streamer/internal/model"
)

// ReadInfo protocol tokens
const (
	ReadInfoCommand = "ReadInfo\n"
	IdentifyToken   = "ESP32-WIFI-SCREEN"
	ProtocolTag     = "PROTO:USB-SCREEN"
)

const probeChunkSize = 256

// Prober asks a port what screen is behind it
type Prober interface {
	Probe(ctx context.Context, portName string) (width, height uint16, ok bool)
}

// ProbeConfig controls the ReadInfo exchange
type ProbeConfig struct {
	BaudRate     int
	ReadTimeout  time.Duration
	TotalTimeout time.Duration
}

// DefaultProbeConfig matches the screen firmware
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		BaudRate:     115200,
		ReadTimeout:  200 * time.Millisecond,
		TotalTimeout: 800 * time.Millisecond,
	}
}

// probePort is the subset of serial.Port the probe uses
type probePort interface {
	io.ReadWriter
	ResetInputBuffer() error
	Drain() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// ReadInfoProber probes ports with the ReadInfo command
type ReadInfoProber struct {
	config ProbeConfig
	logger *zap.Logger
	open   func(name string, baudRate int) (probePort, error)
}

// NewReadInfoProber creates a prober that opens real serial ports
func NewReadInfoProber(config ProbeConfig, logger *zap.Logger) *ReadInfoProber {
	return &ReadInfoProber{
		config: config,
		logger: logger.With(zap.String("component", "probe")),
		open: func(name string, baudRate int) (probePort, error) {
			port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
			if err != nil {
				return nil, err
			}
			return port, nil
		},
	}
}

// Probe opens the port, sends ReadInfo and waits for one response line.
// The port is always closed before returning.
func (p *ReadInfoProber) Probe(ctx context.Context, portName string) (uint16, uint16, bool) {
	port, err := p.open(portName, p.config.BaudRate)
	if err != nil {
		p.logger.Debug("Probe open failed", zap.String("port", portName), zap.Error(err))
		return 0, 0, false
	}
	defer port.Close()

	line, err := p.exchange(ctx, port)
	if err != nil {
		p.logger.Debug("Probe exchange failed", zap.String("port", portName), zap.Error(err))
		return 0, 0, false
	}

	p.logger.Debug("ReadInfo response", zap.String("port", portName), zap.String("line", line))
	return ParseProbeResponse(line)
}

// exchange writes the command and reads until a newline or the deadline
func (p *ReadInfoProber) exchange(ctx context.Context, port probePort) (string, error) {
	if err := port.SetReadTimeout(p.config.ReadTimeout); err != nil {
		return "", fmt.Errorf("failed to set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return "", fmt.Errorf("failed to discard stale input: %w", err)
	}
	if _, err := io.WriteString(port, ReadInfoCommand); err != nil {
		return "", fmt.Errorf("failed to write command: %w", err)
	}
	if err := port.Drain(); err != nil {
		return "", fmt.Errorf("failed to flush command: %w", err)
	}

	deadline := time.Now().Add(p.config.TotalTimeout)
	var buf []byte
	chunk := make([]byte, probeChunkSize)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := port.Read(chunk)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
		if n == 0 {
			continue
		}

		buf = append(buf, chunk[:n]...)
		if idx := bytes.IndexByte(buf, '\n'); idx >= 0 {
			return strings.TrimRight(string(buf[:idx]), "\r"), nil
		}
	}
	return "", fmt.Errorf("no response within %s", p.config.TotalTimeout)
}

// ParseProbeResponse accepts "ESP32-WIFI-SCREEN;<w>;<h>;PROTO:USB-SCREEN".
// A line carrying both tokens but no usable size reports 240x240.
func ParseProbeResponse(line string) (uint16, uint16, bool) {
	idx := strings.Index(strings.ToUpper(line), IdentifyToken)
	if idx < 0 || idx > len(line) {
		return 0, 0, false
	}

	payload := line[idx:]
	if !strings.Contains(payload, ProtocolTag) {
		return 0, 0, false
	}

	parts := strings.Split(payload, ";")
	if len(parts) >= 4 {
		w, errW := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 16)
		h, errH := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 16)
		if errW == nil && errH == nil && w > 0 && h > 0 {
			return uint16(w), uint16(h), true
		}
	}
	return model.DefaultESP32Width, model.DefaultESP32Height, true
}
