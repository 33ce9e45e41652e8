// internal/protocol/session.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"screen-streamer/internal/model"
	"screen-streamer/internal/pixel"
	"screen-streamer/internal/utils"
)

var (
	ErrImageTooLarge = errors.New("image larger than screen")
	ErrBufferSize    = errors.New("pixel buffer does not match dimensions")
	ErrSessionClosed = errors.New("screen session closed")
)

// Session is an open link to one physical screen
type Session struct {
	info    model.ScreenDeviceInfo
	writer  FrameWriter
	logger  *utils.ScreenLogger
	release func()

	mutex  sync.Mutex
	closed bool
}

func newSession(info model.ScreenDeviceInfo, writer FrameWriter, logger *utils.ScreenLogger, release func()) *Session {
	return &Session{
		info:    info,
		writer:  writer,
		logger:  logger,
		release: release,
	}
}

// Info returns the device the session is bound to
func (s *Session) Info() model.ScreenDeviceInfo {
	return s.info
}

// DrawImage draws img with its top-left corner at (x, y)
func (s *Session) DrawImage(ctx context.Context, x, y uint16, img image.Image) error {
	b := img.Bounds()
	if b.Dx() > int(s.info.Width) || b.Dy() > int(s.info.Height) {
		return fmt.Errorf("%w: %dx%d on %dx%d", ErrImageTooLarge, b.Dx(), b.Dy(), s.info.Width, s.info.Height)
	}
	return s.DrawRGB565(ctx, pixel.FromImage(img), x, y, uint16(b.Dx()), uint16(b.Dy()))
}

// DrawRGB565 sends a big-endian RGB565 buffer of width x height pixels.
// Buffers larger than the screen are refused before any I/O.
func (s *Session) DrawRGB565(ctx context.Context, rgb565 []byte, x, y, width, height uint16) error {
	if width > s.info.Width || height > s.info.Height {
		return fmt.Errorf("%w: %dx%d on %dx%d", ErrImageTooLarge, width, height, s.info.Width, s.info.Height)
	}
	if len(rgb565) != int(width)*int(height)*pixel.BytesPerPixel565 {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrBufferSize, len(rgb565), width, height)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	start := time.Now()
	frame, err := EncodeFrame(rgb565, Header{Width: width, Height: height, X: x, Y: y})
	if err != nil {
		s.logger.LogDraw(int(width), int(height), 0, time.Since(start), err)
		return err
	}

	err = s.writer.WriteFrame(ctx, frame)
	s.logger.LogDraw(int(width), int(height), len(frame.Payload), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to draw on %s: %w", s.info.Label, err)
	}
	return nil
}

// Clear fills the whole panel with one color
func (s *Session) Clear(ctx context.Context, c color.Color) error {
	r, g, b, _ := c.RGBA()
	fill := pixel.Pack565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
	buf := pixel.Fill565(fill, int(s.info.Width), int(s.info.Height))
	return s.DrawRGB565(ctx, buf, 0, 0, s.info.Width, s.info.Height)
}

// Stats returns link statistics when the writer tracks them
func (s *Session) Stats() (ProtocolStats, bool) {
	if sr, ok := s.writer.(interface{ Stats() ProtocolStats }); ok {
		return sr.Stats(), true
	}
	return ProtocolStats{}, false
}

// Close releases the link; later draws fail with ErrSessionClosed
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.writer.Close()
	if s.release != nil {
		s.release()
	}
	s.logger.LogConnection("close", err == nil, err)
	return err
}
