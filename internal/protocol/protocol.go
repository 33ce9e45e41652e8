// internal/protocol/protocol.go
package protocol

import (
	"context"
	"sync"
	"time"

	"screen-streamer/internal/model"
)

// FrameWriter delivers complete frames to one physical screen link
type FrameWriter interface {
	WriteFrame(ctx context.Context, frame *Frame) error
	Close() error
	Transport() model.TransportKind
}

// ProtocolStats provides link-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	FrameCount     int64         `json:"frame_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
}

// statsRecorder is embedded by link implementations
type statsRecorder struct {
	mu    sync.Mutex
	stats ProtocolStats
}

func (s *statsRecorder) recordFrame(bytes int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.BytesWritten += int64(bytes)
	s.stats.FrameCount++
	s.stats.LastActivity = time.Now()
	if s.stats.AverageLatency == 0 {
		s.stats.AverageLatency = latency
	} else {
		s.stats.AverageLatency = (s.stats.AverageLatency + latency) / 2
	}
}

func (s *statsRecorder) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ErrorCount++
}

// Stats returns a snapshot of link statistics
func (s *statsRecorder) Stats() ProtocolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
