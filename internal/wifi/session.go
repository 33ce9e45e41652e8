// internal/wifi/session.go
package wifi

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"screen-streamer/internal/config"
	"screen-streamer/internal/model"
	"screen-streamer/internal/pixel"
)

var (
	ErrQueueFull      = errors.New("wifi command queue full")
	ErrSessionStopped = errors.New("wifi session stopped")
)

// Command is a message for the streaming worker
type Command interface {
	isCommand()
}

// Connect (re)connects to a screen endpoint ("ip" or "ip:port")
type Connect struct {
	Endpoint string
}

// Disconnect drops the socket and stops reconnecting
type Disconnect struct{}

// Image streams one rendered frame. The session owns Frame once sent.
type Image struct {
	Frame image.Image
}

func (Connect) isCommand()    {}
func (Disconnect) isCommand() {}
func (Image) isCommand()      {}

// Options holds the session timing
type Options struct {
	KeyInterval    uint32
	AckTimeout     time.Duration
	ConnectRetry   time.Duration
	ReconnectDelay time.Duration
	FrameDelay     time.Duration
}

// DefaultOptions matches the screen firmware expectations
func DefaultOptions() Options {
	return Options{
		KeyInterval:    DefaultKeyInterval,
		AckTimeout:     3 * time.Second,
		ConnectRetry:   2 * time.Second,
		ReconnectDelay: 3 * time.Second,
		FrameDelay:     time.Millisecond,
	}
}

// OptionsFromConfig converts the wifi config section
func OptionsFromConfig(cfg *config.WiFiConfig) Options {
	return Options{
		KeyInterval:    cfg.KeyInterval,
		AckTimeout:     cfg.AckTimeout,
		ConnectRetry:   cfg.ConnectRetry,
		ReconnectDelay: cfg.ReconnectDelay,
		FrameDelay:     cfg.FrameDelay,
	}
}

// StatusListener is called after every state change, outside any lock
type StatusListener func(model.WiFiStatus)

// Stats counts what the worker has sent
type Stats struct {
	KeyFrames   uint64 `json:"key_frames"`
	DeltaFrames uint64 `json:"delta_frames"`
	NopFrames   uint64 `json:"nop_frames"`
	Nacks       uint64 `json:"nacks"`
	AckTimeouts uint64 `json:"ack_timeouts"`
	Drops       uint64 `json:"drops"`
}

// Session streams frames to one WiFi screen. A single worker goroutine
// owns the socket, the encoder and the display geometry.
type Session struct {
	opts     Options
	dialer   Dialer
	fetcher  ConfigFetcher
	logger   *zap.Logger
	commands chan Command
	stop     chan struct{}
	wg       sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	mu        sync.Mutex
	status    model.WiFiStatus
	stats     Stats
	listeners []StatusListener

	// worker state
	socket    Socket
	encoder   *DeltaEncoder
	display   *model.DisplayConfig
	endpoint  string
	reconnect *time.Timer
}

// NewSession creates a session; call Start to run the worker
func NewSession(opts Options, dialer Dialer, fetcher ConfigFetcher, logger *zap.Logger) *Session {
	defaults := DefaultOptions()
	if opts.KeyInterval == 0 {
		opts.KeyInterval = defaults.KeyInterval
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaults.AckTimeout
	}
	if opts.ConnectRetry <= 0 {
		opts.ConnectRetry = defaults.ConnectRetry
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaults.ReconnectDelay
	}
	if opts.FrameDelay < 0 {
		opts.FrameDelay = 0
	}

	return &Session{
		opts:     opts,
		dialer:   dialer,
		fetcher:  fetcher,
		logger:   logger.With(zap.String("component", "wifi_session")),
		commands: make(chan Command, 1),
		stop:     make(chan struct{}),
		status:   model.WiFiStatus{State: model.StateNotConnected, Delay: opts.FrameDelay},
		encoder:  NewDeltaEncoder(opts.KeyInterval),
	}
}

// Start runs the worker until ctx is cancelled or Stop is called
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
	})
}

// Stop ends the worker and closes the socket
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

// Send enqueues cmd, blocking while the queue slot is taken
func (s *Session) Send(ctx context.Context, cmd Command) error {
	select {
	case <-s.stop:
		return ErrSessionStopped
	default:
	}

	select {
	case s.commands <- cmd:
		return nil
	case <-s.stop:
		return ErrSessionStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues cmd without blocking. When the slot is taken the new
// command is dropped and ErrQueueFull returned.
func (s *Session) TrySend(cmd Command) error {
	select {
	case <-s.stop:
		return ErrSessionStopped
	default:
	}

	select {
	case s.commands <- cmd:
		return nil
	default:
		s.mu.Lock()
		s.stats.Drops++
		s.mu.Unlock()
		return ErrQueueFull
	}
}

// Status returns a snapshot of the connection status
func (s *Session) Status() model.WiFiStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats returns a snapshot of the frame counters
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SetDelay changes the pause after each frame
func (s *Session) SetDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	s.status.Delay = delay
	s.mu.Unlock()
}

// OnStatusChange registers a listener for state transitions
func (s *Session) OnStatusChange(listener StatusListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()
	defer s.shutdown()

	s.logger.Info("WiFi streaming worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case cmd := <-s.commands:
			switch c := cmd.(type) {
			case Connect:
				s.handleConnect(ctx, c.Endpoint)
			case Disconnect:
				s.handleDisconnect()
			case Image:
				s.handleImage(ctx, c.Frame)
			}
		}
	}
}

func (s *Session) shutdown() {
	s.cancelReconnect()
	s.closeSocket()
	s.logger.Info("WiFi streaming worker stopped")
}

func (s *Session) handleConnect(ctx context.Context, endpoint string) {
	s.cancelReconnect()
	s.closeSocket()
	s.encoder.Reset()
	s.endpoint = endpoint
	s.display = nil

	s.setStatus(endpoint, model.StateConnecting)

	if cfg, err := s.fetcher.FetchDisplayConfig(ctx, endpoint); err != nil {
		s.logger.Warn("Display config fetch failed", zap.String("endpoint", endpoint), zap.Error(err))
	} else {
		s.display = cfg
	}

	sock, err := s.dialer.Dial(ctx, endpoint)
	if err != nil {
		s.logger.Warn("WiFi screen connect failed",
			zap.String("endpoint", endpoint),
			zap.Duration("retry_in", s.opts.ConnectRetry),
			zap.Error(err),
		)
		s.setState(model.StateConnectFail)
		s.scheduleReconnect(s.opts.ConnectRetry)
		return
	}

	s.socket = sock
	s.setState(model.StateConnected)
	s.logger.Info("WiFi screen connected", zap.String("endpoint", endpoint))
}

func (s *Session) handleDisconnect() {
	s.cancelReconnect()
	s.endpoint = ""
	s.encoder.Reset()
	s.closeSocket()
	s.setState(model.StateDisconnected)
	s.logger.Info("WiFi screen disconnected")
}

func (s *Session) handleImage(ctx context.Context, img image.Image) {
	if img == nil {
		return
	}
	if s.socket == nil {
		if s.endpoint != "" && s.reconnect == nil {
			s.setState(model.StateDisconnected)
			s.scheduleReconnect(s.opts.ReconnectDelay)
		}
		return
	}

	// a pending reconnect will replace the socket
	if s.reconnect != nil {
		return
	}

	if s.display == nil {
		cfg, err := s.fetcher.FetchDisplayConfig(ctx, s.endpoint)
		if err != nil {
			s.logger.Warn("Display config fetch failed, reconnecting",
				zap.String("endpoint", s.endpoint),
				zap.Error(err),
			)
			s.scheduleReconnect(s.opts.ReconnectDelay)
			return
		}
		s.display = cfg
	}

	start := time.Now()
	width, height := s.display.RotatedWidth, s.display.RotatedHeight
	rgb565 := pixel.FromImage(pixel.Resize(img, width, height))

	frame, err := s.encoder.Encode(rgb565, uint16(width), uint16(height))
	if err != nil {
		s.logger.Error("Frame encode failed", zap.Error(err))
		return
	}
	encodeTime := time.Since(start)

	sendStart := time.Now()
	s.socket.DrainAcks()
	if err := s.socket.WriteFrame(frame.Data); err != nil {
		s.dropSocket(err)
		return
	}

	ack, err := s.socket.WaitAck(s.opts.AckTimeout)
	switch {
	case errors.Is(err, ErrSocketClosed):
		s.dropSocket(err)
		return
	case errors.Is(err, ErrAckTimeout):
		s.logger.Warn("Ack wait timed out, resetting encoder", zap.Duration("timeout", s.opts.AckTimeout))
		s.encoder.Reset()
		s.count(func(st *Stats) { st.AckTimeouts++ })
	case err != nil:
		s.logger.Warn("Ack wait failed, resetting encoder", zap.Error(err))
		s.encoder.Reset()
	case ack == AckNack:
		s.logger.Info("NACK received, resetting encoder")
		s.encoder.Reset()
		s.count(func(st *Stats) { st.Nacks++ })
	}

	s.count(func(st *Stats) {
		switch frame.Kind {
		case FrameKey:
			st.KeyFrames++
		case FrameDelta:
			st.DeltaFrames++
		case FrameNop:
			st.NopFrames++
		}
	})

	s.logger.Debug("Frame sent",
		zap.String("type", frame.Kind.String()),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("bytes", len(frame.Data)),
		zap.Duration("encode", encodeTime),
		zap.Duration("send_ack", time.Since(sendStart)),
		zap.Duration("total", time.Since(start)),
	)

	if delay := s.Status().Delay; delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.stop:
		case <-ctx.Done():
		}
	}
}

// dropSocket handles a lost connection: reset, mark Disconnected and retry
func (s *Session) dropSocket(cause error) {
	s.logger.Warn("WiFi screen connection lost",
		zap.String("endpoint", s.endpoint),
		zap.Duration("retry_in", s.opts.ReconnectDelay),
		zap.Error(cause),
	)
	s.closeSocket()
	s.encoder.Reset()
	s.setState(model.StateDisconnected)
	s.scheduleReconnect(s.opts.ReconnectDelay)
}

func (s *Session) closeSocket() {
	if s.socket == nil {
		return
	}
	if err := s.socket.Close(); err != nil {
		s.logger.Debug("Socket close failed", zap.Error(err))
	}
	s.socket = nil
}

// scheduleReconnect resubmits Connect for the current endpoint after delay.
// The resubmit runs on its own goroutine so the worker never waits on its
// own queue.
func (s *Session) scheduleReconnect(delay time.Duration) {
	endpoint := s.endpoint
	if endpoint == "" {
		return
	}
	s.cancelReconnect()
	s.reconnect = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		if err := s.Send(ctx, Connect{Endpoint: endpoint}); err != nil {
			s.logger.Debug("Reconnect not submitted", zap.String("endpoint", endpoint), zap.Error(err))
		}
	})
}

func (s *Session) cancelReconnect() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

func (s *Session) setState(state model.ConnectionState) {
	s.mu.Lock()
	endpoint := s.status.Endpoint
	s.mu.Unlock()
	s.setStatus(endpoint, state)
}

func (s *Session) setStatus(endpoint string, state model.ConnectionState) {
	s.mu.Lock()
	changed := s.status.State != state || s.status.Endpoint != endpoint
	s.status.Endpoint = endpoint
	s.status.State = state
	snapshot := s.status
	listeners := append([]StatusListener(nil), s.listeners...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(snapshot)
	}
}

func (s *Session) count(update func(*Stats)) {
	s.mu.Lock()
	update(&s.stats)
	s.mu.Unlock()
}

// String describes the session for logs
func (s *Session) String() string {
	st := s.Status()
	return fmt.Sprintf("wifi(%s, %s)", st.Endpoint, st.State)
}
