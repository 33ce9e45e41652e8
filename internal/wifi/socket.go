// internal/wifi/socket.go
package wifi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrSocketClosed = errors.New("socket closed by peer")
	ErrAckTimeout   = errors.New("timed out waiting for ack")
)

// Ack is the screen's reply to one frame
type Ack int

const (
	AckOK Ack = iota
	AckNack
)

// NackText is the text message a screen sends when it lost sync
const NackText = "NACK"

const (
	ackBufferSize = 8
	writeTimeout  = 5 * time.Second
	closeTimeout  = time.Second
)

// Socket is a connected frame stream to one screen
type Socket interface {
	// WriteFrame sends one binary message
	WriteFrame(data []byte) error
	// WaitAck blocks for the next reply or the timeout
	WaitAck(timeout time.Duration) (Ack, error)
	// DrainAcks discards replies that arrived after their wait expired
	DrainAcks()
	Close() error
}

// Dialer opens sockets to screen endpoints
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Socket, error)
}

// SocketURL is the streaming URL of an endpoint
func SocketURL(endpoint string) string {
	return fmt.Sprintf("ws://%s/ws", endpoint)
}

// WebsocketDialer dials screens with gorilla/websocket
type WebsocketDialer struct {
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWebsocketDialer creates a dialer with the given handshake timeout
func NewWebsocketDialer(handshakeTimeout time.Duration, logger *zap.Logger) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            nil,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  64 * 1024,
		},
		logger: logger,
	}
}

// Dial connects and starts the reader pump
func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Socket, error) {
	url := SocketURL(endpoint)
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	s := &wsSocket{
		conn:   conn,
		acks:   make(chan Ack, ackBufferSize),
		done:   make(chan struct{}),
		logger: d.logger.With(zap.String("endpoint", endpoint)),
	}
	go s.readPump()
	return s, nil
}

type wsSocket struct {
	conn      *websocket.Conn
	acks      chan Ack
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// readPump is the connection's only reader
func (s *wsSocket) readPump() {
	defer close(s.done)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Socket read ended", zap.Error(err))
			}
			return
		}

		ack := AckOK
		if msgType == websocket.TextMessage && string(data) == NackText {
			ack = AckNack
		}

		select {
		case s.acks <- ack:
		default:
			s.logger.Warn("Ack buffer full, dropping reply")
		}
	}
}

func (s *wsSocket) WriteFrame(data []byte) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (s *wsSocket) WaitAck(timeout time.Duration) (Ack, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-s.acks:
		return ack, nil
	case <-s.done:
		// replies that raced the close still count
		select {
		case ack := <-s.acks:
			return ack, nil
		default:
		}
		return AckOK, ErrSocketClosed
	case <-timer.C:
		return AckOK, ErrAckTimeout
	}
}

func (s *wsSocket) DrainAcks() {
	for {
		select {
		case <-s.acks:
		default:
			return
		}
	}
}

func (s *wsSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) && !errors.Is(werr, net.ErrClosed) {
			s.logger.Debug("Close handshake failed", zap.Error(werr))
		}
		err = s.conn.Close()
	})
	return err
}
