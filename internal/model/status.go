// internal/model/status.go
package model

import "time"

// ConnectionState represents the WiFi streaming connection state
type ConnectionState int

const (
	StateNotConnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateConnectFail
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateNotConnected:
		return "not_connected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateConnectFail:
		return "connect_fail"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CanConnect reports whether a fresh connect request makes sense in this state
func (s ConnectionState) CanConnect() bool {
	return s == StateNotConnected || s == StateConnectFail || s == StateDisconnected
}

// WiFiStatus is a snapshot of the streaming session status
type WiFiStatus struct {
	Endpoint string          `json:"endpoint,omitempty"`
	State    ConnectionState `json:"state"`
	Delay    time.Duration   `json:"delay_ns"`
}

// DisplayConfig is the geometry a WiFi screen reports over HTTP
type DisplayConfig struct {
	DisplayType   string `json:"display_type,omitempty"`
	RotatedWidth  int    `json:"rotated_width"`
	RotatedHeight int    `json:"rotated_height"`
}
