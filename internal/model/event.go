// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventScreenOpened     EventType = "SCREEN_OPENED"
	EventScreenClosed     EventType = "SCREEN_CLOSED"
	EventScreenError      EventType = "SCREEN_ERROR"
	EventDiscoveryUpdate  EventType = "DISCOVERY_UPDATE"
	EventWiFiStatusChange EventType = "WIFI_STATUS_CHANGE"
)

// ScreenEvent represents an event in the system
type ScreenEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	Address   string                 `json:"address,omitempty"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Severity  string                 `json:"severity"` // INFO, WARNING, ERROR
}

// NewScreenEvent creates an event stamped with a fresh ID and time
func NewScreenEvent(eventType EventType, source, severity string, data map[string]interface{}) *ScreenEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &ScreenEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  severity,
	}
}

// WithAddress sets the device address on the event
func (e *ScreenEvent) WithAddress(address string) *ScreenEvent {
	e.Address = address
	return e
}
