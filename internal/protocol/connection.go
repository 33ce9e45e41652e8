// internal/protocol/connection.go
package protocol

import (
	"time"

	"screen-streamer/internal/config"
	"screen-streamer/internal/model"
)

// SerialConfig represents serial link configuration
type SerialConfig struct {
	BaudRate     int           `json:"baud_rate"`
	WiFiBaudRate int           `json:"wifi_baud_rate"`
	Timeout      time.Duration `json:"timeout"`
}

// USBConfig represents raw bulk link configuration
type USBConfig struct {
	SerialPrefix    string        `json:"serial_prefix"`
	Endpoint        int           `json:"endpoint"`
	TransferTimeout time.Duration `json:"transfer_timeout"`
}

// DefaultSerialConfig matches the screen firmware defaults
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:     115200,
		WiFiBaudRate: 2000000,
		Timeout:      100 * time.Millisecond,
	}
}

// DefaultUSBConfig matches the screen firmware defaults
func DefaultUSBConfig() USBConfig {
	return USBConfig{
		SerialPrefix:    "USBSCR",
		Endpoint:        1,
		TransferTimeout: 100 * time.Millisecond,
	}
}

// ConfigsFromScreen derives link configs from the application config
func ConfigsFromScreen(cfg *config.ScreenConfig) (SerialConfig, USBConfig) {
	serialCfg := SerialConfig{
		BaudRate:     cfg.Serial.BaudRate,
		WiFiBaudRate: cfg.Serial.WiFiBaudRate,
		Timeout:      cfg.Serial.Timeout,
	}
	usbCfg := USBConfig{
		SerialPrefix:    cfg.SerialPrefix,
		Endpoint:        cfg.USB.Endpoint,
		TransferTimeout: cfg.USB.TransferTimeout,
	}
	return serialCfg, usbCfg
}

// baudRateFor picks the link speed for a device class
func (c SerialConfig) baudRateFor(info model.ScreenDeviceInfo) int {
	if info.IsWiFiClass {
		return c.WiFiBaudRate
	}
	return c.BaudRate
}
