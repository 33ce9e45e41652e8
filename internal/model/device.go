// internal/model/device.go
package model

import "fmt"

// TransportKind represents how a screen is attached
type TransportKind string

const (
	TransportUSBRaw TransportKind = "USB_RAW"
	TransportSerial TransportKind = "SERIAL"
)

// Screen resolutions used when the device does not report one
const (
	DefaultScreenWidth  uint16 = 160
	DefaultScreenHeight uint16 = 128
	DefaultESP32Width   uint16 = 240
	DefaultESP32Height  uint16 = 240
)

// ScreenDeviceInfo describes a discovered screen
type ScreenDeviceInfo struct {
	Label       string        `json:"label"`
	Address     string        `json:"address"`
	Width       uint16        `json:"width"`
	Height      uint16        `json:"height"`
	IsWiFiClass bool          `json:"is_wifi_class"`
	Transport   TransportKind `json:"transport"`
}

// Key identifies a screen across discovery passes
func (d ScreenDeviceInfo) Key() string {
	return string(d.Transport) + ":" + d.Address
}

// PixelCount returns the number of pixels on the panel
func (d ScreenDeviceInfo) PixelCount() int {
	return int(d.Width) * int(d.Height)
}

func (d ScreenDeviceInfo) String() string {
	return fmt.Sprintf("%s [%dx%d]", d.Label, d.Width, d.Height)
}

// USBRawLabel builds the label of a raw bulk screen
func USBRawLabel(address string) string {
	return fmt.Sprintf("USB Screen(%s)", address)
}

// SerialLabel builds the label of a serial attached screen
func SerialLabel(port string, wifiClass bool) string {
	if wifiClass {
		return "ESP32 " + port
	}
	return "USB " + port
}
