// internal/discovery/serial_number.go
package discovery

import (
	"strconv"
	"strings"

	"screen-streamer/internal/model"
)

// ScreenSerialPrefix marks USB serial numbers of screen firmware
const ScreenSerialPrefix = "USBSCR"

// sizeWindowLen is how much text after the prefix can hold the resolution
// when no ';' is present
const sizeWindowLen = 7

// ScreenProductName is the USB product string of raw bulk screens
const ScreenProductName = "USB Screen"

// SerialFilter recognizes screen serial numbers by their prefix
type SerialFilter struct {
	Prefix string
}

// NewSerialFilter returns a filter for prefix, or for ScreenSerialPrefix
// when prefix is empty
func NewSerialFilter(prefix string) SerialFilter {
	if prefix == "" {
		prefix = ScreenSerialPrefix
	}
	return SerialFilter{Prefix: prefix}
}

// HasScreenSerial reports whether a serial number carries the default prefix
func HasScreenSerial(serial string) bool {
	return NewSerialFilter("").Matches(serial)
}

// ParseScreenSize reads the resolution after the default prefix
func ParseScreenSize(serial string) (uint16, uint16) {
	return NewSerialFilter("").ScreenSize(serial)
}

// Matches reports whether a serial number belongs to a screen
func (f SerialFilter) Matches(serial string) bool {
	return f.Prefix != "" && strings.HasPrefix(serial, f.Prefix)
}

// ScreenSize reads "<w>X<h>" following the prefix, e.g.
// "USBSCR320X240;abc". Anything unparseable yields 160x128.
func (f SerialFilter) ScreenSize(serial string) (uint16, uint16) {
	start := len(f.Prefix)
	if len(serial) < start {
		return model.DefaultScreenWidth, model.DefaultScreenHeight
	}

	end := strings.IndexByte(serial, ';')
	if end < 0 {
		end = min(start+sizeWindowLen, len(serial))
	}
	if end < start {
		return model.DefaultScreenWidth, model.DefaultScreenHeight
	}

	fields := strings.SplitN(strings.ToLower(serial[start:end]), "x", 3)
	if len(fields) < 2 {
		return model.DefaultScreenWidth, model.DefaultScreenHeight
	}

	width, errW := strconv.ParseUint(fields[0], 10, 16)
	height, errH := strconv.ParseUint(fields[1], 10, 16)
	if errW != nil || errH != nil {
		return model.DefaultScreenWidth, model.DefaultScreenHeight
	}
	return uint16(width), uint16(height)
}
