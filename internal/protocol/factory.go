// internal/protocol/factory.go
package protocol

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"screen-streamer/internal/model"
	"screen-streamer/internal/utils"
)

var (
	ErrDeviceNotFound    = errors.New("screen device not found")
	ErrDeviceBusy        = errors.New("screen device already open")
	ErrUnsupportedDevice = errors.New("unsupported screen transport")
)

// Opener opens screen sessions and tracks which devices are held open.
// A device can be held by at most one session at a time.
type Opener struct {
	serialConfig SerialConfig
	usbConfig    USBConfig
	logger       *zap.Logger

	mutex sync.Mutex
	open  map[string]struct{}

	openUSB    func(address string) (FrameWriter, error)
	openSerial func(info model.ScreenDeviceInfo) (FrameWriter, error)
}

// NewOpener creates an opener backed by gousb and go.bug.st/serial
func NewOpener(serialConfig SerialConfig, usbConfig USBConfig, logger *zap.Logger) *Opener {
	o := &Opener{
		serialConfig: serialConfig,
		usbConfig:    usbConfig,
		logger:       logger,
		open:         make(map[string]struct{}),
	}
	o.openUSB = func(address string) (FrameWriter, error) {
		return OpenUSBConnection(address, o.usbConfig, o.logger)
	}
	o.openSerial = func(info model.ScreenDeviceInfo) (FrameWriter, error) {
		return OpenSerialConnection(info, o.serialConfig, o.logger)
	}
	return o
}

// Open opens the device described by info
func (o *Opener) Open(info model.ScreenDeviceInfo) (*Session, error) {
	key := info.Key()
	if err := o.acquire(key); err != nil {
		return nil, fmt.Errorf("%w: %s", err, info.Label)
	}

	screenLogger := utils.NewScreenLogger(o.logger, info.Label, info.Address, string(info.Transport))

	var (
		writer FrameWriter
		err    error
	)
	switch info.Transport {
	case model.TransportUSBRaw:
		writer, err = o.openUSB(info.Address)
	case model.TransportSerial:
		writer, err = o.openSerial(info)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedDevice, info.Transport)
	}

	if err != nil {
		o.releaseKey(key)
		screenLogger.LogConnection("open", false, err)
		return nil, fmt.Errorf("failed to open %s: %w", info.Label, err)
	}

	screenLogger.LogConnection("open", true, nil)
	return newSession(info, writer, screenLogger, func() { o.releaseKey(key) }), nil
}

// IsOpen reports whether a session currently holds the device
func (o *Opener) IsOpen(info model.ScreenDeviceInfo) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	_, ok := o.open[info.Key()]
	return ok
}

func (o *Opener) acquire(key string) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, ok := o.open[key]; ok {
		return ErrDeviceBusy
	}
	o.open[key] = struct{}{}
	return nil
}

func (o *Opener) releaseKey(key string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	delete(o.open, key)
}
