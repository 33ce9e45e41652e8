package serial

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"screen-streamer/internal/model"
)

type fakeProber struct {
	mu      sync.Mutex
	answers map[string][2]uint16
	probed  []string
}

func (f *fakeProber) Probe(ctx context.Context, portName string) (uint16, uint16, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, portName)
	size, ok := f.answers[portName]
	return size[0], size[1], ok
}

func staticPorts(ports ...*enumerator.PortDetails) PortLister {
	return PortListerFunc(func() ([]*enumerator.PortDetails, error) {
		return ports, nil
	})
}

func TestParseProbeResponse(t *testing.T) {
	tests := []struct {
		line   string
		ok     bool
		width  uint16
		height uint16
	}{
		{"ESP32-WIFI-SCREEN;320;240;PROTO:USB-SCREEN", true, 320, 240},
		{"boot noise ESP32-WIFI-SCREEN;240;135;PROTO:USB-SCREEN", true, 240, 135},
		{"esp32-wifi-screen;128;64;PROTO:USB-SCREEN", true, 128, 64},
		{"ESP32-WIFI-SCREEN;0;240;PROTO:USB-SCREEN", true, 240, 240},
		{"ESP32-WIFI-SCREEN;abc;240;PROTO:USB-SCREEN", true, 240, 240},
		{"ESP32-WIFI-SCREEN PROTO:USB-SCREEN", true, 240, 240},
		{"ESP32-WIFI-SCREEN;320;240", false, 0, 0},
		{"PROTO:USB-SCREEN", false, 0, 0},
		{"", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			w, h, ok := ParseProbeResponse(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.width, w)
			assert.Equal(t, tt.height, h)
		})
	}
}

func TestScanner_ThreePasses(t *testing.T) {
	ports := staticPorts(
		&enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, SerialNumber: "USBSCR320X240"},
		&enumerator.PortDetails{Name: "/dev/ttyACM1", IsUSB: true, SerialNumber: "E66138"},
		&enumerator.PortDetails{Name: "/dev/ttyACM2", IsUSB: true},
		&enumerator.PortDetails{Name: "/dev/ttyS0", IsUSB: false},
	)
	prober := &fakeProber{answers: map[string][2]uint16{"/dev/ttyACM1": {240, 135}}}
	cache := NewProbeCache()
	s := NewScannerWithLister(ports, prober, cache, zap.NewNop())

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []model.ScreenDeviceInfo{
		{Label: "USB /dev/ttyACM0", Address: "/dev/ttyACM0", Width: 320, Height: 240, Transport: model.TransportSerial},
		{Label: "ESP32 /dev/ttyACM1", Address: "/dev/ttyACM1", Width: 240, Height: 135, IsWiFiClass: true, Transport: model.TransportSerial},
	}, devices)

	// serial-number matches and non-USB ports are never probed
	assert.Equal(t, []string{"/dev/ttyACM1", "/dev/ttyACM2"}, prober.probed)

	w, h, ok := cache.Get("/dev/ttyACM1")
	require.True(t, ok)
	assert.Equal(t, uint16(240), w)
	assert.Equal(t, uint16(135), h)
}

func TestScanner_CustomSerialPrefix(t *testing.T) {
	ports := staticPorts(
		&enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, SerialNumber: "LCDPANEL240X240"},
		&enumerator.PortDetails{Name: "/dev/ttyACM1", IsUSB: true, SerialNumber: "USBSCR320X240"},
	)
	prober := &fakeProber{}
	s := NewScannerWithLister(ports, prober, nil, zap.NewNop()).WithSerialPrefix("LCDPANEL")

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []model.ScreenDeviceInfo{
		{Label: "USB /dev/ttyACM0", Address: "/dev/ttyACM0", Width: 240, Height: 240, Transport: model.TransportSerial},
	}, devices)
	assert.Equal(t, []string{"/dev/ttyACM1"}, prober.probed)
}

func TestScanner_CacheRecovery(t *testing.T) {
	ports := staticPorts(&enumerator.PortDetails{Name: "/dev/ttyACM1", IsUSB: true})
	prober := &fakeProber{answers: map[string][2]uint16{"/dev/ttyACM1": {320, 170}}}
	cache := NewProbeCache()
	s := NewScannerWithLister(ports, prober, cache, zap.NewNop())

	first, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// the port is now held open elsewhere and no longer answers
	prober.answers = map[string][2]uint16{}

	second, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScanner_CacheIgnoredForVanishedPorts(t *testing.T) {
	cache := NewProbeCache()
	cache.Put("/dev/ttyACM7", 240, 240)

	s := NewScannerWithLister(staticPorts(), &fakeProber{}, cache, zap.NewNop())
	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Equal(t, 1, cache.Len())
}

func TestScanner_ListError(t *testing.T) {
	lister := PortListerFunc(func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("enumeration failed")
	})
	s := NewScannerWithLister(lister, nil, nil, zap.NewNop())
	_, err := s.Scan(context.Background())
	assert.Error(t, err)
}

type scriptedPort struct {
	mu      sync.Mutex
	written []byte
	reads   [][]byte
	reset   bool
	closed  bool
	timeout time.Duration
	readErr error
	drained int
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.reads) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.reads[0])
	p.reads = p.reads[1:]
	return n, nil
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *scriptedPort) ResetInputBuffer() error              { p.reset = true; return nil }
func (p *scriptedPort) Drain() error                         { p.drained++; return nil }
func (p *scriptedPort) SetReadTimeout(t time.Duration) error { p.timeout = t; return nil }
func (p *scriptedPort) Close() error                         { p.closed = true; return nil }

func newScriptedProber(port *scriptedPort, total time.Duration) *ReadInfoProber {
	p := NewReadInfoProber(ProbeConfig{BaudRate: 115200, ReadTimeout: 200 * time.Millisecond, TotalTimeout: total}, zap.NewNop())
	p.open = func(name string, baudRate int) (probePort, error) {
		return port, nil
	}
	return p
}

func TestReadInfoProber_Success(t *testing.T) {
	port := &scriptedPort{reads: [][]byte{
		[]byte("ESP32-WIFI-SCR"),
		[]byte("EEN;320;240;PROTO:USB-SCREEN\r\nextra"),
	}}
	p := newScriptedProber(port, 800*time.Millisecond)

	w, h, ok := p.Probe(context.Background(), "/dev/ttyACM0")
	require.True(t, ok)
	assert.Equal(t, uint16(320), w)
	assert.Equal(t, uint16(240), h)

	assert.Equal(t, "ReadInfo\n", string(port.written))
	assert.True(t, port.reset)
	assert.True(t, port.closed)
	assert.Equal(t, 1, port.drained)
	assert.Equal(t, 200*time.Millisecond, port.timeout)
}

func TestReadInfoProber_SilentPortTimesOut(t *testing.T) {
	port := &scriptedPort{}
	p := newScriptedProber(port, 30*time.Millisecond)

	start := time.Now()
	_, _, ok := p.Probe(context.Background(), "/dev/ttyACM0")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, port.closed)
}

func TestReadInfoProber_ForeignDevice(t *testing.T) {
	port := &scriptedPort{reads: [][]byte{[]byte("OK\n")}}
	p := newScriptedProber(port, 800*time.Millisecond)

	_, _, ok := p.Probe(context.Background(), "/dev/ttyUSB0")
	assert.False(t, ok)
}

func TestReadInfoProber_OpenFailure(t *testing.T) {
	p := NewReadInfoProber(DefaultProbeConfig(), zap.NewNop())
	p.open = func(name string, baudRate int) (probePort, error) {
		return nil, errors.New("busy")
	}
	_, _, ok := p.Probe(context.Background(), "/dev/ttyACM0")
	assert.False(t, ok)
}
