package service

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"screen-streamer/internal/config"
	"screen-streamer/internal/discovery"
	"screen-streamer/internal/model"
	"screen-streamer/internal/protocol"
	"screen-streamer/internal/wifi"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.ScreenEvent
}

func (p *recordingPublisher) Publish(event *model.ScreenEvent) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.EventType
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type listScanner struct {
	mu      sync.Mutex
	devices []model.ScreenDeviceInfo
}

func (s *listScanner) Scan(ctx context.Context) ([]model.ScreenDeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ScreenDeviceInfo(nil), s.devices...), nil
}
func (s *listScanner) GetScannerType() string { return "list" }
func (s *listScanner) IsAvailable() bool      { return true }

var (
	rawScreen    = model.ScreenDeviceInfo{Label: "USB Screen(3)", Address: "3", Width: 160, Height: 128, Transport: model.TransportUSBRaw}
	serialScreen = model.ScreenDeviceInfo{Label: "USB /dev/ttyACM0", Address: "/dev/ttyACM0", Width: 320, Height: 240, Transport: model.TransportSerial}
)

func TestDiscoveryService_PublishesChanges(t *testing.T) {
	scanner := &listScanner{devices: []model.ScreenDeviceInfo{rawScreen}}
	manager := discovery.NewScannerManager(zap.NewNop())
	manager.RegisterScanner(scanner)
	events := &recordingPublisher{}
	ds := NewDiscoveryServiceWithManager(manager, events, zap.NewNop())

	devices, err := ds.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ScreenDeviceInfo{rawScreen}, devices)

	// unchanged set, no event
	_, err = ds.Discover(context.Background())
	require.NoError(t, err)

	scanner.mu.Lock()
	scanner.devices = append(scanner.devices, serialScreen)
	scanner.mu.Unlock()
	_, err = ds.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []model.EventType{model.EventDiscoveryUpdate, model.EventDiscoveryUpdate}, events.types())

	last, at := ds.LastResult()
	assert.Len(t, last, 2)
	assert.False(t, at.IsZero())
	assert.Equal(t, []string{"list"}, ds.AvailableScanners())
	assert.Equal(t, 0, ds.ProbeCacheSize())
}

type fakeDiscoverer struct {
	devices []model.ScreenDeviceInfo
	err     error
	calls   int
	mu      sync.Mutex
}

func (d *fakeDiscoverer) Discover(ctx context.Context) ([]model.ScreenDeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.devices, d.err
}

func (d *fakeDiscoverer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeScreen struct {
	info    model.ScreenDeviceInfo
	mu      sync.Mutex
	draws   int
	failAt  int
	closed  bool
	lastImg image.Image
}

func (s *fakeScreen) Info() model.ScreenDeviceInfo { return s.info }

func (s *fakeScreen) DrawImage(ctx context.Context, x, y uint16, img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draws++
	s.lastImg = img
	if s.failAt > 0 && s.draws >= s.failAt {
		return errors.New("bulk transfer timeout")
	}
	return nil
}

func (s *fakeScreen) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeScreen) drawCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws
}

func (s *fakeScreen) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestScreenService_FindAndOpenSkipsFailures(t *testing.T) {
	discoverer := &fakeDiscoverer{devices: []model.ScreenDeviceInfo{rawScreen, serialScreen}}
	opened := &fakeScreen{info: serialScreen}
	open := func(info model.ScreenDeviceInfo) (Screen, error) {
		if info.Transport == model.TransportUSBRaw {
			return nil, protocol.ErrDeviceBusy
		}
		return opened, nil
	}

	ss := NewScreenService(discoverer, open, TestCardSource("test"), config.ScreenConfig{}, nil, zap.NewNop())
	screen, err := ss.FindAndOpen(context.Background())
	require.NoError(t, err)
	assert.Same(t, opened, screen)
}

func TestScreenService_FindAndOpenNothing(t *testing.T) {
	open := func(info model.ScreenDeviceInfo) (Screen, error) { return nil, errors.New("busy") }

	ss := NewScreenService(&fakeDiscoverer{devices: []model.ScreenDeviceInfo{rawScreen}}, open, TestCardSource(""), config.ScreenConfig{}, nil, zap.NewNop())
	_, err := ss.FindAndOpen(context.Background())
	assert.ErrorIs(t, err, protocol.ErrDeviceNotFound)

	ss = NewScreenService(&fakeDiscoverer{err: errors.New("libusb")}, open, TestCardSource(""), config.ScreenConfig{}, nil, zap.NewNop())
	_, err = ss.FindAndOpen(context.Background())
	assert.Error(t, err)
}

func TestScreenService_RunDrawsAndRecovers(t *testing.T) {
	first := &fakeScreen{info: rawScreen, failAt: 3}
	second := &fakeScreen{info: rawScreen}
	screens := []*fakeScreen{first, second}
	var mu sync.Mutex

	open := func(info model.ScreenDeviceInfo) (Screen, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(screens) == 0 {
			return nil, protocol.ErrDeviceBusy
		}
		s := screens[0]
		screens = screens[1:]
		return s, nil
	}

	events := &recordingPublisher{}
	cfg := config.ScreenConfig{RenderInterval: 5 * time.Millisecond, DiscoveryInterval: 10 * time.Millisecond}
	discoverer := &fakeDiscoverer{devices: []model.ScreenDeviceInfo{rawScreen}}
	ss := NewScreenService(discoverer, open, TestCardSource("loop"), cfg, events, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ss.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return second.drawCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, first.isClosed())
	assert.Equal(t, 3, first.drawCount())

	info, ok := ss.Active()
	assert.True(t, ok)
	assert.Equal(t, rawScreen, info)

	cancel()
	<-done
	assert.True(t, second.isClosed())
	_, ok = ss.Active()
	assert.False(t, ok)

	assert.Equal(t, []model.EventType{
		model.EventScreenOpened,
		model.EventScreenError,
		model.EventScreenClosed,
		model.EventScreenOpened,
		model.EventScreenClosed,
	}, events.types())

	// frames are rendered at the panel size
	second.mu.Lock()
	assert.Equal(t, image.Rect(0, 0, 160, 128), second.lastImg.Bounds())
	second.mu.Unlock()
}

type stubDialer struct {
	mu    sync.Mutex
	fail  bool
	dials int
}

func (d *stubDialer) Dial(ctx context.Context, endpoint string) (wifi.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("refused")
	}
	return &stubSocket{}, nil
}

type stubSocket struct {
	mu     sync.Mutex
	frames int
}

func (s *stubSocket) WriteFrame(data []byte) error {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	return nil
}
func (s *stubSocket) WaitAck(time.Duration) (wifi.Ack, error) { return wifi.AckOK, nil }
func (s *stubSocket) DrainAcks()                              {}
func (s *stubSocket) Close() error                            { return nil }

type stubFetcher struct{}

func (stubFetcher) FetchDisplayConfig(ctx context.Context, endpoint string) (*model.DisplayConfig, error) {
	return &model.DisplayConfig{RotatedWidth: 24, RotatedHeight: 24}, nil
}

func (stubFetcher) ProbeEndpoint(ctx context.Context, endpoint string) (*model.DisplayConfig, error) {
	return &model.DisplayConfig{DisplayType: "probe", RotatedWidth: 24, RotatedHeight: 24}, nil
}

func newWiFiService(t *testing.T, dialer *stubDialer, events EventPublisher) *WiFiService {
	t.Helper()
	opts := wifi.DefaultOptions()
	opts.ConnectRetry = 10 * time.Millisecond
	opts.ReconnectDelay = 10 * time.Millisecond
	opts.FrameDelay = 0

	session := wifi.NewSession(opts, dialer, stubFetcher{}, zap.NewNop())
	cfg := config.WiFiConfig{ConnectRetry: 10 * time.Millisecond, FrameInterval: 5 * time.Millisecond}
	ws := NewWiFiService(session, stubFetcher{}, TestCardSource("wifi"), cfg, events, zap.NewNop())
	t.Cleanup(ws.Stop)
	return ws
}

func TestWiFiService_ConnectPublishesStatus(t *testing.T) {
	events := &recordingPublisher{}
	ws := newWiFiService(t, &stubDialer{}, events)
	ctx := context.Background()
	require.NoError(t, ws.Start(ctx))

	assert.ErrorIs(t, ws.Connect(ctx, "  "), ErrEndpointRequired)
	require.NoError(t, ws.Connect(ctx, "192.168.1.50"))

	require.Eventually(t, func() bool {
		return ws.Status().State == model.StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Disconnect(ctx))
	require.Eventually(t, func() bool {
		return ws.Status().State == model.StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	// connecting, connected, disconnected
	require.Eventually(t, func() bool { return len(events.types()) == 3 }, 2*time.Second, 5*time.Millisecond)
	for _, typ := range events.types() {
		assert.Equal(t, model.EventWiFiStatusChange, typ)
	}
	events.mu.Lock()
	assert.Equal(t, "WARNING", events.events[2].Severity)
	assert.Equal(t, "192.168.1.50", events.events[1].Address)
	events.mu.Unlock()
}

func TestWiFiService_PushFrameWhileConnected(t *testing.T) {
	ws := newWiFiService(t, &stubDialer{}, nil)
	ctx := context.Background()
	require.NoError(t, ws.Start(ctx))
	require.NoError(t, ws.Connect(ctx, "10.1.1.1"))
	require.Eventually(t, func() bool {
		return ws.Status().State == model.StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_ = ws.PushFrame(image.NewRGBA(image.Rect(0, 0, 24, 24)))
		return ws.Stats().KeyFrames >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWiFiService_PushFrameReconnectsAfterFailure(t *testing.T) {
	dialer := &stubDialer{fail: true}
	ws := newWiFiService(t, dialer, nil)
	ctx := context.Background()
	require.NoError(t, ws.Start(ctx))
	require.NoError(t, ws.Connect(ctx, "10.1.1.2"))

	require.Eventually(t, func() bool {
		return ws.Status().State == model.StateConnectFail
	}, 2*time.Second, 5*time.Millisecond)

	dialer.mu.Lock()
	dialer.fail = false
	dialer.mu.Unlock()

	require.Eventually(t, func() bool {
		_ = ws.PushFrame(image.NewRGBA(image.Rect(0, 0, 8, 8)))
		return ws.Status().State == model.StateConnected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWiFiService_NoReconnectAfterDisconnect(t *testing.T) {
	dialer := &stubDialer{}
	ws := newWiFiService(t, dialer, nil)
	ctx := context.Background()
	require.NoError(t, ws.Start(ctx))
	require.NoError(t, ws.Connect(ctx, "10.1.1.3"))
	require.Eventually(t, func() bool {
		return ws.Status().State == model.StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Disconnect(ctx))
	require.Eventually(t, func() bool {
		return ws.Status().State == model.StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, ws.PushFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))))
		time.Sleep(15 * time.Millisecond)
	}

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.Equal(t, 1, dialer.dials)
}

func TestWiFiService_Probe(t *testing.T) {
	ws := newWiFiService(t, &stubDialer{}, nil)

	cfg, err := ws.Probe(context.Background(), "10.1.1.4")
	require.NoError(t, err)
	assert.Equal(t, "probe", cfg.DisplayType)

	_, err = ws.Probe(context.Background(), "")
	assert.ErrorIs(t, err, ErrEndpointRequired)
}

func TestWiFiService_SetDelay(t *testing.T) {
	ws := newWiFiService(t, &stubDialer{}, nil)
	ws.SetDelay(25 * time.Millisecond)
	assert.Equal(t, 25*time.Millisecond, ws.Status().Delay)
}
