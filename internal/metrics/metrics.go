// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"screen-streamer/internal/model"
	"screen-streamer/internal/wifi"
)

const namespace = "screen_streamer"

// WiFiSource exposes the WiFi session counters
type WiFiSource interface {
	Status() model.WiFiStatus
	Stats() wifi.Stats
}

// ScreenSource exposes the render loop state
type ScreenSource interface {
	Active() (model.ScreenDeviceInfo, bool)
}

// DiscoverySource exposes the last discovery pass
type DiscoverySource interface {
	ProbeCacheSize() int
	LastCount() int
}

// Collector reads the service counters at scrape time so the hot paths
// never touch prometheus
type Collector struct {
	wifi      WiFiSource
	screen    ScreenSource
	discovery DiscoverySource

	frames      *prometheus.Desc
	nacks       *prometheus.Desc
	ackTimeouts *prometheus.Desc
	drops       *prometheus.Desc
	wifiState   *prometheus.Desc
	screenOpen  *prometheus.Desc
	discovered  *prometheus.Desc
	probeCache  *prometheus.Desc
}

// NewCollector creates a collector. Any source may be nil when the
// matching feature is disabled.
func NewCollector(wifiSource WiFiSource, screen ScreenSource, discovery DiscoverySource) *Collector {
	return &Collector{
		wifi:      wifiSource,
		screen:    screen,
		discovery: discovery,

		frames: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wifi", "frames_total"),
			"WiFi frames sent by kind.", []string{"kind"}, nil),
		nacks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wifi", "nacks_total"),
			"NACK replies received.", nil, nil),
		ackTimeouts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wifi", "ack_timeouts_total"),
			"Frames whose ack never arrived.", nil, nil),
		drops: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wifi", "dropped_commands_total"),
			"Commands dropped because the queue slot was taken.", nil, nil),
		wifiState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "wifi", "state"),
			"1 for the current WiFi connection state.", []string{"state"}, nil),
		screenOpen: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "screen", "open"),
			"1 when a USB or serial screen is open.", []string{"transport"}, nil),
		discovered: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "discovery", "screens"),
			"Screens found by the last discovery pass.", nil, nil),
		probeCache: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "discovery", "probe_cache_ports"),
			"Serial ports remembered as ESP32 screens.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.frames, c.nacks, c.ackTimeouts, c.drops,
		c.wifiState, c.screenOpen, c.discovered, c.probeCache,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.wifi != nil {
		stats := c.wifi.Stats()
		ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(stats.KeyFrames), wifi.FrameKey.String())
		ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(stats.DeltaFrames), wifi.FrameDelta.String())
		ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(stats.NopFrames), wifi.FrameNop.String())
		ch <- prometheus.MustNewConstMetric(c.nacks, prometheus.CounterValue, float64(stats.Nacks))
		ch <- prometheus.MustNewConstMetric(c.ackTimeouts, prometheus.CounterValue, float64(stats.AckTimeouts))
		ch <- prometheus.MustNewConstMetric(c.drops, prometheus.CounterValue, float64(stats.Drops))

		current := c.wifi.Status().State
		for _, state := range []model.ConnectionState{
			model.StateNotConnected, model.StateConnecting, model.StateConnected,
			model.StateConnectFail, model.StateDisconnected,
		} {
			v := 0.0
			if state == current {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.wifiState, prometheus.GaugeValue, v, state.String())
		}
	}

	if c.screen != nil {
		info, ok := c.screen.Active()
		for _, transport := range []model.TransportKind{model.TransportUSBRaw, model.TransportSerial} {
			v := 0.0
			if ok && info.Transport == transport {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.screenOpen, prometheus.GaugeValue, v, string(transport))
		}
	}

	if c.discovery != nil {
		ch <- prometheus.MustNewConstMetric(c.discovered, prometheus.GaugeValue, float64(c.discovery.LastCount()))
		ch <- prometheus.MustNewConstMetric(c.probeCache, prometheus.GaugeValue, float64(c.discovery.ProbeCacheSize()))
	}
}

// Handler returns a scrape handler over a private registry holding the
// collector plus the Go runtime and process collectors
func Handler(collector *Collector) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		collector,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
