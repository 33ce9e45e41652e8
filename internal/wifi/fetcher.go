// internal/wifi/fetcher.go
package wifi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"screen-streamer/internal/model"
)

// DefaultConfigTimeout bounds a display_config request
const DefaultConfigTimeout = 2 * time.Second

// ConfigFetcher reads the display geometry of a screen
type ConfigFetcher interface {
	FetchDisplayConfig(ctx context.Context, endpoint string) (*model.DisplayConfig, error)
}

// DisplayConfigURL is the geometry document of an endpoint
func DisplayConfigURL(endpoint string) string {
	return fmt.Sprintf("http://%s/display_config", endpoint)
}

// DrawCanvasURL accepts a JSON list of drawing primitives
func DrawCanvasURL(endpoint string) string {
	return fmt.Sprintf("http://%s/draw_canvas", endpoint)
}

// HTTPConfigFetcher talks to the screen's HTTP server
type HTTPConfigFetcher struct {
	client *http.Client
}

// NewHTTPConfigFetcher creates a fetcher with a per-request timeout
func NewHTTPConfigFetcher(timeout time.Duration) *HTTPConfigFetcher {
	if timeout <= 0 {
		timeout = DefaultConfigTimeout
	}
	return &HTTPConfigFetcher{client: &http.Client{Timeout: timeout}}
}

// FetchDisplayConfig GETs and decodes display_config
func (f *HTTPConfigFetcher) FetchDisplayConfig(ctx context.Context, endpoint string) (*model.DisplayConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, DisplayConfigURL(endpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("display config request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("display config returned status %d", resp.StatusCode)
	}

	var cfg model.DisplayConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode display config: %w", err)
	}
	if cfg.RotatedWidth <= 0 || cfg.RotatedHeight <= 0 || cfg.RotatedWidth > 0xFFFF || cfg.RotatedHeight > 0xFFFF {
		return nil, fmt.Errorf("invalid display size %dx%d", cfg.RotatedWidth, cfg.RotatedHeight)
	}
	return &cfg, nil
}

// ProbeEndpoint checks that a screen answers and shows a greeting on it.
// The returned config is the geometry the screen reported.
func (f *HTTPConfigFetcher) ProbeEndpoint(ctx context.Context, endpoint string) (*model.DisplayConfig, error) {
	cfg, err := f.FetchDisplayConfig(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(greetingCanvas(cfg.RotatedWidth, cfg.RotatedHeight))
	if err != nil {
		return nil, fmt.Errorf("failed to encode greeting: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, DrawCanvasURL(endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("draw canvas request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("draw canvas returned status %d", resp.StatusCode)
	}
	return cfg, nil
}

type canvasRect struct {
	FillColor   string `json:"fill_color"`
	Left        int    `json:"left"`
	Top         int    `json:"top"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	StrokeWidth int    `json:"stroke_width"`
}

type canvasText struct {
	Color string `json:"color"`
	Size  int    `json:"size"`
	Text  string `json:"text"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

func greetingCanvas(width, height int) []map[string]interface{} {
	return []map[string]interface{}{
		{"Rectangle": canvasRect{FillColor: "black", Width: width, Height: height}},
		{"Text": canvasText{Color: "white", Size: 20, Text: "Hello!", X: 10, Y: 15}},
		{"Text": canvasText{Color: "white", Size: 20, Text: "USB Screen", X: 10, Y: 40}},
	}
}
