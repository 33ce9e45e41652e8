package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"screen-streamer/internal/config"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"fatal": zapcore.FatalLevel,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "screen.log")
	logger, err := NewLogger(&config.LoggingConfig{Level: "info", Format: "json", Output: path, MaxSize: 1})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("frame sent", zap.String("kind", "KEY"))
	require.NoError(t, CloseLogger(logger))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "frame sent", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "KEY", entry["kind"])
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestScreenLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sl := NewScreenLogger(zap.New(core), "USB Screen(3)", "3", "USB_RAW")

	sl.LogDraw(160, 128, 4096, 12*time.Millisecond, nil)
	sl.LogDraw(160, 128, 0, time.Millisecond, errors.New("stall"))
	sl.LogConnection("open", true, nil)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "3", entries[0].ContextMap()["address"])
	assert.EqualValues(t, 4096, entries[0].ContextMap()["compressed_bytes"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "open", entries[2].ContextMap()["action"])
}

func TestServiceLogger_APIRequestLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sl := NewServiceLogger(zap.New(core), "http-server")

	sl.LogAPIRequest("r1", "GET", "/health", "curl", "127.0.0.1", 200, time.Millisecond)
	sl.LogAPIRequest("r2", "POST", "/api/v1/wifi/connect", "curl", "127.0.0.1", 400, time.Millisecond)
	sl.LogAPIRequest("r3", "GET", "/api/v1/screens", "curl", "127.0.0.1", 503, time.Millisecond)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "r2", entries[1].ContextMap()["request_id"])
	assert.Equal(t, "http-server", entries[0].ContextMap()["service"])
}

func TestResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Set("request_id", "req-9")
	ErrorResponse(c, http.StatusBadGateway, "Screen unreachable", errors.New("dial tcp: refused"))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "req-9", resp.RequestID)
	assert.Equal(t, "SCREEN_UNREACHABLE", resp.Error.Code)
	assert.Equal(t, "dial tcp: refused", resp.Error.Details)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	SuccessResponse(c, http.StatusOK, "ok", gin.H{"n": 1})
	resp = APIResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.RequestID)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	ValidationErrorResponse(c, map[string]string{"delay_ms": "must be a non-negative number"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "SCREEN_UNREACHABLE", ErrorCode(http.StatusBadGateway))
	assert.Equal(t, "SERVICE_UNAVAILABLE", ErrorCode(http.StatusServiceUnavailable))
	assert.Equal(t, "UNKNOWN_ERROR", ErrorCode(http.StatusTeapot))
}
