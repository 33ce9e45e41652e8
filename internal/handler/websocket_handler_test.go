package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"screen-streamer/internal/model"
)

func TestEventBus_SubscribeByTypeAndAll(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	go bus.Start()
	defer bus.Close()

	wifiOnly := bus.Subscribe(model.EventWiFiStatusChange)
	all := bus.Subscribe(AllEvents)

	bus.Publish(model.NewScreenEvent(model.EventScreenOpened, "test", "INFO", nil))
	bus.Publish(model.NewScreenEvent(model.EventWiFiStatusChange, "test", "INFO", nil))
	bus.Publish(nil)

	for _, want := range []model.EventType{model.EventScreenOpened, model.EventWiFiStatusChange} {
		select {
		case got := <-all:
			assert.Equal(t, want, got.EventType)
		case <-time.After(time.Second):
			t.Fatalf("no %s event", want)
		}
	}

	select {
	case got := <-wifiOnly:
		assert.Equal(t, model.EventWiFiStatusChange, got.EventType)
	case <-time.After(time.Second):
		t.Fatal("no wifi event")
	}
	assert.Empty(t, wifiOnly)
}

func TestEventBus_PublishNeverBlocks(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	// not started, so the queue fills up
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1500; i++ {
			bus.Publish(model.NewScreenEvent(model.EventScreenError, "test", "ERROR", nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

type wsFixture struct {
	bus     *EventBus
	handler *WebSocketHandler
	server  *httptest.Server
	cancel  context.CancelFunc
}

func newWSFixture(t *testing.T, origins []string) *wsFixture {
	t.Helper()
	bus := NewEventBus(zap.NewNop())
	go bus.Start()

	h := NewWebSocketHandler(bus, origins, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	router := gin.New()
	h.RegisterRoutes(router.Group("/ws"))
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		cancel()
		bus.Close()
	})
	return &wsFixture{bus: bus, handler: h, server: server, cancel: cancel}
}

func (f *wsFixture) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, "welcome", welcome.Type)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketHandler_BroadcastsEvents(t *testing.T) {
	f := newWSFixture(t, []string{"*"})
	conn := f.dial(t, nil)

	require.Eventually(t, func() bool {
		return f.handler.GetConnectionStats().TotalConnections == 1
	}, time.Second, 5*time.Millisecond)

	f.bus.Publish(model.NewScreenEvent(model.EventScreenOpened, "screen-service", "INFO", map[string]interface{}{
		"label": "USB Screen(2)",
	}).WithAddress("2"))

	msg := readMessage(t, conn)
	assert.Equal(t, "screen_event", msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "SCREEN_OPENED", data["event_type"])
	assert.Equal(t, "2", data["address"])
}

func TestWebSocketHandler_SubscriptionFilters(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, nil)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{
		Type: "subscribe",
		Data: map[string]interface{}{"topic": string(model.EventWiFiStatusChange)},
	}))
	confirmed := readMessage(t, conn)
	assert.Equal(t, "subscribe_confirmed", confirmed.Type)

	f.bus.Publish(model.NewScreenEvent(model.EventScreenClosed, "screen-service", "INFO", nil))
	f.bus.Publish(model.NewScreenEvent(model.EventWiFiStatusChange, "wifi-service", "INFO", map[string]interface{}{
		"state": "connected",
	}))

	msg := readMessage(t, conn)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "WIFI_STATUS_CHANGE", data["event_type"])
}

func TestWebSocketHandler_PingAndErrors(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, nil)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping", RequestID: "r-1"}))
	pong := readMessage(t, conn)
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, "r-1", pong.RequestID)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "subscribe"}))
	assert.Equal(t, "error", readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "error", readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "reboot"}))
	errMsg := readMessage(t, conn)
	raw, _ := json.Marshal(errMsg.Data)
	assert.Contains(t, string(raw), "unknown message type: reboot")
}

func TestWebSocketHandler_UnregistersOnClose(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, nil)

	require.Eventually(t, func() bool {
		return f.handler.GetConnectionStats().TotalConnections == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return f.handler.GetConnectionStats().TotalConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_OriginCheck(t *testing.T) {
	f := newWSFixture(t, []string{"http://dashboard.local"})
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/events"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	f.dial(t, http.Header{"Origin": {"http://dashboard.local"}})
}
