package compliance

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covox/relay/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(new(strings.Builder), "error", "text")
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == want },
		2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	first := dialHub(t, srv)
	second := dialHub(t, srv)
	waitForCount(t, hub, 2)

	delivered := hub.Broadcast([]byte(`{"hello":"world"}`))
	assert.Equal(t, 2, delivered)

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var raw string
		require.NoError(t, websocket.Message.Receive(conn, &raw))
		assert.JSONEq(t, `{"hello":"world"}`, raw)
	}
}

func TestHubBroadcastNoObservers(t *testing.T) {
	hub := NewHub(nil, quietLogger())
	assert.Equal(t, 0, hub.Broadcast([]byte(`{}`)))
}

func TestHubEvictsClosedObserver(t *testing.T) {
	hub := NewHub(nil, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForCount(t, hub, 1)
	require.NoError(t, conn.Close())
	waitForCount(t, hub, 0)

	assert.Equal(t, 0, hub.Broadcast([]byte(`{}`)))
}
