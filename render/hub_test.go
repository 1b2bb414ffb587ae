package render

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-livedetect/pipeline"
)

// dial connects a websocket client to the test server.
func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads and decodes one message.
func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var m Message
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// TestHub_Broadcast validates results and status reach connected clients.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(&pipeline.Result{FrameID: "f1", Width: 640, Height: 480})
	m := readMessage(t, conn)
	assert.Equal(t, "result", m.Type)
	require.NotNil(t, m.Result)
	assert.Equal(t, "f1", m.Result.FrameID)
	assert.Equal(t, 640, m.Result.Width)

	hub.Status("model failed")
	m = readMessage(t, conn)
	assert.Equal(t, "status", m.Type)
	assert.Equal(t, "model failed", m.Status)
}

// TestHub_LateJoinerGetsLatest validates new clients start from the last message.
func TestHub_LateJoinerGetsLatest(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	for _, id := range []string{"f1", "f2", "f3"} {
		hub.Publish(&pipeline.Result{FrameID: id})
	}

	conn := dial(t, srv)
	m := readMessage(t, conn)
	require.NotNil(t, m.Result)
	assert.Equal(t, "f3", m.Result.FrameID)
}

// TestHub_Close validates clients are disconnected.
func TestHub_Close(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "Server side should be closed")
}
