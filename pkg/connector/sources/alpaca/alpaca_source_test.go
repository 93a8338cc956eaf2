package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickflow/tickflow/pkg/config"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

var upgrader = websocket.Upgrader{}

// streamServer upgrades one connection, checks the auth and subscribe
// handshake, then plays back the given frames and closes normally.
func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var auth map[string]string
		require.NoError(t, conn.ReadJSON(&auth))
		assert.Equal(t, "auth", auth["action"])
		assert.Equal(t, "test-key", auth["key"])

		var sub map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&sub))

		for _, frame := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		}
		require.NoError(t, conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		))
		// Give the client a moment to read the close frame.
		_, _, _ = conn.ReadMessage()
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(server *httptest.Server) config.Alpaca {
	return config.Alpaca{
		WSURL:     wsURL(server),
		APIKey:    "test-key",
		APISecret: "test-secret",
		Trades:    []string{"MSFT"},
	}
}

func TestSourceStreamsFramesAsBatches(t *testing.T) {
	server := streamServer(t, []string{
		`[{"T":"success","msg":"connected"}]`,
		`[{"T":"t","S":"MSFT","i":1,"p":380.5,"s":50,"t":"2024-01-01T10:00:02Z"},
		  {"T":"t","S":"MSFT","i":2,"p":380.6,"s":10,"t":"2024-01-01T10:00:03Z"}]`,
	})
	defer server.Close()

	source := NewSource(testConfig(server))
	ch := make(chan pipeline.Batch[Message], 8)
	require.NoError(t, source.Run(context.Background(), pipeline.NewWriter(ch, nil)))
	close(ch)

	var batches []pipeline.Batch[Message]
	for batch := range ch {
		batches = append(batches, batch)
	}

	require.Len(t, batches, 2)
	require.Len(t, batches[0], 1)
	assert.Equal(t, KindSuccess, batches[0][0].Kind)
	require.Len(t, batches[1], 2)
	assert.Equal(t, int64(1), batches[1][0].Trade.ID)
	assert.Equal(t, int64(2), batches[1][1].Trade.ID)
}

func TestSourceSkipsUnparseableFrames(t *testing.T) {
	server := streamServer(t, []string{
		`not json at all`,
		`[{"T":"t","S":"MSFT","i":7,"p":1.0,"s":1,"t":"2024-01-01T10:00:02Z"}]`,
	})
	defer server.Close()

	source := NewSource(testConfig(server))
	ch := make(chan pipeline.Batch[Message], 8)
	require.NoError(t, source.Run(context.Background(), pipeline.NewWriter(ch, nil)))
	close(ch)

	var batches []pipeline.Batch[Message]
	for batch := range ch {
		batches = append(batches, batch)
	}

	require.Len(t, batches, 1)
	assert.Equal(t, int64(7), batches[0][0].Trade.ID)
}

func TestSourceStopsOnContextCancel(t *testing.T) {
	// A server that completes the handshake and then stays silent.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var discard map[string]json.RawMessage
		_ = conn.ReadJSON(&discard)
		_ = conn.ReadJSON(&discard)
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	source := NewSource(testConfig(server))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	ch := make(chan pipeline.Batch[Message], 1)
	go func() { done <- source.Run(ctx, pipeline.NewWriter(ch, nil)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop after cancel")
	}
}

func TestSourceFailsWhenServerUnreachable(t *testing.T) {
	source := NewSource(config.Alpaca{
		WSURL:     "ws://127.0.0.1:1/v2/iex",
		APIKey:    "k",
		APISecret: "s",
	})
	ch := make(chan pipeline.Batch[Message], 1)
	require.Error(t, source.Run(context.Background(), pipeline.NewWriter(ch, nil)))
}
