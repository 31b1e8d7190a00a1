package link

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbitcar/car"
	"rabbitcar/streamer"
)

type fakeLoop struct {
	events chan car.Event
}

func (l *fakeLoop) Post(ctx context.Context, ev car.Event) error {
	select {
	case l.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *fakeLoop) next(t *testing.T) car.Event {
	t.Helper()
	select {
	case ev := <-l.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event posted")
		return car.Event{}
	}
}

func startServer(t *testing.T, readTimeout time.Duration) (*fakeLoop, *streamer.Streamer[[]byte], string) {
	t.Helper()
	loop := &fakeLoop{events: make(chan car.Event, 16)}
	telemetry := streamer.NewStreamer[[]byte](16)
	go telemetry.Run()
	t.Cleanup(func() { telemetry.Stop() })

	srv := httptest.NewServer(NewServer(loop, telemetry, readTimeout))
	t.Cleanup(srv.Close)
	return loop, telemetry, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestCommandsAndTelemetry(t *testing.T) {
	loop, telemetry, url := startServer(t, time.Second)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, car.EventConnected, loop.next(t).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"running","running":true}`)))
	ev := loop.next(t)
	assert.Equal(t, car.EventCommand, ev.Type)
	assert.JSONEq(t, `{"type":"running","running":true}`, string(ev.Payload))

	message := []byte(`{"type":"data","speed":1.5}`)
	require.True(t, telemetry.Broadcast(&message))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, received, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	assert.Equal(t, message, received)

	require.NoError(t, conn.Close())
	assert.Equal(t, car.EventDisconnected, loop.next(t).Type)
}

func TestSecondClientIsRejected(t *testing.T) {
	loop, _, url := startServer(t, time.Second)

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	assert.Equal(t, car.EventConnected, loop.next(t).Type)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	first.Close()
	assert.Equal(t, car.EventDisconnected, loop.next(t).Type)

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, car.EventConnected, loop.next(t).Type)
}

func TestSilentClientTimesOut(t *testing.T) {
	loop, _, url := startServer(t, 50*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, car.EventConnected, loop.next(t).Type)
	assert.Equal(t, car.EventDisconnected, loop.next(t).Type)
}

func TestPongsKeepQuietClientConnected(t *testing.T) {
	loop, _, url := startServer(t, 100*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, car.EventConnected, loop.next(t).Type)

	// reading lets the default ping handler answer with pongs
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case ev := <-loop.events:
		t.Fatalf("unexpected %s event while answering pings", ev.Type)
	case <-time.After(500 * time.Millisecond):
	}
	conn.Close()
	assert.Equal(t, car.EventDisconnected, loop.next(t).Type)
}

func TestBinaryMessagesAreIgnored(t *testing.T) {
	loop, _, url := startServer(t, time.Second)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, car.EventConnected, loop.next(t).Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"lights"}`)))
	ev := loop.next(t)
	assert.Equal(t, car.EventCommand, ev.Type)
	assert.Equal(t, `{"type":"lights"}`, string(ev.Payload))
}

type snapshots struct {
	snapshot *car.Snapshot
}

func (s snapshots) Snapshot() *car.Snapshot {
	return s.snapshot
}

func TestStatusHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	StatusHandler(snapshots{})(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	snapshot := &car.Snapshot{RunID: "abc", Position: 7500, Run: car.RunConfig{Running: true, WhiteLine: true}}
	rec = httptest.NewRecorder()
	StatusHandler(snapshots{snapshot})(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var decoded car.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "abc", decoded.RunID)
	assert.Equal(t, 7500.0, decoded.Position)
	assert.True(t, decoded.Run.Running)
}
