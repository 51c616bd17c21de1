//nolint:funlen // ok for this test code
package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/telemetry/history"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]model.RawSample
	laps    []int
	status  []bool
}

func (r *recordingSink) AppendBatch(records []model.RawSample, lap int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, records)
	r.laps = append(r.laps, lap)
	return nil
}

func (r *recordingSink) SetConnectionStatus(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, connected)
}

func sample(speed int) string {
	return `{"SpeedKmh":` + strings.Repeat("1", speed) +
		`,"Rpms":1,"Gas":0,"Brake":0,"SteerAngle":0,"Gear":1}`
}

func TestApply(t *testing.T) {
	store := history.New()
	defer store.Close()

	assert.NoError(t, Apply(store, []byte(`{"SessionID":"s","Lap":1,"Data":[`+sample(1)+`]}`)))
	assert.NoError(t, Apply(store, []byte(`[`+sample(2)+`]`)))
	// malformed messages leave the store untouched
	assert.ErrorIs(t, Apply(store, []byte(`{"Lap":`)), ErrMalformed)
	assert.ErrorIs(t, Apply(store, []byte(`{"Lap":3}`)), ErrMissingData)
	assert.NoError(t, Apply(store, []byte(`{"Lap":3,"Data":[]}`)))

	snap := store.Snapshot()
	assert.Len(t, snap.Samples, 2)
	assert.Equal(t, []int{1, 1}, []int{snap.Samples[0].Lap, snap.Samples[1].Lap})
	assert.Equal(t, 11.0, snap.Samples[1].SpeedKmh)
	assert.Equal(t, 1, snap.CurrentLap)
}

func TestApply_ClosedStore(t *testing.T) {
	store := history.New()
	store.Close()
	err := Apply(store, []byte(`[`+sample(1)+`]`))
	assert.True(t, errors.Is(err, history.ErrClosed))
}

func wsServer(t *testing.T, messages []string, closeAfter bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if closeAfter {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return
		}
		// keep the connection open until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketSource(t *testing.T) {
	srv := wsServer(t, []string{
		`{"SessionID":"s","Lap":1,"Data":[` + sample(1) + `]}`,
		`not json`,
		`{"SessionID":"s","Lap":2,"Data":[` + sample(2) + `,` + sample(3) + `]}`,
	}, true)
	sink := &recordingSink{}
	src := NewWebsocketSource(wsURL(srv), sink, WithWebsocketLogger(log.Default()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, src.Run(ctx))

	assert.Len(t, sink.batches, 2)
	assert.Equal(t, []int{1, 2}, sink.laps)
	assert.Equal(t, []bool{true, false}, sink.status)
}

func TestWebsocketSource_Cancel(t *testing.T) {
	srv := wsServer(t, []string{`[` + sample(1) + `]`}, false)
	store := history.New()
	defer store.Close()
	src := NewWebsocketSource(wsURL(srv), store, WithReconnectDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- src.Run(ctx) }()

	assert.Eventually(t, func() bool {
		snap := store.Snapshot()
		return snap.Connected && len(snap.Samples) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("source did not stop")
	}
	assert.False(t, store.Snapshot().Connected)
}

func TestWebsocketSource_DialError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	sink := &recordingSink{}
	err := NewWebsocketSource(wsURL(srv), sink).Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, sink.batches)
	assert.Equal(t, []bool{false}, sink.status)
}

func TestWebsocketSource_Reconnect(t *testing.T) {
	srv := wsServer(t, []string{`[` + sample(1) + `]`}, true)
	sink := &recordingSink{}
	src := NewWebsocketSource(wsURL(srv), sink, WithReconnectDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx) //nolint:errcheck // test

	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.batches) >= 2
	}, 5*time.Second, 10*time.Millisecond)
}
