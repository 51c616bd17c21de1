package feed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/relay"
)

func TestNewPoster(t *testing.T) {
	_, err := NewPoster("ftp://localhost")
	assert.Error(t, err)
	_, err = NewPoster("://broken")
	assert.Error(t, err)

	p, err := NewPoster("http://localhost:5000/base/")
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/base/ingest", p.endpoint)
}

func TestPoster_Post(t *testing.T) {
	var (
		gotQuery   map[string]string
		gotHeader  http.Header
		gotRecords []model.RawSample
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ingest", r.URL.Path)
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		gotHeader = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotRecords))
		if r.URL.Query().Get("session_id") == "reject" {
			http.Error(w, "nope", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	records := []model.RawSample{{PacketID: 1, SpeedKmh: 12}, {PacketID: 2, SpeedKmh: 13}}

	p, err := NewPoster(srv.URL, WithSessionID("s1"), WithClientVersion("v1.2.3"))
	assert.NoError(t, err)
	assert.NoError(t, p.Post(context.Background(), 4, records))
	assert.Equal(t, map[string]string{"session_id": "s1", "lap": "4"}, gotQuery)
	assert.Equal(t, "v1.2.3", gotHeader.Get(relay.ClientVersionHeader))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, records, gotRecords)

	// no lap, no version
	p, _ = NewPoster(srv.URL, WithClientVersion(""))
	assert.NoError(t, p.Post(context.Background(), -1, records))
	assert.Equal(t, map[string]string{"session_id": relay.DefaultSessionID}, gotQuery)
	assert.Empty(t, gotHeader.Get(relay.ClientVersionHeader))

	p, _ = NewPoster(srv.URL, WithSessionID("reject"))
	assert.ErrorIs(t, p.Post(context.Background(), 0, records), ErrRejected)
}

func TestFeedIntoRelay(t *testing.T) {
	r := relay.New(context.Background())
	defer r.Stop()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	ch := r.Subscribe()
	defer r.CancelSubscription(ch)

	synth, err := NewSynthetic(2, 30, 3)
	assert.NoError(t, err)
	p, err := NewPoster(srv.URL, WithSessionID("feed"))
	assert.NoError(t, err)

	stats, err := NewFeeder(p).Run(context.Background(), synth)
	assert.NoError(t, err)
	// 30 frames per lap: one full batch of 20 and the remainder of 10
	assert.Equal(t, Stats{Frames: 60, Batches: 4}, stats)

	var laps []int
	for range 4 {
		select {
		case p := <-ch:
			assert.Equal(t, "feed", p.SessionID)
			laps = append(laps, p.Lap)
		case <-time.After(time.Second):
			t.Fatal("relay did not forward the batch")
		}
	}
	assert.Equal(t, []int{0, 0, 1, 1}, laps)
}
