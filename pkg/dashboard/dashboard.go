// Package dashboard serves the view of a telemetry session over http.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/render"
	"github.com/mpapenbr/sequential/pkg/telemetry/history"
	"github.com/mpapenbr/sequential/pkg/telemetry/view"
	"github.com/mpapenbr/sequential/pkg/utils/cache"
	"github.com/mpapenbr/sequential/pkg/utils/cache/loadercache"
)

const (
	writeTimeout = 5 * time.Second
	// rendered charts are reused while the history version stays the same
	chartExpiration = 30 * time.Second
	chartCacheSize  = 64
)

const (
	chartKindLive chartKind = iota
	chartKindCompare
	chartKindLap
)

var errNoPanel = errors.New("no panel for channel")

// Notifier delivers history change notifications (implemented by history.Store)
type Notifier interface {
	Subscribe() <-chan history.Snapshot
	CancelSubscription(ch <-chan history.Snapshot)
}

type (
	Dashboard struct {
		view     *view.View
		notifier Notifier
		charts   cache.Cache[chartKey, []byte]
		upgrader websocket.Upgrader
		l        *log.Logger
	}
	Option func(*Dashboard)

	chartKind int
	chartKey  struct {
		kind      chartKind
		channel   model.Channel
		lap       int
		format    render.Format
		version   uint64
		selection string
	}

	Status struct {
		Connected  bool          `json:"connected"`
		CurrentLap int           `json:"currentLap"`
		Samples    int           `json:"samples"`
		Evicted    int           `json:"evicted"`
		Version    uint64        `json:"version"`
		State      string        `json:"selectionState"`
		Metric     model.Channel `json:"metric"`
		Latest     *model.Sample `json:"latest,omitempty"`
		Gear       *int          `json:"gear,omitempty"` // display gear of latest (R:-1 N:0)
	}
	toggleResult struct {
		Lap      int   `json:"lap"`
		Accepted bool  `json:"accepted"`
		Compare  []int `json:"compare"`
	}
)

// WithNotifier enables the /ws endpoint pushing status changes
func WithNotifier(n Notifier) Option {
	return func(d *Dashboard) {
		d.notifier = n
	}
}

func WithLogger(l *log.Logger) Option {
	return func(d *Dashboard) {
		d.l = l
	}
}

func New(v *view.View, opts ...Option) *Dashboard {
	ret := &Dashboard{
		view: v,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		l: log.Default().Named("dashboard"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.charts = loadercache.New[chartKey, []byte](
		loadercache.WithExpiration[chartKey, []byte](chartExpiration),
		loadercache.WithMaxItems[chartKey, []byte](chartCacheSize),
		loadercache.WithLogger[chartKey, []byte](ret.l.Named("charts")),
	)
	return ret
}

// Handler returns the routes of the dashboard
//
//	GET  /api/status                  connection, current lap, selection state
//	GET  /api/history                 all samples of the session
//	GET  /api/laps                    lap list (live/available/selected flags)
//	GET  /api/laps/available          laps eligible for comparison
//	GET  /api/laps/compare            selected and available laps
//	POST /api/laps/{lap}/toggle       toggle comparison membership
//	GET  /api/laps/{lap}/panels       speed, rpm and throttle of a lap
//	GET  /api/metric                  comparison metric
//	PUT  /api/metric?channel=<key>    change comparison metric
//	GET  /api/live?channel=<key>      recent samples of the session
//	GET  /api/overlay?channel=<key>   compared laps with shared bounds
//	GET  /chart/live.{png,svg}        rendered charts
//	GET  /chart/compare.{png,svg}
//	GET  /chart/lap/{n}.{png,svg}
//	GET  /ws                          status pushed on each history change
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		d.writeJSON(w, d.Status())
	})
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, _ *http.Request) {
		d.writeJSON(w, d.view.History())
	})
	mux.HandleFunc("GET /api/laps", func(w http.ResponseWriter, _ *http.Request) {
		d.writeJSON(w, d.view.Laps())
	})
	mux.HandleFunc("GET /api/laps/available", func(w http.ResponseWriter, _ *http.Request) {
		d.writeJSON(w, d.view.AvailableLaps())
	})
	mux.HandleFunc("GET /api/laps/compare", func(w http.ResponseWriter, _ *http.Request) {
		d.writeJSON(w, d.view.CompareLaps())
	})
	mux.HandleFunc("POST /api/laps/{lap}/toggle", d.handleToggle)
	mux.HandleFunc("GET /api/laps/{lap}/panels", d.handlePanels)
	mux.HandleFunc("GET /api/metric", func(w http.ResponseWriter, _ *http.Request) {
		d.writeJSON(w, map[string]model.Channel{"metric": d.view.Metric()})
	})
	mux.HandleFunc("PUT /api/metric", d.handleSetMetric)
	mux.HandleFunc("GET /api/live", func(w http.ResponseWriter, r *http.Request) {
		if c, ok := d.channelParam(w, r, model.ChannelSpeed); ok {
			d.writeJSON(w, d.view.Live(c))
		}
	})
	mux.HandleFunc("GET /api/overlay", func(w http.ResponseWriter, r *http.Request) {
		if c, ok := d.channelParam(w, r, ""); ok {
			d.writeJSON(w, d.view.Overlay(c))
		}
	})
	for _, f := range []render.Format{render.PNG, render.SVG} {
		mux.HandleFunc("GET /chart/live."+string(f), d.chartLive(f))
		mux.HandleFunc("GET /chart/compare."+string(f), d.chartCompare(f))
	}
	mux.HandleFunc("GET /chart/lap/{file}", d.chartLap)
	if d.notifier != nil {
		mux.HandleFunc("GET /ws", d.handleWebsocket)
	}
	return mux
}

// Status returns the current state of the session
func (d *Dashboard) Status() Status {
	return d.status(d.view.Snapshot())
}

func (d *Dashboard) status(snap history.Snapshot) Status {
	ret := Status{
		Connected:  snap.Connected,
		CurrentLap: snap.CurrentLap,
		Samples:    len(snap.Samples),
		Evicted:    snap.Evicted,
		Version:    snap.Version,
		State:      d.view.SelectionState().String(),
		Metric:     d.view.Metric(),
		Latest:     snap.Latest,
	}
	if snap.Latest != nil {
		gear := snap.Latest.DisplayGear()
		ret.Gear = &gear
	}
	return ret
}

func (d *Dashboard) handleToggle(w http.ResponseWriter, r *http.Request) {
	lap, err := strconv.Atoi(r.PathValue("lap"))
	if err != nil {
		http.Error(w, "invalid lap", http.StatusBadRequest)
		return
	}
	accepted := d.view.Toggle(lap)
	d.writeJSON(w, toggleResult{Lap: lap, Accepted: accepted, Compare: d.view.CompareLaps()})
}

func (d *Dashboard) handlePanels(w http.ResponseWriter, r *http.Request) {
	lap, err := strconv.Atoi(r.PathValue("lap"))
	if err != nil {
		http.Error(w, "invalid lap", http.StatusBadRequest)
		return
	}
	panels, err := d.view.LapPanels(lap)
	if err != nil {
		d.writeError(w, err)
		return
	}
	d.writeJSON(w, panels)
}

func (d *Dashboard) handleSetMetric(w http.ResponseWriter, r *http.Request) {
	c, err := model.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d.view.SetMetric(c)
	d.writeJSON(w, map[string]model.Channel{"metric": c})
}

func (d *Dashboard) chartLive(f render.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := d.channelParam(w, r, model.ChannelSpeed)
		if !ok {
			return
		}
		d.writeChart(w, r, d.view.Frame(), chartKey{kind: chartKindLive, channel: c, format: f})
	}
}

func (d *Dashboard) chartCompare(f render.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := d.channelParam(w, r, "")
		if !ok {
			return
		}
		frame := d.view.Frame()
		d.writeChart(w, r, frame, chartKey{
			kind:      chartKindCompare,
			channel:   c,
			format:    f,
			selection: fmt.Sprint(frame.Metric(), frame.Compare()),
		})
	}
}

// chartLap renders one panel of a lap, ?channel= selects speed (default), rpm or throttle
func (d *Dashboard) chartLap(w http.ResponseWriter, r *http.Request) {
	name, ext, found := strings.Cut(r.PathValue("file"), ".")
	if !found {
		http.NotFound(w, r)
		return
	}
	f, err := render.ParseFormat(ext)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lap, err := strconv.Atoi(name)
	if err != nil {
		http.Error(w, "invalid lap", http.StatusBadRequest)
		return
	}
	c, ok := d.channelParam(w, r, model.ChannelSpeed)
	if !ok {
		return
	}
	d.writeChart(w, r, d.view.Frame(),
		chartKey{kind: chartKindLap, channel: c, lap: lap, format: f})
}

// renderChart renders the chart described by k from frame f
func (d *Dashboard) renderChart(f *view.Frame, k chartKey) ([]byte, error) {
	var series []view.Series
	var title string
	switch k.kind {
	case chartKindLive:
		s := f.Live(k.channel)
		series, title = []view.Series{s}, "Live "+s.Label
	case chartKindCompare:
		series = f.Overlay(k.channel)
		c := k.channel
		if c == "" {
			c = f.Metric()
		}
		title = "Compare " + c.Label()
	case chartKindLap:
		panels, err := f.LapPanels(k.lap)
		if err != nil {
			return nil, err
		}
		for i := range panels {
			if panels[i].Channel == k.channel {
				series = panels[i : i+1]
				title = fmt.Sprintf("Lap %d %s", k.lap, panels[i].Label)
				break
			}
		}
		if series == nil {
			return nil, fmt.Errorf("%w: %s", errNoPanel, k.channel)
		}
	}
	var buf bytes.Buffer
	if err := render.Render(&buf, k.format, series, render.WithTitle(title)); err != nil {
		d.l.Error("could not render chart", log.String("title", title), log.ErrorField(err))
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Dashboard) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.l.Warn("websocket upgrade failed", log.ErrorField(err))
		return
	}
	defer conn.Close()

	ch := d.notifier.Subscribe()
	defer d.notifier.CancelSubscription(ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	send := func(s Status) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(s); err != nil {
			d.l.Debug("websocket write failed", log.ErrorField(err))
			return false
		}
		return true
	}
	if !send(d.Status()) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case snap, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeTimeout))
				return
			}
			if !send(d.status(snap)) {
				return
			}
		}
	}
}

//nolint:whitespace // can't make both editor and linter happy
func (d *Dashboard) channelParam(
	w http.ResponseWriter, r *http.Request, defaultVal model.Channel,
) (model.Channel, bool) {
	key := r.URL.Query().Get("channel")
	if key == "" {
		return defaultVal, true
	}
	c, err := model.ParseChannel(key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return c, true
}

// writeChart serves the chart from the cache. The key carries the version
// and selection of frame, a miss renders from the same frame.
//
//nolint:whitespace // can't make both editor and linter happy
func (d *Dashboard) writeChart(
	w http.ResponseWriter, r *http.Request, frame *view.Frame, k chartKey,
) {
	k.version = frame.Version()
	data, err := d.charts.GetOrLoad(r.Context(), k,
		func(context.Context, chartKey) ([]byte, error) {
			return d.renderChart(frame, k)
		})
	if err != nil {
		d.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", k.format.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		d.l.Debug("could not write chart", log.ErrorField(err))
	}
}

func (d *Dashboard) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.l.Warn("could not write response", log.ErrorField(err))
	}
}

func (d *Dashboard) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, view.ErrUnknownLap):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, errNoPanel):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
