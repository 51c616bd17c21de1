// Package view provides the read side of a dashboard.
//
// All values are computed on demand from the latest history snapshot.
package view

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/mpapenbr/sequential/pkg/config"
	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/telemetry/history"
	"github.com/mpapenbr/sequential/pkg/telemetry/laps"
	"github.com/mpapenbr/sequential/pkg/telemetry/normalize"
	"github.com/mpapenbr/sequential/pkg/telemetry/selection"
)

var ErrUnknownLap = errors.New("unknown lap")

// Source provides snapshots of the history (implemented by history.Store)
type Source interface {
	Snapshot() history.Snapshot
}

type (
	// Series is one normalized trace
	Series struct {
		Lap     int               `json:"lap"`
		Channel model.Channel     `json:"channel"`
		Label   string            `json:"label"`
		Bounds  normalize.Bounds  `json:"bounds"`
		Box     normalize.Box     `json:"box"`
		Values  []float64         `json:"-"`
		Coords  []normalize.Point `json:"points"`
	}
	LapInfo struct {
		Lap       int  `json:"lap"`
		Samples   int  `json:"samples"`
		Live      bool `json:"live"`
		Available bool `json:"available"`
		Selected  bool `json:"selected"`
	}
)

// lap panels use fixed display ranges
var panelDefs = []struct {
	channel model.Channel
	bounds  normalize.Bounds
}{
	{model.ChannelSpeed, normalize.Explicit(0, 300)},
	{model.ChannelRpm, normalize.Explicit(0, 8000)},
	{model.ChannelThrottle, normalize.Explicit(0, 1)},
}

type View struct {
	src Source
	cfg config.Config
	mu  sync.Mutex
	sel *selection.Selection
}

func New(src Source, cfg config.Config) *View {
	return &View{
		src: src,
		cfg: cfg,
		sel: selection.New(selection.WithAutoSelect(cfg.CompareDefault)),
	}
}

func (s *Series) Points() iter.Seq[normalize.Point] {
	return normalize.Points(s.Values, s.Bounds, s.Box)
}

//nolint:whitespace // can't make both editor and linter happy
func newSeries(
	lap int,
	c model.Channel,
	values []float64,
	b normalize.Bounds,
	box normalize.Box,
) Series {
	ret := Series{
		Lap:     lap,
		Channel: c,
		Label:   c.Label(),
		Bounds:  b,
		Box:     box,
		Values:  values,
	}
	ret.Coords = make([]normalize.Point, 0, len(values))
	for p := range ret.Points() {
		ret.Coords = append(ret.Coords, p)
	}
	return ret
}

// Snapshot returns the current state of the underlying history
func (v *View) Snapshot() history.Snapshot {
	return v.src.Snapshot()
}

func (v *View) History() []model.Sample {
	return v.src.Snapshot().Samples
}

func (v *View) CurrentLap() int {
	return v.src.Snapshot().CurrentLap
}

func (v *View) IsConnected() bool {
	return v.src.Snapshot().Connected
}

// AvailableLaps returns the laps eligible for comparison, most recent first
func (v *View) AvailableLaps() []int {
	available := v.available()
	return available
}

// CompareLaps returns the selected laps which are available, most recent first
func (v *View) CompareLaps() []int {
	available := v.available()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel.Compare(available)
}

func (v *View) Toggle(lap int) bool {
	available := v.available()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel.Toggle(lap, available)
}

func (v *View) SetMetric(c model.Channel) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sel.SetMetric(c)
}

func (v *View) Metric() model.Channel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel.Metric()
}

func (v *View) SelectionState() selection.State {
	available := v.available()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel.State(available)
}

// Laps lists all laps of the session, most recent first
func (v *View) Laps() []LapInfo {
	snap := v.src.Snapshot()
	groups := laps.Segment(snap.Samples)
	available := v.syncSelection(laps.Available(groups, v.cfg.MinLapSamples))
	v.mu.Lock()
	selected := v.sel.Compare(available)
	v.mu.Unlock()

	ret := []LapInfo{}
	for _, lap := range laps.Ordered(groups) {
		ret = append(ret, LapInfo{
			Lap:       lap,
			Samples:   len(groups[lap].Samples),
			Live:      lap == snap.CurrentLap,
			Available: slices.Contains(available, lap),
			Selected:  slices.Contains(selected, lap),
		})
	}
	return ret
}

// Live returns the most recent samples of the whole session for channel c
func (v *View) Live(c model.Channel) Series {
	return v.Frame().Live(c)
}

// LapPanels returns the speed, rpm and throttle traces of a single lap
func (v *View) LapPanels(lap int) ([]Series, error) {
	return v.Frame().LapPanels(lap)
}

// Overlay returns the traces of all compared laps sharing one scale.
// If c is empty the metric of the selection is used.
func (v *View) Overlay(c model.Channel) []Series {
	return v.Frame().Overlay(c)
}

// Frame captures the history snapshot together with the selection.
// Everything derived from a frame is consistent, even if the store or the
// selection change in the meantime.
func (v *View) Frame() *Frame {
	snap := v.src.Snapshot()
	groups := laps.Segment(snap.Samples)
	available := v.syncSelection(laps.Available(groups, v.cfg.MinLapSamples))
	v.mu.Lock()
	compare := v.sel.Compare(available)
	metric := v.sel.Metric()
	v.mu.Unlock()
	return &Frame{
		snap:    snap,
		groups:  groups,
		compare: compare,
		metric:  metric,
		window:  v.cfg.LiveWindow,
	}
}

func (v *View) available() []int {
	groups := laps.Segment(v.src.Snapshot().Samples)
	return v.syncSelection(laps.Available(groups, v.cfg.MinLapSamples))
}

// syncSelection applies the initial default selection once laps are available
func (v *View) syncSelection(available []int) []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sel.Sync(available)
	return available
}

type Frame struct {
	snap    history.Snapshot
	groups  map[int]laps.Group
	compare []int
	metric  model.Channel
	window  int
}

func (f *Frame) Version() uint64 { return f.snap.Version }

func (f *Frame) Metric() model.Channel { return f.metric }

// Compare returns the compared laps, most recent first
func (f *Frame) Compare() []int { return slices.Clone(f.compare) }

func (f *Frame) Live(c model.Channel) Series {
	values := normalize.Values(normalize.Tail(f.snap.Samples, f.window), c)
	return newSeries(f.snap.CurrentLap, c, values, normalize.SeriesBounds(c, values), normalize.Wide)
}

func (f *Frame) LapPanels(lap int) ([]Series, error) {
	g, ok := f.groups[lap]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLap, lap)
	}
	ret := make([]Series, 0, len(panelDefs))
	for _, def := range panelDefs {
		values := normalize.Values(g.Samples, def.channel)
		ret = append(ret, newSeries(lap, def.channel, values, def.bounds, normalize.Wide))
	}
	return ret, nil
}

// Overlay uses the metric of the frame if c is empty
func (f *Frame) Overlay(c model.Channel) []Series {
	if c == "" {
		c = f.metric
	}
	all := make([][]float64, len(f.compare))
	for i, lap := range f.compare {
		all[i] = normalize.Values(f.groups[lap].Samples, c)
	}
	bounds := normalize.OverlayBounds(c, all...)
	ret := make([]Series, len(f.compare))
	for i, lap := range f.compare {
		ret[i] = newSeries(lap, c, all[i], bounds, normalize.Square)
	}
	return ret
}
