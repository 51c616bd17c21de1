//nolint:funlen // ok for this test code
package view

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/sequential/pkg/config"
	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/telemetry/history"
	"github.com/mpapenbr/sequential/pkg/telemetry/selection"
)

func lapData(n int, speed, rpm float64) []model.RawSample {
	ret := make([]model.RawSample, n)
	for i := range ret {
		ret[i] = model.RawSample{SpeedKmh: speed, Rpms: rpm, Gas: 0.5, Gear: 3}
	}
	return ret
}

func setup(t *testing.T) (*history.Store, *View) {
	t.Helper()
	store := history.New()
	t.Cleanup(store.Close)
	return store, New(store, config.DefaultConfig())
}

func TestView_ScenarioSparseLap(t *testing.T) {
	store, v := setup(t)
	assert.NoError(t, store.AppendBatch([]model.RawSample{{SpeedKmh: 100}}, 1))
	assert.NoError(t, store.AppendBatch([]model.RawSample{{SpeedKmh: 120}}, 1))

	assert.Len(t, v.History(), 2)
	assert.Empty(t, v.AvailableLaps())
	assert.Empty(t, v.CompareLaps())
	assert.Equal(t, 1, v.CurrentLap())
	assert.Equal(t, selection.NoLaps, v.SelectionState())
}

func TestView_ScenarioTwoLaps(t *testing.T) {
	store, v := setup(t)
	assert.NoError(t, store.AppendBatch(lapData(60, 100, 5000), 1))
	assert.NoError(t, store.AppendBatch(lapData(60, 110, 6000), 2))

	assert.Equal(t, []int{2, 1}, v.AvailableLaps())
	assert.Equal(t, []int{2, 1}, v.CompareLaps())
	assert.Equal(t, selection.SubsetSelected, v.SelectionState())

	// more laps do not change the initial selection
	assert.NoError(t, store.AppendBatch(lapData(60, 120, 7000), 3))
	assert.Equal(t, []int{3, 2, 1}, v.AvailableLaps())
	assert.Equal(t, []int{2, 1}, v.CompareLaps())

	assert.True(t, v.Toggle(3))
	assert.Equal(t, []int{3, 2, 1}, v.CompareLaps())
	assert.False(t, v.Toggle(9))
}

func TestView_Laps(t *testing.T) {
	store, v := setup(t)
	assert.NoError(t, store.AppendBatch(lapData(60, 100, 5000), 1))
	assert.NoError(t, store.AppendBatch(lapData(10, 110, 6000), 2))

	want := []LapInfo{
		{Lap: 2, Samples: 10, Live: true, Available: false, Selected: false},
		{Lap: 1, Samples: 60, Live: false, Available: true, Selected: true},
	}
	assert.Equal(t, want, v.Laps())
}

func TestView_Overlay(t *testing.T) {
	store, v := setup(t)
	assert.NoError(t, store.AppendBatch(lapData(60, 100, 8000), 1))
	assert.NoError(t, store.AppendBatch(lapData(60, 110, 4000), 2))

	got := v.Overlay(model.ChannelRpm)
	assert.Len(t, got, 2)
	for _, s := range got {
		assert.Equal(t, 4000.0, s.Bounds.Min)
		assert.Equal(t, 8000.0, s.Bounds.Max)
		assert.Len(t, s.Coords, 60)
	}
	// lap 2 (4000 rpm) at the bottom, lap 1 (8000 rpm) at the top
	assert.Equal(t, 2, got[0].Lap)
	assert.InDelta(t, 100.0, got[0].Coords[0].Y, 1e-9)
	assert.Equal(t, 1, got[1].Lap)
	assert.InDelta(t, 0.0, got[1].Coords[0].Y, 1e-9)

	// default metric of the selection
	v.SetMetric(model.ChannelThrottle)
	got = v.Overlay("")
	assert.Equal(t, model.ChannelThrottle, got[0].Channel)
	assert.Equal(t, 1.0, got[0].Bounds.Max)
}

func TestView_Live(t *testing.T) {
	store, v := setup(t)
	assert.Empty(t, v.Live(model.ChannelSpeed).Coords)

	assert.NoError(t, store.AppendBatch(lapData(150, 100, 5000), 1))
	assert.NoError(t, store.AppendBatch(lapData(150, 200, 5000), 2))
	live := v.Live(model.ChannelSpeed)
	assert.Len(t, live.Coords, 200)
	assert.Equal(t, 100.0, live.Bounds.Min)
	assert.Equal(t, 200.0, live.Bounds.Max)
	assert.Equal(t, 2, live.Lap)
	// wide panel
	assert.Equal(t, 50.0, live.Box.H)
	assert.InDelta(t, 100.0, live.Coords[len(live.Coords)-1].X, 1e-9)

	flat := v.Live(model.ChannelRpm)
	assert.Equal(t, 4999.0, flat.Bounds.Min)
	assert.Equal(t, 5001.0, flat.Bounds.Max)
	assert.InDelta(t, 25.0, flat.Coords[0].Y, 1e-9)
}

func TestView_LapPanels(t *testing.T) {
	store, v := setup(t)
	assert.NoError(t, store.AppendBatch(lapData(3, 150, 4000), 1))

	panels, err := v.LapPanels(1)
	assert.NoError(t, err)
	assert.Len(t, panels, 3)
	assert.Equal(t, model.ChannelSpeed, panels[0].Channel)
	assert.Equal(t, 300.0, panels[0].Bounds.Max)
	assert.InDelta(t, 25.0, panels[0].Coords[0].Y, 1e-9)
	assert.Equal(t, model.ChannelRpm, panels[1].Channel)
	assert.InDelta(t, 25.0, panels[1].Coords[0].Y, 1e-9)
	assert.Equal(t, model.ChannelThrottle, panels[2].Channel)

	_, err = v.LapPanels(7)
	assert.True(t, errors.Is(err, ErrUnknownLap))
}

func TestView_Connection(t *testing.T) {
	store, v := setup(t)
	assert.False(t, v.IsConnected())
	store.SetConnectionStatus(true)
	assert.True(t, v.IsConnected())
}

func TestView_FrameIsStable(t *testing.T) {
	store, v := setup(t)
	assert.NoError(t, store.AppendBatch(lapData(60, 100, 8000), 1))
	assert.NoError(t, store.AppendBatch(lapData(60, 110, 4000), 2))

	f := v.Frame()
	version := f.Version()
	assert.Equal(t, []int{2, 1}, f.Compare())

	// later changes are not visible in the frame
	assert.True(t, v.Toggle(1))
	v.SetMetric(model.ChannelRpm)
	assert.NoError(t, store.AppendBatch(lapData(60, 120, 6000), 3))

	assert.Equal(t, version, f.Version())
	assert.Equal(t, []int{2, 1}, f.Compare())
	assert.Equal(t, model.ChannelSpeed, f.Metric())
	got := f.Overlay("")
	assert.Len(t, got, 2)
	assert.Equal(t, model.ChannelSpeed, got[0].Channel)
	_, err := f.LapPanels(3)
	assert.True(t, errors.Is(err, ErrUnknownLap))

	assert.Equal(t, []int{2}, v.CompareLaps())
	assert.Len(t, v.Frame().Overlay(""), 1)
}
