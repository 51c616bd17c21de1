package laps

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/mpapenbr/sequential/pkg/model"
)

// samplesFor creates n samples per entry of laps, in the given order
func samplesFor(n int, laps ...int) []model.Sample {
	ret := []model.Sample{}
	for _, lap := range laps {
		for i := range n {
			ret = append(ret, model.Sample{Lap: lap, SpeedKmh: float64(i)})
		}
	}
	return ret
}

func TestSegment(t *testing.T) {
	samples := []model.Sample{
		{Lap: 1, SpeedKmh: 10},
		{Lap: 1, SpeedKmh: 11},
		{Lap: 2, SpeedKmh: 20},
		{Lap: 1, SpeedKmh: 12},
		{Lap: 2, SpeedKmh: 21},
	}
	got := Segment(samples)
	want := map[int]Group{
		1: {Lap: 1, Samples: []model.Sample{
			{Lap: 1, SpeedKmh: 10}, {Lap: 1, SpeedKmh: 11}, {Lap: 1, SpeedKmh: 12},
		}},
		2: {Lap: 2, Samples: []model.Sample{
			{Lap: 2, SpeedKmh: 20}, {Lap: 2, SpeedKmh: 21},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Segment() mismatch (-want +got):\n%s", diff)
	}
}

func TestSegment_Partition(t *testing.T) {
	samples := samplesFor(7, 3, 1, 2, 5)
	groups := Segment(samples)
	total := 0
	for lap, g := range groups {
		assert.Equal(t, lap, g.Lap)
		for _, s := range g.Samples {
			assert.Equal(t, lap, s.Lap)
		}
		total += len(g.Samples)
	}
	assert.Equal(t, len(samples), total)
	assert.Equal(t, 0, len(Segment(nil)))
}

func TestAvailable(t *testing.T) {
	tests := []struct {
		name        string
		samples     []model.Sample
		threshold   int
		wantOrdered []int
		want        []int
	}{
		{
			name:        "empty",
			samples:     nil,
			threshold:   DefaultMinSamples,
			wantOrdered: []int{},
			want:        []int{},
		},
		{
			// two single samples in lap 1
			name:        "below threshold",
			samples:     samplesFor(2, 1),
			threshold:   DefaultMinSamples,
			wantOrdered: []int{1},
			want:        []int{},
		},
		{
			name:        "two full laps",
			samples:     samplesFor(60, 1, 2),
			threshold:   DefaultMinSamples,
			wantOrdered: []int{2, 1},
			want:        []int{2, 1},
		},
		{
			name:        "threshold is exclusive",
			samples:     append(samplesFor(50, 1), samplesFor(51, 2)...),
			threshold:   DefaultMinSamples,
			wantOrdered: []int{2, 1},
			want:        []int{2},
		},
		{
			name:        "in-progress lap excluded",
			samples:     append(samplesFor(60, 0, 1, 2), samplesFor(10, 3)...),
			threshold:   DefaultMinSamples,
			wantOrdered: []int{3, 2, 1, 0},
			want:        []int{2, 1, 0},
		},
		{
			name:        "custom threshold",
			samples:     samplesFor(5, 1, 2),
			threshold:   4,
			wantOrdered: []int{2, 1},
			want:        []int{2, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := Segment(tt.samples)
			assert.DeepEqual(t, tt.wantOrdered, Ordered(groups))
			assert.DeepEqual(t, tt.want, Available(groups, tt.threshold))
		})
	}
}
