// Package laps groups telemetry samples by their lap tag.
package laps

import (
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/sequential/pkg/model"
)

// DefaultMinSamples is the number of samples a lap must exceed to be
// considered for graphing.
const DefaultMinSamples = 50

// Group is the ordered subsequence of samples sharing one lap tag
type Group struct {
	Lap     int
	Samples []model.Sample
}

// Segment partitions samples by lap. The arrival order within a group is kept.
func Segment(samples []model.Sample) map[int]Group {
	byLap := lo.GroupBy(samples, func(s model.Sample) int { return s.Lap })
	ret := make(map[int]Group, len(byLap))
	for lap, items := range byLap {
		ret[lap] = Group{Lap: lap, Samples: items}
	}
	return ret
}

// Ordered returns the lap numbers, most recent lap first
func Ordered(groups map[int]Group) []int {
	ret := lo.Keys(groups)
	slices.SortFunc(ret, func(a, b int) int { return b - a })
	return ret
}

// Available returns the laps (most recent first) having more than threshold samples
func Available(groups map[int]Group, threshold int) []int {
	return lo.Filter(Ordered(groups), func(lap, _ int) bool {
		return len(groups[lap].Samples) > threshold
	})
}
