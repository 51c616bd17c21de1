// Package selection keeps track of the laps chosen for comparison.
package selection

import (
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/sequential/pkg/model"
)

// DefaultAutoSelect is the number of laps selected when laps become available
const DefaultAutoSelect = 3

type State int

const (
	NoLaps         State = iota // no lap is available for comparison
	NoneSelected                // laps are available but none is selected
	SubsetSelected              // at least one available lap is selected
)

func (s State) String() string {
	switch s {
	case NoLaps:
		return "no laps"
	case NoneSelected:
		return "none selected"
	case SubsetSelected:
		return "subset selected"
	default:
		return "unknown"
	}
}

// Selection is the comparison state of a single dashboard.
// It is not safe for concurrent use.
type Selection struct {
	metric     model.Channel
	selected   map[int]struct{}
	autoSelect int
	settled    bool // auto selection fired or the user toggled a lap
}

type Option func(*Selection)

func WithAutoSelect(n int) Option {
	return func(s *Selection) {
		s.autoSelect = max(n, 0)
	}
}

func WithMetric(c model.Channel) Option {
	return func(s *Selection) {
		s.metric = c
	}
}

func New(opts ...Option) *Selection {
	s := &Selection{
		metric:     model.ChannelSpeed,
		selected:   make(map[int]struct{}),
		autoSelect: DefaultAutoSelect,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync applies the one-shot default: the first time laps are available
// (and nothing was toggled before) the most recent laps are selected.
// available is expected in descending order. Returns true if the default was applied.
func (s *Selection) Sync(available []int) bool {
	if s.settled || len(available) == 0 {
		return false
	}
	s.settled = true
	for _, lap := range available[:min(s.autoSelect, len(available))] {
		s.selected[lap] = struct{}{}
	}
	return true
}

// Toggle flips the membership of lap. Laps not contained in available
// are ignored, in which case false is returned.
func (s *Selection) Toggle(lap int, available []int) bool {
	if !lo.Contains(available, lap) {
		return false
	}
	s.settled = true
	if _, ok := s.selected[lap]; ok {
		delete(s.selected, lap)
	} else {
		s.selected[lap] = struct{}{}
	}
	return true
}

func (s *Selection) SetMetric(c model.Channel) {
	s.metric = c
}

func (s *Selection) Metric() model.Channel {
	return s.metric
}

// Selected returns the selected laps, most recent first
func (s *Selection) Selected() []int {
	ret := lo.Keys(s.selected)
	slices.SortFunc(ret, func(a, b int) int { return b - a })
	return ret
}

// Compare returns the selected laps which are still available, most recent first
func (s *Selection) Compare(available []int) []int {
	return lo.Filter(s.Selected(), func(lap, _ int) bool {
		return lo.Contains(available, lap)
	})
}

func (s *Selection) State(available []int) State {
	switch {
	case len(available) == 0:
		return NoLaps
	case len(s.Compare(available)) == 0:
		return NoneSelected
	default:
		return SubsetSelected
	}
}
