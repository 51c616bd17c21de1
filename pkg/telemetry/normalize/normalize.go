// Package normalize maps channel values onto a logical drawing box.
//
// The x-axis is the sample index, the y-axis grows downwards (origin top-left),
// so larger values are drawn closer to the top of the box.
package normalize

import (
	"iter"
	"math"

	"github.com/mpapenbr/sequential/pkg/model"
)

// DefaultLiveWindow is the number of samples shown in the live view
const DefaultLiveWindow = 200

type (
	Box struct {
		W, H float64
	}
	Bounds struct {
		Min, Max float64
	}
	Point struct {
		X, Y float64
	}
)

var (
	Square = Box{W: 100, H: 100}
	Wide   = Box{W: 100, H: 50}

	// used for flat or empty series in overlays
	overlayDefault = Bounds{Min: 0, Max: 100}
	emptyDefault   = Bounds{Min: -1, Max: 1}
)

func Explicit(minVal, maxVal float64) Bounds {
	return Bounds{Min: minVal, Max: maxVal}
}

// Span returns Max-Min
func (b Bounds) Span() float64 {
	return b.Max - b.Min
}

// Widen returns bounds usable for division.
// Flat or broken bounds are widened by 1 around their center.
func (b Bounds) Widen() Bounds {
	if isFinite(b.Min) && isFinite(b.Max) && b.Max > b.Min {
		return b
	}
	if !isFinite(b.Min) {
		return emptyDefault
	}
	return Bounds{Min: b.Min - 1, Max: b.Min + 1}
}

// Ratio returns the relative position of v within b, clamped to [0,1].
// Non-finite values are mapped to 0.
func (b Bounds) Ratio(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	g := b.Widen()
	t := (v - g.Min) / g.Span()
	return math.Max(0, math.Min(1, t))
}

// Level returns the relative height of p inside box, 0 at the bottom and 1 at the top
func (p Point) Level(box Box) float64 {
	if box.H <= 0 {
		return 0
	}
	return (box.H - p.Y) / box.H
}

// Values projects samples through channel c
func Values(samples []model.Sample, c model.Channel) []float64 {
	ret := make([]float64, len(samples))
	for i := range samples {
		ret[i] = c.Value(&samples[i])
	}
	return ret
}

// Points returns the coordinates of values inside box.
// The sequence may be iterated multiple times and holds no state between calls.
func Points(values []float64, bounds Bounds, box Box) iter.Seq[Point] {
	return func(yield func(Point) bool) {
		n := len(values)
		if n == 0 {
			return
		}
		stepX := box.W / float64(max(n-1, 1))
		for i, v := range values {
			p := Point{
				X: float64(i) * stepX,
				Y: box.H - bounds.Ratio(v)*box.H,
			}
			if !yield(p) {
				return
			}
		}
	}
}

// SeriesBounds computes the bounds for a single series of channel c.
// Fixed scale channels use their canonical range. Flat series are widened
// by 1 on both sides, empty series get [-1,1].
func SeriesBounds(c model.Channel, values []float64) Bounds {
	if lo, hi, ok := c.FixedRange(); ok {
		return Bounds{Min: lo, Max: hi}
	}
	b, ok := scan(values)
	if !ok {
		return emptyDefault
	}
	return b.Widen()
}

// OverlayBounds computes one shared scale for all series of channel c.
// Flat or empty input falls back to [0,100].
func OverlayBounds(c model.Channel, series ...[]float64) Bounds {
	if lo, hi, ok := c.FixedRange(); ok {
		return Bounds{Min: lo, Max: hi}
	}
	b, ok := scan(series...)
	if !ok || b.Max == b.Min {
		return overlayDefault
	}
	return b
}

// Tail returns the last k samples. k <= 0 disables the window.
func Tail(samples []model.Sample, k int) []model.Sample {
	if k <= 0 || len(samples) <= k {
		return samples
	}
	return samples[len(samples)-k:]
}

// scan returns min and max of all finite values
func scan(series ...[]float64) (b Bounds, ok bool) {
	b = Bounds{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, values := range series {
		for _, v := range values {
			if !isFinite(v) {
				continue
			}
			b.Min = math.Min(b.Min, v)
			b.Max = math.Max(b.Max, v)
			ok = true
		}
	}
	return b, ok
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
