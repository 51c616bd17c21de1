// Package render draws normalized series as PNG or SVG charts.
package render

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/mpapenbr/sequential/pkg/telemetry/normalize"
	"github.com/mpapenbr/sequential/pkg/telemetry/view"
)

type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"

	DefaultWidth = 800
)

var ErrUnknownFormat = errors.New("unknown format")

// placeholder range if there is nothing to draw
var emptyBounds = normalize.Explicit(0, 100)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(s, "."))) {
	case PNG:
		return PNG, nil
	case SVG:
		return SVG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() chart.RendererProvider {
	if f == SVG {
		return chart.SVG
	}
	return chart.PNG
}

type (
	Option  func(*options)
	options struct {
		width  int
		height int
		title  string
	}
)

// WithSize sets the image size. Without it the height follows the series box.
func WithSize(width, height int) Option {
	return func(o *options) {
		o.width = width
		o.height = height
	}
}

func WithTitle(title string) Option {
	return func(o *options) {
		o.title = title
	}
}

// Chart builds a line chart of the series. All series share the
// bounds of the first one, which is what the view delivers for overlays.
func Chart(series []view.Series, opts ...Option) chart.Chart {
	box := normalize.Wide
	bounds := emptyBounds
	if len(series) > 0 {
		box = series[0].Box
		bounds = series[0].Bounds.Widen()
	}
	o := &options{width: DefaultWidth}
	for _, opt := range opts {
		opt(o)
	}
	if o.height == 0 {
		o.height = int(float64(o.width) * box.H / box.W)
	}

	chartSeries := make([]chart.Series, 0, len(series))
	for i := range series {
		if s, ok := lineSeries(&series[i], box, bounds, chart.GetDefaultColor(i)); ok {
			chartSeries = append(chartSeries, s)
		}
	}
	if len(chartSeries) == 0 {
		chartSeries = append(chartSeries, baseline(box, bounds))
	}

	ch := chart.Chart{
		Title:      o.title,
		Width:      o.width,
		Height:     o.height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 12, Bottom: 12}},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: box.W},
		},
		YAxis: chart.YAxis{
			Name:  yAxisName(series),
			Range: &chart.ContinuousRange{Min: bounds.Min, Max: bounds.Max},
		},
		Series: chartSeries,
	}
	if len(series) > 1 {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}
	return ch
}

// Render writes the chart of the series in format f to w
//
//nolint:whitespace // can't make both editor and linter happy
func Render(
	w io.Writer, f Format, series []view.Series, opts ...Option,
) error {
	ch := Chart(series, opts...)
	return ch.Render(f.provider(), w)
}

// Polyline returns the normalized points of s as the value of an
// SVG polyline points attribute ("x1,y1 x2,y2 ...").
func Polyline(s *view.Series) string {
	var b strings.Builder
	for p := range s.Points() {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(p.X, 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Y, 'f', -1, 64))
	}
	return b.String()
}

// lineSeries maps the values of s into the chart coordinates.
// Values are clamped to bounds. A single value is drawn as a flat line.
//
//nolint:whitespace // can't make both editor and linter happy
func lineSeries(
	s *view.Series, box normalize.Box, bounds normalize.Bounds, col drawing.Color,
) (chart.Series, bool) {
	n := len(s.Values)
	if n == 0 {
		return nil, false
	}
	xs := make([]float64, 0, max(n, 2))
	ys := make([]float64, 0, max(n, 2))
	for p := range normalize.Points(s.Values, bounds, box) {
		xs = append(xs, p.X)
		ys = append(ys, bounds.Min+p.Level(box)*bounds.Span())
	}
	if n == 1 {
		xs = append(xs, box.W)
		ys = append(ys, ys[0])
	}
	return chart.ContinuousSeries{
		Name:    seriesName(s),
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeColor: col,
			StrokeWidth: 2,
		},
	}, true
}

func baseline(box normalize.Box, bounds normalize.Bounds) chart.Series {
	return chart.ContinuousSeries{
		Name:    "no data",
		XValues: []float64{0, box.W},
		YValues: []float64{bounds.Min, bounds.Min},
		Style: chart.Style{
			StrokeColor: chart.ColorAlternateGray,
			StrokeWidth: 1,
		},
	}
}

func seriesName(s *view.Series) string {
	if s.Lap < 0 {
		return s.Label
	}
	return fmt.Sprintf("%s lap %d", s.Label, s.Lap)
}

func yAxisName(series []view.Series) string {
	if len(series) == 0 {
		return ""
	}
	if series[0].Label != "" {
		return series[0].Label
	}
	return series[0].Channel.Label()
}
