package feed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"github.com/mpapenbr/sequential/pkg/adapter"
	"github.com/mpapenbr/sequential/pkg/model"
)

// maximum length of a single line in a recording
const maxLineSize = 4 << 20

// Frame is a single captured record together with its lap.
// Lap is negative if the source has no lap information.
type Frame struct {
	Lap    int
	Sample model.RawSample
}

// Reader delivers frames. Next returns io.EOF when the source is exhausted.
type Reader interface {
	Next() (Frame, error)
}

// JSONLReader reads recordings with one ingest message per line.
// Lines may be a bare array of records or an envelope {SessionID, Lap, Data}.
// Empty lines are skipped.
type JSONLReader struct {
	scanner *bufio.Scanner
	pending []Frame
	line    int
}

func NewJSONLReader(r io.Reader) *JSONLReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &JSONLReader{scanner: scanner}
}

func (r *JSONLReader) Next() (Frame, error) {
	for len(r.pending) == 0 {
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return Frame{}, err
			}
			return Frame{}, io.EOF
		}
		r.line++
		if len(r.scanner.Bytes()) == 0 {
			continue
		}
		batch, err := adapter.Decode(r.scanner.Bytes())
		if err != nil {
			return Frame{}, &LineError{Line: r.line, Err: err}
		}
		for i := range batch.Records {
			r.pending = append(r.pending, Frame{Lap: batch.Lap, Sample: batch.Records[i]})
		}
	}
	ret := r.pending[0]
	r.pending = r.pending[1:]
	return ret, nil
}

type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Synthetic generates laps of plausible telemetry.
// The output is deterministic for a given seed.
type Synthetic struct {
	laps          int
	samplesPerLap int
	rnd           *rand.Rand
	lap           int
	idx           int
	packetID      int32
}

var ErrInvalidSynthetic = errors.New("laps and samples per lap must be positive")

func NewSynthetic(laps, samplesPerLap int, seed uint64) (*Synthetic, error) {
	if laps <= 0 || samplesPerLap <= 0 {
		return nil, ErrInvalidSynthetic
	}
	return &Synthetic{
		laps:          laps,
		samplesPerLap: samplesPerLap,
		rnd:           rand.New(rand.NewPCG(seed, seed^0x5eed)),
	}, nil
}

func (s *Synthetic) Next() (Frame, error) {
	if s.lap >= s.laps {
		return Frame{}, io.EOF
	}
	pos := float64(s.idx) / float64(s.samplesPerLap)
	s.packetID++
	ret := Frame{Lap: s.lap, Sample: s.sample(pos)}
	s.idx++
	if s.idx == s.samplesPerLap {
		s.idx = 0
		s.lap++
	}
	return ret, nil
}

// sample models a track with three braking zones per lap
func (s *Synthetic) sample(pos float64) model.RawSample {
	wave := math.Sin(pos * 6 * math.Pi)
	jitter := (s.rnd.Float64() - 0.5) * 4
	speed := 170 + 90*wave + jitter
	gas, brake := 1.0, 0.0
	if wave < -0.3 {
		gas, brake = 0, math.Min(1, -wave)
	}
	gear := 2 + int(math.Round((speed-60)/45))
	gear = max(2, min(gear, 7))
	return model.RawSample{
		PacketID:   s.packetID,
		SpeedKmh:   speed,
		Rpms:       3000 + math.Mod(speed*41, 4500),
		Gas:        gas,
		Brake:      brake,
		SteerAngle: math.Cos(pos*6*math.Pi) * 0.6,
		Gear:       gear,
		Fuel:       50 - pos - float64(s.lap),
	}
}
