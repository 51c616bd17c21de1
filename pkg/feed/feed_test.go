//nolint:funlen // ok for this test code
package feed

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/sequential/pkg/adapter"
	"github.com/mpapenbr/sequential/pkg/model"
)

type (
	sent struct {
		lap     int
		records []model.RawSample
	}
	fakeSender struct {
		mu    sync.Mutex
		sent  []sent
		fail  bool
		calls int
	}
	sliceReader struct {
		frames []Frame
		err    error
	}
)

func (f *fakeSender) Post(_ context.Context, lap int, records []model.RawSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return ErrRejected
	}
	f.sent = append(f.sent, sent{lap: lap, records: records})
	return nil
}

func (r *sliceReader) Next() (Frame, error) {
	if len(r.frames) == 0 {
		if r.err != nil {
			return Frame{}, r.err
		}
		return Frame{}, io.EOF
	}
	ret := r.frames[0]
	r.frames = r.frames[1:]
	return ret, nil
}

func lapFrames(lap int, ids ...int32) []Frame {
	ret := make([]Frame, len(ids))
	for i, id := range ids {
		ret[i] = Frame{Lap: lap, Sample: model.RawSample{PacketID: id, SpeedKmh: float64(id)}}
	}
	return ret
}

func TestFeeder_Run(t *testing.T) {
	tests := []struct {
		name      string
		frames    []Frame
		batchSize int
		wantLaps  []int
		wantSizes []int
		wantStats Stats
	}{
		{
			name:      "empty",
			frames:    nil,
			batchSize: 3,
			wantStats: Stats{},
		},
		{
			name:      "full batches and remainder",
			frames:    lapFrames(0, 1, 2, 3, 4, 5, 6, 7),
			batchSize: 3,
			wantLaps:  []int{0, 0, 0},
			wantSizes: []int{3, 3, 1},
			wantStats: Stats{Frames: 7, Batches: 3},
		},
		{
			name:      "duplicate packet ids are skipped",
			frames:    lapFrames(0, 1, 1, 1, 2, 2, 3),
			batchSize: 20,
			wantLaps:  []int{0},
			wantSizes: []int{3},
			wantStats: Stats{Frames: 3, Skipped: 3, Batches: 1},
		},
		{
			name:      "frames without packet id are kept",
			frames:    lapFrames(0, 0, 0, 0),
			batchSize: 20,
			wantLaps:  []int{0},
			wantSizes: []int{3},
			wantStats: Stats{Frames: 3, Batches: 1},
		},
		{
			name:      "lap change sends batch",
			frames:    append(lapFrames(1, 1, 2), lapFrames(2, 3, 4, 5)...),
			batchSize: 20,
			wantLaps:  []int{1, 2},
			wantSizes: []int{2, 3},
			wantStats: Stats{Frames: 5, Batches: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			f := NewFeeder(sender, WithBatchSize(tt.batchSize))
			stats, err := f.Run(context.Background(), &sliceReader{frames: tt.frames})
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStats, stats)
			var laps, sizes []int
			for _, s := range sender.sent {
				laps = append(laps, s.lap)
				sizes = append(sizes, len(s.records))
			}
			assert.Equal(t, tt.wantLaps, laps)
			assert.Equal(t, tt.wantSizes, sizes)
		})
	}
}

func TestFeeder_SenderFailure(t *testing.T) {
	sender := &fakeSender{fail: true}
	f := NewFeeder(sender, WithBatchSize(2))
	stats, err := f.Run(context.Background(), &sliceReader{frames: lapFrames(0, 1, 2, 3)})
	assert.NoError(t, err)
	assert.Equal(t, Stats{Batches: 2, Failed: 2}, stats)
	assert.Equal(t, 2, sender.calls)
}

func TestFeeder_ReaderError(t *testing.T) {
	readErr := errors.New("broken")
	sender := &fakeSender{}
	f := NewFeeder(sender)
	stats, err := f.Run(context.Background(),
		&sliceReader{frames: lapFrames(0, 1, 2), err: readErr})
	assert.ErrorIs(t, err, readErr)
	// pending frames are sent before returning
	assert.Equal(t, 2, stats.Frames)
}

func TestFeeder_Cancel(t *testing.T) {
	synth, err := NewSynthetic(1000, 1000, 1)
	assert.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	f := NewFeeder(&fakeSender{}, WithInterval(time.Millisecond))
	done := make(chan error)
	go func() {
		_, err := f.Run(ctx, synth)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("feeder did not stop")
	}
}

func TestSynthetic(t *testing.T) {
	_, err := NewSynthetic(0, 10, 1)
	assert.ErrorIs(t, err, ErrInvalidSynthetic)

	s, err := NewSynthetic(2, 100, 42)
	assert.NoError(t, err)
	perLap := map[int]int{}
	var lastID int32
	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		assert.NoError(t, err)
		perLap[f.Lap]++
		assert.Greater(t, f.Sample.PacketID, lastID)
		lastID = f.Sample.PacketID
		assert.GreaterOrEqual(t, f.Sample.Gas, 0.0)
		assert.LessOrEqual(t, f.Sample.Gas, 1.0)
		assert.GreaterOrEqual(t, f.Sample.Brake, 0.0)
		assert.LessOrEqual(t, f.Sample.Brake, 1.0)
		assert.GreaterOrEqual(t, f.Sample.SteerAngle, -1.0)
		assert.LessOrEqual(t, f.Sample.SteerAngle, 1.0)
	}
	assert.Equal(t, map[int]int{0: 100, 1: 100}, perLap)

	// same seed, same data
	a, _ := NewSynthetic(1, 5, 7)
	b, _ := NewSynthetic(1, 5, 7)
	for range 5 {
		fa, _ := a.Next()
		fb, _ := b.Next()
		assert.Equal(t, fa, fb)
	}
}

func TestJSONLReader(t *testing.T) {
	input := strings.Join([]string{
		`[{"PacketId":1,"SpeedKmh":10,"Rpms":1000,"Gas":1,"Brake":0,"SteerAngle":0,"Gear":2}]`,
		``,
		`{"SessionID":"s","Lap":3,"Data":[` +
			`{"PacketId":2,"SpeedKmh":20,"Rpms":2000,"Gas":1,"Brake":0,"SteerAngle":0,"Gear":3},` +
			`{"PacketId":3,"SpeedKmh":30,"Rpms":3000,"Gas":1,"Brake":0,"SteerAngle":0,"Gear":3}]}`,
	}, "\n")
	r := NewJSONLReader(strings.NewReader(input))

	var got []Frame
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		assert.NoError(t, err)
		got = append(got, f)
	}
	assert.Len(t, got, 3)
	assert.Less(t, got[0].Lap, 0)
	assert.Equal(t, 3, got[1].Lap)
	assert.Equal(t, int32(3), got[2].Sample.PacketID)
	assert.Equal(t, 30.0, got[2].Sample.SpeedKmh)
}

func TestJSONLReader_Malformed(t *testing.T) {
	r := NewJSONLReader(strings.NewReader("[]\n{not json\n"))
	_, err := r.Next()
	var lineErr *LineError
	assert.ErrorAs(t, err, &lineErr)
	assert.Equal(t, 2, lineErr.Line)
	assert.ErrorIs(t, err, adapter.ErrMalformed)
}
