// Package feed replays or synthesizes telemetry and posts it to a relay.
package feed

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/model"
)

const DefaultBatchSize = 20

var ErrRejected = errors.New("batch rejected")

// Sender transmits one batch (implemented by Poster)
type Sender interface {
	Post(ctx context.Context, lap int, records []model.RawSample) error
}

type (
	Feeder struct {
		sender    Sender
		batchSize int
		interval  time.Duration
		l         *log.Logger
	}
	Option func(*Feeder)

	Stats struct {
		Frames  int // frames sent
		Skipped int // frames with unchanged packet id
		Batches int
		Failed  int // batches the sender could not deliver
	}
)

func WithBatchSize(n int) Option {
	return func(f *Feeder) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithInterval paces the frames. 0 sends as fast as possible.
func WithInterval(d time.Duration) Option {
	return func(f *Feeder) {
		f.interval = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(f *Feeder) {
		f.l = l
	}
}

func NewFeeder(sender Sender, opts ...Option) *Feeder {
	ret := &Feeder{
		sender:    sender,
		batchSize: DefaultBatchSize,
		l:         log.Default().Named("feed"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run reads frames until the reader is exhausted or ctx is done.
// Frames repeating the packet id of their predecessor are skipped.
// A batch is sent when it is full or the lap changes. Failed batches
// are logged and dropped.
func (f *Feeder) Run(ctx context.Context, r Reader) (Stats, error) {
	var (
		stats   Stats
		batch   = make([]model.RawSample, 0, f.batchSize)
		lap     int
		lastID  int32 = -1
		tick    <-chan time.Time
		started bool
	)
	if f.interval > 0 {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	send := func() {
		if len(batch) == 0 {
			return
		}
		stats.Batches++
		if err := f.sender.Post(ctx, lap, batch); err != nil {
			stats.Failed++
			f.l.Warn("could not send batch", log.ErrorField(err), log.Int("lap", lap))
		} else {
			stats.Frames += len(batch)
		}
		batch = make([]model.RawSample, 0, f.batchSize)
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return stats, err
		}

		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			send()
			return stats, nil
		}
		if err != nil {
			send()
			return stats, err
		}
		id := frame.Sample.PacketID
		if id != 0 && id == lastID {
			stats.Skipped++
			continue
		}
		lastID = id
		if started && frame.Lap != lap {
			send()
		}
		started = true
		lap = frame.Lap
		batch = append(batch, frame.Sample)
		if len(batch) >= f.batchSize {
			send()
		}
	}
}
