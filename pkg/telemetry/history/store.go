// Package history holds the telemetry samples of the running session.
//
// The Store is owned by a single goroutine. Writers send their changes to the
// owner, readers get immutable snapshots or subscribe to change notifications.
package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/utils/broadcast"
)

// CurrentLap may be passed to AppendBatch if the sender has no lap information.
// The batch is tagged with the lap of the previous batch.
const CurrentLap = -1

var ErrClosed = errors.New("history store closed")

type (
	Option func(*Store)

	// Snapshot is an immutable view of the store.
	// Samples is shared with the store and must not be modified.
	Snapshot struct {
		Version    uint64
		Samples    []model.Sample
		CurrentLap int
		Connected  bool
		Latest     *model.Sample // last appended sample, nil if empty
		Evicted    int           // number of samples dropped by retention
	}

	appendReq struct {
		records []model.RawSample
		lap     int
		done    chan struct{}
	}

	Store struct {
		ctx       context.Context
		cancel    context.CancelFunc
		closeOnce sync.Once
		done      chan struct{}
		appendCh  chan appendReq
		statusCh  chan bool
		snapCh    chan chan Snapshot
		notifyCh  chan Snapshot
		bcast     broadcast.BroadcastServer[Snapshot]
		retention int
		logger    *log.Logger

		// owned by run()
		state Snapshot

		numSamples atomic.Int64
		lap        atomic.Int64
	}
)

// WithRetention limits the number of samples kept in the store.
// The oldest samples are dropped first. 0 keeps all samples.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func New(opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		appendCh: make(chan appendReq),
		statusCh: make(chan bool),
		snapCh:   make(chan chan Snapshot),
		notifyCh: make(chan Snapshot, 16),
		logger:   log.Default().Named("history"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bcast = broadcast.NewBroadcastServer[Snapshot]("history", s.notifyCh,
		broadcast.WithBuffer[Snapshot](4))
	s.setupMetrics()
	go s.run()
	return s
}

// AppendBatch tags all records with lap and appends them in order.
// The call returns once the whole batch is applied. Empty batches are ignored.
func (s *Store) AppendBatch(records []model.RawSample, lap int) error {
	if len(records) == 0 {
		if s.ctx.Err() != nil {
			return ErrClosed
		}
		return nil
	}
	req := appendReq{records: records, lap: lap, done: make(chan struct{})}
	select {
	case s.appendCh <- req:
	case <-s.ctx.Done():
		return ErrClosed
	}
	<-req.done
	return nil
}

// SetConnectionStatus records the state of the inbound stream
func (s *Store) SetConnectionStatus(connected bool) {
	select {
	case s.statusCh <- connected:
	case <-s.ctx.Done():
	}
}

// Snapshot returns the current state. After Close an empty snapshot is returned.
func (s *Store) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case s.snapCh <- reply:
		return <-reply
	case <-s.ctx.Done():
		return Snapshot{}
	}
}

// Subscribe returns a channel which receives a snapshot after each change.
// Slow subscribers may miss intermediate snapshots.
func (s *Store) Subscribe() <-chan Snapshot {
	return s.bcast.Subscribe()
}

func (s *Store) CancelSubscription(ch <-chan Snapshot) {
	s.bcast.CancelSubscription(ch)
}

// Close discards the buffered samples and closes all subscriptions
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.bcast.Close()
	})
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("history store closed",
				log.Uint64("version", s.state.Version),
				log.Int("samples", len(s.state.Samples)))
			s.state = Snapshot{}
			return
		case req := <-s.appendCh:
			s.apply(req)
			close(req.done)
			s.publish()
		case connected := <-s.statusCh:
			if connected == s.state.Connected {
				continue
			}
			s.state.Connected = connected
			s.state.Version++
			s.publish()
		case reply := <-s.snapCh:
			reply <- s.current()
		}
	}
}

func (s *Store) apply(req appendReq) {
	lap := req.lap
	if lap < 0 {
		lap = s.state.CurrentLap
	}
	samples := s.state.Samples
	for i := range req.records {
		samples = append(samples, model.NewSample(&req.records[i], lap))
	}
	if s.retention > 0 && len(samples) > s.retention {
		drop := len(samples) - s.retention
		// reslicing keeps entries visible to earlier snapshots untouched
		samples = samples[drop:]
		s.state.Evicted += drop
	}
	s.state.Samples = samples
	s.state.CurrentLap = lap
	s.state.Latest = &samples[len(samples)-1]
	s.state.Version++
	s.numSamples.Store(int64(len(samples)))
	s.lap.Store(int64(lap))
}

// current returns a copy of the state whose Samples cannot be extended in place
func (s *Store) current() Snapshot {
	ret := s.state
	n := len(ret.Samples)
	ret.Samples = ret.Samples[:n:n]
	return ret
}

func (s *Store) publish() {
	select {
	case s.notifyCh <- s.current():
	default:
		s.logger.Debug("notification skipped", log.Uint64("version", s.state.Version))
	}
}

func (s *Store) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("seq.history")
	if _, err := meter.Int64ObservableGauge("seq.history.samples",
		metric.WithDescription("Number of samples in the history store"),
		metric.WithUnit("{count}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.numSamples.Load())
			return nil
		})); err != nil {
		s.logger.Error("failed to register metric", log.ErrorField(err))
	}
	if _, err := meter.Int64ObservableGauge("seq.history.lap",
		metric.WithDescription("Current lap of the history store"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.lap.Load())
			return nil
		})); err != nil {
		s.logger.Error("failed to register metric", log.ErrorField(err))
	}
}
