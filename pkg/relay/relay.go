// Package relay accepts telemetry batches from capture clients and
// distributes them to dashboards, nats subscribers and the archive.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/mpapenbr/sequential/log"
	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/utils/broadcast"
)

const (
	DefaultSessionID      = "default_session"
	DefaultFlushThreshold = 1000
	DefaultQueueSize      = 100
)

var ErrStopped = errors.New("relay stopped")

type (
	// Publisher forwards payloads to another transport (e.g. nats)
	Publisher interface {
		Publish(p *model.Payload) error
	}
	// Archiver stores flushed frames of a session
	Archiver interface {
		Store(ctx context.Context, sessionID string, data []model.RawSample) error
	}

	Option func(*Relay)

	Relay struct {
		ctx            context.Context
		cancel         context.CancelFunc
		l              *log.Logger
		ingest         chan *model.Payload
		bcstSource     chan *model.Payload
		bcst           broadcast.BroadcastServer[*model.Payload]
		publisher      Publisher
		archiver       Archiver
		archiveQueue   chan *model.Payload
		flushThreshold int
		queueSize      int
		wg             sync.WaitGroup
		stopOnce       sync.Once
		lapMu          sync.Mutex
		laps           map[string]int // last known lap per session

		// owned by run()
		buffer    []model.RawSample
		sessionID string
	}
)

func WithLogger(l *log.Logger) Option {
	return func(r *Relay) {
		r.l = l
	}
}

func WithPublisher(p Publisher) Option {
	return func(r *Relay) {
		r.publisher = p
	}
}

func WithArchiver(a Archiver) Option {
	return func(r *Relay) {
		r.archiver = a
	}
}

// WithFlushThreshold sets the number of buffered frames that triggers an archive flush
func WithFlushThreshold(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.flushThreshold = n
		}
	}
}

// WithQueueSize sets the number of pending archive flushes.
// Flushes exceeding the queue are dropped.
func WithQueueSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

func New(ctx context.Context, opts ...Option) *Relay {
	ctx, cancel := context.WithCancel(ctx)
	r := &Relay{
		ctx:            ctx,
		cancel:         cancel,
		l:              log.Default().Named("relay"),
		ingest:         make(chan *model.Payload),
		bcstSource:     make(chan *model.Payload),
		flushThreshold: DefaultFlushThreshold,
		queueSize:      DefaultQueueSize,
		laps:           make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.archiveQueue = make(chan *model.Payload, r.queueSize)
	r.bcst = broadcast.NewBroadcastServer[*model.Payload]("relay", r.bcstSource,
		broadcast.WithBuffer[*model.Payload](16))

	r.wg.Add(2)
	go r.run()
	go r.archiveWorker()
	return r
}

// Ingest hands a payload over to the relay. Payloads are processed in call order.
func (r *Relay) Ingest(p *model.Payload) error {
	select {
	case r.ingest <- p:
		return nil
	case <-r.ctx.Done():
		return ErrStopped
	}
}

// Subscribe returns a channel receiving all ingested payloads
func (r *Relay) Subscribe() <-chan *model.Payload {
	return r.bcst.Subscribe()
}

func (r *Relay) CancelSubscription(ch <-chan *model.Payload) {
	r.bcst.CancelSubscription(ch)
}

// Stop flushes the pending frames to the archive and stops the relay
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.wg.Wait()
		r.bcst.Close()
	})
}

// resolveLap returns lap if known (>= 0), otherwise the last lap of the session
func (r *Relay) resolveLap(sessionID string, lap int) int {
	r.lapMu.Lock()
	defer r.lapMu.Unlock()
	if lap < 0 {
		return r.laps[sessionID]
	}
	r.laps[sessionID] = lap
	return lap
}

func (r *Relay) run() {
	defer r.wg.Done()
	defer close(r.archiveQueue)
	for {
		select {
		case <-r.ctx.Done():
			if len(r.buffer) > 0 {
				r.flush()
			}
			return
		case p := <-r.ingest:
			r.process(p)
		}
	}
}

func (r *Relay) process(p *model.Payload) {
	select {
	case r.bcstSource <- p:
	case <-r.ctx.Done():
		return
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(p); err != nil {
			r.l.Warn("could not publish payload",
				log.String("session", p.SessionID), log.ErrorField(err))
		}
	}
	if r.archiver == nil {
		return
	}
	if r.sessionID != "" && r.sessionID != p.SessionID && len(r.buffer) > 0 {
		r.flush()
	}
	r.sessionID = p.SessionID
	r.buffer = append(r.buffer, p.Data...)
	if len(r.buffer) >= r.flushThreshold {
		r.flush()
	}
}

// flush hands the buffer over to the archive worker. If the queue is full,
// the frames are dropped.
func (r *Relay) flush() {
	r.l.Debug("flushing buffer",
		log.Int("frames", len(r.buffer)), log.String("session", r.sessionID))
	p := &model.Payload{SessionID: r.sessionID, Data: r.buffer}
	r.buffer = nil
	select {
	case r.archiveQueue <- p:
	default:
		r.l.Warn("archive queue full, dropping batch",
			log.String("session", p.SessionID), log.Int("frames", len(p.Data)))
	}
}

func (r *Relay) archiveWorker() {
	defer r.wg.Done()
	for p := range r.archiveQueue {
		// the relay context may already be done while draining the queue
		if err := r.archiver.Store(context.WithoutCancel(r.ctx), p.SessionID, p.Data); err != nil {
			r.l.Error("could not archive batch",
				log.String("session", p.SessionID),
				log.Int("frames", len(p.Data)),
				log.ErrorField(err))
		}
	}
}
