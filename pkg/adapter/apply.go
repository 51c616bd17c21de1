package adapter

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/sequential/log"
)

// Applier decodes messages and appends them to a sink.
// Messages which cannot be decoded are logged and dropped.
type (
	Applier struct {
		sink         Sink
		l            *log.Logger
		source       string
		printMessage bool
		messages     metric.Int64Counter
		records      metric.Int64Counter
		dropped      metric.Int64Counter
	}
	ApplierOption func(*Applier)
)

// WithPrintMessage logs the raw payload of each message on debug level
func WithPrintMessage(b bool) ApplierOption {
	return func(a *Applier) {
		a.printMessage = b
	}
}

//nolint:whitespace // can't make both editor and linter happy
func NewApplier(
	sink Sink, source string, l *log.Logger, opts ...ApplierOption,
) *Applier {
	meter := otel.GetMeterProvider().Meter("seq.adapter")
	ret := &Applier{sink: sink, l: l, source: source}
	for _, opt := range opts {
		opt(ret)
	}
	var err error
	if ret.messages, err = meter.Int64Counter("seq.adapter.messages",
		metric.WithDescription("Number of received messages"),
		metric.WithUnit("{count}")); err != nil {
		l.Warn("could not create metric", log.ErrorField(err))
	}
	if ret.records, err = meter.Int64Counter("seq.adapter.records",
		metric.WithDescription("Number of appended records"),
		metric.WithUnit("{count}")); err != nil {
		l.Warn("could not create metric", log.ErrorField(err))
	}
	if ret.dropped, err = meter.Int64Counter("seq.adapter.dropped",
		metric.WithDescription("Number of dropped records or messages"),
		metric.WithUnit("{count}")); err != nil {
		l.Warn("could not create metric", log.ErrorField(err))
	}
	return ret
}

// Apply decodes data and appends the batch to the sink.
// The error is returned for information only, the stream should continue.
func (a *Applier) Apply(ctx context.Context, data []byte) error {
	attrs := metric.WithAttributes(attribute.String("source", a.source))
	a.count(ctx, a.messages, 1, attrs)
	if a.printMessage {
		a.l.Debug("message", log.ByteString("payload", data))
	}
	b, err := Decode(data)
	if err != nil {
		a.l.Warn("dropping message", log.ErrorField(err), log.Int("size", len(data)))
		a.count(ctx, a.dropped, 1, attrs)
		return err
	}
	if b.Dropped > 0 {
		a.l.Warn("dropped invalid records",
			log.Int("dropped", b.Dropped), log.Int("valid", len(b.Records)))
		a.count(ctx, a.dropped, int64(b.Dropped), attrs)
	}
	if err := a.sink.AppendBatch(b.Records, b.Lap); err != nil {
		return err
	}
	a.count(ctx, a.records, int64(len(b.Records)), attrs)
	a.l.Debug("batch applied",
		log.String("session", b.SessionID),
		log.Int("lap", b.Lap),
		log.Int("records", len(b.Records)))
	return nil
}

// Apply is a convenience for one-off messages
func Apply(sink Sink, data []byte) error {
	return NewApplier(sink, "direct", log.Default().Named("adapter")).
		Apply(context.Background(), data)
}

//nolint:whitespace // can't make both editor and linter happy
func (a *Applier) count(
	ctx context.Context, c metric.Int64Counter, n int64, opts ...metric.AddOption,
) {
	if c != nil {
		c.Add(ctx, n, opts...)
	}
}
