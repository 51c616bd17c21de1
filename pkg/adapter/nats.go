package adapter

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/sequential/log"
)

// NatsSubject returns the subject telemetry of session is published on
func NatsSubject(session string) string {
	return fmt.Sprintf("telemetry.%s", session)
}

// NatsConnOptions maps the lifecycle of a nats connection to the
// connection status of sink.
func NatsConnOptions(sink Sink, l *log.Logger) []nats.Option {
	return []nats.Option{
		nats.Name("seq-dashboard"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warn("nats disconnected", log.ErrorField(err))
			sink.SetConnectionStatus(false)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info("nats reconnected", log.String("url", c.ConnectedUrlRedacted()))
			sink.SetConnectionStatus(true)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			l.Info("nats connection closed")
			sink.SetConnectionStatus(false)
		}),
	}
}

// NatsSource reads telemetry messages of one session from nats
type NatsSource struct {
	conn        *nats.Conn
	session     string
	sink        Sink
	l           *log.Logger
	applierOpts []ApplierOption
}

//nolint:whitespace // can't make both editor and linter happy
func NewNatsSource(
	conn *nats.Conn, session string, sink Sink, l *log.Logger, opts ...ApplierOption,
) *NatsSource {
	return &NatsSource{conn: conn, session: session, sink: sink, l: l, applierOpts: opts}
}

// Run subscribes to the session subject until ctx is done.
// Messages of a subscription are delivered sequentially, so the order is kept.
func (n *NatsSource) Run(ctx context.Context) error {
	applier := NewApplier(n.sink, "nats", n.l, n.applierOpts...)
	subj := NatsSubject(n.session)
	sub, err := n.conn.Subscribe(subj, func(msg *nats.Msg) {
		//nolint:errcheck // logged by applier
		applier.Apply(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subj, err)
	}
	n.l.Info("subscribed", log.String("subject", subj))
	n.sink.SetConnectionStatus(n.conn.IsConnected())

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		n.l.Debug("error unsubscribing", log.String("sub", subj), log.ErrorField(err))
	}
	n.sink.SetConnectionStatus(false)
	return nil
}
