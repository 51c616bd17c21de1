package relay

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/sequential/pkg/adapter"
	"github.com/mpapenbr/sequential/pkg/model"
)

// NatsPublisher publishes payloads as json envelopes on telemetry.<session>
type NatsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(conn *nats.Conn) *NatsPublisher {
	return &NatsPublisher{conn: conn}
}

func (n *NatsPublisher) Publish(p *model.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return n.conn.Publish(adapter.NatsSubject(p.SessionID), data)
}
