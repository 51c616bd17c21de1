// Package adapter connects inbound telemetry streams to a history store.
package adapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mpapenbr/sequential/pkg/model"
	"github.com/mpapenbr/sequential/pkg/telemetry/history"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrMissingData = errors.New("message has no Data")
)

// Sink receives decoded batches (implemented by history.Store)
type Sink interface {
	AppendBatch(records []model.RawSample, lap int) error
	SetConnectionStatus(connected bool)
}

// Batch is a decoded inbound message.
type Batch struct {
	SessionID string
	Lap       int // history.CurrentLap if the message carries no lap
	Records   []model.RawSample
	Dropped   int // number of invalid records removed from the message
}

type (
	envelope struct {
		SessionID string             `json:"SessionID"`
		Lap       *int               `json:"Lap"`
		Data      *[]json.RawMessage `json:"Data"`
	}
	// all channel values are required, the pointers detect missing attributes
	record struct {
		PacketID   int32    `json:"PacketId"`
		SpeedKmh   *float64 `json:"SpeedKmh"`
		Rpms       *float64 `json:"Rpms"`
		Gas        *float64 `json:"Gas"`
		Brake      *float64 `json:"Brake"`
		SteerAngle *float64 `json:"SteerAngle"`
		Gear       *float64 `json:"Gear"`
		Fuel       float64  `json:"Fuel"`
	}
)

// Decode accepts either a bare array of records or an envelope
// {SessionID, Lap, Data}. Invalid records are dropped and counted.
func Decode(data []byte) (Batch, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Batch{}, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	var items []json.RawMessage
	ret := Batch{Lap: history.CurrentLap}
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Batch{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Batch{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if env.Data == nil {
			return Batch{}, ErrMissingData
		}
		ret.SessionID = env.SessionID
		if env.Lap != nil && *env.Lap >= 0 {
			ret.Lap = *env.Lap
		}
		items = *env.Data
	default:
		return Batch{}, fmt.Errorf("%w: unexpected token %q", ErrMalformed, trimmed[0])
	}

	ret.Records = make([]model.RawSample, 0, len(items))
	for _, item := range items {
		if s, err := decodeRecord(item); err == nil {
			ret.Records = append(ret.Records, s)
		} else {
			ret.Dropped++
		}
	}
	return ret, nil
}

func decodeRecord(data json.RawMessage) (model.RawSample, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return model.RawSample{}, err
	}
	values := []*float64{r.SpeedKmh, r.Rpms, r.Gas, r.Brake, r.SteerAngle, r.Gear}
	for _, v := range values {
		if v == nil {
			return model.RawSample{}, errors.New("missing attribute")
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return model.RawSample{}, errors.New("non-finite value")
		}
	}
	if *r.Gear != math.Trunc(*r.Gear) {
		return model.RawSample{}, errors.New("gear is not an integer")
	}
	return model.RawSample{
		PacketID:   r.PacketID,
		SpeedKmh:   *r.SpeedKmh,
		Rpms:       *r.Rpms,
		Gas:        *r.Gas,
		Brake:      *r.Brake,
		SteerAngle: *r.SteerAngle,
		Gear:       int(*r.Gear),
		Fuel:       r.Fuel,
	}, nil
}
