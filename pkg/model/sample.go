package model

// RawSample is a single telemetry frame as sent by the capture client.
// The attribute names match the physics page of the simulator's shared memory.
type RawSample struct {
	PacketID   int32   `json:"PacketId,omitempty"`
	SpeedKmh   float64 `json:"SpeedKmh"`
	Rpms       float64 `json:"Rpms"`
	Gas        float64 `json:"Gas"`
	Brake      float64 `json:"Brake"`
	SteerAngle float64 `json:"SteerAngle"`
	Gear       int     `json:"Gear"`
	Fuel       float64 `json:"Fuel,omitempty"`
}

// Sample is a telemetry frame tagged with the lap it was received in.
// Samples are immutable once they are part of the history.
type Sample struct {
	SpeedKmh   float64 `json:"speedKmh"`
	Rpm        float64 `json:"rpm"`
	Gas        float64 `json:"gas"`
	Brake      float64 `json:"brake"`
	SteerAngle float64 `json:"steerAngle"`
	Gear       int     `json:"gear"`
	Lap        int     `json:"lap"`
}

// Payload is the envelope used between capture client, relay and dashboards
type Payload struct {
	SessionID string      `json:"SessionID"`
	Lap       int         `json:"Lap"`
	Data      []RawSample `json:"Data"`
}

func NewSample(raw *RawSample, lap int) Sample {
	return Sample{
		SpeedKmh:   raw.SpeedKmh,
		Rpm:        raw.Rpms,
		Gas:        raw.Gas,
		Brake:      raw.Brake,
		SteerAngle: raw.SteerAngle,
		Gear:       raw.Gear,
		Lap:        lap,
	}
}

// DisplayGear converts the raw gear value (0: reverse, 1: neutral) to the
// usual notation (-1: reverse, 0: neutral)
func (s *Sample) DisplayGear() int {
	return s.Gear - 1
}
