package model

import (
	"errors"
	"fmt"
)

// Channel identifies a numeric telemetry dimension.
// The value matches the attribute name of RawSample.
type Channel string

const (
	ChannelSpeed    Channel = "SpeedKmh"
	ChannelRpm      Channel = "Rpms"
	ChannelThrottle Channel = "Gas"
	ChannelBrake    Channel = "Brake"
	ChannelSteering Channel = "SteerAngle"
	ChannelGear     Channel = "Gear"
)

// Scale describes how the vertical bounds of a channel are determined
type Scale int

const (
	ScaleAuto  Scale = iota // bounds are computed from the data
	ScaleFixed              // bounds are a known physical range
)

var ErrUnknownChannel = errors.New("unknown channel")

type channelInfo struct {
	label string
	scale Scale
	lower float64 // lower and upper are only used for ScaleFixed
	upper float64
	value func(s *Sample) float64
}

var channels = map[Channel]channelInfo{
	ChannelSpeed: {
		label: "Speed", scale: ScaleAuto,
		value: func(s *Sample) float64 { return s.SpeedKmh },
	},
	ChannelRpm: {
		label: "RPM", scale: ScaleAuto,
		value: func(s *Sample) float64 { return s.Rpm },
	},
	ChannelThrottle: {
		label: "Throttle", scale: ScaleFixed, lower: 0, upper: 1,
		value: func(s *Sample) float64 { return s.Gas },
	},
	ChannelBrake: {
		label: "Brake", scale: ScaleFixed, lower: 0, upper: 1,
		value: func(s *Sample) float64 { return s.Brake },
	},
	ChannelSteering: {
		label: "Steering", scale: ScaleFixed, lower: -1, upper: 1,
		value: func(s *Sample) float64 { return s.SteerAngle },
	},
	ChannelGear: {
		label: "Gear", scale: ScaleAuto,
		value: func(s *Sample) float64 { return float64(s.Gear) },
	},
}

// Channels returns all known channels in display order
func Channels() []Channel {
	return []Channel{
		ChannelSpeed, ChannelRpm, ChannelThrottle,
		ChannelBrake, ChannelSteering, ChannelGear,
	}
}

func ParseChannel(key string) (Channel, error) {
	c := Channel(key)
	if _, ok := channels[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, key)
	}
	return c, nil
}

// Value returns the channel reading of s. Unknown channels yield 0.
func (c Channel) Value(s *Sample) float64 {
	if info, ok := channels[c]; ok {
		return info.value(s)
	}
	return 0
}

func (c Channel) Label() string {
	if info, ok := channels[c]; ok {
		return info.label
	}
	return string(c)
}

func (c Channel) Scale() Scale {
	return channels[c].scale
}

// FixedRange returns the canonical bounds of fixed-scale channels.
// ok is false for auto-scale channels.
func (c Channel) FixedRange() (minVal, maxVal float64, ok bool) {
	info, found := channels[c]
	if !found || info.scale != ScaleFixed {
		return 0, 0, false
	}
	return info.lower, info.upper, true
}
