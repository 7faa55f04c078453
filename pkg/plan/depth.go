package plan

import (
	"fmt"
	"time"
)

// Depth is the client-selected tier controlling how much planning and
// retrieval work is performed per request.
type Depth string

const (
	DepthNone          Depth = "none"
	DepthFast          Depth = "fast"
	DepthBalanced      Depth = "balanced"
	DepthComprehensive Depth = "comprehensive"
)

// ParseDepth maps a request string onto the closed Depth enum. An empty
// string defaults to balanced.
func ParseDepth(s string) (Depth, error) {
	switch Depth(s) {
	case DepthNone, DepthFast, DepthBalanced, DepthComprehensive:
		return Depth(s), nil
	case "":
		return DepthBalanced, nil
	}
	return "", fmt.Errorf("unknown depth: %q", s)
}

// Format selects the output shape of the synthesized context payload.
type Format string

const (
	FormatFlat    Format = "flat"
	FormatLayered Format = "layered"
)

// ParseFormat maps a request string onto the Format enum, defaulting to flat.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatFlat, FormatLayered:
		return Format(s), nil
	case "":
		return FormatFlat, nil
	}
	return "", fmt.Errorf("unknown format: %q", s)
}

// Profile is the pipeline configuration one Depth maps to. Every behavioral
// difference between tiers lives in this table rather than in scattered
// string checks.
type Profile struct {
	UseModel        bool
	PlanTimeout     time.Duration
	RetrieveTimeout time.Duration
	QueryTimeout    time.Duration
	WallClock       time.Duration
	MaxFanOut       int
	MaxItems        int
}

var profiles = map[Depth]Profile{
	DepthNone: {},
	DepthFast: {
		UseModel:        false,
		PlanTimeout:     2 * time.Second,
		RetrieveTimeout: 3 * time.Second,
		QueryTimeout:    2 * time.Second,
		WallClock:       5 * time.Second,
		MaxFanOut:       3,
		MaxItems:        10,
	},
	DepthBalanced: {
		UseModel:        true,
		PlanTimeout:     3 * time.Second,
		RetrieveTimeout: 5 * time.Second,
		QueryTimeout:    3 * time.Second,
		WallClock:       10 * time.Second,
		MaxFanOut:       4,
		MaxItems:        20,
	},
	DepthComprehensive: {
		UseModel:        true,
		PlanTimeout:     5 * time.Second,
		RetrieveTimeout: 8 * time.Second,
		QueryTimeout:    5 * time.Second,
		WallClock:       15 * time.Second,
		MaxFanOut:       5,
		MaxItems:        30,
	},
}

// ProfileFor returns the pipeline configuration for a depth tier.
func ProfileFor(d Depth) Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	return profiles[DepthBalanced]
}
