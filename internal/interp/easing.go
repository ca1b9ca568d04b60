// Package interp evaluates keyframed property animation.
// Every function here is pure: callers pass the keyframes and a query time and
// receive a value, nothing is cached between calls.
package interp

import (
	"fmt"
	"math"
	"strings"
)

// Easing selects the curve used between two keyframes. The curve of the
// earlier keyframe of a pair governs the segment that follows it.
type Easing string

const (
	Linear    Easing = "linear"
	EaseIn    Easing = "ease-in"
	EaseOut   Easing = "ease-out"
	EaseInOut Easing = "ease-in-out"
	Hold      Easing = "hold"
)

// Easings lists every supported easing in display order.
var Easings = []Easing{Linear, EaseIn, EaseOut, EaseInOut, Hold}

// ParseEasing accepts the wire names above, case-insensitively. An empty
// string maps to Linear.
func ParseEasing(s string) (Easing, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Linear, nil
	}
	e := Easing(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown easing %q", s)
	}
	return e, nil
}

func (e Easing) Valid() bool {
	switch e {
	case Linear, EaseIn, EaseOut, EaseInOut, Hold:
		return true
	}
	return false
}

// Apply maps a linear progress in [0,1] onto the eased progress.
func (e Easing) Apply(p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	switch e {
	case EaseIn:
		return p * p
	case EaseOut:
		return 1 - (1-p)*(1-p)
	case EaseInOut:
		if p < 0.5 {
			return 2 * p * p
		}
		return 1 - math.Pow(-2*p+2, 2)/2
	case Hold:
		if p >= 1 {
			return 1
		}
		return 0
	default:
		return p
	}
}
