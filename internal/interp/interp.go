package interp

import (
	"sort"
	"strings"
)

// Keyframe is a timestamped value for one animatable property of a clip.
// Time is clip-local seconds.
type Keyframe struct {
	ID       string  `json:"id"`
	ClipID   string  `json:"clip_id"`
	Time     float64 `json:"time"`
	Property string  `json:"property"`
	Value    float64 `json:"value"`
	Easing   Easing  `json:"easing"`
}

const effectPrefix = "effect."

// EffectPath builds the property path of an effect parameter.
func EffectPath(effectID, param string) string {
	return effectPrefix + effectID + "." + param
}

// ParseEffectPath splits "effect.<effectID>.<param>". Parameter names may
// themselves contain dots.
func ParseEffectPath(path string) (effectID, param string, ok bool) {
	if !strings.HasPrefix(path, effectPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, effectPrefix)
	idx := strings.Index(rest, ".")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// Sort orders keyframes by property, then time. The order is stable so
// callers that append then sort keep insertion order for equal keys.
func Sort(kfs []Keyframe) {
	sort.SliceStable(kfs, func(i, j int) bool {
		if kfs[i].Property != kfs[j].Property {
			return kfs[i].Property < kfs[j].Property
		}
		return kfs[i].Time < kfs[j].Time
	})
}

// ForProperty returns the time-sorted keyframes of one property.
func ForProperty(kfs []Keyframe, property string) []Keyframe {
	var out []Keyframe
	for _, k := range kfs {
		if k.Property == property {
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Properties returns the distinct animated property paths in sorted order.
func Properties(kfs []Keyframe) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range kfs {
		if !seen[k.Property] {
			seen[k.Property] = true
			out = append(out, k.Property)
		}
	}
	sort.Strings(out)
	return out
}

// Sample evaluates a time-sorted keyframe list of a single property at t.
// Outside the keyframe span the nearest endpoint is held. ok is false when
// the list is empty.
func Sample(track []Keyframe, t float64) (value float64, ok bool) {
	n := len(track)
	if n == 0 {
		return 0, false
	}
	if t <= track[0].Time {
		return track[0].Value, true
	}
	if t >= track[n-1].Time {
		return track[n-1].Value, true
	}

	// first index whose time is strictly after t
	i := sort.Search(n, func(i int) bool { return track[i].Time > t })
	a, b := track[i-1], track[i]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value, true
	}
	p := a.Easing.Apply((t - a.Time) / span)
	return a.Value + (b.Value-a.Value)*p, true
}

// Value evaluates property at t over a mixed keyframe list.
func Value(kfs []Keyframe, property string, t float64) (float64, bool) {
	return Sample(ForProperty(kfs, property), t)
}

// Target receives interpolated values. SetNumber reports false when the path
// does not resolve to a numeric slot, for example an effect that was removed.
type Target interface {
	SetNumber(path string, v float64) bool
}

// Apply writes the value of every animated property at t into target and
// returns how many were applied. Paths the target rejects are skipped.
func Apply(kfs []Keyframe, t float64, target Target) int {
	applied := 0
	for _, prop := range Properties(kfs) {
		v, ok := Value(kfs, prop, t)
		if !ok {
			continue
		}
		if target.SetNumber(prop, v) {
			applied++
		}
	}
	return applied
}
