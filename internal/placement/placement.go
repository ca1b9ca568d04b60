// Package placement computes conflict-free, optionally snapped clip positions
// on a single track. It works on plain spans so the timeline model can feed it
// any subset of a track's clips (typically everything except the moving clip
// and its linked partner).
package placement

import (
	"math"
	"sort"
)

// DefaultSnapThreshold is the snapping distance in seconds. A candidate must
// be strictly closer than this to be taken.
const DefaultSnapThreshold = 0.1

// epsilon absorbs float noise when two intervals merely touch.
const epsilon = 1e-9

// Span is the half-open interval [Start, Start+Duration) of one clip.
type Span struct {
	ID       string
	Start    float64
	Duration float64
}

func (s Span) End() float64 {
	return s.Start + s.Duration
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd float64) bool {
	return aStart < bEnd-epsilon && bStart < aEnd-epsilon
}

// Collides reports whether [start, start+duration) intersects any span.
func Collides(start, duration float64, others []Span) bool {
	end := start + duration
	for _, o := range others {
		if Overlaps(start, end, o.Start, o.End()) {
			return true
		}
	}
	return false
}

// Snap aligns a clip's start or end with the edges of the other clips on the
// track, or its start with zero. Candidates are evaluated in slice order with
// zero last; the first candidate with the smallest distance wins.
func Snap(start, duration float64, others []Span, threshold float64) (float64, bool) {
	end := start + duration
	best := 0.0
	bestDist := math.Inf(1)

	consider := func(delta float64) {
		if d := math.Abs(delta); d < threshold && d < bestDist {
			best = delta
			bestDist = d
		}
	}

	for _, o := range others {
		consider(o.Start - start)
		consider(o.End() - start)
		consider(o.Start - end)
		consider(o.End() - end)
	}
	consider(0 - start)

	if math.IsInf(bestDist, 1) {
		return start, false
	}
	return start + best, true
}

// Resolution is the outcome of overlap resolution. Overlapping is true only in
// the permissive fallback where neither push direction was free.
type Resolution struct {
	Start       float64
	Adjusted    bool
	Overlapping bool
}

// ResolveOverlap finds the first clip (by ascending start) intersecting the
// desired interval and pushes the moving clip to whichever side of it is
// nearer to desired. If that side collides with another clip the opposite side
// is tried; if both collide the desired position is returned unchanged.
func ResolveOverlap(desired, duration float64, others []Span) Resolution {
	return resolve(desired, desired, duration, others)
}

// resolve tests [start, start+duration) for collisions but measures push
// distances against original, the position requested before snapping.
func resolve(start, original, duration float64, others []Span) Resolution {
	sorted := make([]Span, len(others))
	copy(sorted, others)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	end := start + duration
	var hit *Span
	for i := range sorted {
		if Overlaps(start, end, sorted[i].Start, sorted[i].End()) {
			hit = &sorted[i]
			break
		}
	}
	if hit == nil {
		return Resolution{Start: start}
	}

	left := hit.Start - duration
	right := hit.End()

	first, second := left, right
	if math.Abs(right-original) < math.Abs(left-original) {
		first, second = right, left
	}

	for _, candidate := range []float64{first, second} {
		if candidate < 0 {
			continue
		}
		if !Collides(candidate, duration, sorted) {
			return Resolution{Start: candidate, Adjusted: true}
		}
	}

	return Resolution{Start: original, Overlapping: true}
}

// Place runs snapping (when threshold > 0) and then overlap resolution.
func Place(desired, duration float64, others []Span, threshold float64) Resolution {
	if desired < 0 {
		desired = 0
	}
	start := desired
	if threshold > 0 {
		start, _ = Snap(desired, duration, others, threshold)
	}
	res := resolve(start, desired, duration, others)
	if res.Start != desired {
		res.Adjusted = true
	}
	return res
}

// FirstFree returns the index of the first lane in which [start,start+duration)
// is free, or -1 when every lane is occupied.
func FirstFree(lanes [][]Span, start, duration float64) int {
	for i, lane := range lanes {
		if !Collides(start, duration, lane) {
			return i
		}
	}
	return -1
}
