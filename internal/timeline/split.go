package timeline

import (
	"math"

	"github.com/heimdex/heimdex-timeline/internal/interp"
)

// SplitClip cuts a clip at timeline time at into two clips that together
// cover the original window. A linked partner that spans at is split too and
// the halves are linked pairwise. The original clip IDs cease to exist.
func (t *Timeline) SplitClip(id string, at float64) (first, second *Clip, err error) {
	err = t.edit(func() (Event, error) {
		c := t.clipLocked(id)
		if c == nil {
			return Event{}, notFound("clip", id)
		}
		if at <= c.StartTime+keyframeEpsilon || at >= c.End()-keyframeEpsilon {
			return Event{}, reject("split clip", "time %.3f is not inside clip %s", at, id)
		}

		partner := t.clipLocked(c.LinkedClipID)
		a, b := t.splitLocked(c, at)
		ids := []string{a.ID, b.ID}

		if partner != nil {
			if at > partner.StartTime+keyframeEpsilon && at < partner.End()-keyframeEpsilon {
				pa, pb := t.splitLocked(partner, at)
				a.LinkedClipID, pa.LinkedClipID = pa.ID, a.ID
				b.LinkedClipID, pb.LinkedClipID = pb.ID, b.ID
				ids = append(ids, pa.ID, pb.ID)
			} else {
				owner := b
				if partner.StartTime < at {
					owner = a
				}
				owner.LinkedClipID = partner.ID
				partner.LinkedClipID = owner.ID
			}
		}

		first, second = a.Clone(), b.Clone()
		return Event{Kind: EventClipSplit, ClipIDs: ids, TrackID: c.TrackID, Visual: true}, nil
	})
	return first, second, err
}

// splitLocked replaces c with two new clips in place and returns them with
// links cleared.
func (t *Timeline) splitLocked(c *Clip, at float64) (*Clip, *Clip) {
	local := at - c.StartTime

	a := c.Clone()
	a.ID = NewID()
	a.Duration = local
	a.LinkedClipID = ""

	b := c.Clone()
	b.ID = NewID()
	b.StartTime = at
	b.Duration = c.Duration - local
	b.LinkedClipID = ""

	if c.Reversed {
		a.InPoint, a.OutPoint = c.OutPoint-local, c.OutPoint
		b.InPoint, b.OutPoint = c.InPoint, c.OutPoint-local
	} else {
		a.InPoint, a.OutPoint = c.InPoint, c.InPoint+local
		b.InPoint, b.OutPoint = c.InPoint+local, c.OutPoint
	}

	ka, kb := partitionKeyframes(t.keyframes[c.ID], local, a.ID, b.ID)
	if len(ka) > 0 {
		t.keyframes[a.ID] = ka
	}
	if len(kb) > 0 {
		t.keyframes[b.ID] = kb
	}
	for k, m := range t.modes {
		if k.clipID == c.ID {
			t.modes[propKey{a.ID, k.property}] = m
			t.modes[propKey{b.ID, k.property}] = m
		}
	}
	for k, on := range t.recording {
		if k.clipID == c.ID {
			t.recording[propKey{a.ID, k.property}] = on
			t.recording[propKey{b.ID, k.property}] = on
		}
	}
	t.forgetClipLocked(c.ID)
	for _, p := range []*Clip{a, b} {
		t.settleModesLocked(p.ID)
	}

	i := t.clipIndexLocked(c.ID)
	t.clips = append(t.clips[:i+1], t.clips[i:]...)
	t.clips[i] = a
	t.clips[i+1] = b
	return a, b
}

// settleModesLocked re-derives Keyframed modes after keyframes of a clip were
// redistributed.
func (t *Timeline) settleModesLocked(clipID string) {
	for k := range t.modes {
		if k.clipID == clipID {
			t.settleModeLocked(k)
		}
	}
}

// partitionKeyframes divides keyframes at clip-local time local. Each
// animated property gets a keyframe holding its interpolated value at the cut
// on both sides, so neither half changes how it looks. Keyframes of the second
// half are rebased to start at zero.
func partitionKeyframes(kfs []Keyframe, local float64, aID, bID string) (a, b []Keyframe) {
	for _, prop := range interp.Properties(kfs) {
		track := interp.ForProperty(kfs, prop)
		boundary, _ := interp.Sample(track, local)
		easing := interp.Linear
		for _, k := range track {
			if k.Time <= local+keyframeEpsilon {
				easing = k.Easing
			}
		}

		for _, k := range track {
			switch {
			case k.Time < local-keyframeEpsilon:
				k.ID, k.ClipID = NewID(), aID
				a = append(a, k)
			case k.Time > local+keyframeEpsilon:
				k.ID, k.ClipID = NewID(), bID
				k.Time = math.Max(0, k.Time-local)
				b = append(b, k)
			}
		}
		a = append(a, Keyframe{ID: NewID(), ClipID: aID, Time: local, Property: prop, Value: boundary, Easing: easing})
		b = append(b, Keyframe{ID: NewID(), ClipID: bID, Time: 0, Property: prop, Value: boundary, Easing: easing})
	}
	interp.Sort(a)
	interp.Sort(b)
	return a, b
}
