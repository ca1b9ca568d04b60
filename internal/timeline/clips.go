package timeline

import (
	"math"
	"sort"

	"github.com/heimdex/heimdex-timeline/internal/interp"
	"github.com/heimdex/heimdex-timeline/internal/logging"
	"github.com/heimdex/heimdex-timeline/internal/placement"
)

func sortByStart(clips []*Clip) {
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].StartTime < clips[j].StartTime })
}

// AddClip places a clip for src on trackID at start, resolving overlaps
// without snapping. Video sources with audio also get a linked audio clip on
// the first free audio track. The returned clip is the primary one.
func (t *Timeline) AddClip(trackID string, src Source, start float64) (*Clip, error) {
	var out *Clip
	err := t.edit(func() (Event, error) {
		tr := t.trackLocked(trackID)
		if tr == nil {
			return Event{}, notFound("track", trackID)
		}
		if !src.Kind.Valid() {
			return Event{}, reject("add clip", "unknown source kind %q", src.Kind)
		}
		if src.Kind.TrackKind() != tr.Kind {
			return Event{}, reject("add clip", "%s source cannot go on a %s track", src.Kind, tr.Kind)
		}

		duration := src.Duration
		natural := src.Duration
		if src.Kind == SourceImage {
			natural = 0
			if duration <= 0 {
				duration = t.imageDuration
			}
		}
		if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
			return Event{}, reject("add clip", "source has no usable duration")
		}

		res := placement.Place(start, duration, t.spansLocked(trackID), 0)
		c := t.newClipLocked(tr.ID, src, res.Start, duration, natural)
		t.clips = append(t.clips, c)
		ids := []string{c.ID}

		if src.Kind == SourceVideo && !src.NoAudio {
			atr, created := t.availableAudioTrackLocked(c.StartTime, c.Duration)
			asrc := src
			asrc.Kind = SourceAudio
			a := t.newClipLocked(atr.ID, asrc, c.StartTime, c.Duration, natural)
			a.LinkedClipID = c.ID
			c.LinkedClipID = a.ID
			t.clips = append(t.clips, a)
			ids = append(ids, a.ID)
			if created {
				t.log().Debug("audio track created for linked clip", "track_id", atr.ID)
			}
		}

		if res.Overlapping {
			logging.WithClipID(t.log(), c.ID).Warn("clip placed overlapping", "track_id", trackID)
		}
		out = c.Clone()
		return Event{Kind: EventClipAdded, ClipIDs: ids, TrackID: trackID, Visual: true}, nil
	})
	return out, err
}

func (t *Timeline) newClipLocked(trackID string, src Source, start, duration, natural float64) *Clip {
	s := src
	name := src.Name
	if name == "" {
		name = string(src.Kind)
	}
	return &Clip{
		ID:             NewID(),
		TrackID:        trackID,
		Name:           name,
		StartTime:      start,
		Duration:       duration,
		InPoint:        0,
		OutPoint:       duration,
		Source:         &s,
		Transform:      DefaultTransform(),
		Effects:        []Effect{},
		Volume:         1,
		SourceDuration: natural,
	}
}

// AddCompositionClip places a clip that plays a child composition. The child
// content is copied into the clip one level deep.
func (t *Timeline) AddCompositionClip(trackID string, content NestedContent, start float64) (*Clip, error) {
	var out *Clip
	err := t.edit(func() (Event, error) {
		tr := t.trackLocked(trackID)
		if tr == nil {
			return Event{}, notFound("track", trackID)
		}
		if tr.Kind != TrackVideo {
			return Event{}, reject("add composition clip", "composition clips go on video tracks")
		}
		if content.Duration <= 0 {
			return Event{}, reject("add composition clip", "composition %q is empty", content.CompositionID)
		}
		if t.cycleCheck != nil {
			if err := t.cycleCheck(content.CompositionID); err != nil {
				return Event{}, err
			}
		}

		res := placement.Place(start, content.Duration, t.spansLocked(trackID), 0)
		c := &Clip{
			ID:             NewID(),
			TrackID:        trackID,
			Name:           content.Name,
			StartTime:      res.Start,
			Duration:       content.Duration,
			OutPoint:       content.Duration,
			Transform:      DefaultTransform(),
			Effects:        []Effect{},
			Volume:         1,
			IsComposition:  true,
			CompositionID:  content.CompositionID,
			SourceDuration: content.Duration,
		}
		fillNested(c, content)
		t.clips = append(t.clips, c)
		out = c.Clone()
		return Event{Kind: EventClipAdded, ClipIDs: []string{c.ID}, TrackID: trackID, Visual: true}, nil
	})
	return out, err
}

func fillNested(c *Clip, content NestedContent) {
	c.NestedTracks = append([]Track(nil), content.Tracks...)
	c.NestedClips = make([]*Clip, len(content.Clips))
	for i, n := range content.Clips {
		nc := n.Clone()
		// one level only
		nc.NestedTracks, nc.NestedClips, nc.NestedKeyframes = nil, nil, nil
		c.NestedClips[i] = nc
	}
	c.NestedKeyframes = make(map[string][]Keyframe, len(content.Keyframes))
	for id, kfs := range content.Keyframes {
		c.NestedKeyframes[id] = append([]Keyframe(nil), kfs...)
	}
}

// RefreshNested reloads the content of every clip playing compositionID.
// Clips whose composition can no longer be loaded keep their old content.
func (t *Timeline) RefreshNested(compositionID string) error {
	return t.edit(func() (Event, error) {
		if t.nested == nil {
			return Event{}, nil
		}
		var ids []string
		var content NestedContent
		loaded := false
		for _, c := range t.clips {
			if !c.IsComposition || c.CompositionID != compositionID {
				continue
			}
			if !loaded {
				var ok bool
				if content, ok = t.nested(compositionID); !ok {
					t.log().Warn("nested composition missing", "composition_id", compositionID)
					return Event{}, nil
				}
				loaded = true
			}
			fillNested(c, content)
			ids = append(ids, c.ID)
		}
		if len(ids) == 0 {
			return Event{}, nil
		}
		return Event{Kind: EventClipUpdated, ClipIDs: ids, Visual: true}, nil
	})
}

// RemoveClip deletes a clip. With withLinked its partner goes too; otherwise
// the partner is unlinked.
func (t *Timeline) RemoveClip(id string, withLinked bool) error {
	return t.edit(func() (Event, error) {
		c := t.clipLocked(id)
		if c == nil {
			return Event{}, notFound("clip", id)
		}
		ids := []string{id}
		if withLinked && c.LinkedClipID != "" {
			if p := t.clipLocked(c.LinkedClipID); p != nil {
				ids = append(ids, p.ID)
			}
		}
		visual := false
		for _, cid := range ids {
			if rc := t.clipLocked(cid); rc != nil && rc.Kind() == TrackVideo {
				visual = true
			}
			t.removeClipLocked(cid)
		}
		return Event{Kind: EventClipRemoved, ClipIDs: ids, TrackID: c.TrackID, Visual: visual}, nil
	})
}

func (t *Timeline) forgetClipLocked(id string) {
	delete(t.keyframes, id)
	for k := range t.modes {
		if k.clipID == id {
			delete(t.modes, k)
		}
	}
	for k := range t.recording {
		if k.clipID == id {
			delete(t.recording, k)
		}
	}
}

func (t *Timeline) removeClipLocked(id string) {
	i := t.clipIndexLocked(id)
	if i < 0 {
		return
	}
	t.clips = append(t.clips[:i], t.clips[i+1:]...)
	t.dropClipStateLocked(id)
}

// dropClipStateLocked forgets keyframes and modes of a clip that is no longer
// on the timeline and unlinks any partner still pointing at it.
func (t *Timeline) dropClipStateLocked(id string) {
	t.forgetClipLocked(id)
	for _, c := range t.clips {
		if c.LinkedClipID == id {
			c.LinkedClipID = ""
		}
	}
}

// MoveOptions tune MoveClip. TrackID moves the clip to another track of the
// same kind; SkipLinked leaves the partner where it is.
type MoveOptions struct {
	TrackID    string
	SkipLinked bool
	NoSnap     bool
}

// MoveClip moves a clip towards start, snapping and resolving overlaps on the
// target track. Unless SkipLinked is set the linked partner moves by the same
// delta on its own track, stopping at zero.
func (t *Timeline) MoveClip(id string, start float64, opts MoveOptions) (*Clip, error) {
	var out *Clip
	err := t.edit(func() (Event, error) {
		c := t.clipLocked(id)
		if c == nil {
			return Event{}, notFound("clip", id)
		}
		trackID := c.TrackID
		if opts.TrackID != "" {
			trackID = opts.TrackID
		}
		tr := t.trackLocked(trackID)
		if tr == nil {
			return Event{}, notFound("track", trackID)
		}
		if c.Kind() != tr.Kind {
			return Event{}, reject("move clip", "%s clip cannot go on a %s track", c.Kind(), tr.Kind)
		}
		if c.IsComposition && t.cycleCheck != nil {
			if err := t.cycleCheck(c.CompositionID); err != nil {
				return Event{}, err
			}
		}

		var partner *Clip
		if !opts.SkipLinked {
			partner = t.clipLocked(c.LinkedClipID)
		}

		threshold := t.snapThreshold
		if opts.NoSnap {
			threshold = 0
		}
		res := placement.Place(start, c.Duration, t.spansLocked(trackID, c.ID, c.LinkedClipID), threshold)

		delta := res.Start - c.StartTime
		c.StartTime = res.Start
		c.TrackID = trackID
		ids := []string{c.ID}
		if partner != nil {
			partner.StartTime = math.Max(0, partner.StartTime+delta)
			ids = append(ids, partner.ID)
		}

		if res.Overlapping {
			logging.WithClipID(t.log(), c.ID).Warn("clip moved overlapping", "track_id", trackID)
		}
		out = c.Clone()
		return Event{Kind: EventClipMoved, ClipIDs: ids, TrackID: trackID, Visual: true}, nil
	})
	return out, err
}

// TrimClip sets the source window of a clip. Duration becomes out-in. The
// linked partner is not trimmed.
func (t *Timeline) TrimClip(id string, in, out float64) (*Clip, error) {
	var res *Clip
	err := t.edit(func() (Event, error) {
		c := t.clipLocked(id)
		if c == nil {
			return Event{}, notFound("clip", id)
		}
		if in < 0 {
			return Event{}, reject("trim clip", "in point %.3f is negative", in)
		}
		if out <= in {
			return Event{}, reject("trim clip", "out point %.3f must be after in point %.3f", out, in)
		}
		if c.SourceDuration > 0 && out > c.SourceDuration+keyframeEpsilon {
			return Event{}, reject("trim clip", "out point %.3f exceeds source duration %.3f", out, c.SourceDuration)
		}
		c.InPoint = in
		c.OutPoint = out
		c.Duration = out - in
		t.clampKeyframesLocked(c)
		res = c.Clone()
		return Event{Kind: EventClipTrimmed, ClipIDs: []string{id}, TrackID: c.TrackID, Visual: true}, nil
	})
	return res, err
}

// clampKeyframesLocked drops keyframes past the clip's end. A property that
// lost keyframes gets one at the end holding its value there.
func (t *Timeline) clampKeyframesLocked(c *Clip) {
	kfs := t.keyframes[c.ID]
	if len(kfs) == 0 {
		return
	}
	end := c.Duration
	var kept []Keyframe
	changed := false
	for _, prop := range interp.Properties(kfs) {
		track := interp.ForProperty(kfs, prop)
		if track[len(track)-1].Time <= end+keyframeEpsilon {
			kept = append(kept, track...)
			continue
		}
		changed = true
		value, _ := interp.Sample(track, end)
		easing := interp.Linear
		atEnd := false
		for _, k := range track {
			if k.Time > end+keyframeEpsilon {
				break
			}
			easing = k.Easing
			if math.Abs(k.Time-end) < keyframeEpsilon {
				atEnd = true
			}
			kept = append(kept, k)
		}
		if !atEnd {
			kept = append(kept, Keyframe{ID: NewID(), ClipID: c.ID, Time: end, Property: prop, Value: value, Easing: easing})
		}
	}
	if !changed {
		return
	}
	interp.Sort(kept)
	t.keyframes[c.ID] = kept
	t.settleModesLocked(c.ID)
}

// ClipUpdate changes selected clip attributes. Nil fields are left alone.
type ClipUpdate struct {
	Name     *string
	Reversed *bool
	Volume   *float64
}

// UpdateClip applies u. Renames and volume changes do not affect frames.
func (t *Timeline) UpdateClip(id string, u ClipUpdate) (*Clip, error) {
	var out *Clip
	err := t.edit(func() (Event, error) {
		c := t.clipLocked(id)
		if c == nil {
			return Event{}, notFound("clip", id)
		}
		if u.Volume != nil {
			if c.Kind() != TrackAudio {
				return Event{}, reject("update clip", "volume applies to audio clips only")
			}
			if *u.Volume < 0 {
				return Event{}, reject("update clip", "volume must not be negative")
			}
		}

		kind := EventClipUpdated
		visual := false
		if u.Name != nil {
			c.Name = *u.Name
		}
		if u.Volume != nil {
			c.Volume = *u.Volume
			kind = EventAudio
		}
		if u.Reversed != nil && c.Reversed != *u.Reversed {
			c.Reversed = *u.Reversed
			visual = c.Kind() == TrackVideo
		}
		out = c.Clone()
		return Event{Kind: kind, ClipIDs: []string{id}, TrackID: c.TrackID, Visual: visual}, nil
	})
	return out, err
}

// Unlink breaks the link between a clip and its partner.
func (t *Timeline) Unlink(id string) error {
	return t.edit(func() (Event, error) {
		c := t.clipLocked(id)
		if c == nil {
			return Event{}, notFound("clip", id)
		}
		ids := []string{id}
		if p := t.clipLocked(c.LinkedClipID); p != nil {
			p.LinkedClipID = ""
			ids = append(ids, p.ID)
		}
		c.LinkedClipID = ""
		return Event{Kind: EventClipUpdated, ClipIDs: ids, TrackID: c.TrackID}, nil
	})
}
