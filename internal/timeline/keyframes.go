package timeline

import (
	"math"

	"github.com/heimdex/heimdex-timeline/internal/interp"
)

// PropertyMode is the editing state of one animatable property of one clip.
type PropertyMode string

const (
	// ModeStatic edits write the clip's base value.
	ModeStatic PropertyMode = "static"
	// ModeRecording edits write keyframes but none exist yet.
	ModeRecording PropertyMode = "recording"
	// ModeKeyframed means at least one keyframe exists.
	ModeKeyframed PropertyMode = "keyframed"
)

func (t *Timeline) modeLocked(k propKey) PropertyMode {
	if m, ok := t.modes[k]; ok {
		return m
	}
	return ModeStatic
}

// settleModeLocked moves a property out of Keyframed once its last keyframe
// is gone.
func (t *Timeline) settleModeLocked(k propKey) {
	if len(interp.ForProperty(t.keyframes[k.clipID], k.property)) > 0 {
		t.modes[k] = ModeKeyframed
		return
	}
	if t.recording[k] {
		t.modes[k] = ModeRecording
		return
	}
	delete(t.modes, k)
}

// PropertyMode reports the editing mode of a clip property.
func (t *Timeline) PropertyMode(clipID, property string) (PropertyMode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.clipLocked(clipID) == nil {
		return "", notFound("clip", clipID)
	}
	return t.modeLocked(propKey{clipID, property}), nil
}

// SetRecording toggles keyframe recording for a property. A property that
// already has keyframes stays Keyframed either way.
func (t *Timeline) SetRecording(clipID, property string, on bool) error {
	return t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		if err := checkAnimatable(c, property); err != nil {
			return Event{}, err
		}
		k := propKey{clipID, property}
		if on {
			t.recording[k] = true
		} else {
			delete(t.recording, k)
		}
		t.settleModeLocked(k)
		return Event{Kind: EventRecordingMode, ClipIDs: []string{clipID}, TrackID: c.TrackID}, nil
	})
}

func clampLocal(c *Clip, time float64) float64 {
	return math.Max(0, math.Min(time, c.Duration))
}

// upsertKeyframeLocked writes a keyframe at time, updating one that already
// sits within keyframeEpsilon of it.
func (t *Timeline) upsertKeyframeLocked(c *Clip, property string, time, value float64, easing interp.Easing) Keyframe {
	time = clampLocal(c, time)
	kfs := t.keyframes[c.ID]
	for i := range kfs {
		if kfs[i].Property == property && math.Abs(kfs[i].Time-time) < keyframeEpsilon {
			kfs[i].Value = value
			kfs[i].Easing = easing
			t.modes[propKey{c.ID, property}] = ModeKeyframed
			return kfs[i]
		}
	}
	kf := Keyframe{
		ID:       NewID(),
		ClipID:   c.ID,
		Time:     time,
		Property: property,
		Value:    value,
		Easing:   easing,
	}
	kfs = append(kfs, kf)
	interp.Sort(kfs)
	t.keyframes[c.ID] = kfs
	t.modes[propKey{c.ID, property}] = ModeKeyframed
	return kf
}

// AddKeyframe writes a keyframe at clip-local time, clamped to the clip's
// duration. A keyframe already at that time is updated in place.
func (t *Timeline) AddKeyframe(clipID, property string, time, value float64, easing interp.Easing) (Keyframe, error) {
	var out Keyframe
	err := t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		if err := checkAnimatable(c, property); err != nil {
			return Event{}, err
		}
		if !easing.Valid() {
			return Event{}, reject("add keyframe", "unknown easing %q", easing)
		}
		out = t.upsertKeyframeLocked(c, property, time, value, easing)
		return Event{Kind: EventKeyframe, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
	})
	return out, err
}

func (t *Timeline) findKeyframeLocked(id string) (*Clip, int) {
	for clipID, kfs := range t.keyframes {
		for i := range kfs {
			if kfs[i].ID == id {
				return t.clipLocked(clipID), i
			}
		}
	}
	return nil, -1
}

// RemoveKeyframe deletes a keyframe. Removing the last keyframe of a property
// returns it to Recording or Static.
func (t *Timeline) RemoveKeyframe(id string) error {
	return t.edit(func() (Event, error) {
		c, i := t.findKeyframeLocked(id)
		if c == nil {
			return Event{}, notFound("keyframe", id)
		}
		kfs := t.keyframes[c.ID]
		prop := kfs[i].Property
		t.keyframes[c.ID] = append(kfs[:i], kfs[i+1:]...)
		if len(t.keyframes[c.ID]) == 0 {
			delete(t.keyframes, c.ID)
		}
		t.settleModeLocked(propKey{c.ID, prop})
		return Event{Kind: EventKeyframe, ClipIDs: []string{c.ID}, TrackID: c.TrackID, Visual: true}, nil
	})
}

// KeyframeUpdate changes the value or easing of a keyframe. Nil fields are
// left alone.
type KeyframeUpdate struct {
	Value  *float64
	Easing *interp.Easing
}

// UpdateKeyframe changes the value or easing of a keyframe.
func (t *Timeline) UpdateKeyframe(id string, u KeyframeUpdate) (Keyframe, error) {
	var out Keyframe
	err := t.edit(func() (Event, error) {
		c, i := t.findKeyframeLocked(id)
		if c == nil {
			return Event{}, notFound("keyframe", id)
		}
		if u.Easing != nil && !u.Easing.Valid() {
			return Event{}, reject("update keyframe", "unknown easing %q", *u.Easing)
		}
		kf := &t.keyframes[c.ID][i]
		if u.Value != nil {
			kf.Value = *u.Value
		}
		if u.Easing != nil {
			kf.Easing = *u.Easing
		}
		out = *kf
		return Event{Kind: EventKeyframe, ClipIDs: []string{c.ID}, TrackID: c.TrackID, Visual: true}, nil
	})
	return out, err
}

// MoveKeyframe changes the time of a keyframe, clamped to the clip. Another
// keyframe of the same property already at the new time is replaced.
func (t *Timeline) MoveKeyframe(id string, time float64) (Keyframe, error) {
	var out Keyframe
	err := t.edit(func() (Event, error) {
		c, i := t.findKeyframeLocked(id)
		if c == nil {
			return Event{}, notFound("keyframe", id)
		}
		kfs := t.keyframes[c.ID]
		moved := kfs[i]
		moved.Time = clampLocal(c, time)

		kept := kfs[:0:0]
		for j, k := range kfs {
			if j == i {
				continue
			}
			if k.Property == moved.Property && math.Abs(k.Time-moved.Time) < keyframeEpsilon {
				continue
			}
			kept = append(kept, k)
		}
		kept = append(kept, moved)
		interp.Sort(kept)
		t.keyframes[c.ID] = kept
		out = moved
		return Event{Kind: EventKeyframe, ClipIDs: []string{c.ID}, TrackID: c.TrackID, Visual: true}, nil
	})
	return out, err
}

// Keyframes returns a copy of a clip's keyframes sorted by property and time.
func (t *Timeline) Keyframes(clipID string) ([]Keyframe, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.clipLocked(clipID) == nil {
		return nil, notFound("clip", clipID)
	}
	return append([]Keyframe(nil), t.keyframes[clipID]...), nil
}

// ValueAt interpolates a property at clip-local time. ok is false when the
// property has no keyframes.
func (t *Timeline) ValueAt(clipID, property string, local float64) (float64, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.clipLocked(clipID) == nil {
		return 0, false, notFound("clip", clipID)
	}
	v, ok := interp.Value(t.keyframes[clipID], property, local)
	return v, ok, nil
}
