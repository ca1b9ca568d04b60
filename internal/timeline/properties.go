package timeline

import (
	"math"

	"github.com/heimdex/heimdex-timeline/internal/interp"
)

// Transform property paths.
const (
	PropOpacity   = "opacity"
	PropPositionX = "position.x"
	PropPositionY = "position.y"
	PropPositionZ = "position.z"
	PropScaleX    = "scale.x"
	PropScaleY    = "scale.y"
	PropRotationX = "rotation.x"
	PropRotationY = "rotation.y"
	PropRotationZ = "rotation.z"
)

// TransformProperties lists every animatable transform path.
var TransformProperties = []string{
	PropOpacity,
	PropPositionX, PropPositionY, PropPositionZ,
	PropScaleX, PropScaleY,
	PropRotationX, PropRotationY, PropRotationZ,
}

func transformSlot(tr *Transform, path string) *float64 {
	switch path {
	case PropOpacity:
		return &tr.Opacity
	case PropPositionX:
		return &tr.Position.X
	case PropPositionY:
		return &tr.Position.Y
	case PropPositionZ:
		return &tr.Position.Z
	case PropScaleX:
		return &tr.Scale.X
	case PropScaleY:
		return &tr.Scale.Y
	case PropRotationX:
		return &tr.Rotation.X
	case PropRotationY:
		return &tr.Rotation.Y
	case PropRotationZ:
		return &tr.Rotation.Z
	}
	return nil
}

// clipTarget receives interpolated values for one evaluation of a clip.
// Effect paths resolve only to existing numeric params.
type clipTarget struct {
	transform *Transform
	effects   []Effect
}

// SetNumber writes a transform or effect parameter addressed by path.
func (ct clipTarget) SetNumber(path string, v float64) bool {
	if slot := transformSlot(ct.transform, path); slot != nil {
		*slot = v
		return true
	}
	id, param, ok := interp.ParseEffectPath(path)
	if !ok {
		return false
	}
	for i := range ct.effects {
		if ct.effects[i].ID != id {
			continue
		}
		if _, numeric := ct.effects[i].Params[param].(float64); !numeric {
			return false
		}
		ct.effects[i].Params[param] = v
		return true
	}
	return false
}

// checkAnimatable rejects paths that do not name a numeric slot of c.
func checkAnimatable(c *Clip, path string) error {
	probe := clipTarget{transform: &Transform{}, effects: make([]Effect, len(c.Effects))}
	for i, e := range c.Effects {
		probe.effects[i] = e.clone()
	}
	if !probe.SetNumber(path, 0) {
		return reject("animate", "%q is not an animatable property of clip %s", path, c.ID)
	}
	return nil
}

// evaluate returns the transform and enabled effects of c at clip-local time
// with keyframes applied over the static values.
func evaluate(c *Clip, kfs []Keyframe, local float64) (Transform, []Effect) {
	tr := c.Transform
	effects := make([]Effect, 0, len(c.Effects))
	for _, e := range c.Effects {
		effects = append(effects, e.clone())
	}
	interp.Apply(kfs, local, clipTarget{transform: &tr, effects: effects})

	enabled := effects[:0]
	for _, e := range effects {
		if e.Enabled {
			enabled = append(enabled, e)
		}
	}
	return tr, enabled
}

// EvaluateClip returns the interpolated transform and enabled effects of a
// clip at clip-local time.
func (t *Timeline) EvaluateClip(clipID string, local float64) (Transform, []Effect, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := t.clipLocked(clipID)
	if c == nil {
		return Transform{}, nil, notFound("clip", clipID)
	}
	tr, effects := evaluate(c, t.keyframes[clipID], clampLocal(c, local))
	return tr, effects, nil
}

// SetPropertyValue edits a numeric property. In Static mode the base value is
// written. Otherwise a keyframe is written at the playhead's clip-local time,
// clamped to the clip.
func (t *Timeline) SetPropertyValue(clipID, property string, value float64) error {
	return t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		if err := checkAnimatable(c, property); err != nil {
			return Event{}, err
		}

		if t.modeLocked(propKey{clipID, property}) == ModeStatic {
			clipTarget{transform: &c.Transform, effects: c.Effects}.SetNumber(property, value)
			return Event{Kind: EventTransform, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
		}

		local := clampLocal(c, t.view.Playhead-c.StartTime)
		easing := interp.Linear
		for _, k := range t.keyframes[clipID] {
			if k.Property == property && math.Abs(k.Time-local) < keyframeEpsilon {
				easing = k.Easing
			}
		}
		t.upsertKeyframeLocked(c, property, local, value, easing)
		return Event{Kind: EventKeyframe, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
	})
}

// SetTransform replaces the static transform of a clip.
func (t *Timeline) SetTransform(clipID string, tr Transform) error {
	return t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		if tr.BlendMode == "" {
			tr.BlendMode = BlendNormal
		}
		if !tr.BlendMode.Valid() {
			return Event{}, reject("set transform", "unknown blend mode %q", tr.BlendMode)
		}
		c.Transform = tr
		return Event{Kind: EventTransform, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
	})
}

// AddEffect appends an enabled effect to a clip. Integer params are stored
// as float64 so they can be animated.
func (t *Timeline) AddEffect(clipID, effectType, name string, params map[string]any) (Effect, error) {
	var out Effect
	err := t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		if effectType == "" {
			return Event{}, reject("add effect", "effect type is required")
		}
		if name == "" {
			name = effectType
		}
		e := Effect{
			ID:      NewID(),
			Name:    name,
			Type:    effectType,
			Enabled: true,
			Params:  normalizeParams(params),
		}
		c.Effects = append(c.Effects, e)
		out = e.clone()
		return Event{Kind: EventEffect, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
	})
	return out, err
}

func normalizeParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		case float32:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}

func effectIndex(c *Clip, effectID string) int {
	for i, e := range c.Effects {
		if e.ID == effectID {
			return i
		}
	}
	return -1
}

// RemoveEffect deletes an effect. Keyframes that referenced it stay and are
// ignored during evaluation.
func (t *Timeline) RemoveEffect(clipID, effectID string) error {
	return t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		i := effectIndex(c, effectID)
		if i < 0 {
			return Event{}, notFound("effect", effectID)
		}
		c.Effects = append(c.Effects[:i], c.Effects[i+1:]...)
		return Event{Kind: EventEffect, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
	})
}

// EffectUpdate changes an effect. Params are merged into the existing ones.
type EffectUpdate struct {
	Enabled *bool
	Name    *string
	Params  map[string]any
}

// UpdateEffect applies u to an effect of a clip.
func (t *Timeline) UpdateEffect(clipID, effectID string, u EffectUpdate) (Effect, error) {
	var out Effect
	err := t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		i := effectIndex(c, effectID)
		if i < 0 {
			return Event{}, notFound("effect", effectID)
		}
		e := &c.Effects[i]
		if u.Enabled != nil {
			e.Enabled = *u.Enabled
		}
		if u.Name != nil {
			e.Name = *u.Name
		}
		if e.Params == nil {
			e.Params = make(map[string]any)
		}
		for k, v := range normalizeParams(u.Params) {
			e.Params[k] = v
		}
		out = e.clone()
		return Event{Kind: EventEffect, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
	})
	return out, err
}

// AddMask appends a mask to a clip. Missing ID and mode are filled in.
func (t *Timeline) AddMask(clipID string, m Mask) (Mask, error) {
	var out Mask
	err := t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		if m.Mode == "" {
			m.Mode = MaskAdd
		}
		if !m.Mode.Valid() {
			return Event{}, reject("add mask", "unknown mask mode %q", m.Mode)
		}
		if m.ID == "" {
			m.ID = NewID()
		}
		c.Masks = append(c.Masks, m.clone())
		out = m.clone()
		return Event{Kind: EventMask, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
	})
	return out, err
}

// UpdateMask replaces the mask with the same ID.
func (t *Timeline) UpdateMask(clipID string, m Mask) error {
	return t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		if m.Mode != "" && !m.Mode.Valid() {
			return Event{}, reject("update mask", "unknown mask mode %q", m.Mode)
		}
		for i := range c.Masks {
			if c.Masks[i].ID == m.ID {
				if m.Mode == "" {
					m.Mode = c.Masks[i].Mode
				}
				c.Masks[i] = m.clone()
				return Event{Kind: EventMask, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
			}
		}
		return Event{}, notFound("mask", m.ID)
	})
}

// RemoveMask deletes a mask from a clip.
func (t *Timeline) RemoveMask(clipID, maskID string) error {
	return t.edit(func() (Event, error) {
		c := t.clipLocked(clipID)
		if c == nil {
			return Event{}, notFound("clip", clipID)
		}
		for i := range c.Masks {
			if c.Masks[i].ID == maskID {
				c.Masks = append(c.Masks[:i], c.Masks[i+1:]...)
				return Event{Kind: EventMask, ClipIDs: []string{clipID}, TrackID: c.TrackID, Visual: true}, nil
			}
		}
		return Event{}, notFound("mask", maskID)
	})
}
