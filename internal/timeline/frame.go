package timeline

// LayerSource tells the renderer which media frame to draw.
type LayerSource struct {
	Kind        SourceKind `json:"kind"`
	MediaFileID string     `json:"media_file_id"`
	Time        float64    `json:"time"`
}

// Layer is one clip's contribution to a composited frame. Composition clips
// carry their nested layers in Children instead of a Source.
type Layer struct {
	ClipID        string       `json:"clip_id"`
	TrackID       string       `json:"track_id"`
	Source        *LayerSource `json:"source,omitempty"`
	CompositionID string       `json:"composition_id,omitempty"`
	Transform     Transform    `json:"transform"`
	Effects       []Effect     `json:"effects,omitempty"`
	Masks         []Mask       `json:"masks,omitempty"`
	Children      []Layer      `json:"children,omitempty"`
}

// Frame lists the layers visible at Time, topmost first.
type Frame struct {
	Time   float64 `json:"time"`
	Layers []Layer `json:"layers"`
}

// FrameAt builds the layer stack at timeline time at.
func (t *Timeline) FrameAt(at float64) Frame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Frame{Time: at, Layers: buildLayers(t.trackValuesLocked(), t.clips, t.keyframes, at)}
}

// HasVisualAt reports whether any visible video or image clip is active at.
func (t *Timeline) HasVisualAt(at float64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tracks := t.trackValuesLocked()
	solo := hasSolo(tracks)
	for _, tr := range tracks {
		if !renderable(tr, solo) {
			continue
		}
		for _, c := range t.clips {
			if c.TrackID == tr.ID && c.ActiveAt(at) {
				return true
			}
		}
	}
	return false
}

// ActiveClips returns copies of all clips, audio included, active at time at.
func (t *Timeline) ActiveClips(at float64) []*Clip {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Clip
	for _, c := range t.clips {
		if c.ActiveAt(at) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (t *Timeline) trackValuesLocked() []Track {
	out := make([]Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = *tr
	}
	return out
}

func buildLayers(tracks []Track, clips []*Clip, kfs map[string][]Keyframe, at float64) []Layer {
	solo := hasSolo(tracks)
	var layers []Layer
	for _, tr := range tracks {
		if !renderable(tr, solo) {
			continue
		}
		var active []*Clip
		for _, c := range clips {
			if c.TrackID == tr.ID && c.ActiveAt(at) {
				active = append(active, c)
			}
		}
		sortByStart(active)

		for _, c := range active {
			transform, effects := evaluate(c, kfs[c.ID], at-c.StartTime)
			l := Layer{
				ClipID:    c.ID,
				TrackID:   tr.ID,
				Transform: transform,
				Effects:   effects,
			}
			for _, m := range c.Masks {
				if m.Visible {
					l.Masks = append(l.Masks, m.clone())
				}
			}
			if c.IsComposition {
				l.CompositionID = c.CompositionID
				l.Children = buildLayers(c.NestedTracks, c.NestedClips, c.NestedKeyframes, c.SourceTime(at))
			} else if c.Source != nil {
				l.Source = &LayerSource{
					Kind:        c.Source.Kind,
					MediaFileID: c.Source.MediaFileID,
					Time:        c.SourceTime(at),
				}
			}
			layers = append(layers, l)
		}
	}
	return layers
}
