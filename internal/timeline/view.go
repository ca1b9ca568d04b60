package timeline

import "math"

// View returns a copy of the view state. Duration is the effective duration.
func (t *Timeline) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := t.view
	v.Duration = t.durationLocked()
	v.InPoint = copyTime(v.InPoint)
	v.OutPoint = copyTime(v.OutPoint)
	return v
}

func copyTime(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Playhead returns the playhead time in seconds.
func (t *Timeline) Playhead() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view.Playhead
}

// SetPlayhead moves the playhead, clamped at zero.
func (t *Timeline) SetPlayhead(p float64) error {
	return t.edit(func() (Event, error) {
		if math.IsNaN(p) {
			return Event{}, reject("set playhead", "playhead is not a number")
		}
		t.view.Playhead = math.Max(0, p)
		return Event{Kind: EventPlayhead}, nil
	})
}

// SetDuration sets the explicit duration. The effective duration never drops
// below the end of the last clip.
func (t *Timeline) SetDuration(d float64) error {
	return t.edit(func() (Event, error) {
		if d < 0 {
			return Event{}, reject("set duration", "duration must not be negative")
		}
		t.view.Duration = d
		return Event{Kind: EventView}, nil
	})
}

// SetZoom sets pixels per second, at least MinZoom.
func (t *Timeline) SetZoom(z float64) error {
	return t.edit(func() (Event, error) {
		if z < MinZoom {
			z = MinZoom
		}
		t.view.Zoom = z
		return Event{Kind: EventView}, nil
	})
}

// SetScroll sets the horizontal scroll offset, clamped at zero.
func (t *Timeline) SetScroll(x float64) error {
	return t.edit(func() (Event, error) {
		t.view.ScrollX = math.Max(0, x)
		return Event{Kind: EventView}, nil
	})
}

// SetLoop toggles looping playback.
func (t *Timeline) SetLoop(loop bool) error {
	return t.edit(func() (Event, error) {
		t.view.Loop = loop
		return Event{Kind: EventView}, nil
	})
}

// SetInOut sets the play range markers. Nil clears a marker.
func (t *Timeline) SetInOut(in, out *float64) error {
	return t.edit(func() (Event, error) {
		if in != nil && *in < 0 {
			return Event{}, reject("set in/out", "in point must not be negative")
		}
		if in != nil && out != nil && *out <= *in {
			return Event{}, reject("set in/out", "out point must be after in point")
		}
		t.view.InPoint = copyTime(in)
		t.view.OutPoint = copyTime(out)
		return Event{Kind: EventInOut}, nil
	})
}

// ResetView zooms fully out and scrolls to the start.
func (t *Timeline) ResetView() error {
	return t.edit(func() (Event, error) {
		t.view.Zoom = MinZoom
		t.view.ScrollX = 0
		return Event{Kind: EventView}, nil
	})
}

// PlayRange returns the in/out range, defaulting to the whole timeline.
func (t *Timeline) PlayRange() (start, end float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	end = t.durationLocked()
	if t.view.InPoint != nil {
		start = *t.view.InPoint
	}
	if t.view.OutPoint != nil {
		end = *t.view.OutPoint
	}
	return start, end
}
