package timeline

import (
	"fmt"

	"github.com/heimdex/heimdex-timeline/internal/placement"
)

// AddTrack creates a track. Video tracks are inserted above all existing
// video tracks; audio tracks are appended below the last audio track.
func (t *Timeline) AddTrack(kind TrackKind, name string) (Track, error) {
	var out Track
	err := t.edit(func() (Event, error) {
		if kind != TrackVideo && kind != TrackAudio {
			return Event{}, reject("add track", "unknown track kind %q", kind)
		}
		tr := t.addTrackLocked(kind, name)
		out = *tr
		return Event{Kind: EventTrackAdded, TrackID: tr.ID}, nil
	})
	return out, err
}

func (t *Timeline) addTrackLocked(kind TrackKind, name string) *Track {
	if name == "" {
		name = fmt.Sprintf("%s %d", trackLabel(kind), t.countTracksLocked(kind)+1)
	}
	tr := newTrack(kind, name)
	if kind == TrackVideo {
		t.tracks = append([]*Track{tr}, t.tracks...)
	} else {
		t.tracks = append(t.tracks, tr)
	}
	return tr
}

func trackLabel(kind TrackKind) string {
	if kind == TrackAudio {
		return "Audio"
	}
	return "Video"
}

func (t *Timeline) countTracksLocked(kind TrackKind) int {
	n := 0
	for _, tr := range t.tracks {
		if tr.Kind == kind {
			n++
		}
	}
	return n
}

// RemoveTrack deletes a track together with its clips. Partners of removed
// clips that live on other tracks are unlinked.
func (t *Timeline) RemoveTrack(id string) error {
	return t.edit(func() (Event, error) {
		tr := t.trackLocked(id)
		if tr == nil {
			return Event{}, notFound("track", id)
		}
		if t.countTracksLocked(tr.Kind) == 1 {
			return Event{}, reject("remove track", "cannot remove the last %s track", tr.Kind)
		}

		var removed []string
		kept := t.clips[:0:0]
		for _, c := range t.clips {
			if c.TrackID == id {
				removed = append(removed, c.ID)
				continue
			}
			kept = append(kept, c)
		}
		t.clips = kept
		for _, cid := range removed {
			t.dropClipStateLocked(cid)
		}

		for i, other := range t.tracks {
			if other.ID == id {
				t.tracks = append(t.tracks[:i], t.tracks[i+1:]...)
				break
			}
		}

		t.log().Debug("track removed", "track_id", id, "clips", len(removed))
		return Event{
			Kind:    EventTrackRemoved,
			TrackID: id,
			ClipIDs: removed,
			Visual:  tr.Kind == TrackVideo && len(removed) > 0,
		}, nil
	})
}

// TrackUpdate changes selected track attributes. Nil fields are left alone.
type TrackUpdate struct {
	Name    *string
	Height  *int
	Muted   *bool
	Visible *bool
	Solo    *bool
}

// UpdateTrack applies u. Only visibility and solo changes on video tracks
// affect rendered frames.
func (t *Timeline) UpdateTrack(id string, u TrackUpdate) (Track, error) {
	var out Track
	err := t.edit(func() (Event, error) {
		tr := t.trackLocked(id)
		if tr == nil {
			return Event{}, notFound("track", id)
		}
		if u.Height != nil && *u.Height <= 0 {
			return Event{}, reject("update track", "height must be positive")
		}

		visual := false
		if u.Name != nil {
			tr.Name = *u.Name
		}
		if u.Height != nil {
			tr.Height = *u.Height
		}
		if u.Muted != nil {
			tr.Muted = *u.Muted
		}
		if u.Visible != nil && tr.Visible != *u.Visible {
			tr.Visible = *u.Visible
			visual = tr.Kind == TrackVideo
		}
		if u.Solo != nil && tr.Solo != *u.Solo {
			tr.Solo = *u.Solo
			visual = visual || tr.Kind == TrackVideo
		}
		out = *tr
		return Event{Kind: EventTrackUpdated, TrackID: id, Visual: visual}, nil
	})
	return out, err
}

// FindAvailableAudioTrack returns the first audio track, top to bottom, on
// which [start, start+duration) is free, creating a new audio track when none
// is.
func (t *Timeline) FindAvailableAudioTrack(start, duration float64) (Track, error) {
	var out Track
	err := t.edit(func() (Event, error) {
		tr, created := t.availableAudioTrackLocked(start, duration)
		out = *tr
		if created {
			return Event{Kind: EventTrackAdded, TrackID: tr.ID}, nil
		}
		return Event{}, nil
	})
	return out, err
}

func (t *Timeline) availableAudioTrackLocked(start, duration float64) (*Track, bool) {
	var audio []*Track
	var lanes [][]placement.Span
	for _, tr := range t.tracks {
		if tr.Kind != TrackAudio {
			continue
		}
		audio = append(audio, tr)
		lanes = append(lanes, t.spansLocked(tr.ID))
	}
	if i := placement.FirstFree(lanes, start, duration); i >= 0 {
		return audio[i], false
	}
	return t.addTrackLocked(TrackAudio, ""), true
}

// hasSolo reports whether any video track is soloed.
func hasSolo(tracks []Track) bool {
	for _, tr := range tracks {
		if tr.Kind == TrackVideo && tr.Solo {
			return true
		}
	}
	return false
}

// renderable reports whether a track contributes layers to frames. Once any
// video track is soloed only soloed tracks render.
func renderable(tr Track, solo bool) bool {
	if tr.Kind != TrackVideo || !tr.Visible {
		return false
	}
	return !solo || tr.Solo
}
