package timeline

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/heimdex/heimdex-timeline/internal/interp"
)

// ClipSnapshot is the persisted form of a clip. Media is referenced by ID and
// nested composition content is never stored.
type ClipSnapshot struct {
	ID             string     `json:"id"`
	TrackID        string     `json:"track_id"`
	Name           string     `json:"name"`
	StartTime      float64    `json:"start_time"`
	Duration       float64    `json:"duration"`
	InPoint        float64    `json:"in_point"`
	OutPoint       float64    `json:"out_point"`
	SourceKind     SourceKind `json:"source_kind,omitempty"`
	MediaFileID    string     `json:"media_file_id,omitempty"`
	SourceDuration float64    `json:"source_duration"`
	Transform      Transform  `json:"transform"`
	Effects        []Effect   `json:"effects"`
	Masks          []Mask     `json:"masks,omitempty"`
	Keyframes      []Keyframe `json:"keyframes,omitempty"`
	Recording      []string   `json:"recording,omitempty"`
	Reversed       bool       `json:"reversed"`
	LinkedClipID   string     `json:"linked_clip_id,omitempty"`
	Volume         float64    `json:"volume"`
	IsComposition  bool       `json:"is_composition"`
	CompositionID  string     `json:"composition_id,omitempty"`
}

// Snapshot is the serializable state of a timeline.
type Snapshot struct {
	Tracks   []Track        `json:"tracks"`
	Clips    []ClipSnapshot `json:"clips"`
	Playhead float64        `json:"playhead"`
	Duration float64        `json:"duration"`
	Zoom     float64        `json:"zoom"`
	ScrollX  float64        `json:"scroll_x"`
	InPoint  *float64       `json:"in_point,omitempty"`
	OutPoint *float64       `json:"out_point,omitempty"`
	Loop     bool           `json:"loop"`
}

// Marshal encodes the snapshot as JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a JSON snapshot. Empty input yields an empty
// snapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// ContentEnd is the end time of the last clip in the snapshot.
func (s Snapshot) ContentEnd() float64 {
	end := 0.0
	for _, c := range s.Clips {
		if c.StartTime+c.Duration > end {
			end = c.StartTime + c.Duration
		}
	}
	return end
}

// GetSerializableState captures the timeline for persistence.
func (t *Timeline) GetSerializableState() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		Tracks:   t.trackValuesLocked(),
		Clips:    make([]ClipSnapshot, 0, len(t.clips)),
		Playhead: t.view.Playhead,
		Duration: t.view.Duration,
		Zoom:     t.view.Zoom,
		ScrollX:  t.view.ScrollX,
		InPoint:  copyTime(t.view.InPoint),
		OutPoint: copyTime(t.view.OutPoint),
		Loop:     t.view.Loop,
	}
	for _, c := range t.clips {
		s.Clips = append(s.Clips, t.clipSnapshotLocked(c))
	}
	return s
}

func (t *Timeline) clipSnapshotLocked(c *Clip) ClipSnapshot {
	cc := c.Clone()
	cs := ClipSnapshot{
		ID:             cc.ID,
		TrackID:        cc.TrackID,
		Name:           cc.Name,
		StartTime:      cc.StartTime,
		Duration:       cc.Duration,
		InPoint:        cc.InPoint,
		OutPoint:       cc.OutPoint,
		SourceDuration: cc.SourceDuration,
		Transform:      cc.Transform,
		Effects:        cc.Effects,
		Masks:          cc.Masks,
		Keyframes:      append([]Keyframe(nil), t.keyframes[c.ID]...),
		Reversed:       cc.Reversed,
		LinkedClipID:   cc.LinkedClipID,
		Volume:         cc.Volume,
		IsComposition:  cc.IsComposition,
		CompositionID:  cc.CompositionID,
	}
	if cc.Source != nil {
		cs.SourceKind = cc.Source.Kind
		cs.MediaFileID = cc.Source.MediaFileID
	}
	for k, on := range t.recording {
		if on && k.clipID == c.ID {
			cs.Recording = append(cs.Recording, k.property)
		}
	}
	return cs
}

// LoadState replaces the timeline with a snapshot. Clips whose media or
// nested composition cannot be resolved are skipped and logged, and their
// keyframes with them.
func (t *Timeline) LoadState(s Snapshot) error {
	return t.edit(func() (Event, error) {
		tracks := make([]*Track, 0, len(s.Tracks))
		known := make(map[string]TrackKind, len(s.Tracks))
		for _, tr := range s.Tracks {
			tr := tr
			if tr.ID == "" || (tr.Kind != TrackVideo && tr.Kind != TrackAudio) {
				continue
			}
			if tr.Height <= 0 {
				tr.Height = newTrack(tr.Kind, "").Height
			}
			tracks = append(tracks, &tr)
			known[tr.ID] = tr.Kind
		}

		clips, kfs := materialize(s.Clips, known, t.media, t.nested, t.log())

		t.tracks = tracks
		t.clips = clips
		t.keyframes = kfs
		t.modes = make(map[propKey]PropertyMode)
		t.recording = make(map[propKey]bool)
		if len(t.tracks) == 0 {
			t.resetTracksLocked()
		}
		for _, cs := range s.Clips {
			if t.clipLocked(cs.ID) == nil {
				continue
			}
			for _, prop := range cs.Recording {
				t.recording[propKey{cs.ID, prop}] = true
				t.modes[propKey{cs.ID, prop}] = ModeRecording
			}
		}
		for clipID, list := range t.keyframes {
			for _, k := range list {
				t.modes[propKey{clipID, k.Property}] = ModeKeyframed
			}
		}

		t.view = View{
			Playhead: s.Playhead,
			Duration: s.Duration,
			Zoom:     s.Zoom,
			ScrollX:  s.ScrollX,
			InPoint:  copyTime(s.InPoint),
			OutPoint: copyTime(s.OutPoint),
			Loop:     s.Loop,
		}
		if t.view.Zoom < MinZoom {
			t.view.Zoom = DefaultZoom
		}
		return Event{Kind: EventStateLoaded, Visual: true}, nil
	})
}

// Materialize builds clips and keyframes from snapshot records without
// loading them into a timeline. Composition clips are resolved through nested
// and so are materialized one level deep.
func Materialize(s Snapshot, media MediaResolver, nested NestedLoader, logger *slog.Logger) ([]Track, []*Clip, map[string][]Keyframe) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	known := make(map[string]TrackKind, len(s.Tracks))
	for _, tr := range s.Tracks {
		known[tr.ID] = tr.Kind
	}
	clips, kfs := materialize(s.Clips, known, media, nested, logger)
	return append([]Track(nil), s.Tracks...), clips, kfs
}

func materialize(records []ClipSnapshot, tracks map[string]TrackKind, media MediaResolver, nested NestedLoader, logger *slog.Logger) ([]*Clip, map[string][]Keyframe) {
	var clips []*Clip
	kfs := make(map[string][]Keyframe)

	for _, cs := range records {
		kind, ok := tracks[cs.TrackID]
		if !ok {
			logger.Warn("skipping clip on unknown track", "clip_id", cs.ID, "track_id", cs.TrackID)
			continue
		}
		c := &Clip{
			ID:             cs.ID,
			TrackID:        cs.TrackID,
			Name:           cs.Name,
			StartTime:      cs.StartTime,
			Duration:       cs.Duration,
			InPoint:        cs.InPoint,
			OutPoint:       cs.OutPoint,
			SourceDuration: cs.SourceDuration,
			Transform:      cs.Transform,
			Reversed:       cs.Reversed,
			LinkedClipID:   cs.LinkedClipID,
			Volume:         cs.Volume,
			IsComposition:  cs.IsComposition,
			CompositionID:  cs.CompositionID,
		}
		for _, e := range cs.Effects {
			c.Effects = append(c.Effects, e.clone())
		}
		if c.Effects == nil {
			c.Effects = []Effect{}
		}
		for _, m := range cs.Masks {
			c.Masks = append(c.Masks, m.clone())
		}

		if cs.IsComposition {
			// without a loader the clip is kept but its content stays unloaded
			if nested != nil {
				content, ok := nested(cs.CompositionID)
				if !ok {
					logger.Warn("skipping clip of missing composition", "clip_id", cs.ID, "composition_id", cs.CompositionID)
					continue
				}
				fillNested(c, content)
			}
		} else {
			src := Source{Kind: cs.SourceKind, MediaFileID: cs.MediaFileID, Name: cs.Name, Duration: cs.SourceDuration}
			if media != nil {
				resolved, ok := media.ResolveMedia(cs.MediaFileID)
				if !ok {
					logger.Warn("skipping clip of missing media", "clip_id", cs.ID, "media_file_id", cs.MediaFileID)
					continue
				}
				// a linked audio clip keeps its kind even though the file is video
				if cs.SourceKind != "" {
					resolved.Kind = cs.SourceKind
				}
				src = resolved
			}
			if !src.Kind.Valid() {
				logger.Warn("skipping clip with unknown source kind", "clip_id", cs.ID, "kind", src.Kind)
				continue
			}
			c.Source = &src
		}
		if c.Kind() != kind {
			logger.Warn("skipping clip on wrong track kind", "clip_id", cs.ID, "track_id", cs.TrackID)
			continue
		}

		for _, k := range cs.Keyframes {
			k.ClipID = c.ID
			if k.ID == "" {
				k.ID = NewID()
			}
			if !k.Easing.Valid() {
				k.Easing = interp.Linear
			}
			kfs[c.ID] = append(kfs[c.ID], k)
		}
		clips = append(clips, c)
	}

	present := make(map[string]bool, len(clips))
	for _, c := range clips {
		present[c.ID] = true
	}
	for _, c := range clips {
		if c.LinkedClipID != "" && !present[c.LinkedClipID] {
			c.LinkedClipID = ""
		}
	}
	for id, list := range kfs {
		interp.Sort(list)
		kfs[id] = list
	}
	return clips, kfs
}
