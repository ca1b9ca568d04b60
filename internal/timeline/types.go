package timeline

import (
	"github.com/google/uuid"

	"github.com/heimdex/heimdex-timeline/internal/interp"
)

// TrackKind is either video or audio.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// SourceKind is the media kind behind a clip.
type SourceKind string

const (
	SourceVideo SourceKind = "video"
	SourceAudio SourceKind = "audio"
	SourceImage SourceKind = "image"
)

// TrackKind returns the only track kind a source of this kind may sit on.
func (k SourceKind) TrackKind() TrackKind {
	if k == SourceAudio {
		return TrackAudio
	}
	return TrackVideo
}

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceVideo, SourceAudio, SourceImage:
		return true
	}
	return false
}

const (
	DefaultVideoTrackHeight = 60
	DefaultAudioTrackHeight = 40
)

// Track is an ordered lane of clips of one kind.
type Track struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Kind    TrackKind `json:"kind"`
	Height  int       `json:"height"`
	Muted   bool      `json:"muted"`
	Visible bool      `json:"visible"`
	Solo    bool      `json:"solo"`
}

// Source references a resolved media file. Duration is the natural length of
// the media in seconds; images have no natural length and report zero.
type Source struct {
	Kind        SourceKind `json:"kind"`
	MediaFileID string     `json:"media_file_id"`
	Name        string     `json:"name,omitempty"`
	Duration    float64    `json:"duration"`
	NoAudio     bool       `json:"no_audio,omitempty"`
}

// Vec2 is a 2D value.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// BlendMode controls how a layer composites over the layers below.
type BlendMode string

const (
	BlendNormal     BlendMode = "normal"
	BlendMultiply   BlendMode = "multiply"
	BlendScreen     BlendMode = "screen"
	BlendOverlay    BlendMode = "overlay"
	BlendAdd        BlendMode = "add"
	BlendDarken     BlendMode = "darken"
	BlendLighten    BlendMode = "lighten"
	BlendDifference BlendMode = "difference"
)

// Valid reports whether b is a supported blend mode.
func (b BlendMode) Valid() bool {
	switch b {
	case BlendNormal, BlendMultiply, BlendScreen, BlendOverlay, BlendAdd,
		BlendDarken, BlendLighten, BlendDifference:
		return true
	}
	return false
}

// Transform is the static visual state of a clip.
type Transform struct {
	Opacity   float64   `json:"opacity" yaml:"opacity"`
	BlendMode BlendMode `json:"blend_mode" yaml:"blend_mode"`
	Position  Vec3      `json:"position" yaml:"position"`
	Scale     Vec2      `json:"scale" yaml:"scale"`
	Rotation  Vec3      `json:"rotation" yaml:"rotation"`
}

// DefaultTransform is the identity: opaque, normal blend, unit scale.
func DefaultTransform() Transform {
	return Transform{
		Opacity:   1,
		BlendMode: BlendNormal,
		Scale:     Vec2{X: 1, Y: 1},
	}
}

// Effect params hold float64, bool or string values. Only float64 params can
// be animated.
type Effect struct {
	ID      string         `json:"id" yaml:"id"`
	Name    string         `json:"name" yaml:"name"`
	Type    string         `json:"type" yaml:"type"`
	Enabled bool           `json:"enabled" yaml:"enabled"`
	Params  map[string]any `json:"params" yaml:"params"`
}

func (e Effect) clone() Effect {
	params := make(map[string]any, len(e.Params))
	for k, v := range e.Params {
		params[k] = v
	}
	e.Params = params
	return e
}

// Keyframe is a timed value of one clip property.
type Keyframe = interp.Keyframe

// MaskMode is how a mask combines with the masks before it.
type MaskMode string

const (
	MaskAdd        MaskMode = "add"
	MaskSubtract   MaskMode = "subtract"
	MaskIntersect  MaskMode = "intersect"
	MaskDifference MaskMode = "difference"
)

// Valid reports whether m is a known mask mode.
func (m MaskMode) Valid() bool {
	switch m {
	case MaskAdd, MaskSubtract, MaskIntersect, MaskDifference:
		return true
	}
	return false
}

// MaskVertex coordinates are normalized to 0..1; handles are relative to the
// vertex.
type MaskVertex struct {
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	HandleIn  Vec2    `json:"handle_in" yaml:"handle_in"`
	HandleOut Vec2    `json:"handle_out" yaml:"handle_out"`
}

// Mask is a vector shape limiting where a clip is visible.
type Mask struct {
	ID             string       `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	Vertices       []MaskVertex `json:"vertices" yaml:"vertices"`
	Closed         bool         `json:"closed" yaml:"closed"`
	Opacity        float64      `json:"opacity" yaml:"opacity"`
	Feather        float64      `json:"feather" yaml:"feather"`
	FeatherQuality int          `json:"feather_quality" yaml:"feather_quality"`
	Inverted       bool         `json:"inverted" yaml:"inverted"`
	Mode           MaskMode     `json:"mode" yaml:"mode"`
	Position       Vec2         `json:"position" yaml:"position"`
	Visible        bool         `json:"visible" yaml:"visible"`
}

func (m Mask) clone() Mask {
	m.Vertices = append([]MaskVertex(nil), m.Vertices...)
	return m
}

// Clip is a placed, time-bounded reference to a media source or a nested
// composition. Its active window is [StartTime, StartTime+Duration).
type Clip struct {
	ID           string    `json:"id"`
	TrackID      string    `json:"track_id"`
	Name         string    `json:"name"`
	StartTime    float64   `json:"start_time"`
	Duration     float64   `json:"duration"`
	InPoint      float64   `json:"in_point"`
	OutPoint     float64   `json:"out_point"`
	Source       *Source   `json:"source,omitempty"`
	Transform    Transform `json:"transform"`
	Effects      []Effect  `json:"effects"`
	Reversed     bool      `json:"reversed"`
	LinkedClipID string    `json:"linked_clip_id,omitempty"`
	Masks        []Mask    `json:"masks,omitempty"`
	Volume       float64   `json:"volume"`

	IsComposition bool   `json:"is_composition"`
	CompositionID string `json:"composition_id,omitempty"`
	// SourceDuration bounds OutPoint. Zero means unbounded (images).
	SourceDuration float64 `json:"source_duration"`

	NestedTracks    []Track               `json:"nested_tracks,omitempty"`
	NestedClips     []*Clip               `json:"nested_clips,omitempty"`
	NestedKeyframes map[string][]Keyframe `json:"-"`
}

// End returns the timeline time where the clip ends.
func (c *Clip) End() float64 {
	return c.StartTime + c.Duration
}

// Kind is the track kind the clip belongs on.
func (c *Clip) Kind() TrackKind {
	if c.Source != nil {
		return c.Source.Kind.TrackKind()
	}
	return TrackVideo
}

// ActiveAt reports whether t falls inside the clip's half-open window.
func (c *Clip) ActiveAt(t float64) bool {
	return t >= c.StartTime && t < c.End()
}

// SourceTime maps a timeline time inside the clip to media time, honouring
// reversed playback.
func (c *Clip) SourceTime(t float64) float64 {
	local := t - c.StartTime
	if c.Reversed {
		return c.OutPoint - local
	}
	return c.InPoint + local
}

// Clone returns a deep copy so callers never share mutable state with the
// timeline.
func (c *Clip) Clone() *Clip {
	if c == nil {
		return nil
	}
	out := *c
	if c.Source != nil {
		src := *c.Source
		out.Source = &src
	}
	out.Effects = make([]Effect, len(c.Effects))
	for i, e := range c.Effects {
		out.Effects[i] = e.clone()
	}
	if c.Masks != nil {
		out.Masks = make([]Mask, len(c.Masks))
		for i, m := range c.Masks {
			out.Masks[i] = m.clone()
		}
	}
	if c.NestedTracks != nil {
		out.NestedTracks = append([]Track(nil), c.NestedTracks...)
	}
	if c.NestedClips != nil {
		out.NestedClips = make([]*Clip, len(c.NestedClips))
		for i, n := range c.NestedClips {
			out.NestedClips[i] = n.Clone()
		}
	}
	if c.NestedKeyframes != nil {
		out.NestedKeyframes = make(map[string][]Keyframe, len(c.NestedKeyframes))
		for k, v := range c.NestedKeyframes {
			out.NestedKeyframes[k] = append([]Keyframe(nil), v...)
		}
	}
	return &out
}

// NestedContent is the materialized timeline of a child composition used to
// populate a composition clip.
type NestedContent struct {
	CompositionID string
	Name          string
	Duration      float64
	Tracks        []Track
	Clips         []*Clip
	Keyframes     map[string][]Keyframe
}

// View holds the non-content state that travels with a timeline snapshot.
type View struct {
	Playhead float64  `json:"playhead"`
	Duration float64  `json:"duration"`
	Zoom     float64  `json:"zoom"`
	ScrollX  float64  `json:"scroll_x"`
	InPoint  *float64 `json:"in_point,omitempty"`
	OutPoint *float64 `json:"out_point,omitempty"`
	Loop     bool     `json:"loop"`
}

const (
	// DefaultZoom is pixels per second for a fresh timeline.
	DefaultZoom = 50.0
	// MinZoom is the fully zoomed-out level.
	MinZoom = 1.0
)

func defaultView() View {
	return View{Zoom: DefaultZoom}
}

// NewID returns a random identifier for tracks, clips and keyframes.
func NewID() string {
	return uuid.NewString()
}
