package api

import (
	"time"

	"github.com/heimdex/heimdex-timeline/internal/composition"
	"github.com/heimdex/heimdex-timeline/internal/ramcache"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	ActiveComposition string          `json:"active_composition"`
	Tracks            int             `json:"tracks"`
	Clips             int             `json:"clips"`
	Duration          float64         `json:"duration"`
	Playhead          float64         `json:"playhead"`
	Playing           bool            `json:"playing"`
	Preview           ramcache.Status `json:"preview"`
	CanUndo           bool            `json:"can_undo"`
	CanRedo           bool            `json:"can_redo"`
}

type TimelineResponse struct {
	CompositionID string            `json:"composition_id"`
	View          timeline.View     `json:"view"`
	Tracks        []timeline.Track  `json:"tracks"`
	Clips         []*timeline.Clip  `json:"clips"`
	Snapshot      timeline.Snapshot `json:"snapshot"`
}

type AddTrackRequest struct {
	Kind timeline.TrackKind `json:"kind"`
	Name string             `json:"name,omitempty"`
}

type UpdateTrackRequest struct {
	Name    *string `json:"name,omitempty"`
	Height  *int    `json:"height,omitempty"`
	Muted   *bool   `json:"muted,omitempty"`
	Visible *bool   `json:"visible,omitempty"`
	Solo    *bool   `json:"solo,omitempty"`
}

type TracksResponse struct {
	Tracks []timeline.Track `json:"tracks"`
}

type AddClipRequest struct {
	TrackID     string  `json:"track_id"`
	MediaFileID string  `json:"media_file_id"`
	Start       float64 `json:"start"`
}

type UpdateClipRequest struct {
	Name     *string  `json:"name,omitempty"`
	Reversed *bool    `json:"reversed,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
}

type MoveClipRequest struct {
	Start      float64 `json:"start"`
	TrackID    string  `json:"track_id,omitempty"`
	SkipLinked bool    `json:"skip_linked,omitempty"`
	NoSnap     bool    `json:"no_snap,omitempty"`
}

type TrimClipRequest struct {
	InPoint  float64 `json:"in_point"`
	OutPoint float64 `json:"out_point"`
}

type SplitClipRequest struct {
	Time float64 `json:"time"`
}

type SplitClipResponse struct {
	First  *timeline.Clip `json:"first"`
	Second *timeline.Clip `json:"second"`
}

type DropClipRequest struct {
	CompositionID string  `json:"composition_id"`
	Start         float64 `json:"start"`
}

type ClipsResponse struct {
	Clips []*timeline.Clip `json:"clips"`
}

type PropertyValueRequest struct {
	Value float64 `json:"value"`
}

type RecordingRequest struct {
	Property string `json:"property"`
	On       bool   `json:"on"`
}

type PropertyModeResponse struct {
	Property string                `json:"property"`
	Mode     timeline.PropertyMode `json:"mode"`
}

type EvaluateResponse struct {
	Time      float64            `json:"time"`
	Transform timeline.Transform `json:"transform"`
	Effects   []timeline.Effect  `json:"effects"`
}

type AddKeyframeRequest struct {
	Property string  `json:"property"`
	Time     float64 `json:"time"`
	Value    float64 `json:"value"`
	Easing   string  `json:"easing,omitempty"`
}

type UpdateKeyframeRequest struct {
	Time   *float64 `json:"time,omitempty"`
	Value  *float64 `json:"value,omitempty"`
	Easing *string  `json:"easing,omitempty"`
}

type KeyframesResponse struct {
	Keyframes []timeline.Keyframe `json:"keyframes"`
}

type AddEffectRequest struct {
	Type   string         `json:"type"`
	Name   string         `json:"name,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

type UpdateEffectRequest struct {
	Enabled *bool          `json:"enabled,omitempty"`
	Name    *string        `json:"name,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// UpdateViewRequest changes selected view fields. ClearInOut removes both
// markers before InPoint and OutPoint are applied.
type UpdateViewRequest struct {
	Playhead   *float64 `json:"playhead,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
	Zoom       *float64 `json:"zoom,omitempty"`
	ScrollX    *float64 `json:"scroll_x,omitempty"`
	Loop       *bool    `json:"loop,omitempty"`
	InPoint    *float64 `json:"in_point,omitempty"`
	OutPoint   *float64 `json:"out_point,omitempty"`
	ClearInOut bool     `json:"clear_in_out,omitempty"`
}

type RenderRequest struct {
	Time float64 `json:"time"`
}

type RenderResponse struct {
	Time     float64 `json:"time"`
	CacheHit bool    `json:"cache_hit"`
}

type PlaybackResponse struct {
	Playing  bool    `json:"playing"`
	Playhead float64 `json:"playhead"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
}

type CreateCompositionRequest struct {
	Name      string  `json:"name"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

type RenameCompositionRequest struct {
	Name string `json:"name"`
}

type CompositionClipRequest struct {
	TrackID string  `json:"track_id"`
	Start   float64 `json:"start"`
}

// CompositionSummary omits the stored snapshot.
type CompositionSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
	Duration  float64 `json:"duration"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type CompositionsResponse struct {
	ActiveID     string               `json:"active_id"`
	Compositions []CompositionSummary `json:"compositions"`
}

type ImportMediaRequest struct {
	Path     string              `json:"path"`
	Name     string              `json:"name,omitempty"`
	Kind     timeline.SourceKind `json:"kind,omitempty"`
	Duration float64             `json:"duration"`
	HasAudio bool                `json:"has_audio"`
	Width    int                 `json:"width,omitempty"`
	Height   int                 `json:"height,omitempty"`
}

type PreviewResponse struct {
	Cache   ramcache.Status      `json:"cache"`
	Filling bool                 `json:"filling"`
	Last    *ramcache.FillResult `json:"last,omitempty"`
}

type HistoryResponse struct {
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
	Undo    int  `json:"undo"`
	Redo    int  `json:"redo"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func CompositionToSummary(c *composition.Composition, activeID string) CompositionSummary {
	return CompositionSummary{
		ID:        c.ID,
		Name:      c.Name,
		Width:     c.Width,
		Height:    c.Height,
		FrameRate: c.FrameRate,
		Duration:  c.Duration,
		Active:    c.ID == activeID,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}
