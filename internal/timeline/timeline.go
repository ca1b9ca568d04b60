// Package timeline holds the clip/track model of one composition: tracks,
// clips with their keyframes, effects and masks, and the view state that is
// persisted alongside them. Every mutation goes through a Timeline method,
// which serializes edits and publishes an Event to subscribers once the new
// state is visible to readers.
package timeline

import (
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/heimdex/heimdex-timeline/internal/placement"
)

// DefaultImageDuration is the length given to still images when they are
// added without an explicit duration.
const DefaultImageDuration = 5.0

// keyframeEpsilon is the tolerance within which two keyframe times are the
// same time.
const keyframeEpsilon = 1e-6

// EventKind names the change an Event reports.
type EventKind string

const (
	EventClipAdded     EventKind = "clip_added"
	EventClipRemoved   EventKind = "clip_removed"
	EventClipMoved     EventKind = "clip_moved"
	EventClipTrimmed   EventKind = "clip_trimmed"
	EventClipSplit     EventKind = "clip_split"
	EventClipUpdated   EventKind = "clip_updated"
	EventTransform     EventKind = "transform"
	EventKeyframe      EventKind = "keyframe"
	EventEffect        EventKind = "effect"
	EventMask          EventKind = "mask"
	EventAudio         EventKind = "audio"
	EventTrackAdded    EventKind = "track_added"
	EventTrackRemoved  EventKind = "track_removed"
	EventTrackUpdated  EventKind = "track_updated"
	EventPlayhead      EventKind = "playhead"
	EventView          EventKind = "view"
	EventInOut         EventKind = "in_out"
	EventStateLoaded   EventKind = "state_loaded"
	EventCleared       EventKind = "cleared"
	EventRecordingMode EventKind = "recording_mode"
)

// Event is published after every successful edit. Visual is true when the
// edit can change a rendered frame and cached frames must be discarded.
type Event struct {
	Kind    EventKind
	ClipIDs []string
	TrackID string
	Visual  bool
}

// CycleChecker reports an error when placing a clip of the given child
// composition into the timeline would create a reference cycle.
type CycleChecker func(childCompositionID string) error

// MediaResolver looks up a media file when a snapshot is loaded. ok is false
// when the file no longer exists.
type MediaResolver interface {
	ResolveMedia(mediaFileID string) (Source, bool)
}

// NestedLoader materializes the content of a child composition for a
// composition clip. ok is false when the composition no longer exists.
type NestedLoader func(compositionID string) (NestedContent, bool)

// Options configure New. Zero values fall back to defaults.
type Options struct {
	Logger               *slog.Logger
	SnapThreshold        float64
	DefaultImageDuration float64
}

type propKey struct {
	clipID   string
	property string
}

// Timeline holds the tracks, clips and view of the active composition. It is
// safe for concurrent use; edits are serialized and published as events.
type Timeline struct {
	editMu sync.Mutex
	mu     sync.RWMutex

	tracks    []*Track
	clips     []*Clip
	keyframes map[string][]Keyframe
	modes     map[propKey]PropertyMode
	recording map[propKey]bool
	view      View

	snapThreshold float64
	imageDuration float64

	cycleCheck CycleChecker
	media      MediaResolver
	nested     NestedLoader

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int

	logger *slog.Logger
}

// New returns a timeline with one video and one audio track.
func New(opts Options) *Timeline {
	t := &Timeline{
		keyframes:     make(map[string][]Keyframe),
		modes:         make(map[propKey]PropertyMode),
		recording:     make(map[propKey]bool),
		view:          defaultView(),
		snapThreshold: opts.SnapThreshold,
		imageDuration: opts.DefaultImageDuration,
		observers:     make(map[int]func(Event)),
		logger:        opts.Logger,
	}
	if t.snapThreshold < 0 {
		t.snapThreshold = 0
	}
	if t.imageDuration <= 0 {
		t.imageDuration = DefaultImageDuration
	}
	t.resetTracksLocked()
	return t
}

// SetCycleChecker installs the hook consulted before a composition clip is
// added or moved.
func (t *Timeline) SetCycleChecker(fn CycleChecker) {
	t.mu.Lock()
	t.cycleCheck = fn
	t.mu.Unlock()
}

// SetMediaResolver installs the lookup used to skip clips with missing media.
func (t *Timeline) SetMediaResolver(r MediaResolver) {
	t.mu.Lock()
	t.media = r
	t.mu.Unlock()
}

// SetNestedLoader installs the loader that fills composition clips.
func (t *Timeline) SetNestedLoader(fn NestedLoader) {
	t.mu.Lock()
	t.nested = fn
	t.mu.Unlock()
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. fn runs synchronously on the editing goroutine after the
// state lock is released, so it may read from the timeline but must not edit.
func (t *Timeline) Subscribe(fn func(Event)) (unsubscribe func()) {
	t.obsMu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	t.obsMu.Unlock()

	return func() {
		t.obsMu.Lock()
		delete(t.observers, id)
		t.obsMu.Unlock()
	}
}

func (t *Timeline) publish(ev Event) {
	t.obsMu.Lock()
	fns := make([]func(Event), 0, len(t.observers))
	for _, fn := range t.observers {
		fns = append(fns, fn)
	}
	t.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// edit runs fn under the state lock and publishes the event it returns.
// Edits are serialized so observers see events in mutation order.
func (t *Timeline) edit(fn func() (Event, error)) error {
	t.editMu.Lock()
	defer t.editMu.Unlock()

	t.mu.Lock()
	ev, err := fn()
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if ev.Kind != "" {
		t.publish(ev)
	}
	return nil
}

func (t *Timeline) log() *slog.Logger {
	if t.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t.logger
}

func (t *Timeline) resetTracksLocked() {
	t.tracks = []*Track{
		newTrack(TrackVideo, "Video 1"),
		newTrack(TrackAudio, "Audio 1"),
	}
	t.clips = nil
	t.keyframes = make(map[string][]Keyframe)
	t.modes = make(map[propKey]PropertyMode)
	t.recording = make(map[propKey]bool)
}

// NewTrack returns a visible track with the default height for its kind.
func NewTrack(kind TrackKind, name string) Track {
	return *newTrack(kind, name)
}

func newTrack(kind TrackKind, name string) *Track {
	height := DefaultVideoTrackHeight
	if kind == TrackAudio {
		height = DefaultAudioTrackHeight
	}
	return &Track{
		ID:      NewID(),
		Name:    name,
		Kind:    kind,
		Height:  height,
		Visible: true,
	}
}

func (t *Timeline) trackLocked(id string) *Track {
	for _, tr := range t.tracks {
		if tr.ID == id {
			return tr
		}
	}
	return nil
}

func (t *Timeline) clipLocked(id string) *Clip {
	if id == "" {
		return nil
	}
	for _, c := range t.clips {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (t *Timeline) clipIndexLocked(id string) int {
	for i, c := range t.clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// spansLocked returns the spans of every clip on trackID except the excluded
// IDs.
func (t *Timeline) spansLocked(trackID string, exclude ...string) []placement.Span {
	var spans []placement.Span
outer:
	for _, c := range t.clips {
		if c.TrackID != trackID {
			continue
		}
		for _, id := range exclude {
			if c.ID == id {
				continue outer
			}
		}
		spans = append(spans, placement.Span{ID: c.ID, Start: c.StartTime, Duration: c.Duration})
	}
	return spans
}

func (t *Timeline) contentEndLocked() float64 {
	end := 0.0
	for _, c := range t.clips {
		end = math.Max(end, c.End())
	}
	return end
}

func (t *Timeline) durationLocked() float64 {
	return math.Max(t.view.Duration, t.contentEndLocked())
}

// Tracks returns copies of all tracks, top video track first.
func (t *Timeline) Tracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = *tr
	}
	return out
}

// Track returns a copy of one track.
func (t *Timeline) Track(id string) (Track, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr := t.trackLocked(id)
	if tr == nil {
		return Track{}, notFound("track", id)
	}
	return *tr, nil
}

// Clips returns copies of all clips in insertion order.
func (t *Timeline) Clips() []*Clip {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Clip, len(t.clips))
	for i, c := range t.clips {
		out[i] = c.Clone()
	}
	return out
}

// Clip returns a copy of one clip.
func (t *Timeline) Clip(id string) (*Clip, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := t.clipLocked(id)
	if c == nil {
		return nil, notFound("clip", id)
	}
	return c.Clone(), nil
}

// ClipsOnTrack returns copies of the clips on trackID ordered by start time.
func (t *Timeline) ClipsOnTrack(trackID string) []*Clip {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Clip
	for _, c := range t.clips {
		if c.TrackID == trackID {
			out = append(out, c.Clone())
		}
	}
	sortByStart(out)
	return out
}

// ContentEnd is the end time of the last clip.
func (t *Timeline) ContentEnd() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.contentEndLocked()
}

// Duration is the larger of the explicit duration and the content end.
func (t *Timeline) Duration() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.durationLocked()
}

// ClearTimeline drops all clips and keyframes and restores the default
// tracks and view.
func (t *Timeline) ClearTimeline() error {
	return t.edit(func() (Event, error) {
		t.resetTracksLocked()
		t.view = defaultView()
		return Event{Kind: EventCleared, Visual: true}, nil
	})
}
