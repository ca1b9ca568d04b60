package ramcache

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/heimdex/heimdex-timeline/internal/interp"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// fakeEngine records what the fill pass asks of the compositor.
type fakeEngine struct {
	mu         sync.Mutex
	renders    int
	cached     []float64
	cleared    int
	generating bool
	toggles    []bool
}

func (e *fakeEngine) Render(ctx context.Context, _ []timeline.Layer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.renders++
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) CacheCompositeFrame(t float64) error {
	e.mu.Lock()
	e.cached = append(e.cached, t)
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) ClearCompositeCache() {
	e.mu.Lock()
	e.cleared++
	e.cached = nil
	e.mu.Unlock()
}

func (e *fakeEngine) SetGeneratingRamPreview(on bool) {
	e.mu.Lock()
	e.generating = on
	e.toggles = append(e.toggles, on)
	e.mu.Unlock()
}

func (e *fakeEngine) cachedTimes() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.cached...)
}

func newTimeline(t *testing.T) *timeline.Timeline {
	t.Helper()
	return timeline.New(timeline.Options{})
}

func videoTrack(t *testing.T, tl *timeline.Timeline) string {
	t.Helper()
	for _, tr := range tl.Tracks() {
		if tr.Kind == timeline.TrackVideo {
			return tr.ID
		}
	}
	t.Fatal("no video track")
	return ""
}

func audioTrack(t *testing.T, tl *timeline.Timeline) string {
	t.Helper()
	for _, tr := range tl.Tracks() {
		if tr.Kind == timeline.TrackAudio {
			return tr.ID
		}
	}
	t.Fatal("no audio track")
	return ""
}

func addVideo(t *testing.T, tl *timeline.Timeline, mediaID string, start, duration float64) *timeline.Clip {
	t.Helper()
	c, err := tl.AddClip(videoTrack(t, tl), timeline.Source{
		Kind:        timeline.SourceVideo,
		MediaFileID: mediaID,
		Duration:    duration,
		NoAudio:     true,
	}, start)
	if err != nil {
		t.Fatalf("AddClip() error = %v", err)
	}
	return c
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{1, 30},
		{1.0 / 30, 1},
		{0.016, 0},
		{0.017, 1},
		{2.5, 75},
	}
	for _, tt := range tests {
		if got := Quantize(tt.in); got != tt.want {
			t.Errorf("Quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestGetCachedRanges(t *testing.T) {
	c := New(nil, 0, 0, nil)
	for _, k := range []float64{0, 1, 3, 10} {
		c.AddCachedFrame(k / FrameRate)
	}

	got := c.GetCachedRanges()
	want := []Range{
		{Start: 0, End: 4 / FrameRate},
		{Start: 10 / FrameRate, End: 11 / FrameRate},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetCachedRanges() = %+v, want %+v", got, want)
	}
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
}

func TestGetCachedRanges_Empty(t *testing.T) {
	c := New(nil, 0, 0, nil)
	if got := c.GetCachedRanges(); got != nil {
		t.Errorf("GetCachedRanges() = %+v, want nil", got)
	}
}

func TestAttach_InvalidationContract(t *testing.T) {
	tests := []struct {
		name       string
		edit       func(t *testing.T, tl *timeline.Timeline, clip *timeline.Clip)
		invalidate bool
	}{
		{
			name: "move clip",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				if _, err := tl.MoveClip(c.ID, 4, timeline.MoveOptions{}); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: true,
		},
		{
			name: "trim clip",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				if _, err := tl.TrimClip(c.ID, 0, 1); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: true,
		},
		{
			name: "split clip",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				if _, _, err := tl.SplitClip(c.ID, 1); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: true,
		},
		{
			name: "add keyframe",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				if _, err := tl.AddKeyframe(c.ID, timeline.PropOpacity, 0, 0.5, interp.Linear); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: true,
		},
		{
			name: "reverse clip",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				on := true
				if _, err := tl.UpdateClip(c.ID, timeline.ClipUpdate{Reversed: &on}); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: true,
		},
		{
			name: "hide video track",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				off := false
				if _, err := tl.UpdateTrack(c.TrackID, timeline.TrackUpdate{Visible: &off}); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: true,
		},
		{
			name: "mute audio track",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				on := true
				if _, err := tl.UpdateTrack(audioTrack(t, tl), timeline.TrackUpdate{Muted: &on}); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: false,
		},
		{
			name: "solo audio track",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				on := true
				if _, err := tl.UpdateTrack(audioTrack(t, tl), timeline.TrackUpdate{Solo: &on}); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: false,
		},
		{
			name: "move playhead",
			edit: func(t *testing.T, tl *timeline.Timeline, c *timeline.Clip) {
				if err := tl.SetPlayhead(1.5); err != nil {
					t.Fatal(err)
				}
			},
			invalidate: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := newTimeline(t)
			clip := addVideo(t, tl, "m1", 0, 2)
			eng := &fakeEngine{}
			cache := New(eng, 0, 0, nil)
			detach := cache.Attach(tl)
			defer detach()

			cache.AddCachedFrame(0.5)
			tt.edit(t, tl, clip)

			invalidated := cache.Len() == 0
			if invalidated != tt.invalidate {
				t.Errorf("invalidated = %v, want %v", invalidated, tt.invalidate)
			}
			if tt.invalidate && eng.cleared == 0 {
				t.Error("engine composite cache was not cleared")
			}
		})
	}
}

func TestAttach_InOutDropsValidatedRange(t *testing.T) {
	tl := newTimeline(t)
	addVideo(t, tl, "m1", 0, 1)
	cache := New(&fakeEngine{}, 0, 0, nil)
	defer cache.Attach(tl)()

	gen, seq := cache.beginFill(func() {})
	cache.AddCachedFrame(0)
	cache.finishFill(gen, seq, &Range{Start: 0, End: 1})
	if !cache.IsValidated(0.5) || cache.State() != StateReady {
		t.Fatalf("state = %s, validated = %v", cache.State(), cache.IsValidated(0.5))
	}

	in := 0.25
	if err := tl.SetInOut(&in, nil); err != nil {
		t.Fatal(err)
	}
	if cache.IsValidated(0.5) {
		t.Error("validated range survived an in/out change")
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want cached frames kept", cache.Len())
	}
}

func TestMarkCached_StaleGeneration(t *testing.T) {
	cache := New(&fakeEngine{}, 0, 0, nil)
	gen, _ := cache.beginFill(func() {})
	cache.Invalidate("test")

	if cache.markCached(0.1, gen) {
		t.Error("markCached() accepted a frame from an invalidated fill")
	}
	if cache.IsCached(0.1) {
		t.Error("frame cached after invalidation")
	}
}

func TestStatus_MemoryEstimate(t *testing.T) {
	cache := New(nil, 2, 2, nil)
	for k := 0; k < 3; k++ {
		cache.AddCachedFrame(float64(k) / FrameRate)
	}
	st := cache.Status()
	if st.Frames != 3 || st.MemoryBytes != 48 {
		t.Errorf("Status() = %+v, want 3 frames, 48 bytes", st)
	}
	if st.MemoryEstimate != "48 B" {
		t.Errorf("MemoryEstimate = %q, want %q", st.MemoryEstimate, "48 B")
	}
}
