package timeline

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/heimdex/heimdex-timeline/internal/interp"
)

func newTestTimeline(t *testing.T) *Timeline {
	t.Helper()
	return New(Options{SnapThreshold: 0.1})
}

func trackOfKind(t *testing.T, tl *Timeline, kind TrackKind) string {
	t.Helper()
	for _, tr := range tl.Tracks() {
		if tr.Kind == kind {
			return tr.ID
		}
	}
	t.Fatalf("no %s track", kind)
	return ""
}

func addVideo(t *testing.T, tl *Timeline, start, duration float64) *Clip {
	t.Helper()
	c, err := tl.AddClip(trackOfKind(t, tl, TrackVideo), Source{Kind: SourceVideo, MediaFileID: "m1", Duration: duration}, start)
	if err != nil {
		t.Fatalf("AddClip() error = %v", err)
	}
	return c
}

func mustClip(t *testing.T, tl *Timeline, id string) *Clip {
	t.Helper()
	c, err := tl.Clip(id)
	if err != nil {
		t.Fatalf("Clip(%s) error = %v", id, err)
	}
	return c
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNew_DefaultTracks(t *testing.T) {
	tl := newTestTimeline(t)
	tracks := tl.Tracks()
	if len(tracks) != 2 || tracks[0].Kind != TrackVideo || tracks[1].Kind != TrackAudio {
		t.Fatalf("Tracks() = %+v, want video then audio", tracks)
	}
}

func TestAddClip_VideoGetsLinkedAudio(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 8)

	if c.LinkedClipID == "" {
		t.Fatal("LinkedClipID is empty")
	}
	a := mustClip(t, tl, c.LinkedClipID)
	if a.Kind() != TrackAudio || a.StartTime != 2 || a.Duration != 8 {
		t.Errorf("linked clip = %+v", a)
	}
	if a.LinkedClipID != c.ID {
		t.Errorf("audio LinkedClipID = %q, want %q", a.LinkedClipID, c.ID)
	}
}

func TestAddClip_NoAudioSource(t *testing.T) {
	tl := newTestTimeline(t)
	c, err := tl.AddClip(trackOfKind(t, tl, TrackVideo), Source{Kind: SourceVideo, Duration: 3, NoAudio: true}, 0)
	if err != nil {
		t.Fatalf("AddClip() error = %v", err)
	}
	if c.LinkedClipID != "" || len(tl.Clips()) != 1 {
		t.Errorf("expected a single unlinked clip, got %d clips", len(tl.Clips()))
	}
}

func TestAddClip_ImageDefaultDuration(t *testing.T) {
	tl := New(Options{DefaultImageDuration: 3})
	c, err := tl.AddClip(trackOfKind(t, tl, TrackVideo), Source{Kind: SourceImage, MediaFileID: "img"}, 0)
	if err != nil {
		t.Fatalf("AddClip() error = %v", err)
	}
	if c.Duration != 3 || c.SourceDuration != 0 {
		t.Errorf("image clip duration = %v, source duration = %v", c.Duration, c.SourceDuration)
	}
	if _, err := tl.TrimClip(c.ID, 0, 30); err != nil {
		t.Errorf("TrimClip() on image error = %v, want unbounded", err)
	}
}

func TestAddClip_KindMismatchRejected(t *testing.T) {
	tl := newTestTimeline(t)
	_, err := tl.AddClip(trackOfKind(t, tl, TrackVideo), Source{Kind: SourceAudio, Duration: 3}, 0)
	if !errors.Is(err, ErrRejected) {
		t.Errorf("AddClip() error = %v, want ErrRejected", err)
	}
	if len(tl.Clips()) != 0 {
		t.Error("rejected add changed state")
	}
}

func TestAddClip_ResolvesOverlap(t *testing.T) {
	tl := newTestTimeline(t)
	v := trackOfKind(t, tl, TrackVideo)
	if _, err := tl.AddClip(v, Source{Kind: SourceVideo, Duration: 5, NoAudio: true}, 5); err != nil {
		t.Fatal(err)
	}
	c, err := tl.AddClip(v, Source{Kind: SourceVideo, Duration: 5, NoAudio: true}, 6)
	if err != nil {
		t.Fatal(err)
	}
	if c.StartTime != 10 {
		t.Errorf("StartTime = %v, want 10", c.StartTime)
	}
}

func TestAddClip_CreatesAudioTrackWhenBusy(t *testing.T) {
	tl := newTestTimeline(t)
	a := trackOfKind(t, tl, TrackAudio)
	if _, err := tl.AddClip(a, Source{Kind: SourceAudio, Duration: 10}, 20); err != nil {
		t.Fatal(err)
	}
	c := addVideo(t, tl, 22, 4)
	partner := mustClip(t, tl, c.LinkedClipID)
	if partner.TrackID == a {
		t.Error("linked audio placed on busy track")
	}
	audio := 0
	for _, tr := range tl.Tracks() {
		if tr.Kind == TrackAudio {
			audio++
		}
	}
	if audio != 2 {
		t.Errorf("audio tracks = %d, want 2", audio)
	}
}

func TestAddTrack_VideoOnTopAudioAtBottom(t *testing.T) {
	tl := newTestTimeline(t)
	v2, _ := tl.AddTrack(TrackVideo, "")
	a2, _ := tl.AddTrack(TrackAudio, "")
	tracks := tl.Tracks()
	if tracks[0].ID != v2.ID {
		t.Errorf("tracks[0] = %s, want new video track", tracks[0].Name)
	}
	if tracks[len(tracks)-1].ID != a2.ID {
		t.Errorf("last track = %s, want new audio track", tracks[len(tracks)-1].Name)
	}
	if v2.Name != "Video 2" || a2.Name != "Audio 2" {
		t.Errorf("names = %q, %q", v2.Name, a2.Name)
	}
}

func TestMoveClip_LinkedPartnerSameDelta(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 4)

	moved, err := tl.MoveClip(c.ID, 7, MoveOptions{NoSnap: true})
	if err != nil {
		t.Fatalf("MoveClip() error = %v", err)
	}
	a := mustClip(t, tl, c.LinkedClipID)
	if moved.StartTime != 7 || a.StartTime != 7 {
		t.Errorf("starts = %v, %v; want 7, 7", moved.StartTime, a.StartTime)
	}
	if a.TrackID != trackOfKind(t, tl, TrackAudio) {
		t.Error("partner changed track")
	}
}

func TestMoveClip_SkipLinked(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 4)
	if _, err := tl.MoveClip(c.ID, 9, MoveOptions{SkipLinked: true, NoSnap: true}); err != nil {
		t.Fatal(err)
	}
	if a := mustClip(t, tl, c.LinkedClipID); a.StartTime != 2 {
		t.Errorf("partner start = %v, want 2", a.StartTime)
	}
}

func TestMoveClip_PartnerStopsAtZero(t *testing.T) {
	tl := New(Options{SnapThreshold: 0.1, DefaultImageDuration: 3})
	v := trackOfKind(t, tl, TrackVideo)
	c := addVideo(t, tl, 3, 5)
	if _, err := tl.MoveClip(c.ID, 20, MoveOptions{SkipLinked: true, NoSnap: true}); err != nil {
		t.Fatal(err)
	}
	still, err := tl.AddClip(v, Source{Kind: SourceImage, MediaFileID: "img"}, 15)
	if err != nil {
		t.Fatal(err)
	}

	moved, err := tl.MoveClip(c.ID, 1, MoveOptions{NoSnap: true})
	if err != nil {
		t.Fatalf("MoveClip() error = %v", err)
	}
	if moved.StartTime != 1 {
		t.Errorf("StartTime = %v, want 1", moved.StartTime)
	}
	if a := mustClip(t, tl, c.LinkedClipID); a.StartTime != 0 {
		t.Errorf("partner start = %v, want 0", a.StartTime)
	}
	b := mustClip(t, tl, still.ID)
	if moved.StartTime < b.StartTime+b.Duration && b.StartTime < moved.StartTime+moved.Duration {
		t.Errorf("moved clip [%v,%v) overlaps [%v,%v)", moved.StartTime, moved.StartTime+moved.Duration, b.StartTime, b.StartTime+b.Duration)
	}
}

func TestMoveClip_Snaps(t *testing.T) {
	tl := newTestTimeline(t)
	v := trackOfKind(t, tl, TrackVideo)
	c, _ := tl.AddClip(v, Source{Kind: SourceVideo, Duration: 8, NoAudio: true}, 2)
	if _, err := tl.AddClip(v, Source{Kind: SourceVideo, Duration: 5, NoAudio: true}, 10); err != nil {
		t.Fatal(err)
	}
	moved, err := tl.MoveClip(c.ID, 2.05, MoveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !near(moved.StartTime, 2) {
		t.Errorf("StartTime = %v, want 2 (end snapped to neighbour)", moved.StartTime)
	}
}

func TestMoveClip_WrongTrackKindRejected(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 0, 4)
	_, err := tl.MoveClip(c.ID, 0, MoveOptions{TrackID: trackOfKind(t, tl, TrackAudio)})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("MoveClip() error = %v, want ErrRejected", err)
	}
}

func TestMoveClip_CycleCheckRejects(t *testing.T) {
	tl := newTestTimeline(t)
	v := trackOfKind(t, tl, TrackVideo)
	c, err := tl.AddCompositionClip(v, NestedContent{CompositionID: "child", Name: "child", Duration: 4}, 0)
	if err != nil {
		t.Fatal(err)
	}
	cycle := errors.New("cycle")
	tl.SetCycleChecker(func(child string) error {
		if child == "child" {
			return cycle
		}
		return nil
	})
	if _, err := tl.MoveClip(c.ID, 3, MoveOptions{}); !errors.Is(err, cycle) {
		t.Errorf("MoveClip() error = %v, want cycle error", err)
	}
}

func TestTrimClip(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 8)

	trimmed, err := tl.TrimClip(c.ID, 1, 5)
	if err != nil {
		t.Fatalf("TrimClip() error = %v", err)
	}
	if trimmed.Duration != 4 || trimmed.InPoint != 1 || trimmed.OutPoint != 5 {
		t.Errorf("trimmed = %+v", trimmed)
	}
	if a := mustClip(t, tl, c.LinkedClipID); a.Duration != 8 {
		t.Errorf("partner duration = %v, want untouched 8", a.Duration)
	}

	for _, tc := range []struct{ in, out float64 }{{3, 3}, {-1, 2}, {0, 9}} {
		if _, err := tl.TrimClip(c.ID, tc.in, tc.out); !errors.Is(err, ErrRejected) {
			t.Errorf("TrimClip(%v, %v) error = %v, want ErrRejected", tc.in, tc.out, err)
		}
	}
}

func TestTrimClip_ClampsKeyframes(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 0, 10)
	for _, kf := range []struct {
		prop  string
		time  float64
		value float64
	}{
		{PropOpacity, 0, 0},
		{PropOpacity, 9, 0.9},
		{PropScaleX, 2, 1.5},
		{PropRotationZ, 8, 45},
	} {
		if _, err := tl.AddKeyframe(c.ID, kf.prop, kf.time, kf.value, interp.Linear); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := tl.TrimClip(c.ID, 0, 4); err != nil {
		t.Fatalf("TrimClip() error = %v", err)
	}
	kfs, _ := tl.Keyframes(c.ID)
	for _, k := range kfs {
		if k.Time < 0 || k.Time > 4 {
			t.Errorf("%s keyframe at %v outside [0,4]", k.Property, k.Time)
		}
	}

	tests := []struct {
		prop  string
		count int
		last  float64
	}{
		{PropOpacity, 2, 0.4},
		{PropScaleX, 1, 1.5},
		{PropRotationZ, 1, 45},
	}
	for _, tt := range tests {
		track := interp.ForProperty(kfs, tt.prop)
		if len(track) != tt.count {
			t.Errorf("%s keyframes = %+v, want %d", tt.prop, track, tt.count)
			continue
		}
		if got := track[len(track)-1].Value; !near(got, tt.last) {
			t.Errorf("%s last value = %v, want %v", tt.prop, got, tt.last)
		}
		if mode, _ := tl.PropertyMode(c.ID, tt.prop); mode != ModeKeyframed {
			t.Errorf("%s mode = %s, want keyframed", tt.prop, mode)
		}
	}
}

func TestSplitClip(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 8)

	a, b, err := tl.SplitClip(c.ID, 5)
	if err != nil {
		t.Fatalf("SplitClip() error = %v", err)
	}
	if a.StartTime != 2 || a.Duration != 3 || a.InPoint != 0 || a.OutPoint != 3 {
		t.Errorf("first = %+v", a)
	}
	if b.StartTime != 5 || b.Duration != 5 || b.InPoint != 3 || b.OutPoint != 8 {
		t.Errorf("second = %+v", b)
	}
	if _, err := tl.Clip(c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("original still present: %v", err)
	}

	pa := mustClip(t, tl, a.LinkedClipID)
	pb := mustClip(t, tl, b.LinkedClipID)
	if pa.Kind() != TrackAudio || pa.StartTime != 2 || pa.Duration != 3 || pa.LinkedClipID != a.ID {
		t.Errorf("audio first = %+v", pa)
	}
	if pb.StartTime != 5 || pb.Duration != 5 || pb.LinkedClipID != b.ID {
		t.Errorf("audio second = %+v", pb)
	}
	if len(tl.Clips()) != 4 {
		t.Errorf("clips = %d, want 4", len(tl.Clips()))
	}
}

func TestSplitClip_Reversed(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 8)
	rev := true
	if _, err := tl.UpdateClip(c.ID, ClipUpdate{Reversed: &rev}); err != nil {
		t.Fatal(err)
	}
	a, b, err := tl.SplitClip(c.ID, 5)
	if err != nil {
		t.Fatal(err)
	}
	if a.InPoint != 5 || a.OutPoint != 8 {
		t.Errorf("first in/out = %v/%v, want 5/8", a.InPoint, a.OutPoint)
	}
	if b.InPoint != 0 || b.OutPoint != 5 {
		t.Errorf("second in/out = %v/%v, want 0/5", b.InPoint, b.OutPoint)
	}
	if a.SourceTime(2) != 8 || b.SourceTime(5) != 5 {
		t.Errorf("source times = %v, %v", a.SourceTime(2), b.SourceTime(5))
	}
}

func TestSplitClip_OutsideRejected(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 8)
	for _, at := range []float64{2, 10, 1, 11} {
		if _, _, err := tl.SplitClip(c.ID, at); !errors.Is(err, ErrRejected) {
			t.Errorf("SplitClip(%v) error = %v, want ErrRejected", at, err)
		}
	}
}

func TestSplitClip_KeyframesGetBoundary(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 8)
	if _, err := tl.AddKeyframe(c.ID, PropOpacity, 0, 0, interp.Linear); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.AddKeyframe(c.ID, PropOpacity, 8, 1, interp.Linear); err != nil {
		t.Fatal(err)
	}

	a, b, err := tl.SplitClip(c.ID, 6)
	if err != nil {
		t.Fatal(err)
	}
	ka, _ := tl.Keyframes(a.ID)
	kb, _ := tl.Keyframes(b.ID)
	if len(ka) != 2 || ka[1].Time != 4 || !near(ka[1].Value, 0.5) {
		t.Errorf("first keyframes = %+v", ka)
	}
	if len(kb) != 2 || kb[0].Time != 0 || !near(kb[0].Value, 0.5) || kb[1].Time != 4 {
		t.Errorf("second keyframes = %+v", kb)
	}
	if v, ok, _ := tl.ValueAt(b.ID, PropOpacity, 2); !ok || !near(v, 0.75) {
		t.Errorf("ValueAt(second, 2) = %v, %v; want 0.75", v, ok)
	}
	if m, _ := tl.PropertyMode(b.ID, PropOpacity); m != ModeKeyframed {
		t.Errorf("mode = %v, want keyframed", m)
	}
}

func TestAddKeyframe_ClampsAndUpserts(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 0, 8)

	kf, err := tl.AddKeyframe(c.ID, PropOpacity, 10, 0.2, interp.Linear)
	if err != nil {
		t.Fatal(err)
	}
	if kf.Time != 8 {
		t.Errorf("Time = %v, want clamped 8", kf.Time)
	}
	if _, err := tl.AddKeyframe(c.ID, PropOpacity, 8, 0.9, interp.EaseIn); err != nil {
		t.Fatal(err)
	}
	kfs, _ := tl.Keyframes(c.ID)
	if len(kfs) != 1 || kfs[0].Value != 0.9 || kfs[0].ID != kf.ID {
		t.Errorf("keyframes = %+v, want one updated in place", kfs)
	}
}

func TestAddKeyframe_UnknownPropertyRejected(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 0, 8)
	for _, p := range []string{"color", "effect.none.amount"} {
		if _, err := tl.AddKeyframe(c.ID, p, 0, 1, interp.Linear); !errors.Is(err, ErrRejected) {
			t.Errorf("AddKeyframe(%q) error = %v, want ErrRejected", p, err)
		}
	}
}

func TestMoveKeyframe_ReplacesOccupant(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 0, 8)
	k0, _ := tl.AddKeyframe(c.ID, PropScaleX, 0, 1, interp.Linear)
	if _, err := tl.AddKeyframe(c.ID, PropScaleX, 4, 2, interp.Linear); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.MoveKeyframe(k0.ID, 4); err != nil {
		t.Fatal(err)
	}
	kfs, _ := tl.Keyframes(c.ID)
	if len(kfs) != 1 || kfs[0].ID != k0.ID || kfs[0].Value != 1 {
		t.Errorf("keyframes = %+v", kfs)
	}
}

func TestPropertyModes(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 8)

	if err := tl.SetPropertyValue(c.ID, PropOpacity, 0.3); err != nil {
		t.Fatal(err)
	}
	if got := mustClip(t, tl, c.ID).Transform.Opacity; got != 0.3 {
		t.Errorf("static opacity = %v, want 0.3", got)
	}
	if kfs, _ := tl.Keyframes(c.ID); len(kfs) != 0 {
		t.Error("static edit created keyframes")
	}

	if err := tl.SetRecording(c.ID, PropOpacity, true); err != nil {
		t.Fatal(err)
	}
	if m, _ := tl.PropertyMode(c.ID, PropOpacity); m != ModeRecording {
		t.Errorf("mode = %v, want recording", m)
	}

	if err := tl.SetPlayhead(4); err != nil {
		t.Fatal(err)
	}
	if err := tl.SetPropertyValue(c.ID, PropOpacity, 0.5); err != nil {
		t.Fatal(err)
	}
	kfs, _ := tl.Keyframes(c.ID)
	if len(kfs) != 1 || kfs[0].Time != 2 || kfs[0].Value != 0.5 {
		t.Fatalf("keyframes = %+v, want one at local 2", kfs)
	}
	if m, _ := tl.PropertyMode(c.ID, PropOpacity); m != ModeKeyframed {
		t.Errorf("mode = %v, want keyframed", m)
	}

	if err := tl.RemoveKeyframe(kfs[0].ID); err != nil {
		t.Fatal(err)
	}
	if m, _ := tl.PropertyMode(c.ID, PropOpacity); m != ModeRecording {
		t.Errorf("mode after removing last = %v, want recording", m)
	}
	if err := tl.SetRecording(c.ID, PropOpacity, false); err != nil {
		t.Fatal(err)
	}
	if m, _ := tl.PropertyMode(c.ID, PropOpacity); m != ModeStatic {
		t.Errorf("mode = %v, want static", m)
	}
}

func TestSetPropertyValue_PlayheadOutsideClipClamps(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 2, 8)
	_ = tl.SetRecording(c.ID, PropPositionX, true)
	_ = tl.SetPlayhead(30)
	if err := tl.SetPropertyValue(c.ID, PropPositionX, 100); err != nil {
		t.Fatal(err)
	}
	kfs, _ := tl.Keyframes(c.ID)
	if len(kfs) != 1 || kfs[0].Time != 8 {
		t.Errorf("keyframes = %+v, want one at 8", kfs)
	}
}

func TestRemoveEffect_LeavesDanglingKeyframes(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 0, 8)
	e, err := tl.AddEffect(c.ID, "blur", "", map[string]any{"radius": 2, "mode": "gauss"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tl.AddKeyframe(c.ID, interp.EffectPath(e.ID, "mode"), 0, 1, interp.Linear); !errors.Is(err, ErrRejected) {
		t.Errorf("keyframing a string param error = %v, want ErrRejected", err)
	}
	if _, err := tl.AddKeyframe(c.ID, interp.EffectPath(e.ID, "radius"), 0, 5, interp.Linear); err != nil {
		t.Fatal(err)
	}
	_, effects, _ := tl.EvaluateClip(c.ID, 1)
	if len(effects) != 1 || effects[0].Params["radius"] != 5.0 {
		t.Errorf("effects = %+v, want radius 5", effects)
	}

	if err := tl.RemoveEffect(c.ID, e.ID); err != nil {
		t.Fatal(err)
	}
	tr, effects, err := tl.EvaluateClip(c.ID, 1)
	if err != nil || len(effects) != 0 || tr.Opacity != 1 {
		t.Errorf("EvaluateClip() = %+v, %+v, %v", tr, effects, err)
	}
	if kfs, _ := tl.Keyframes(c.ID); len(kfs) != 1 {
		t.Errorf("keyframes = %d, want dangling keyframe kept", len(kfs))
	}
}

func TestEvents_VisualFlag(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 0, 8)
	v := trackOfKind(t, tl, TrackVideo)
	a := trackOfKind(t, tl, TrackAudio)

	var mu sync.Mutex
	var got []Event
	unsubscribe := tl.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	defer unsubscribe()

	yes, no, height, vol := true, false, 90, 0.5
	steps := []struct {
		name   string
		run    func() error
		visual bool
	}{
		{"mute audio", func() error { _, err := tl.UpdateTrack(a, TrackUpdate{Muted: &yes}); return err }, false},
		{"track height", func() error { _, err := tl.UpdateTrack(v, TrackUpdate{Height: &height}); return err }, false},
		{"hide video", func() error { _, err := tl.UpdateTrack(v, TrackUpdate{Visible: &no}); return err }, true},
		{"hide audio", func() error { _, err := tl.UpdateTrack(a, TrackUpdate{Visible: &no}); return err }, false},
		{"playhead", func() error { return tl.SetPlayhead(3) }, false},
		{"volume", func() error { _, err := tl.UpdateClip(c.LinkedClipID, ClipUpdate{Volume: &vol}); return err }, false},
		{"keyframe", func() error { _, err := tl.AddKeyframe(c.ID, PropOpacity, 1, 0, interp.Linear); return err }, true},
		{"move", func() error { _, err := tl.MoveClip(c.ID, 1, MoveOptions{}); return err }, true},
	}
	for i, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		mu.Lock()
		if len(got) != i+1 {
			t.Fatalf("%s: events = %d, want %d", step.name, len(got), i+1)
		}
		if got[i].Visual != step.visual {
			t.Errorf("%s: Visual = %v, want %v", step.name, got[i].Visual, step.visual)
		}
		mu.Unlock()
	}
}

func TestFrameAt_TrackOrderSoloAndVisibility(t *testing.T) {
	tl := newTestTimeline(t)
	bottom := trackOfKind(t, tl, TrackVideo)
	top, _ := tl.AddTrack(TrackVideo, "")

	if _, err := tl.AddClip(bottom, Source{Kind: SourceImage, MediaFileID: "b"}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.AddClip(top.ID, Source{Kind: SourceImage, MediaFileID: "t"}, 0); err != nil {
		t.Fatal(err)
	}

	f := tl.FrameAt(1)
	if len(f.Layers) != 2 || f.Layers[0].TrackID != top.ID {
		t.Fatalf("layers = %+v, want top first", f.Layers)
	}

	yes, no := true, false
	_, _ = tl.UpdateTrack(bottom, TrackUpdate{Solo: &yes})
	f = tl.FrameAt(1)
	if len(f.Layers) != 1 || f.Layers[0].TrackID != bottom {
		t.Errorf("solo layers = %+v", f.Layers)
	}

	_, _ = tl.UpdateTrack(bottom, TrackUpdate{Visible: &no})
	if tl.HasVisualAt(1) {
		t.Error("HasVisualAt() = true with only soloed track hidden")
	}
	if tl.HasVisualAt(50) {
		t.Error("HasVisualAt(50) = true past content")
	}
}

func TestFrameAt_ReversedAndNested(t *testing.T) {
	tl := newTestTimeline(t)
	v := trackOfKind(t, tl, TrackVideo)
	c, _ := tl.AddClip(v, Source{Kind: SourceVideo, MediaFileID: "m", Duration: 8, NoAudio: true}, 0)
	rev := true
	_, _ = tl.UpdateClip(c.ID, ClipUpdate{Reversed: &rev})
	if got := tl.FrameAt(2).Layers[0].Source.Time; got != 6 {
		t.Errorf("reversed source time = %v, want 6", got)
	}

	inner := Track{ID: "inner", Kind: TrackVideo, Visible: true}
	nested := &Clip{ID: "n1", TrackID: "inner", StartTime: 0, Duration: 4, OutPoint: 4,
		Source: &Source{Kind: SourceVideo, MediaFileID: "x", Duration: 4}, Transform: DefaultTransform()}
	comp, err := tl.AddCompositionClip(v, NestedContent{CompositionID: "child", Duration: 4, Tracks: []Track{inner}, Clips: []*Clip{nested}}, 8)
	if err != nil {
		t.Fatal(err)
	}
	layers := tl.FrameAt(9).Layers
	if len(layers) != 1 || layers[0].ClipID != comp.ID || len(layers[0].Children) != 1 {
		t.Fatalf("layers = %+v", layers)
	}
	if got := layers[0].Children[0].Source.Time; got != 1 {
		t.Errorf("nested source time = %v, want 1", got)
	}
}

type mapResolver map[string]Source

func (m mapResolver) ResolveMedia(id string) (Source, bool) {
	s, ok := m[id]
	return s, ok
}

func TestSnapshot_RoundTripSkipsMissingMedia(t *testing.T) {
	tl := newTestTimeline(t)
	v := trackOfKind(t, tl, TrackVideo)
	keep, _ := tl.AddClip(v, Source{Kind: SourceVideo, MediaFileID: "keep", Duration: 4}, 0)
	gone, _ := tl.AddClip(v, Source{Kind: SourceVideo, MediaFileID: "gone", Duration: 4}, 4)
	_, _ = tl.AddKeyframe(keep.ID, PropOpacity, 1, 0.5, interp.EaseOut)
	_ = tl.SetRecording(keep.ID, PropScaleX, true)
	in, out := 1.0, 6.0
	_ = tl.SetInOut(&in, &out)
	_ = tl.SetPlayhead(2.5)

	data, err := tl.GetSerializableState().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	snap, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}

	restored := New(Options{})
	restored.SetMediaResolver(mapResolver{"keep": {Kind: SourceVideo, MediaFileID: "keep", Duration: 4}})
	if err := restored.LoadState(snap); err != nil {
		t.Fatal(err)
	}

	if _, err := restored.Clip(gone.ID); !errors.Is(err, ErrNotFound) {
		t.Error("clip with missing media was loaded")
	}
	if _, err := restored.Clip(gone.LinkedClipID); !errors.Is(err, ErrNotFound) {
		t.Error("audio partner of missing media was loaded")
	}
	k := mustClip(t, restored, keep.ID)
	if a := mustClip(t, restored, k.LinkedClipID); a.Kind() != TrackAudio {
		t.Errorf("linked audio kind = %v", a.Kind())
	}
	kfs, _ := restored.Keyframes(keep.ID)
	if len(kfs) != 1 || kfs[0].Easing != interp.EaseOut {
		t.Errorf("keyframes = %+v", kfs)
	}
	if m, _ := restored.PropertyMode(keep.ID, PropScaleX); m != ModeRecording {
		t.Errorf("recording mode = %v", m)
	}
	view := restored.View()
	if view.Playhead != 2.5 || view.InPoint == nil || *view.InPoint != 1 || *view.OutPoint != 6 {
		t.Errorf("view = %+v", view)
	}
}

func TestClearTimeline(t *testing.T) {
	tl := newTestTimeline(t)
	addVideo(t, tl, 0, 4)
	_, _ = tl.AddTrack(TrackVideo, "")
	if err := tl.ClearTimeline(); err != nil {
		t.Fatal(err)
	}
	if len(tl.Clips()) != 0 || len(tl.Tracks()) != 2 {
		t.Errorf("clips = %d, tracks = %d", len(tl.Clips()), len(tl.Tracks()))
	}
}

func TestRemoveClip_UnlinksPartner(t *testing.T) {
	tl := newTestTimeline(t)
	c := addVideo(t, tl, 0, 4)
	if err := tl.RemoveClip(c.ID, false); err != nil {
		t.Fatal(err)
	}
	if a := mustClip(t, tl, c.LinkedClipID); a.LinkedClipID != "" {
		t.Errorf("partner still linked to %q", a.LinkedClipID)
	}

	d := addVideo(t, tl, 10, 4)
	if err := tl.RemoveClip(d.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Clip(d.LinkedClipID); !errors.Is(err, ErrNotFound) {
		t.Error("partner kept despite withLinked")
	}
}
