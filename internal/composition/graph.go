// Package composition manages the set of compositions of a project, which
// one of them is loaded into the live timeline, and how compositions nest
// inside each other.
package composition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/logging"
	"github.com/heimdex/heimdex-timeline/internal/placement"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

var (
	ErrCycle              = errors.New("composition cycle")
	ErrUnknownComposition = errors.New("unknown composition")
	ErrInUse              = errors.New("composition in use")
)

const (
	DefaultWidth     = 1920
	DefaultHeight    = 1080
	DefaultFrameRate = 30.0
	DefaultName      = "Main"
)

type Composition struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	FrameRate float64           `json:"frame_rate"`
	Duration  float64           `json:"duration"`
	Snapshot  timeline.Snapshot `json:"snapshot"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// snapshotDuration is the effective duration of a stored timeline.
func snapshotDuration(s timeline.Snapshot) float64 {
	return math.Max(s.Duration, s.ContentEnd())
}

// Graph owns all compositions and keeps exactly one of them loaded in the
// live timeline. Stored snapshots of inactive compositions are authoritative;
// the active one lives in the timeline until it is saved or switched away.
type Graph struct {
	repo   Repository
	tl     *timeline.Timeline
	media  timeline.MediaResolver
	logger *slog.Logger

	// serializes operations that read or replace the live timeline
	switchMu sync.Mutex

	// guards comps and activeID only, never held while calling the timeline
	mu       sync.Mutex
	comps    map[string]*Composition
	activeID string
}

// Open loads every composition, creating a default one for an empty project,
// installs the timeline hooks and loads the active composition.
func Open(ctx context.Context, repo Repository, tl *timeline.Timeline, media timeline.MediaResolver, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g := &Graph{repo: repo, tl: tl, media: media, logger: logger, comps: make(map[string]*Composition)}

	list, err := repo.ListCompositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list compositions: %w", err)
	}
	for _, c := range list {
		g.comps[c.ID] = c
	}
	if len(list) == 0 {
		c, err := g.create(ctx, DefaultName, 0, 0, 0)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}

	active, err := repo.GetActiveID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active composition: %w", err)
	}
	if _, ok := g.comps[active]; !ok {
		active = list[0].ID
		if err := repo.SetActiveID(ctx, active); err != nil {
			return nil, fmt.Errorf("set active composition: %w", err)
		}
	}
	g.activeID = active

	tl.SetMediaResolver(media)
	tl.SetCycleChecker(g.checkCycle)
	tl.SetNestedLoader(g.loadNested)
	if err := tl.LoadState(g.comps[active].Snapshot); err != nil {
		return nil, fmt.Errorf("load composition %s: %w", active, err)
	}

	logger.Info("compositions loaded", "count", len(g.comps), "active", active)
	return g, nil
}

func (g *Graph) create(ctx context.Context, name string, width, height int, fps float64) (*Composition, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	now := time.Now().UTC()
	c := &Composition{
		ID:        timeline.NewID(),
		Name:      name,
		Width:     width,
		Height:    height,
		FrameRate: fps,
		Snapshot:  timeline.New(timeline.Options{}).GetSerializableState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.repo.CreateComposition(ctx, c); err != nil {
		return nil, fmt.Errorf("create composition: %w", err)
	}
	g.mu.Lock()
	g.comps[c.ID] = c
	g.mu.Unlock()
	return c, nil
}

// Create adds an empty composition with one video and one audio track.
func (g *Graph) Create(ctx context.Context, name string, width, height int, fps float64) (*Composition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &timeline.RejectedError{Op: "create composition", Reason: "name is empty"}
	}
	g.switchMu.Lock()
	defer g.switchMu.Unlock()

	c, err := g.create(ctx, name, width, height, fps)
	if err != nil {
		return nil, err
	}
	logging.WithCompositionID(g.logger, c.ID).Info("composition created", "name", name)
	cp := *c
	return &cp, nil
}

// Get returns a copy of a composition. The active composition carries the
// live timeline state.
func (g *Graph) Get(id string) (*Composition, error) {
	g.mu.Lock()
	c, ok := g.comps[id]
	var cp Composition
	if ok {
		cp = *c
	}
	active := g.activeID
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComposition, id)
	}
	if id == active {
		cp.Snapshot = g.tl.GetSerializableState()
		cp.Duration = snapshotDuration(cp.Snapshot)
	}
	return &cp, nil
}

// List returns all compositions in creation order.
func (g *Graph) List() []*Composition {
	g.mu.Lock()
	out := make([]*Composition, 0, len(g.comps))
	for _, c := range g.comps {
		cp := *c
		out = append(out, &cp)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *Graph) ActiveID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeID
}

func (g *Graph) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &timeline.RejectedError{Op: "rename composition", Reason: "name is empty"}
	}
	g.switchMu.Lock()
	defer g.switchMu.Unlock()

	g.mu.Lock()
	c, ok := g.comps[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownComposition, id)
	}
	cp := *c
	g.mu.Unlock()

	cp.Name = name
	cp.UpdatedAt = time.Now().UTC()
	if err := g.repo.UpdateComposition(ctx, &cp); err != nil {
		return fmt.Errorf("rename composition: %w", err)
	}
	g.mu.Lock()
	g.comps[id] = &cp
	g.mu.Unlock()
	return nil
}

// Delete removes a composition. The active composition and compositions
// still placed as clips somewhere cannot be deleted.
func (g *Graph) Delete(ctx context.Context, id string) error {
	g.switchMu.Lock()
	defer g.switchMu.Unlock()

	for _, c := range g.tl.Clips() {
		if c.IsComposition && c.CompositionID == id {
			return fmt.Errorf("%w: %s is placed in the active composition", ErrInUse, id)
		}
	}

	g.mu.Lock()
	if _, ok := g.comps[id]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownComposition, id)
	}
	if id == g.activeID {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s is active", ErrInUse, id)
	}
	for pid, parent := range g.comps {
		if pid == g.activeID {
			continue
		}
		for _, child := range childIDs(parent.Snapshot) {
			if child == id {
				g.mu.Unlock()
				return fmt.Errorf("%w: %s is placed in %s", ErrInUse, id, pid)
			}
		}
	}
	g.mu.Unlock()

	if err := g.repo.DeleteComposition(ctx, id); err != nil {
		return fmt.Errorf("delete composition: %w", err)
	}
	g.mu.Lock()
	delete(g.comps, id)
	g.mu.Unlock()
	logging.WithCompositionID(g.logger, id).Info("composition deleted")
	return nil
}

// Save writes the live timeline onto the active composition.
func (g *Graph) Save(ctx context.Context) error {
	g.switchMu.Lock()
	defer g.switchMu.Unlock()
	return g.saveActive(ctx)
}

func (g *Graph) saveActive(ctx context.Context) error {
	snap := g.tl.GetSerializableState()

	g.mu.Lock()
	c, ok := g.comps[g.activeID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownComposition, g.activeID)
	}
	cp := *c
	g.mu.Unlock()

	cp.Snapshot = snap
	cp.Duration = snapshotDuration(snap)
	cp.UpdatedAt = time.Now().UTC()
	if err := g.repo.UpdateComposition(ctx, &cp); err != nil {
		return fmt.Errorf("save composition %s: %w", cp.ID, err)
	}
	g.mu.Lock()
	g.comps[cp.ID] = &cp
	g.mu.Unlock()
	return nil
}

// SetActive makes id the composition loaded in the live timeline. The current
// timeline is saved first. When the two compositions are directly nested the
// playhead is carried across into the other time base.
func (g *Graph) SetActive(ctx context.Context, id string) error {
	g.switchMu.Lock()
	defer g.switchMu.Unlock()

	g.mu.Lock()
	oldID := g.activeID
	target, ok := g.comps[id]
	var targetSnap timeline.Snapshot
	if ok {
		targetSnap = target.Snapshot
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComposition, id)
	}
	if id == oldID {
		return nil
	}

	synced, hasSync := syncPlayhead(g.tl.Playhead(), g.tl.Clips(), oldID, id, targetSnap)

	if err := g.saveActive(ctx); err != nil {
		return err
	}
	if err := g.repo.SetActiveID(ctx, id); err != nil {
		return fmt.Errorf("set active composition: %w", err)
	}
	g.mu.Lock()
	g.activeID = id
	g.mu.Unlock()

	if err := g.tl.LoadState(targetSnap); err != nil {
		return fmt.Errorf("load composition %s: %w", id, err)
	}

	if hasSync && synced >= 0 && synced <= g.tl.Duration() {
		if err := g.tl.SetPlayhead(synced); err != nil {
			return err
		}
	} else if err := g.tl.ResetView(); err != nil {
		return err
	}

	g.logger.Info("active composition switched",
		"from", oldID,
		"to", id,
		"playhead", g.tl.Playhead(),
		"synced", hasSync,
	)
	return nil
}

// syncPlayhead translates playhead p between a composition and a direct
// child or parent. live holds the clips of the current composition, parent
// the stored snapshot of the target.
func syncPlayhead(p float64, live []*timeline.Clip, currentID, targetID string, target timeline.Snapshot) (float64, bool) {
	// entering a child placed in the current composition
	var child *timeline.Clip
	for _, c := range live {
		if !c.IsComposition || c.CompositionID != targetID {
			continue
		}
		if child == nil || c.ActiveAt(p) {
			child = c
		}
		if c.ActiveAt(p) {
			break
		}
	}
	if child != nil {
		return p - child.StartTime + child.InPoint, true
	}

	// leaving for a parent that places the current composition
	for _, cs := range target.Clips {
		if cs.IsComposition && cs.CompositionID == currentID {
			return cs.StartTime + (p - cs.InPoint), true
		}
	}
	return 0, false
}

// AddCompositionClip places composition id as a clip on a track of the live
// timeline.
func (g *Graph) AddCompositionClip(trackID, compositionID string, start float64) (*timeline.Clip, error) {
	content, ok := g.loadNested(compositionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComposition, compositionID)
	}
	return g.tl.AddCompositionClip(trackID, content, start)
}

// DropClipInto moves a clip of the live timeline into another composition,
// at start on its first track of the clip's kind. Composition clips are
// checked for cycles against the target.
func (g *Graph) DropClipInto(ctx context.Context, clipID, targetID string, start float64) error {
	g.switchMu.Lock()
	defer g.switchMu.Unlock()

	g.mu.Lock()
	_, ok := g.comps[targetID]
	active := g.activeID
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComposition, targetID)
	}
	if targetID == active {
		return &timeline.RejectedError{Op: "drop clip", Reason: "clip is already in this composition"}
	}

	c, err := g.tl.Clip(clipID)
	if err != nil {
		return err
	}
	if c.IsComposition {
		live := liveChildIDs(g.tl.Clips())
		g.mu.Lock()
		cyclic := c.CompositionID == targetID || g.reachesLocked(c.CompositionID, targetID, live)
		g.mu.Unlock()
		if cyclic {
			return cycleError(c.CompositionID, targetID)
		}
	}

	var rec *timeline.ClipSnapshot
	for _, cs := range g.tl.GetSerializableState().Clips {
		if cs.ID == clipID {
			cs := cs
			rec = &cs
			break
		}
	}
	if rec == nil {
		return fmt.Errorf("clip %s: %w", clipID, timeline.ErrNotFound)
	}

	g.mu.Lock()
	cp := *g.comps[targetID]
	g.mu.Unlock()

	cp.Snapshot = placeRecord(cp.Snapshot, *rec, c.Kind(), start)
	cp.Duration = snapshotDuration(cp.Snapshot)
	cp.UpdatedAt = time.Now().UTC()
	if err := g.repo.UpdateComposition(ctx, &cp); err != nil {
		return fmt.Errorf("save composition %s: %w", targetID, err)
	}
	g.mu.Lock()
	g.comps[targetID] = &cp
	g.mu.Unlock()

	if err := g.tl.RemoveClip(clipID, false); err != nil {
		return err
	}
	// clips of the live timeline that play the target now show stale content
	if err := g.tl.RefreshNested(targetID); err != nil {
		return err
	}
	logging.WithClipID(logging.WithCompositionID(g.logger, targetID), clipID).Info("clip moved to composition")
	return nil
}

// placeRecord returns a copy of s with rec placed on the first track of kind,
// adding such a track when s has none.
func placeRecord(s timeline.Snapshot, rec timeline.ClipSnapshot, kind timeline.TrackKind, start float64) timeline.Snapshot {
	out := s
	out.Tracks = append([]timeline.Track(nil), s.Tracks...)
	out.Clips = append([]timeline.ClipSnapshot(nil), s.Clips...)

	trackID := ""
	for _, tr := range out.Tracks {
		if tr.Kind == kind {
			trackID = tr.ID
			break
		}
	}
	if trackID == "" {
		name := "Video 1"
		if kind == timeline.TrackAudio {
			name = "Audio 1"
		}
		tr := timeline.NewTrack(kind, name)
		trackID = tr.ID
		if kind == timeline.TrackVideo {
			out.Tracks = append([]timeline.Track{tr}, out.Tracks...)
		} else {
			out.Tracks = append(out.Tracks, tr)
		}
	}

	var spans []placement.Span
	for _, cs := range out.Clips {
		if cs.TrackID == trackID {
			spans = append(spans, placement.Span{ID: cs.ID, Start: cs.StartTime, Duration: cs.Duration})
		}
	}
	res := placement.Place(start, rec.Duration, spans, 0)

	rec.TrackID = trackID
	rec.StartTime = res.Start
	rec.LinkedClipID = ""
	out.Clips = append(out.Clips, rec)
	return out
}

// checkCycle is the timeline's cycle hook. It runs under the timeline lock,
// so it only consults stored snapshots.
func (g *Graph) checkCycle(childID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.comps[childID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComposition, childID)
	}
	if childID == g.activeID || g.reachesLocked(childID, g.activeID, nil) {
		return cycleError(childID, g.activeID)
	}
	return nil
}

func cycleError(childID, parentID string) error {
	return fmt.Errorf("%w: %w: %s would contain %s", timeline.ErrRejected, ErrCycle, childID, parentID)
}

// reachesLocked reports whether composition from contains target at any
// depth. live, when non-nil, replaces the stored children of the active
// composition.
func (g *Graph) reachesLocked(from, target string, live []string) bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var children []string
		if id == g.activeID && live != nil {
			children = live
		} else if c, ok := g.comps[id]; ok {
			children = childIDs(c.Snapshot)
		}
		for _, child := range children {
			if child == target {
				return true
			}
			if !seen[child] {
				seen[child] = true
				stack = append(stack, child)
			}
		}
	}
	return false
}

func childIDs(s timeline.Snapshot) []string {
	var out []string
	for _, cs := range s.Clips {
		if cs.IsComposition && cs.CompositionID != "" {
			out = append(out, cs.CompositionID)
		}
	}
	return out
}

func liveChildIDs(clips []*timeline.Clip) []string {
	out := []string{}
	for _, c := range clips {
		if c.IsComposition && c.CompositionID != "" {
			out = append(out, c.CompositionID)
		}
	}
	return out
}

// loadNested is the timeline's nested loader. Content is materialized one
// level deep: composition clips inside it stay unloaded.
func (g *Graph) loadNested(id string) (timeline.NestedContent, bool) {
	g.mu.Lock()
	c, ok := g.comps[id]
	var snap timeline.Snapshot
	var name string
	if ok {
		snap, name = c.Snapshot, c.Name
	}
	g.mu.Unlock()
	if !ok {
		return timeline.NestedContent{}, false
	}

	tracks, clips, kfs := timeline.Materialize(snap, g.media, nil, g.logger)
	return timeline.NestedContent{
		CompositionID: id,
		Name:          name,
		Duration:      snapshotDuration(snap),
		Tracks:        tracks,
		Clips:         clips,
		Keyframes:     kfs,
	}, true
}
