// Package history keeps bounded undo/redo stacks of timeline snapshots.
package history

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// DefaultLimit is the number of undo steps kept when none is configured.
const DefaultLimit = 100

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// History records a snapshot after every content edit. View-only changes
// (playhead, zoom, scroll, in/out) are not undo steps.
type History struct {
	tl     *timeline.Timeline
	limit  int
	logger *slog.Logger

	mu      sync.Mutex
	undo    []timeline.Snapshot
	redo    []timeline.Snapshot
	current timeline.Snapshot

	// set while History itself loads a snapshot
	restoring atomic.Bool
	detach    func()
}

func New(tl *timeline.Timeline, limit int, logger *slog.Logger) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	h := &History{tl: tl, limit: limit, logger: logger, current: tl.GetSerializableState()}
	h.detach = tl.Subscribe(h.observe)
	return h
}

// Close stops recording.
func (h *History) Close() {
	h.detach()
}

func recordable(k timeline.EventKind) bool {
	switch k {
	case timeline.EventPlayhead, timeline.EventView, timeline.EventInOut:
		return false
	}
	return true
}

func (h *History) observe(ev timeline.Event) {
	if h.restoring.Load() || !recordable(ev.Kind) {
		return
	}
	snap := h.tl.GetSerializableState()

	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Kind == timeline.EventStateLoaded {
		// a composition switch starts a fresh history
		h.undo, h.redo = nil, nil
		h.current = snap
		return
	}
	h.undo = append(h.undo, h.current)
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
	h.redo = nil
	h.current = snap
}

// Undo restores the state before the last edit. The playhead and view stay
// where they are.
func (h *History) Undo() error {
	h.mu.Lock()
	if len(h.undo) == 0 {
		h.mu.Unlock()
		return ErrNothingToUndo
	}
	prev := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, h.current)
	h.current = prev
	h.mu.Unlock()

	return h.restore(prev, "undo")
}

// Redo reapplies the last undone edit.
func (h *History) Redo() error {
	h.mu.Lock()
	if len(h.redo) == 0 {
		h.mu.Unlock()
		return ErrNothingToRedo
	}
	next := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, h.current)
	h.current = next
	h.mu.Unlock()

	return h.restore(next, "redo")
}

func (h *History) restore(s timeline.Snapshot, op string) error {
	v := h.tl.View()
	s.Playhead = v.Playhead
	s.Zoom = v.Zoom
	s.ScrollX = v.ScrollX

	h.restoring.Store(true)
	defer h.restoring.Store(false)
	if err := h.tl.LoadState(s); err != nil {
		return err
	}
	if h.logger != nil {
		h.logger.Debug("history restored", "op", op, "clips", len(s.Clips))
	}
	return nil
}

// Reset drops both stacks and takes the current timeline as the base.
func (h *History) Reset() {
	snap := h.tl.GetSerializableState()
	h.mu.Lock()
	h.undo, h.redo = nil, nil
	h.current = snap
	h.mu.Unlock()
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// Depth returns the sizes of the undo and redo stacks.
func (h *History) Depth() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}
