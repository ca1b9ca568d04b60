// Package render defines the compositor contract the editor drives and a
// headless in-memory implementation.
package render

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// Engine composites layer stacks. Render draws the layers for the current
// frame; CacheCompositeFrame keeps the last rendered composite under time t.
type Engine interface {
	Render(ctx context.Context, layers []timeline.Layer) error
	CacheCompositeFrame(t float64) error
	ClearCompositeCache()
	SetGeneratingRamPreview(on bool)
}

// MemoryEngine is a headless Engine. It keeps only the keys of cached
// composites and the layer stack of the last render.
type MemoryEngine struct {
	fps    float64
	logger *slog.Logger

	mu     sync.Mutex
	last   []timeline.Layer
	frames map[int64]int

	renders    atomic.Int64
	generating atomic.Bool
}

func NewMemoryEngine(fps float64, logger *slog.Logger) *MemoryEngine {
	if fps <= 0 {
		fps = 30
	}
	return &MemoryEngine{fps: fps, logger: logger, frames: make(map[int64]int)}
}

func (e *MemoryEngine) Render(ctx context.Context, layers []timeline.Layer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.last = layers
	e.mu.Unlock()
	e.renders.Add(1)
	return nil
}

func (e *MemoryEngine) CacheCompositeFrame(t float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames[int64(math.Round(t*e.fps))] = countLayers(e.last)
	return nil
}

func (e *MemoryEngine) ClearCompositeCache() {
	e.mu.Lock()
	n := len(e.frames)
	e.frames = make(map[int64]int)
	e.mu.Unlock()
	if e.logger != nil && n > 0 {
		e.logger.Debug("composite cache cleared", "frames", n)
	}
}

func (e *MemoryEngine) SetGeneratingRamPreview(on bool) {
	e.generating.Store(on)
}

func (e *MemoryEngine) Generating() bool {
	return e.generating.Load()
}

func (e *MemoryEngine) Renders() int64 {
	return e.renders.Load()
}

// CachedFrames is the number of composites currently held.
func (e *MemoryEngine) CachedFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

// LastLayers returns the layer stack of the most recent render.
func (e *MemoryEngine) LastLayers() []timeline.Layer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func countLayers(layers []timeline.Layer) int {
	n := len(layers)
	for _, l := range layers {
		n += countLayers(l.Children)
	}
	return n
}

// Sources flattens the media references of a layer stack, nested layers
// included.
func Sources(layers []timeline.Layer) []timeline.LayerSource {
	var out []timeline.LayerSource
	for _, l := range layers {
		if l.Source != nil {
			out = append(out, *l.Source)
		}
		out = append(out, Sources(l.Children)...)
	}
	return out
}
