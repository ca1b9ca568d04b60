// Package ramcache tracks which composited frames are held in memory for RAM
// preview and runs the background pass that fills them.
package ramcache

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-timeline/internal/render"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// FrameRate is the quantization rate of cached frame times.
const FrameRate = 30.0

// mergeSteps is the largest key gap still reported as one cached range.
const mergeSteps = 2

type State string

const (
	StateIdle    State = "idle"
	StateFilling State = "filling"
	StateReady   State = "ready"
)

// Quantize maps a time to its cache key.
func Quantize(t float64) int64 {
	return int64(math.Round(t * FrameRate))
}

// Range is a span of timeline seconds. End is exclusive.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r Range) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

type Cache struct {
	engine render.Engine
	logger *slog.Logger

	// frame size used for memory estimates
	width, height int

	mu         sync.Mutex
	frames     map[int64]struct{}
	generation uint64
	state      State
	validated  *Range
	cancel     context.CancelFunc
	fillSeq    uint64
}

func New(engine render.Engine, width, height int, logger *slog.Logger) *Cache {
	return &Cache{
		engine: engine,
		logger: logger,
		width:  width,
		height: height,
		frames: make(map[int64]struct{}),
		state:  StateIdle,
	}
}

// Attach subscribes the cache to timeline events: visual edits invalidate,
// in/out changes drop the validated range.
func (c *Cache) Attach(tl *timeline.Timeline) (detach func()) {
	return tl.Subscribe(func(ev timeline.Event) {
		switch {
		case ev.Visual:
			c.Invalidate(string(ev.Kind))
		case ev.Kind == timeline.EventInOut:
			c.dropValidated()
		}
	})
}

// Invalidate discards every cached frame, cancels a running fill and clears
// the validated range.
func (c *Cache) Invalidate(reason string) {
	c.mu.Lock()
	n := len(c.frames)
	c.frames = make(map[int64]struct{})
	c.generation++
	c.validated = nil
	c.state = StateIdle
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.engine != nil {
		c.engine.ClearCompositeCache()
	}
	if c.logger != nil && n > 0 {
		c.logger.Debug("ram preview invalidated", "reason", reason, "frames", n)
	}
}

func (c *Cache) dropValidated() {
	c.mu.Lock()
	c.validated = nil
	if c.state == StateReady {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// AddCachedFrame records that the composite at t is held.
func (c *Cache) AddCachedFrame(t float64) {
	c.mu.Lock()
	c.frames[Quantize(t)] = struct{}{}
	c.mu.Unlock()
}

func (c *Cache) IsCached(t float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.frames[Quantize(t)]
	return ok
}

// IsValidated reports whether t lies in the range of the last completed fill.
func (c *Cache) IsValidated(t float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validated != nil && c.validated.Contains(t)
}

func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// GetCachedRanges merges cached frame keys no more than two steps apart
// into ranges. Each range ends one frame after its last cached frame.
func (c *Cache) GetCachedRanges() []Range {
	c.mu.Lock()
	keys := make([]int64, 0, len(c.frames))
	for k := range c.frames {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	return mergeKeys(keys)
}

func mergeKeys(keys []int64) []Range {
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []Range
	first, last := keys[0], keys[0]
	flush := func() {
		out = append(out, Range{
			Start: float64(first) / FrameRate,
			End:   float64(last+1) / FrameRate,
		})
	}
	for _, k := range keys[1:] {
		if k-last <= mergeSteps {
			last = k
			continue
		}
		flush()
		first, last = k, k
	}
	flush()
	return out
}

// beginFill cancels any fill in progress, stores cancel as the current one
// and returns the generation the new fill works against.
func (c *Cache) beginFill(cancel context.CancelFunc) (gen, seq uint64) {
	c.mu.Lock()
	prev := c.cancel
	c.fillSeq++
	c.cancel = cancel
	c.state = StateFilling
	gen, seq = c.generation, c.fillSeq
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	return gen, seq
}

// markCached records a rendered frame unless the cache was invalidated since
// the fill began.
func (c *Cache) markCached(t float64, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.frames[Quantize(t)] = struct{}{}
	return true
}

// finishFill closes the fill seq. A completed fill validates rng.
func (c *Cache) finishFill(gen, seq uint64, rng *Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fillSeq != seq {
		return
	}
	c.cancel = nil
	if rng != nil && c.generation == gen {
		c.validated = rng
		c.state = StateReady
		return
	}
	c.state = StateIdle
}

// CancelFill stops a running fill without discarding cached frames.
func (c *Cache) CancelFill() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status summarizes the cache for the API and tray.
type Status struct {
	State          State   `json:"state"`
	Frames         int     `json:"frames"`
	Ranges         []Range `json:"ranges"`
	Validated      *Range  `json:"validated,omitempty"`
	MemoryBytes    uint64  `json:"memory_bytes"`
	MemoryEstimate string  `json:"memory_estimate"`
}

func (c *Cache) Status() Status {
	c.mu.Lock()
	s := Status{State: c.state, Frames: len(c.frames)}
	if c.validated != nil {
		v := *c.validated
		s.Validated = &v
	}
	c.mu.Unlock()

	s.Ranges = c.GetCachedRanges()
	s.MemoryBytes = uint64(s.Frames) * uint64(c.width) * uint64(c.height) * 4
	s.MemoryEstimate = humanize.Bytes(s.MemoryBytes)
	return s
}
