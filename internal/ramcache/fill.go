package ramcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-timeline/internal/media"
	"github.com/heimdex/heimdex-timeline/internal/render"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

var (
	// ErrSeekFailed means a media element did not reach the requested time
	// within tolerance after all retries.
	ErrSeekFailed = errors.New("seek failed")
	// ErrFillInProgress is returned when a fill is requested while one runs.
	ErrFillInProgress = errors.New("ram preview fill already running")
)

// FillConfig tunes the fill pass.
type FillConfig struct {
	SeekTimeout     time.Duration // bound on a single seek attempt
	SeekRetries     int           // attempts per source before the frame is skipped
	ToleranceFrames float64       // allowed landing error, in frames
	Logger          *slog.Logger
}

func DefaultFillConfig(logger *slog.Logger) FillConfig {
	return FillConfig{
		SeekTimeout:     2 * time.Second,
		SeekRetries:     3,
		ToleranceFrames: 1,
		Logger:          logger,
	}
}

// FillResult summarizes one fill pass.
type FillResult struct {
	Range     Range `json:"range"`
	Rendered  int   `json:"rendered"`
	Skipped   int   `json:"skipped"`
	Cancelled bool  `json:"cancelled"`
}

// Filler renders the working range into the cache outward from the playhead.
type Filler struct {
	tl       *timeline.Timeline
	cache    *Cache
	engine   render.Engine
	elements media.Elements
	cfg      FillConfig

	running atomic.Bool

	mu   sync.Mutex
	last *FillResult
}

func NewFiller(tl *timeline.Timeline, cache *Cache, engine render.Engine, elements media.Elements, cfg FillConfig) *Filler {
	if cfg.SeekRetries <= 0 {
		cfg.SeekRetries = 1
	}
	if cfg.SeekTimeout <= 0 {
		cfg.SeekTimeout = 2 * time.Second
	}
	if cfg.ToleranceFrames <= 0 {
		cfg.ToleranceFrames = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Filler{tl: tl, cache: cache, engine: engine, elements: elements, cfg: cfg}
}

// IsRunning reports whether a fill pass is in progress.
func (f *Filler) IsRunning() bool {
	return f.running.Load()
}

// LastResult returns the result of the most recent finished pass.
func (f *Filler) LastResult() (FillResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return FillResult{}, false
	}
	return *f.last, true
}

// Start runs a fill pass in the background.
func (f *Filler) Start(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return ErrFillInProgress
	}
	go func() {
		defer f.running.Store(false)
		if _, err := f.run(ctx); err != nil {
			f.cfg.Logger.Error("ram preview fill failed", "error", err)
		}
	}()
	return nil
}

// Fill runs a fill pass and blocks until it completes or is cancelled.
// Cancellation is reported in the result, not as an error.
func (f *Filler) Fill(ctx context.Context) (FillResult, error) {
	if !f.running.CompareAndSwap(false, true) {
		return FillResult{}, ErrFillInProgress
	}
	defer f.running.Store(false)
	return f.run(ctx)
}

// Cancel stops a running pass. Frames already cached stay valid.
func (f *Filler) Cancel() {
	f.cache.CancelFill()
}

func (f *Filler) run(parent context.Context) (FillResult, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	gen, seq := f.cache.beginFill(cancel)

	f.engine.SetGeneratingRamPreview(true)
	defer f.engine.SetGeneratingRamPreview(false)

	res := FillResult{Range: f.workingRange()}
	logger := f.cfg.Logger.With("start", res.Range.Start, "end", res.Range.End)
	logger.Info("ram preview fill started")

	for _, k := range candidates(res.Range, f.tl.Playhead()) {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		t := float64(k) / FrameRate
		if f.cache.IsCached(t) || !f.tl.HasVisualAt(t) {
			continue
		}

		ok, err := f.renderFrame(ctx, t, gen)
		if err != nil {
			if ctx.Err() != nil {
				res.Cancelled = true
				break
			}
			if errors.Is(err, ErrSeekFailed) {
				logger.Warn("skipping frame", "time", t, "error", err)
				res.Skipped++
				continue
			}
			f.cache.finishFill(gen, seq, nil)
			return res, fmt.Errorf("render frame at %.3f: %w", t, err)
		}
		if !ok {
			// invalidated between render and mark
			res.Cancelled = true
			break
		}
		res.Rendered++
	}

	if res.Cancelled {
		f.cache.finishFill(gen, seq, nil)
		logger.Info("ram preview fill cancelled", "rendered", res.Rendered)
	} else {
		rng := res.Range
		f.cache.finishFill(gen, seq, &rng)
		st := f.cache.Status()
		logger.Info("ram preview fill complete",
			"rendered", res.Rendered,
			"skipped", res.Skipped,
			"frames", st.Frames,
			"memory", humanize.Bytes(st.MemoryBytes),
		)
	}

	f.mu.Lock()
	f.last = &res
	f.mu.Unlock()
	return res, nil
}

// workingRange is the in/out span when markers are set, else the content
// extent.
func (f *Filler) workingRange() Range {
	v := f.tl.View()
	r := Range{Start: 0, End: f.tl.ContentEnd()}
	if v.InPoint != nil {
		r.Start = *v.InPoint
	}
	if v.OutPoint != nil {
		r.End = *v.OutPoint
	}
	return r
}

// candidates lists frame keys inside r starting at the playhead and
// alternating outward.
func candidates(r Range, playhead float64) []int64 {
	lo := int64(math.Ceil(r.Start*FrameRate - 1e-9))
	hi := int64(math.Floor(r.End*FrameRate + 1e-9))
	if hi < lo {
		return nil
	}
	p := Quantize(playhead)
	if p < lo {
		p = lo
	}
	if p > hi {
		p = hi
	}

	out := make([]int64, 0, hi-lo+1)
	out = append(out, p)
	for d := int64(1); p+d <= hi || p-d >= lo; d++ {
		if p+d <= hi {
			out = append(out, p+d)
		}
		if p-d >= lo {
			out = append(out, p-d)
		}
	}
	return out
}

// renderFrame seeks every source of the frame at t, renders and persists it.
// It reports false when the cache was invalidated before the frame could be
// marked.
func (f *Filler) renderFrame(ctx context.Context, t float64, gen uint64) (bool, error) {
	frame := f.tl.FrameAt(t)
	for _, src := range render.Sources(frame.Layers) {
		if src.Kind != timeline.SourceVideo {
			continue
		}
		if err := f.seek(ctx, src); err != nil {
			return false, err
		}
	}
	if err := f.engine.Render(ctx, frame.Layers); err != nil {
		return false, err
	}
	if err := f.engine.CacheCompositeFrame(t); err != nil {
		return false, err
	}
	return f.cache.markCached(t, gen), nil
}

func (f *Filler) seek(ctx context.Context, src timeline.LayerSource) error {
	if f.elements == nil {
		return nil
	}
	el, ok := f.elements.Element(src.MediaFileID)
	if !ok {
		return fmt.Errorf("%w: no element for media %s", ErrSeekFailed, src.MediaFileID)
	}
	tolerance := f.cfg.ToleranceFrames / FrameRate

	for attempt := 0; attempt < f.cfg.SeekRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sctx, cancel := context.WithTimeout(ctx, f.cfg.SeekTimeout)
		err := el.Seek(sctx, src.Time)
		cancel()
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err == nil && math.Abs(el.CurrentTime()-src.Time) <= tolerance {
			return nil
		}
		f.cfg.Logger.Debug("seek retry",
			"media_file_id", src.MediaFileID,
			"target", src.Time,
			"landed", el.CurrentTime(),
			"attempt", attempt+1,
			"error", err,
		)
	}
	return fmt.Errorf("%w: media %s did not reach %.3f", ErrSeekFailed, src.MediaFileID, src.Time)
}
