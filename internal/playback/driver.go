// Package playback drives scrubbing and real-time playback of the active
// timeline through the render engine.
package playback

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/media"
	"github.com/heimdex/heimdex-timeline/internal/ramcache"
	"github.com/heimdex/heimdex-timeline/internal/render"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

type Config struct {
	TickInterval time.Duration // playback frame interval
	SeekTimeout  time.Duration // bound on a best-effort seek
	Logger       *slog.Logger
}

func DefaultConfig(fps float64, logger *slog.Logger) Config {
	if fps <= 0 {
		fps = ramcache.FrameRate
	}
	return Config{
		TickInterval: time.Duration(float64(time.Second) / fps),
		SeekTimeout:  250 * time.Millisecond,
		Logger:       logger,
	}
}

// Driver renders frames for scrubbing and advances the playhead while
// playing.
type Driver struct {
	tl       *timeline.Timeline
	cache    *ramcache.Cache
	engine   render.Engine
	elements media.Elements
	cfg      Config

	running atomic.Bool
	playing atomic.Bool
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewDriver(tl *timeline.Timeline, cache *ramcache.Cache, engine render.Engine, elements media.Elements, cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig(0, nil).TickInterval
	}
	return &Driver{tl: tl, cache: cache, engine: engine, elements: elements, cfg: cfg}
}

// RenderAt composites the frame at t. A cached frame is drawn without
// seeking; otherwise sources are seeked best-effort and the render proceeds
// with whatever frame each element holds.
func (d *Driver) RenderAt(ctx context.Context, t float64) (hit bool, err error) {
	frame := d.tl.FrameAt(t)
	if d.cache != nil && d.cache.IsCached(t) {
		d.hits.Add(1)
		return true, d.engine.Render(ctx, frame.Layers)
	}
	d.misses.Add(1)
	for _, src := range render.Sources(frame.Layers) {
		if src.Kind != timeline.SourceVideo {
			continue
		}
		d.seek(ctx, src)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return false, d.engine.Render(ctx, frame.Layers)
}

func (d *Driver) seek(ctx context.Context, src timeline.LayerSource) {
	if d.elements == nil {
		return
	}
	el, ok := d.elements.Element(src.MediaFileID)
	if !ok {
		d.cfg.Logger.Debug("no element for source", "media_file_id", src.MediaFileID)
		return
	}
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SeekTimeout)
	defer cancel()
	if err := el.Seek(sctx, src.Time); err != nil {
		d.cfg.Logger.Debug("playback seek incomplete", "media_file_id", src.MediaFileID, "target", src.Time, "error", err)
	}
}

// Scrub moves the playhead and renders the frame there.
func (d *Driver) Scrub(ctx context.Context, t float64) (bool, error) {
	if err := d.tl.SetPlayhead(t); err != nil {
		return false, err
	}
	return d.RenderAt(ctx, d.tl.Playhead())
}

// Step advances the playhead by dt inside the play range. Past the out
// point playback wraps to the in point when looping and stops otherwise.
func (d *Driver) Step(ctx context.Context, dt float64) error {
	start, end := d.tl.PlayRange()
	p := d.tl.Playhead()
	if p < start || p > end {
		p = start
	}
	p += dt
	if p >= end {
		if d.tl.View().Loop {
			p = start
		} else {
			p = end
			d.Pause()
		}
	}
	if err := d.tl.SetPlayhead(p); err != nil {
		return err
	}
	_, err := d.RenderAt(ctx, p)
	return err
}

// Start runs the playback loop until ctx is done.
func (d *Driver) Start(ctx context.Context) {
	if d.running.Swap(true) {
		return
	}
	d.cfg.Logger.Info("playback driver started", "tick", d.cfg.TickInterval)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			d.cfg.Logger.Info("playback driver stopping")
			d.running.Store(false)
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if !d.playing.Load() {
				continue
			}
			if err := d.Step(ctx, dt); err != nil && ctx.Err() == nil {
				d.cfg.Logger.Error("playback step failed", "error", err)
			}
		}
	}
}

func (d *Driver) Play() {
	d.playing.Store(true)
	d.cfg.Logger.Info("playback started", "playhead", d.tl.Playhead())
}

func (d *Driver) Pause() {
	if d.playing.Swap(false) {
		d.cfg.Logger.Info("playback paused", "playhead", d.tl.Playhead())
	}
}

func (d *Driver) IsPlaying() bool {
	return d.playing.Load()
}

func (d *Driver) IsRunning() bool {
	return d.running.Load()
}

// Stats reports cache hits and misses of rendered frames.
func (d *Driver) Stats() (hits, misses int64) {
	return d.hits.Load(), d.misses.Load()
}
