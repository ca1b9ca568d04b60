package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/heimdex/heimdex-timeline/internal/ramcache"
)

// statusInterval is how often the preview status line refreshes.
const statusInterval = time.Second

type Tray struct {
	cache  *ramcache.Cache
	filler *ramcache.Filler
	logger *slog.Logger

	statusItem *systray.MenuItem
	fillItem   *systray.MenuItem
	cancelItem *systray.MenuItem

	mu sync.Mutex

	onQuit func()
	stop   chan struct{}
}

type TrayConfig struct {
	Cache  *ramcache.Cache
	Filler *ramcache.Filler
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		cache:  cfg.Cache,
		filler: cfg.Filler,
		logger: cfg.Logger,
		onQuit: cfg.OnQuit,
		stop:   make(chan struct{}),
	}
}

// Run blocks until the tray exits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Heimdex")
	systray.SetTooltip("Heimdex Timeline")

	t.statusItem = systray.AddMenuItem(statusTitle(ramcache.Status{State: ramcache.StateIdle}, false), "RAM preview status")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.fillItem = systray.AddMenuItem("Fill RAM Preview", "Render the working range into memory")
	t.cancelItem = systray.AddMenuItem("Cancel Preview", "Stop the running fill")
	t.cancelItem.Disable()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Heimdex Timeline")

	go t.refreshLoop()
	go func() {
		for {
			select {
			case <-t.fillItem.ClickedCh:
				t.startFill()
			case <-t.cancelItem.ClickedCh:
				t.filler.Cancel()
				t.refresh()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				close(t.stop)
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) startFill() {
	if err := t.filler.Start(context.Background()); err != nil {
		t.logger.Warn("ram preview fill not started", "error", err)
		return
	}
	t.refresh()
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	filling := t.filler.IsRunning()
	t.statusItem.SetTitle(statusTitle(t.cache.Status(), filling))
	if filling {
		t.fillItem.Disable()
		t.cancelItem.Enable()
	} else {
		t.fillItem.Enable()
		t.cancelItem.Disable()
	}
}

func statusTitle(s ramcache.Status, filling bool) string {
	switch {
	case filling:
		return fmt.Sprintf("Preview: filling (%d frames)", s.Frames)
	case s.State == ramcache.StateReady:
		return fmt.Sprintf("Preview: ready, %d frames, %s", s.Frames, s.MemoryEstimate)
	case s.Frames > 0:
		return fmt.Sprintf("Preview: %d frames cached", s.Frames)
	default:
		return "Preview: idle"
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
