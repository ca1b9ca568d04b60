package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/composition"
	"github.com/heimdex/heimdex-timeline/internal/db"
	"github.com/heimdex/heimdex-timeline/internal/history"
	"github.com/heimdex/heimdex-timeline/internal/media"
	"github.com/heimdex/heimdex-timeline/internal/playback"
	"github.com/heimdex/heimdex-timeline/internal/ramcache"
	"github.com/heimdex/heimdex-timeline/internal/render"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

const testToken = "test-token-0123456789"

type testEnv struct {
	cfg    ServerConfig
	router http.Handler
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	database, err := db.New(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	mediaRepo := media.NewRepository(database.Conn())
	if err := mediaRepo.SetConfig(ctx, AuthTokenKey, testToken); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	svc := media.NewService(mediaRepo, logger)

	tl := timeline.New(timeline.Options{Logger: logger, SnapThreshold: 0.1})
	graph, err := composition.Open(ctx, composition.NewRepository(database.Conn()), tl, svc, logger)
	if err != nil {
		t.Fatalf("composition.Open() error = %v", err)
	}

	engine := render.NewMemoryEngine(ramcache.FrameRate, logger)
	cache := ramcache.New(engine, 4, 4, logger)
	t.Cleanup(cache.Attach(tl))
	pool := media.NewPool(svc, 0)

	hist := history.New(tl, 10, logger)
	t.Cleanup(hist.Close)

	cfg := ServerConfig{
		Timeline:  tl,
		Graph:     graph,
		Media:     svc,
		Tokens:    mediaRepo,
		History:   hist,
		Cache:     cache,
		Filler:    ramcache.NewFiller(tl, cache, engine, pool, ramcache.DefaultFillConfig(logger)),
		Driver:    playback.NewDriver(tl, cache, engine, pool, playback.DefaultConfig(ramcache.FrameRate, logger)),
		Logger:    logger,
		StartTime: time.Now().Add(-10 * time.Second),
		Version:   "test",
	}
	return &testEnv{cfg: cfg, router: NewRouter(cfg), dir: dir}
}

// do sends an authenticated request with an optional JSON body.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal error: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// importVideo writes a small file and registers it as a video without audio.
func (e *testEnv) importVideo(t *testing.T, name string, duration float64) *media.File {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte("0123456789abcdef"), 0o644); err != nil {
		t.Fatal(err)
	}
	rr := e.do(t, http.MethodPost, "/media", ImportMediaRequest{Path: path, Duration: duration})
	if rr.Code != http.StatusCreated {
		t.Fatalf("import status = %d, body %s", rr.Code, rr.Body.String())
	}
	var f media.File
	decodeInto(t, rr, &f)
	return &f
}

func (e *testEnv) videoTrackID(t *testing.T) string {
	t.Helper()
	for _, tr := range e.cfg.Timeline.Tracks() {
		if tr.Kind == timeline.TrackVideo {
			return tr.ID
		}
	}
	t.Fatal("no video track")
	return ""
}

func (e *testEnv) addClip(t *testing.T, mediaID string, start float64) *timeline.Clip {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/clips", AddClipRequest{TrackID: e.videoTrackID(t), MediaFileID: mediaID, Start: start})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add clip status = %d, body %s", rr.Code, rr.Body.String())
	}
	var c timeline.Clip
	decodeInto(t, rr, &c)
	return &c
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rr.Body.String(), err)
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

func expectCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	if code == "" {
		return
	}
	if got, _ := decodeJSONBody(t, rr)["code"].(string); got != code {
		t.Errorf("code = %q, want %q", got, code)
	}
}
