package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-timeline/internal/export"
)

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	f := env.importVideo(t, "a.mp4", 4)
	env.addClip(t, f.ID, 0)
	env.addClip(t, f.ID, 6)

	tests := []struct {
		name     string
		req      export.Request
		wantExt  string
		wantText string
		events   int
	}{
		{"edl default", export.Request{Title: "Cut One"}, ".edl", "TITLE: Cut One", 2},
		{"yaml", export.Request{Format: "YAML"}, ".yaml", "clips:", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.OutputDir = t.TempDir()
			rr := env.do(t, http.MethodPost, "/export", tt.req)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
			}
			var resp export.Response
			decodeInto(t, rr, &resp)
			if resp.Status != "ok" || resp.EventCount != tt.events || len(resp.UnresolvedClips) != 0 {
				t.Errorf("resp = %+v", resp)
			}
			if filepath.Dir(resp.OutputPath) != tt.req.OutputDir || filepath.Ext(resp.OutputPath) != tt.wantExt {
				t.Errorf("output path = %q", resp.OutputPath)
			}
			data, err := os.ReadFile(resp.OutputPath)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if !strings.Contains(string(data), tt.wantText) {
				t.Errorf("export missing %q:\n%s", tt.wantText, data)
			}
		})
	}
}

func TestExport_Errors(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()

	tests := []struct {
		name   string
		req    export.Request
		status int
		code   string
	}{
		{"unknown format", export.Request{Format: "xml", OutputDir: dir}, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing dir", export.Request{}, http.StatusBadRequest, "BAD_REQUEST"},
		{"traversal", export.Request{OutputDir: dir + "/../x"}, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown composition", export.Request{CompositionID: "nope", OutputDir: dir}, http.StatusNotFound, "NOT_FOUND"},
		{"empty timeline", export.Request{OutputDir: dir}, http.StatusUnprocessableEntity, "UNRESOLVABLE_CLIPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectCode(t, env.do(t, http.MethodPost, "/export", tt.req), tt.status, tt.code)
		})
	}
}
