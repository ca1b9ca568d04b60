package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestMediaRoutes(t *testing.T) {
	env := newTestEnv(t)
	used := env.importVideo(t, "used.mp4", 3)
	spare := env.importVideo(t, "spare.mp4", 3)
	env.addClip(t, used.ID, 0)

	rr := env.do(t, http.MethodGet, "/media", nil)
	var list MediaResponse
	decodeInto(t, rr, &list)
	if len(list.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(list.Files))
	}

	expectCode(t, env.do(t, http.MethodDelete, "/media/"+used.ID, nil), http.StatusConflict, "IN_USE")
	if rr := env.do(t, http.MethodDelete, "/media/"+spare.ID, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, body %s", rr.Code, rr.Body.String())
	}
	expectCode(t, env.do(t, http.MethodDelete, "/media/"+spare.ID, nil), http.StatusNotFound, "NOT_FOUND")
}

func TestImportMedia_Errors(t *testing.T) {
	env := newTestEnv(t)
	clip := filepath.Join(env.dir, "clip.mp4")
	if err := os.WriteFile(clip, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  ImportMediaRequest
	}{
		{"missing path", ImportMediaRequest{Duration: 1}},
		{"missing file", ImportMediaRequest{Path: filepath.Join(env.dir, "none.mp4"), Duration: 1}},
		{"directory", ImportMediaRequest{Path: env.dir, Duration: 1}},
		{"unsupported extension", ImportMediaRequest{Path: filepath.Join(env.dir, "test.db"), Duration: 1}},
		{"video without duration", ImportMediaRequest{Path: clip}},
		{"unknown kind", ImportMediaRequest{Path: clip, Kind: "hologram", Duration: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectCode(t, env.do(t, http.MethodPost, "/media", tt.req), http.StatusBadRequest, "BAD_REQUEST")
		})
	}
}
