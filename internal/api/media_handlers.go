package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-timeline/internal/logging"
	"github.com/heimdex/heimdex-timeline/internal/media"
)

type MediaResponse struct {
	Files []*media.File `json:"files"`
}

func listMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := cfg.Media.Files(r.Context())
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		if files == nil {
			files = []*media.File{}
		}
		WriteJSON(w, http.StatusOK, MediaResponse{Files: files})
	}
}

func importMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportMediaRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}
		f, err := cfg.Media.Import(r.Context(), req.Path, media.ImportOptions{
			Name:     req.Name,
			Kind:     req.Kind,
			Duration: req.Duration,
			HasAudio: req.HasAudio,
			Width:    req.Width,
			Height:   req.Height,
		})
		if err != nil {
			cfg.Logger.Warn("media import failed", "path", logging.SanitizePath(req.Path), "error", err)
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusCreated, f)
	}
}

// removeMediaHandler refuses to drop files the live timeline still uses.
func removeMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, c := range cfg.Timeline.Clips() {
			if c.Source != nil && c.Source.MediaFileID == id {
				WriteError(w, http.StatusConflict, "media file is used by clip "+c.ID, "IN_USE")
				return
			}
		}
		if err := cfg.Media.Remove(r.Context(), id); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func streamMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Media.ServeFile(w, r, id); err != nil {
			cfg.Logger.Error("media stream failed", "media_file_id", id, "error", err)
		}
	}
}
