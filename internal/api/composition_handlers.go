package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func listCompositionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := cfg.Graph.ActiveID()
		comps := cfg.Graph.List()
		resp := CompositionsResponse{ActiveID: active, Compositions: make([]CompositionSummary, len(comps))}
		for i, c := range comps {
			resp.Compositions[i] = CompositionToSummary(c, active)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createCompositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCompositionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := cfg.Graph.Create(r.Context(), req.Name, req.Width, req.Height, req.FrameRate)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, CompositionToSummary(c, cfg.Graph.ActiveID()))
	}
}

func getCompositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cfg.Graph.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

func renameCompositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameCompositionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		id := chi.URLParam(r, "id")
		if err := cfg.Graph.Rename(r.Context(), id, req.Name); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		c, err := cfg.Graph.Get(id)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, CompositionToSummary(c, cfg.Graph.ActiveID()))
	}
}

func deleteCompositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Graph.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func saveCompositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Graph.Save(r.Context()); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func activateCompositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Driver != nil {
			cfg.Driver.Pause()
		}
		if err := cfg.Graph.SetActive(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		getTimelineHandler(cfg).ServeHTTP(w, r)
	}
}

func addCompositionClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompositionClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TrackID == "" {
			WriteError(w, http.StatusBadRequest, "track_id is required", "BAD_REQUEST")
			return
		}
		clip, err := cfg.Graph.AddCompositionClip(req.TrackID, chi.URLParam(r, "id"), req.Start)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, clip)
	}
}

func dropClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DropClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.CompositionID == "" {
			WriteError(w, http.StatusBadRequest, "composition_id is required", "BAD_REQUEST")
			return
		}
		if err := cfg.Graph.DropClipInto(r.Context(), chi.URLParam(r, "id"), req.CompositionID, req.Start); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
