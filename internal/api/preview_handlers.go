package api

import (
	"context"
	"net/http"
)

func previewState(cfg ServerConfig) PreviewResponse {
	resp := PreviewResponse{Cache: cfg.Cache.Status(), Filling: cfg.Filler.IsRunning()}
	if last, ok := cfg.Filler.LastResult(); ok {
		resp.Last = &last
	}
	return resp
}

func previewStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, previewState(cfg))
	}
}

// fillPreviewHandler starts a background fill that outlives the request.
func fillPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Filler.Start(context.WithoutCancel(r.Context())); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, previewState(cfg))
	}
}

func cancelPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Filler.Cancel()
		WriteJSON(w, http.StatusOK, previewState(cfg))
	}
}

func historyState(cfg ServerConfig) HistoryResponse {
	undo, redo := cfg.History.Depth()
	return HistoryResponse{
		CanUndo: undo > 0,
		CanRedo: redo > 0,
		Undo:    undo,
		Redo:    redo,
	}
}

func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, historyState(cfg))
	}
}

func undoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.History.Undo(); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, historyState(cfg))
	}
}

func redoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.History.Redo(); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, historyState(cfg))
	}
}
