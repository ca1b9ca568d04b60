package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	// media elements cannot send bearer tokens
	r.With(LoopbackGuard()).Get("/media/{id}/stream", streamMediaHandler(cfg))
	r.With(LoopbackGuard()).Head("/media/{id}/stream", streamMediaHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/timeline", getTimelineHandler(cfg))
		r.Delete("/timeline", clearTimelineHandler(cfg))

		r.Get("/tracks", listTracksHandler(cfg))
		r.Post("/tracks", addTrackHandler(cfg))
		r.Patch("/tracks/{id}", updateTrackHandler(cfg))
		r.Delete("/tracks/{id}", removeTrackHandler(cfg))

		r.Get("/clips", listClipsHandler(cfg))
		r.Post("/clips", addClipHandler(cfg))
		r.Route("/clips/{id}", func(r chi.Router) {
			r.Get("/", getClipHandler(cfg))
			r.Patch("/", updateClipHandler(cfg))
			r.Delete("/", removeClipHandler(cfg))
			r.Post("/move", moveClipHandler(cfg))
			r.Post("/trim", trimClipHandler(cfg))
			r.Post("/split", splitClipHandler(cfg))
			r.Post("/unlink", unlinkClipHandler(cfg))
			r.Post("/drop", dropClipHandler(cfg))
			r.Put("/transform", setTransformHandler(cfg))
			r.Get("/evaluate", evaluateClipHandler(cfg))
			r.Put("/properties/{property}", setPropertyHandler(cfg))
			r.Get("/properties/{property}/mode", propertyModeHandler(cfg))
			r.Post("/recording", setRecordingHandler(cfg))
			r.Get("/keyframes", listKeyframesHandler(cfg))
			r.Post("/keyframes", addKeyframeHandler(cfg))
			r.Post("/effects", addEffectHandler(cfg))
			r.Patch("/effects/{effectID}", updateEffectHandler(cfg))
			r.Delete("/effects/{effectID}", removeEffectHandler(cfg))
			r.Post("/masks", addMaskHandler(cfg))
			r.Put("/masks/{maskID}", updateMaskHandler(cfg))
			r.Delete("/masks/{maskID}", removeMaskHandler(cfg))
		})
		r.Patch("/keyframes/{id}", updateKeyframeHandler(cfg))
		r.Delete("/keyframes/{id}", removeKeyframeHandler(cfg))

		r.Get("/view", getViewHandler(cfg))
		r.Patch("/view", updateViewHandler(cfg))
		r.Post("/view/reset", resetViewHandler(cfg))

		r.Get("/frame", frameHandler(cfg))
		r.Post("/frame/render", renderFrameHandler(cfg))
		r.Get("/playback", playbackStateHandler(cfg))
		r.Post("/playback/play", playHandler(cfg))
		r.Post("/playback/pause", pauseHandler(cfg))

		r.Get("/compositions", listCompositionsHandler(cfg))
		r.Post("/compositions", createCompositionHandler(cfg))
		r.Post("/compositions/save", saveCompositionHandler(cfg))
		r.Get("/compositions/{id}", getCompositionHandler(cfg))
		r.Patch("/compositions/{id}", renameCompositionHandler(cfg))
		r.Delete("/compositions/{id}", deleteCompositionHandler(cfg))
		r.Post("/compositions/{id}/activate", activateCompositionHandler(cfg))
		r.Post("/compositions/{id}/clips", addCompositionClipHandler(cfg))

		r.Get("/media", listMediaHandler(cfg))
		r.Post("/media", importMediaHandler(cfg))
		r.Delete("/media/{id}", removeMediaHandler(cfg))

		r.Get("/preview", previewStatusHandler(cfg))
		r.Post("/preview/fill", fillPreviewHandler(cfg))
		r.Post("/preview/cancel", cancelPreviewHandler(cfg))

		r.Get("/history", historyHandler(cfg))
		r.Post("/history/undo", undoHandler(cfg))
		r.Post("/history/redo", redoHandler(cfg))

		r.Post("/export", exportHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := cfg.Timeline.View()
		resp := StatusResponse{
			ActiveComposition: cfg.Graph.ActiveID(),
			Tracks:            len(cfg.Timeline.Tracks()),
			Clips:             len(cfg.Timeline.Clips()),
			Duration:          view.Duration,
			Playhead:          view.Playhead,
			Preview:           cfg.Cache.Status(),
		}
		if cfg.Driver != nil {
			resp.Playing = cfg.Driver.IsPlaying()
		}
		if cfg.History != nil {
			resp.CanUndo = cfg.History.CanUndo()
			resp.CanRedo = cfg.History.CanRedo()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
