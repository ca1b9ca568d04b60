package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-timeline/internal/interp"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

func getTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, TimelineResponse{
			CompositionID: cfg.Graph.ActiveID(),
			View:          cfg.Timeline.View(),
			Tracks:        cfg.Timeline.Tracks(),
			Clips:         cfg.Timeline.Clips(),
			Snapshot:      cfg.Timeline.GetSerializableState(),
		})
	}
}

func clearTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.ClearTimeline(); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listTracksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, TracksResponse{Tracks: cfg.Timeline.Tracks()})
	}
}

func addTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddTrackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Kind != timeline.TrackVideo && req.Kind != timeline.TrackAudio {
			WriteError(w, http.StatusBadRequest, "kind must be video or audio", "BAD_REQUEST")
			return
		}
		tr, err := cfg.Timeline.AddTrack(req.Kind, req.Name)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, tr)
	}
}

func updateTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateTrackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		tr, err := cfg.Timeline.UpdateTrack(chi.URLParam(r, "id"), timeline.TrackUpdate{
			Name:    req.Name,
			Height:  req.Height,
			Muted:   req.Muted,
			Visible: req.Visible,
			Solo:    req.Solo,
		})
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, tr)
	}
}

func removeTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.RemoveTrack(chi.URLParam(r, "id")); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips := cfg.Timeline.Clips()
		if trackID := r.URL.Query().Get("track_id"); trackID != "" {
			clips = cfg.Timeline.ClipsOnTrack(trackID)
		}
		if clips == nil {
			clips = []*timeline.Clip{}
		}
		WriteJSON(w, http.StatusOK, ClipsResponse{Clips: clips})
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TrackID == "" || req.MediaFileID == "" {
			WriteError(w, http.StatusBadRequest, "track_id and media_file_id are required", "BAD_REQUEST")
			return
		}
		src, ok := cfg.Media.ResolveMedia(req.MediaFileID)
		if !ok {
			WriteError(w, http.StatusNotFound, "media file not found", "NOT_FOUND")
			return
		}
		clip, err := cfg.Timeline.AddClip(req.TrackID, src, req.Start)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, clip)
	}
}

func getClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.Timeline.Clip(chi.URLParam(r, "id"))
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	}
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		clip, err := cfg.Timeline.UpdateClip(chi.URLParam(r, "id"), timeline.ClipUpdate{
			Name:     req.Name,
			Reversed: req.Reversed,
			Volume:   req.Volume,
		})
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	}
}

func removeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		withLinked, _ := strconv.ParseBool(r.URL.Query().Get("linked"))
		if err := cfg.Timeline.RemoveClip(chi.URLParam(r, "id"), withLinked); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func moveClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MoveClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		clip, err := cfg.Timeline.MoveClip(chi.URLParam(r, "id"), req.Start, timeline.MoveOptions{
			TrackID:    req.TrackID,
			SkipLinked: req.SkipLinked,
			NoSnap:     req.NoSnap,
		})
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	}
}

func trimClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		clip, err := cfg.Timeline.TrimClip(chi.URLParam(r, "id"), req.InPoint, req.OutPoint)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, clip)
	}
}

func splitClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SplitClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		first, second, err := cfg.Timeline.SplitClip(chi.URLParam(r, "id"), req.Time)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, SplitClipResponse{First: first, Second: second})
	}
}

func unlinkClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.Unlink(chi.URLParam(r, "id")); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func setTransformHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tr := timeline.DefaultTransform()
		if !decodeBody(w, r, &tr) {
			return
		}
		if !tr.BlendMode.Valid() {
			WriteError(w, http.StatusBadRequest, "unknown blend mode", "BAD_REQUEST")
			return
		}
		if err := cfg.Timeline.SetTransform(chi.URLParam(r, "id"), tr); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func evaluateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		local, ok := queryTime(w, r, "t", 0)
		if !ok {
			return
		}
		tr, effects, err := cfg.Timeline.EvaluateClip(chi.URLParam(r, "id"), local)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, EvaluateResponse{Time: local, Transform: tr, Effects: effects})
	}
}

// setPropertyHandler writes a value the way the property panel does: static
// properties change in place, animated ones get a keyframe at the playhead.
func setPropertyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PropertyValueRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := cfg.Timeline.SetPropertyValue(chi.URLParam(r, "id"), chi.URLParam(r, "property"), req.Value); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func propertyModeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		property := chi.URLParam(r, "property")
		mode, err := cfg.Timeline.PropertyMode(chi.URLParam(r, "id"), property)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, PropertyModeResponse{Property: property, Mode: mode})
	}
}

func setRecordingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecordingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		clipID := chi.URLParam(r, "id")
		if err := cfg.Timeline.SetRecording(clipID, req.Property, req.On); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		mode, err := cfg.Timeline.PropertyMode(clipID, req.Property)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, PropertyModeResponse{Property: req.Property, Mode: mode})
	}
}

func listKeyframesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kfs, err := cfg.Timeline.Keyframes(chi.URLParam(r, "id"))
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		if p := r.URL.Query().Get("property"); p != "" {
			kfs = interp.ForProperty(kfs, p)
		}
		if kfs == nil {
			kfs = []timeline.Keyframe{}
		}
		WriteJSON(w, http.StatusOK, KeyframesResponse{Keyframes: kfs})
	}
}

func addKeyframeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddKeyframeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		easing, err := interp.ParseEasing(req.Easing)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		kf, err := cfg.Timeline.AddKeyframe(chi.URLParam(r, "id"), req.Property, req.Time, req.Value, easing)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, kf)
	}
}

func updateKeyframeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateKeyframeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		id := chi.URLParam(r, "id")
		u := timeline.KeyframeUpdate{Value: req.Value}
		if req.Easing != nil {
			easing, err := interp.ParseEasing(*req.Easing)
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			u.Easing = &easing
		}

		kf, err := cfg.Timeline.UpdateKeyframe(id, u)
		if err == nil && req.Time != nil {
			kf, err = cfg.Timeline.MoveKeyframe(id, *req.Time)
		}
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, kf)
	}
}

func removeKeyframeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.RemoveKeyframe(chi.URLParam(r, "id")); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addEffectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddEffectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		e, err := cfg.Timeline.AddEffect(chi.URLParam(r, "id"), req.Type, req.Name, req.Params)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, e)
	}
}

func updateEffectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateEffectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		e, err := cfg.Timeline.UpdateEffect(chi.URLParam(r, "id"), chi.URLParam(r, "effectID"), timeline.EffectUpdate{
			Enabled: req.Enabled,
			Name:    req.Name,
			Params:  req.Params,
		})
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, e)
	}
}

func removeEffectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.RemoveEffect(chi.URLParam(r, "id"), chi.URLParam(r, "effectID")); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addMaskHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := timeline.Mask{Opacity: 1, Closed: true, Visible: true}
		if !decodeBody(w, r, &m) {
			return
		}
		out, err := cfg.Timeline.AddMask(chi.URLParam(r, "id"), m)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, out)
	}
}

func updateMaskHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m timeline.Mask
		if !decodeBody(w, r, &m) {
			return
		}
		m.ID = chi.URLParam(r, "maskID")
		if err := cfg.Timeline.UpdateMask(chi.URLParam(r, "id"), m); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeMaskHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.RemoveMask(chi.URLParam(r, "id"), chi.URLParam(r, "maskID")); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getViewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Timeline.View())
	}
}

func updateViewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateViewRequest
		if !decodeBody(w, r, &req) {
			return
		}
		tl := cfg.Timeline
		steps := []func() error{}
		if req.Duration != nil {
			steps = append(steps, func() error { return tl.SetDuration(*req.Duration) })
		}
		if req.Zoom != nil {
			steps = append(steps, func() error { return tl.SetZoom(*req.Zoom) })
		}
		if req.ScrollX != nil {
			steps = append(steps, func() error { return tl.SetScroll(*req.ScrollX) })
		}
		if req.Loop != nil {
			steps = append(steps, func() error { return tl.SetLoop(*req.Loop) })
		}
		if req.ClearInOut || req.InPoint != nil || req.OutPoint != nil {
			steps = append(steps, func() error {
				in, out := req.InPoint, req.OutPoint
				if !req.ClearInOut {
					cur := tl.View()
					if in == nil {
						in = cur.InPoint
					}
					if out == nil {
						out = cur.OutPoint
					}
				}
				return tl.SetInOut(in, out)
			})
		}
		if req.Playhead != nil {
			steps = append(steps, func() error { return tl.SetPlayhead(*req.Playhead) })
		}

		for _, step := range steps {
			if err := step(); err != nil {
				writeEditError(w, cfg.Logger, err)
				return
			}
		}
		WriteJSON(w, http.StatusOK, tl.View())
	}
}

func resetViewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Timeline.ResetView(); err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Timeline.View())
	}
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at, ok := queryTime(w, r, "t", cfg.Timeline.Playhead())
		if !ok {
			return
		}
		frame := cfg.Timeline.FrameAt(at)
		if frame.Layers == nil {
			frame.Layers = []timeline.Layer{}
		}
		WriteJSON(w, http.StatusOK, frame)
	}
}

// renderFrameHandler scrubs to the requested time and renders it.
func renderFrameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		hit, err := cfg.Driver.Scrub(r.Context(), req.Time)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, RenderResponse{Time: cfg.Timeline.Playhead(), CacheHit: hit})
	}
}

func playbackState(cfg ServerConfig) PlaybackResponse {
	hits, misses := cfg.Driver.Stats()
	return PlaybackResponse{
		Playing:  cfg.Driver.IsPlaying(),
		Playhead: cfg.Timeline.Playhead(),
		Hits:     hits,
		Misses:   misses,
	}
}

func playbackStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, playbackState(cfg))
	}
}

func playHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Driver.Play()
		WriteJSON(w, http.StatusOK, playbackState(cfg))
	}
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Driver.Pause()
		WriteJSON(w, http.StatusOK, playbackState(cfg))
	}
}
