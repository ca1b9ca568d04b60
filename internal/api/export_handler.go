package api

import (
	"net/http"
	"strings"

	"github.com/heimdex/heimdex-timeline/internal/export"
)

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.Request
		if !decodeBody(w, r, &req) {
			return
		}

		format := strings.ToLower(strings.TrimSpace(req.Format))
		if format == "" {
			format = export.FormatEDL
		}
		if format != export.FormatEDL && format != export.FormatYAML {
			WriteError(w, http.StatusBadRequest, "format must be edl or yaml", "BAD_REQUEST")
			return
		}

		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		id := req.CompositionID
		if id == "" {
			id = cfg.Graph.ActiveID()
		}
		comp, err := cfg.Graph.Get(id)
		if err != nil {
			writeEditError(w, cfg.Logger, err)
			return
		}

		title := req.Title
		if strings.TrimSpace(title) == "" {
			title = comp.Name
		}
		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = comp.FrameRate
		}
		if frameRate <= 0 {
			frameRate = 30.0
		}

		var data []byte
		unresolved := []string{}
		count := 0

		switch format {
		case export.FormatEDL:
			events, missing := export.EventsFromSnapshot(comp.Snapshot, cfg.Media)
			if len(events) == 0 {
				WriteError(w, http.StatusUnprocessableEntity, "no clips could be resolved", "UNRESOLVABLE_CLIPS")
				return
			}
			if missing != nil {
				unresolved = missing
			}
			data = []byte(export.GenerateEDL(events, title, frameRate))
			count = len(events)
		case export.FormatYAML:
			if data, err = export.MarshalYAML(comp); err != nil {
				writeEditError(w, cfg.Logger, err)
				return
			}
			count = len(comp.Snapshot.Clips)
		}

		outputPath, err := export.WriteFile(req.OutputDir, title, "timeline_export", format, data)
		if err != nil {
			cfg.Logger.Error("export write failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		cfg.Logger.Info("composition exported", "composition_id", comp.ID, "format", format, "events", count)
		WriteJSON(w, http.StatusOK, export.Response{
			Status:          "ok",
			Format:          format,
			OutputPath:      outputPath,
			EventCount:      count,
			UnresolvedClips: unresolved,
		})
	}
}
