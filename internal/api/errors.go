package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/heimdex/heimdex-timeline/internal/composition"
	"github.com/heimdex/heimdex-timeline/internal/export"
	"github.com/heimdex/heimdex-timeline/internal/history"
	"github.com/heimdex/heimdex-timeline/internal/media"
	"github.com/heimdex/heimdex-timeline/internal/ramcache"
	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

// writeEditError maps domain errors to HTTP responses. Cycle checks come
// before the generic rejection because cycle errors also match ErrRejected.
func writeEditError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, timeline.ErrNotFound),
		errors.Is(err, composition.ErrUnknownComposition),
		errors.Is(err, media.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, composition.ErrCycle):
		WriteError(w, http.StatusConflict, err.Error(), "COMPOSITION_CYCLE")
	case errors.Is(err, composition.ErrInUse):
		WriteError(w, http.StatusConflict, err.Error(), "IN_USE")
	case errors.Is(err, timeline.ErrRejected):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "EDIT_REJECTED")
	case errors.Is(err, history.ErrNothingToUndo), errors.Is(err, history.ErrNothingToRedo):
		WriteError(w, http.StatusConflict, err.Error(), "HISTORY_EMPTY")
	case errors.Is(err, ramcache.ErrFillInProgress):
		WriteError(w, http.StatusConflict, err.Error(), "FILL_IN_PROGRESS")
	case errors.Is(err, media.ErrUnsupported), errors.Is(err, export.ErrInvalidOutputDir):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

// queryTime reads a seconds value from the query string. def is used when
// the parameter is absent.
func queryTime(w http.ResponseWriter, r *http.Request, name string, def float64) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, name+" must be a number", "BAD_REQUEST")
		return 0, false
	}
	return v, true
}
