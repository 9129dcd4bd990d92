package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Continent: q.Get("continent"),
		Status:    model.RunStatus(q.Get("status")),
		Limit:     defaultLimit,
	}

	switch filter.Status {
	case "", model.RunStatusRunning, model.RunStatusComplete, model.RunStatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(filter.Status)))
		return
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit", defaultLimit); !ok {
		return
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset", 0); !ok {
		return
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		internalError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		internalError(w, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handlers) getProvenance(w http.ResponseWriter, r *http.Request) {
	reachID, err := strconv.ParseInt(chi.URLParam(r, "reachID"), 10, 64)
	if err != nil || reachID <= 0 {
		writeError(w, http.StatusBadRequest, "reach id must be a positive integer")
		return
	}

	prov, err := h.store.LoadProvenance(r.Context(), reachID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no provenance for reach")
		return
	}
	if err != nil {
		internalError(w, "load provenance", err)
		return
	}
	writeJSON(w, http.StatusOK, prov)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Collect(r.Context(), h.lookback)
	if err != nil {
		internalError(w, "collect status", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// intParam parses an optional non-negative integer query parameter. It
// writes a 400 and returns false when the value is malformed.
func intParam(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
