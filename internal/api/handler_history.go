package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/opus-domini/launchmon/internal/store"
)

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "history recording is disabled", nil)
		return
	}
	query := r.URL.Query()
	label := strings.TrimSpace(query.Get("label"))
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a number", nil)
			return
		}
		limit = parsed
	}

	transitions, err := h.history.ListTransitions(r.Context(), label, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	actions, err := h.history.ListActions(r.Context(), label, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	if transitions == nil {
		transitions = []store.Transition{}
	}
	if actions == nil {
		actions = []store.Action{}
	}
	writeData(w, http.StatusOK, map[string]any{
		"transitions": transitions,
		"actions":     actions,
	})
}
