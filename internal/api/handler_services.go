package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opus-domini/launchmon/internal/launchd"
	"github.com/opus-domini/launchmon/internal/monitor"
	"github.com/opus-domini/launchmon/internal/registry"
)

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	snap := h.monitor.Snapshot()
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("order"))) {
	case "newest":
		monitor.SortItems(snap.Items, true)
	case "oldest":
		monitor.SortItems(snap.Items, false)
	}
	writeData(w, http.StatusOK, snap)
}

func (h *Handler) addService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label       string `json:"label"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	item, err := h.monitor.Add(r.Context(), req.Label, req.DisplayName)
	switch {
	case errors.Is(err, registry.ErrEmptyLabel):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "label is required", nil)
		return
	case errors.Is(err, registry.ErrPersist):
		// Tracked in memory; the client still gets the item.
		slog.Warn("registry save failed", "label", item.Label, "err", err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"item": item})
}

func (h *Handler) renameService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	item, err := h.monitor.Rename(id, req.DisplayName)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "service not tracked", nil)
		return
	case errors.Is(err, registry.ErrPersist):
		slog.Warn("registry save failed", "id", id, "err", err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"item": item})
}

func (h *Handler) removeService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.monitor.Remove(r.Context(), id); err != nil {
		slog.Warn("registry save failed", "id", id, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serviceStatus(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimSpace(r.PathValue("label"))
	if label == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "label is required", nil)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"label": label,
		"state": h.monitor.ResolveNow(r.Context(), label),
	})
}

func (h *Handler) serviceAction(w http.ResponseWriter, r *http.Request) {
	action, err := launchd.ParseAction(r.PathValue("action"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ACTION", "action must be start, stop or restart", nil)
		return
	}
	res, err := h.monitor.Act(r.Context(), action, r.PathValue("label"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"result": res})
}
