package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/opus-domini/launchmon/internal/descriptor"
	"github.com/opus-domini/launchmon/internal/launchd"
	"github.com/opus-domini/launchmon/internal/monitor"
)

const discoverTimeout = 30 * time.Second

func (h *Handler) discover(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), discoverTimeout)
	defer cancel()

	services, err := h.monitor.Discover(ctx)
	if err != nil {
		if errors.Is(err, launchd.ErrManagerUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "MANAGER_UNAVAILABLE", "launchctl is not available", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	query := r.URL.Query()
	services = monitor.FilterServices(services, query.Get("filter"))
	monitor.SortServices(services, monitor.ParseSortOrder(query.Get("sort")))
	writeData(w, http.StatusOK, map[string]any{"services": services})
}

func (h *Handler) descriptor(w http.ResponseWriter, r *http.Request) {
	view, err := h.monitor.Descriptor(r.Context(), r.PathValue("label"))
	switch {
	case errors.Is(err, descriptor.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "descriptor not found", nil)
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	default:
		writeData(w, http.StatusOK, view)
	}
}
