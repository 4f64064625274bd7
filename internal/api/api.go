package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/opus-domini/launchmon/internal/events"
	"github.com/opus-domini/launchmon/internal/launchd"
	"github.com/opus-domini/launchmon/internal/monitor"
	"github.com/opus-domini/launchmon/internal/registry"
	"github.com/opus-domini/launchmon/internal/security"
	"github.com/opus-domini/launchmon/internal/store"
)

type monitorService interface {
	Snapshot() monitor.Snapshot
	Add(ctx context.Context, label, displayName string) (registry.Item, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Rename(id uuid.UUID, name string) (registry.Item, error)
	Act(ctx context.Context, action launchd.Action, ref string) (launchd.ActionResult, error)
	ResolveNow(ctx context.Context, label string) launchd.State
	Discover(ctx context.Context) ([]monitor.DiscoveredService, error)
	Descriptor(ctx context.Context, label string) (monitor.DescriptorView, error)
	Subscribe(buffer int) (<-chan events.Event, func())
}

type historyReader interface {
	ListTransitions(ctx context.Context, label string, limit int) ([]store.Transition, error)
	ListActions(ctx context.Context, label string, limit int) ([]store.Action, error)
}

type Handler struct {
	guard   *security.Guard
	monitor monitorService
	history historyReader
	version string
}

// Register mounts the API on mux. history may be nil when recording is
// disabled.
func Register(mux *http.ServeMux, guard *security.Guard, mon monitorService, history historyReader, version string) {
	h := &Handler{
		guard:   guard,
		monitor: mon,
		history: history,
		version: version,
	}
	h.registerMetaRoutes(mux)
	h.registerServicesRoutes(mux)
	h.registerDiscoveryRoutes(mux)
	h.registerHistoryRoutes(mux)
	h.registerEventsRoutes(mux)
}

func (h *Handler) meta(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"tokenRequired": h.guard.TokenRequired(),
		"version":       h.version,
		"history":       h.history != nil,
	})
}

func (h *Handler) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.guard.CheckOrigin(r); err != nil {
			writeError(w, http.StatusForbidden, "ORIGIN_DENIED", "request origin is not allowed", nil)
			return
		}
		if err := h.guard.RequireAuth(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="launchmon"`)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next(w, r)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid json body: multiple json values")
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "id must be a uuid", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	errObj := map[string]any{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errObj["details"] = details
	}
	writeJSON(w, status, map[string]any{"error": errObj})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(payload); err != nil {
		slog.Error("json encode error", "err", err)
	}
}
