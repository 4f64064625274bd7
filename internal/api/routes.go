package api

import "net/http"

type routeBinding struct {
	pattern string
	handler http.HandlerFunc
}

func (h *Handler) registerRoutes(mux *http.ServeMux, routes []routeBinding) {
	for _, route := range routes {
		mux.HandleFunc(route.pattern, h.wrap(route.handler))
	}
}

func (h *Handler) registerMetaRoutes(mux *http.ServeMux) {
	h.registerRoutes(mux, []routeBinding{
		{pattern: "GET /api/meta", handler: h.meta},
	})
}

func (h *Handler) registerServicesRoutes(mux *http.ServeMux) {
	h.registerRoutes(mux, []routeBinding{
		{pattern: "GET /api/services", handler: h.listServices},
		{pattern: "POST /api/services", handler: h.addService},
		{pattern: "PATCH /api/services/{id}", handler: h.renameService},
		{pattern: "DELETE /api/services/{id}", handler: h.removeService},
		{pattern: "GET /api/services/{label}/status", handler: h.serviceStatus},
		{pattern: "POST /api/services/{label}/{action}", handler: h.serviceAction},
	})
}

func (h *Handler) registerDiscoveryRoutes(mux *http.ServeMux) {
	h.registerRoutes(mux, []routeBinding{
		{pattern: "GET /api/discover", handler: h.discover},
		{pattern: "GET /api/descriptors/{label}", handler: h.descriptor},
	})
}

func (h *Handler) registerHistoryRoutes(mux *http.ServeMux) {
	h.registerRoutes(mux, []routeBinding{
		{pattern: "GET /api/history", handler: h.listHistory},
	})
}

func (h *Handler) registerEventsRoutes(mux *http.ServeMux) {
	h.registerRoutes(mux, []routeBinding{
		{pattern: "GET /api/events", handler: h.streamEvents},
	})
}
