package module

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JaimeStill/reconify/pkg/lifecycle"
)

// Router dispatches requests to mounted modules by path prefix,
// falling back to a native ServeMux for unmatched paths.
type Router struct {
	modules map[string]*Module
	native  *http.ServeMux
}

// NewRouter creates a Router with an empty module map and native fallback mux.
func NewRouter() *Router {
	return &Router{
		modules: make(map[string]*Module),
		native:  http.NewServeMux(),
	}
}

// HandleNative registers a handler on the native fallback mux.
func (r *Router) HandleNative(pattern string, handler http.HandlerFunc) {
	r.native.HandleFunc(pattern, handler)
}

// Mount registers a module to handle requests matching its prefix.
func (r *Router) Mount(m *Module) {
	r.modules[m.prefix] = m
}

// Probes registers GET /healthz, which always answers ok, and GET /readyz,
// which answers 503 until every checker reports ready.
func (r *Router) Probes(checks map[string]lifecycle.ReadinessChecker) {
	r.HandleNative("GET /healthz", func(w http.ResponseWriter, req *http.Request) {
		writeProbe(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.HandleNative("GET /readyz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		detail := make(map[string]bool, len(checks))
		for name, c := range checks {
			ready := c.Ready()
			detail[name] = ready
			if !ready {
				status = http.StatusServiceUnavailable
			}
		}

		label := "ready"
		if status != http.StatusOK {
			label = "not ready"
		}
		writeProbe(w, status, map[string]any{"status": label, "checks": detail})
	})
}

// ServeHTTP dispatches to the matching module or falls back to the native mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := normalizePath(req)

	if m, ok := r.modules[firstSegment(path)]; ok {
		m.Serve(w, req)
		return
	}

	r.native.ServeHTTP(w, req)
}

func writeProbe(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func firstSegment(path string) string {
	rest := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return "/" + rest
}

func normalizePath(req *http.Request) string {
	path := req.URL.Path
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
		req.URL.Path = path
	}
	return path
}
