package module_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/reconify/pkg/lifecycle"
	"github.com/JaimeStill/reconify/pkg/module"
)

func TestNewInvalidPrefixPanics(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"empty", ""},
		{"root", "/"},
		{"no leading slash", "api"},
		{"nested path", "/api/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("expected panic for invalid prefix")
				}
			}()
			module.New(tt.prefix, http.NewServeMux())
		})
	}
}

func TestServePrefixStripping(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantPath string
	}{
		{"nested", "/api/uploads/sot", "/uploads/sot"},
		{"root", "/api", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received string
			m := module.New("/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				received = r.URL.Path
			}))

			m.Serve(httptest.NewRecorder(), httptest.NewRequest("GET", tt.path, nil))
			if received != tt.wantPath {
				t.Errorf("inner path: got %s, want %s", received, tt.wantPath)
			}
		})
	}
}

func TestRouterDispatch(t *testing.T) {
	router := module.NewRouter()

	var hit string
	router.Mount(module.New("/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = "api:" + r.URL.Path
	})))
	router.HandleNative("GET /other", func(w http.ResponseWriter, r *http.Request) {
		hit = "native"
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/uploads/", nil))
	if hit != "api:/uploads" {
		t.Errorf("module dispatch: got %s, want api:/uploads", hit)
	}

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/other", nil))
	if hit != "native" {
		t.Errorf("native dispatch: got %s, want native", hit)
	}
}

type fixed bool

func (f fixed) Ready() bool { return bool(f) }

func TestProbes(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]lifecycle.ReadinessChecker
		wantStatus int
		wantLabel  string
	}{
		{"all ready", map[string]lifecycle.ReadinessChecker{"db": fixed(true)}, http.StatusOK, "ready"},
		{"one pending", map[string]lifecycle.ReadinessChecker{"db": fixed(true), "lifecycle": fixed(false)}, http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := module.NewRouter()
			router.Probes(tt.checks)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			var body struct {
				Status string          `json:"status"`
				Checks map[string]bool `json:"checks"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantLabel {
				t.Errorf("label: got %s, want %s", body.Status, tt.wantLabel)
			}
			if len(body.Checks) != len(tt.checks) {
				t.Errorf("checks: got %v", body.Checks)
			}

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
			if rec.Code != http.StatusOK {
				t.Errorf("healthz: got %d, want 200", rec.Code)
			}
		})
	}
}
