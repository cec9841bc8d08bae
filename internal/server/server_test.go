package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vision-ocr/vppe/internal/config"
	"github.com/vision-ocr/vppe/internal/svcctx"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("VPPE_DATA_DIR", t.TempDir())
	cm, err := config.NewManager("")
	if err != nil {
		t.Fatalf("config.NewManager: %v", err)
	}

	s, err := New(Config{ConfigManager: cm})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_RequiresConfigManager(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without config manager should fail")
	}
}

func TestNew_Defaults(t *testing.T) {
	s := newTestServer(t)
	if s.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %s", s.Addr())
	}
	if s.IsRunning() {
		t.Error("server should not be running before Start")
	}
	if s.Registry() == nil {
		t.Error("registry not wired")
	}
}

func TestRequireInit(t *testing.T) {
	s := newTestServer(t)

	called := false
	h := s.requireInit(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("pre-init status = %d, want 503", rec.Code)
	}
	if called {
		t.Error("handler must not run before initialization")
	}
	if !strings.Contains(rec.Body.String(), "not fully initialized") {
		t.Errorf("body = %s", rec.Body.String())
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if rec.Code != http.StatusOK || !called {
		t.Errorf("post-init status = %d, called = %v", rec.Code, called)
	}
}

func TestWithServices(t *testing.T) {
	s := newTestServer(t)

	var got *svcctx.Services
	h := s.withServices(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = svcctx.ServicesFrom(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if got == nil {
		t.Fatal("services not attached to request context")
	}
	if got.Registry != s.registry || got.Runner != s.runner || got.Hub != s.hub {
		t.Error("services wired to the wrong instances")
	}
}
