package management

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"redact/internal/metrics"
	"redact/internal/phitype"
)

// --- TypeRegistry tests ---

func TestTypeRegistry_DefaultsAllEnabled(t *testing.T) {
	r := NewTypeRegistry("")
	if !r.Enabled(phitype.SSN) {
		t.Error("expected ssn enabled by default")
	}
	if !r.Enabled(phitype.Email) {
		t.Error("expected email enabled by default")
	}
}

func TestTypeRegistry_SetDisable(t *testing.T) {
	r := NewTypeRegistry("")
	r.Set(phitype.SSN, false)
	if r.Enabled(phitype.SSN) {
		t.Error("expected ssn disabled after Set(false)")
	}
	r.Set(phitype.SSN, true)
	if !r.Enabled(phitype.SSN) {
		t.Error("expected ssn re-enabled after Set(true)")
	}
}

func TestTypeRegistry_All_CoversEveryType(t *testing.T) {
	r := NewTypeRegistry("")
	all := r.All()
	if len(all) != len(phitype.All) {
		t.Fatalf("expected %d types, got %d", len(phitype.All), len(all))
	}
	for _, ty := range phitype.All {
		if !all[ty] {
			t.Errorf("expected %s enabled by default", ty)
		}
	}
}

func TestTypeRegistry_Persistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "types.json")

	r := NewTypeRegistry(path)
	r.Set(phitype.SSN, false)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("persist file not created: %v", err)
	}
	var overrides map[phitype.Type]bool
	if err := json.Unmarshal(data, &overrides); err != nil {
		t.Fatalf("invalid JSON in persist file: %v", err)
	}

	r2 := NewTypeRegistry(path)
	if r2.Enabled(phitype.SSN) {
		t.Error("expected ssn=false loaded from disk")
	}
	if !r2.Enabled(phitype.Email) {
		t.Error("expected email still enabled (untouched override)")
	}
}

func TestTypeRegistry_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "types.json")

	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewTypeRegistry(path)
	if !r.Enabled(phitype.SSN) {
		t.Error("expected fallback to all-enabled defaults on corrupt file")
	}
}

// --- HTTP handler tests ---

func newTestServer(token string) (*Server, *TypeRegistry) {
	reg := NewTypeRegistry("")
	srv := New(reg, nil, metrics.New(), token, "default", map[string]int{"whitelist": 10, "dictionary": 200})
	return srv, reg
}

func TestStatus_OK(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["status"] != "running" {
		t.Errorf("expected status=running, got %v", resp["status"])
	}
	if resp["activePolicy"] != "default" {
		t.Errorf("expected activePolicy=default, got %v", resp["activePolicy"])
	}
}

func TestAuth_NoToken_PassThrough(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with no token configured, got %d", w.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	srv, _ := newTestServer("secret123")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", w.Code)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	srv, _ := newTestServer("secret123")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	srv, _ := newTestServer("secret123")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with missing token, got %d", w.Code)
	}
}

func TestEnableType_OK(t *testing.T) {
	srv, reg := newTestServer("")
	reg.Set(phitype.SSN, false)

	body := `{"type":"ssn"}`
	req := httptest.NewRequest(http.MethodPost, "/types/enable", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !reg.Enabled(phitype.SSN) {
		t.Error("ssn was not enabled in registry")
	}
}

func TestEnableType_CaseNormalized(t *testing.T) {
	srv, reg := newTestServer("")
	reg.Set(phitype.SSN, false)

	body := `{"type":"SSN"}`
	req := httptest.NewRequest(http.MethodPost, "/types/enable", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !reg.Enabled(phitype.SSN) {
		t.Error("type name should be normalized to lowercase")
	}
}

func TestEnableType_UnknownType(t *testing.T) {
	srv, _ := newTestServer("")
	body := `{"type":"not_a_real_type"}`
	req := httptest.NewRequest(http.MethodPost, "/types/enable", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", w.Code)
	}
}

func TestEnableType_EmptyType(t *testing.T) {
	srv, _ := newTestServer("")
	body := `{"type":""}`
	req := httptest.NewRequest(http.MethodPost, "/types/enable", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty type, got %d", w.Code)
	}
}

func TestEnableType_WrongMethod(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/types/enable", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", w.Code)
	}
}

func TestRemoveType_OK(t *testing.T) {
	srv, reg := newTestServer("")
	body := `{"type":"ssn"}`
	req := httptest.NewRequest(http.MethodPost, "/types/remove", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if reg.Enabled(phitype.SSN) {
		t.Error("ssn was not disabled in registry")
	}
}

func TestRemoveType_UnknownType(t *testing.T) {
	srv, _ := newTestServer("")
	body := `{"type":"bogus"}`
	req := httptest.NewRequest(http.MethodPost, "/types/remove", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", w.Code)
	}
}

func TestMetrics_JSONSnapshot(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid JSON metrics snapshot: %v", err)
	}
}

func TestMetrics_DisabledReturns503(t *testing.T) {
	reg := NewTypeRegistry("")
	srv := New(reg, nil, nil, "", "default", nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when metrics disabled, got %d", w.Code)
	}
}

func TestMetricsProm_ExposesRegisteredMetrics(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/metrics-prom", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "# HELP") && w.Body.Len() == 0 {
		t.Error("expected Prometheus exposition format body")
	}
}
