// Package management provides a loopback-only HTTP API for runtime
// inspection and control of a running redaction engine.
//
// Endpoints:
//
//	GET  /status        - engine uptime, active policy name, term bank sizes
//	GET  /metrics       - internal/metrics JSON snapshot
//	GET  /metrics-prom  - internal/metrics Prometheus exposition
//	POST /types/enable  - enable a PHI type {"type":"ssn"}
//	POST /types/remove  - disable a PHI type {"type":"ssn"}
package management

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"redact/internal/engine"
	"redact/internal/metrics"
	"redact/internal/phitype"
)

// Server is the management API server.
type Server struct {
	startTime        time.Time
	types            *TypeRegistry
	rt               *engine.Runtime // nil = toggles persist but no live runtime to notify (e.g. offline policy editing)
	token            string          // bearer token for auth; empty = no auth
	metrics          *metrics.Metrics
	promHandler      http.Handler // nil when metrics is nil
	activePolicyName string
	bankSizes        map[string]int // dictionary/whitelist term bank sizes, for /status
}

// TypeRegistry holds the mutable set of enabled PHI types. The redaction
// pipeline does not read it: cmd/redact seeds the Runtime's policy from it
// at startup, and the management server pushes each change into the Runtime
// with SetTypeEnabled as it mutates the registry. Changes persist to disk via atomic file writes so they
// survive process restarts, exactly as the teacher's DomainRegistry did for
// its AI-domain allowlist.
type TypeRegistry struct {
	mu          sync.RWMutex
	enabled     map[phitype.Type]bool
	persistPath string // empty = no persistence
}

// NewTypeRegistry creates a registry seeded with every closed-enumeration
// PHI type enabled, then overlaid with any persisted runtime overrides.
func NewTypeRegistry(persistPath string) *TypeRegistry {
	r := &TypeRegistry{
		enabled:     make(map[phitype.Type]bool, len(phitype.All)),
		persistPath: persistPath,
	}
	for _, t := range phitype.All {
		r.enabled[t] = true
	}

	if persistPath != "" {
		overrides, err := r.loadFromDisk()
		switch {
		case err == nil:
			for t, v := range overrides {
				r.enabled[t] = v
			}
			log.Printf("[MANAGEMENT] Loaded %d type overrides from %s", len(overrides), persistPath)
		case !os.IsNotExist(err):
			log.Printf("[MANAGEMENT] Warning: failed to load %s: %v (using all types enabled)", persistPath, err)
		}
	}
	return r
}

// Enabled returns whether t is currently enabled.
func (r *TypeRegistry) Enabled(t phitype.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[t]
}

// Set enables or disables t and persists the change to disk.
func (r *TypeRegistry) Set(t phitype.Type, enabled bool) {
	r.mu.Lock()
	r.enabled[t] = enabled
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(snapshot)
}

// All returns every known type's current enabled state.
func (r *TypeRegistry) All() map[phitype.Type]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// snapshotLocked returns a copy of the current state. Caller must hold r.mu.
func (r *TypeRegistry) snapshotLocked() map[phitype.Type]bool {
	out := make(map[phitype.Type]bool, len(r.enabled))
	for t, v := range r.enabled {
		out[t] = v
	}
	return out
}

func (r *TypeRegistry) loadFromDisk() (map[phitype.Type]bool, error) {
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		return nil, err
	}
	var overrides map[phitype.Type]bool
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.persistPath, err)
	}
	return overrides, nil
}

// persist writes the given type-state snapshot to disk atomically.
// It does NOT hold r.mu, so it won't block Enabled/All/Set calls.
func (r *TypeRegistry) persist(states map[phitype.Type]bool) {
	if r.persistPath == "" {
		return
	}

	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		log.Printf("[MANAGEMENT] Marshal error: %v", err)
		return
	}

	dir := filepath.Dir(r.persistPath)
	tmp, err := os.CreateTemp(dir, ".redact-types-*.tmp")
	if err != nil {
		log.Printf("[MANAGEMENT] Persist error (create temp): %v", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck
		log.Printf("[MANAGEMENT] Persist error (write): %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		log.Printf("[MANAGEMENT] Persist error (close): %v", err)
		return
	}
	if err := os.Rename(tmpName, r.persistPath); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		log.Printf("[MANAGEMENT] Persist error (rename): %v", err)
		return
	}
}

// New creates a management server. rt may be nil (toggles then only persist,
// useful for tests and offline policy editing); m may be nil (the /metrics
// endpoints return 503).
func New(types *TypeRegistry, rt *engine.Runtime, m *metrics.Metrics, token, activePolicyName string, bankSizes map[string]int) *Server {
	s := &Server{
		startTime:        time.Now(),
		types:            types,
		rt:               rt,
		token:            token,
		metrics:          m,
		activePolicyName: activePolicyName,
		bankSizes:        bankSizes,
	}
	if s.token != "" {
		log.Printf("[MANAGEMENT] Bearer token authentication enabled")
	}
	if m != nil {
		// Each server owns a private registry rather than registering into
		// prometheus.DefaultRegisterer, so multiple Server/Metrics instances
		// (as in tests) never collide over a shared global registry.
		reg := prometheus.NewRegistry()
		if err := reg.Register(m); err != nil {
			log.Printf("[MANAGEMENT] Warning: failed to register metrics collector: %v", err)
		} else {
			s.promHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		}
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/metrics-prom", s.handleMetricsProm)
	mux.HandleFunc("/types/enable", s.handleSetType(true))
	mux.HandleFunc("/types/remove", s.handleSetType(false))
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			log.Printf("[MANAGEMENT] Unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status       string          `json:"status"`
		Uptime       string          `json:"uptime"`
		PolicyName   string          `json:"activePolicy"`
		TermBanks    map[string]int  `json:"termBankSizes"`
		EnabledTypes map[string]bool `json:"enabledTypes"`
	}

	enabled := make(map[string]bool, len(phitype.All))
	for t, v := range s.types.All() {
		enabled[string(t)] = v
	}

	resp := response{
		Status:       "running",
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		PolicyName:   s.activePolicyName,
		TermBanks:    s.bankSizes,
		EnabledTypes: enabled,
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSetType returns a handler that enables (enable=true) or disables
// (enable=false) the PHI type named in the request body.
func (s *Server) handleSetType(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1024)
		var req struct {
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
			http.Error(w, `invalid request: need {"type":"..."}`, http.StatusBadRequest)
			return
		}
		t := phitype.Type(strings.ToLower(req.Type))
		if !phitype.Valid(t) {
			http.Error(w, fmt.Sprintf("unknown PHI type %q", req.Type), http.StatusBadRequest)
			return
		}
		s.types.Set(t, enable)
		if s.rt != nil {
			s.rt.SetTypeEnabled(t, enable)
		}
		verb := "removed"
		if enable {
			verb = "added"
		}
		log.Printf("[MANAGEMENT] %s PHI type: %s", strings.ToUpper(verb[:1])+verb[1:], t)
		writeJSON(w, http.StatusOK, map[string]string{verb: string(t)})
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleMetricsProm(w http.ResponseWriter, r *http.Request) {
	if s.promHandler == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	s.promHandler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[MANAGEMENT] JSON encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server on a loopback-only
// listener; cmd/redact always binds it to 127.0.0.1, never a public
// interface.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("[MANAGEMENT] Listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
