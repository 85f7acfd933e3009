// Package api exposes the batch and streaming redaction entry points over
// HTTP: a JSON request/response surface for one-shot documents, and a
// WebSocket surface for the sliding-window streaming controller. It knows
// nothing about how a Runtime is built — only how to drive one.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"redact/internal/engine"
	"redact/internal/metrics"
	"redact/internal/phitype"
	"redact/internal/stream"
)

// maxRedactBodyBytes caps a single /v1/redact request body; streaming mode
// exists precisely so callers with larger documents don't need to raise this.
const maxRedactBodyBytes = 10 << 20 // 10 MiB

// Logger is the narrow slice of internal/logger.Logger this package needs.
type Logger interface {
	Warnf(action, format string, args ...any)
	Errorf(action, format string, args ...any)
}

// Redactor is the subset of internal/engine.Runtime this package drives. It
// is declared here, not imported as a concrete type, so tests can swap in a
// lightweight fake instead of assembling a full pipeline.
type Redactor interface {
	Redact(text string, opts engine.RedactOptions) (engine.RedactResult, error)
	NewStreamingSession(streamOpts stream.Options, redactOpts engine.RedactOptions) *stream.Controller
}

// Server is the HTTP API server.
type Server struct {
	rt         Redactor
	metrics    *metrics.Metrics // nil = metrics disabled
	logger     Logger
	streamOpts stream.Options
	upgrader   websocket.Upgrader
}

// New creates an API server. m and logger may be nil.
func New(rt Redactor, m *metrics.Metrics, logger Logger, streamOpts stream.Options) *Server {
	return &Server{
		rt:         rt,
		metrics:    m,
		logger:     logger,
		streamOpts: streamOpts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The API is reached through cmd/redact's own HTTP listener, not a
			// browser page served from a third-party origin; no cross-origin
			// WebSocket handshake is expected.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler for the batch and streaming API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/redact", s.handleRedact)
	mux.HandleFunc("/v1/stream", s.handleStream)
	return mux
}

// redactRequest is the /v1/redact request body. Its options object carries
// only purposeOfUse and includeReport; type selection, replacement style,
// custom replacements and policy selection are not read from the request.
type redactRequest struct {
	Text    string `json:"text"`
	Options struct {
		PurposeOfUse  string `json:"purposeOfUse"`
		IncludeReport bool   `json:"includeReport"`
	} `json:"options"`
}

type redactResponse struct {
	Text            string               `json:"text"`
	RedactionCount  int                  `json:"redactionCount"`
	Breakdown       map[phitype.Type]int `json:"breakdown"`
	ExecutionMillis float64              `json:"executionMillis"`
	Report          *engine.Report       `json:"report,omitempty"`
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.metrics != nil {
		s.metrics.RequestsTotal.Add(1)
		s.metrics.RequestsBatch.Add(1)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRedactBodyBytes)
	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, `"text" is required`, http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.rt.Redact(req.Text, engine.RedactOptions{
		PurposeOfUse:  req.Options.PurposeOfUse,
		IncludeReport: req.Options.IncludeReport,
	})
	if s.metrics != nil {
		s.metrics.RecordRedactLatency(time.Since(start))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.ErrorsEngine.Add(1)
		}
		if s.logger != nil {
			s.logger.Errorf("redact", "pipeline error: %v", err)
		}
		http.Error(w, "redaction failed", http.StatusInternalServerError)
		return
	}
	if s.metrics != nil {
		for t, n := range result.Breakdown {
			for i := 0; i < n; i++ {
				s.metrics.RecordRedaction(t)
			}
		}
	}

	writeJSON(w, http.StatusOK, redactResponse{
		Text:            result.Text,
		RedactionCount:  result.RedactionCount,
		Breakdown:       result.Breakdown,
		ExecutionMillis: result.ExecutionMillis,
		Report:          result.Report,
	})
}

// streamControlMsg is a client control frame: {"op":"flush"} or
// {"op":"reset"}. A frame with no "op" (or an empty one) is treated as a
// chunk of text to push into the controller; any other "op" value gets an
// error frame.
type streamControlMsg struct {
	Op string `json:"op"`
}

// streamChunkMsg is the ordinary client frame: raw text to push.
type streamChunkMsg struct {
	Text string `json:"text"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnf("stream", "websocket upgrade failed: %v", err)
		}
		return
	}
	defer conn.Close() //nolint:errcheck

	if s.metrics != nil {
		s.metrics.RequestsTotal.Add(1)
		s.metrics.RequestsStreaming.Add(1)
	}

	session := s.rt.NewStreamingSession(s.streamOpts, engine.RedactOptions{})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if s.logger != nil {
					s.logger.Warnf("stream", "connection closed unexpectedly: %v", err)
				}
			}
			return
		}

		var ctrl streamControlMsg
		if json.Unmarshal(raw, &ctrl) == nil && ctrl.Op != "" {
			if !s.handleControlOp(conn, session, ctrl.Op) {
				return
			}
			continue
		}

		var chunk streamChunkMsg
		if err := json.Unmarshal(raw, &chunk); err != nil {
			s.writeStreamError(conn, fmt.Sprintf("invalid frame: %v", err))
			continue
		}

		segments, err := session.Push(chunk.Text)
		if err != nil {
			if s.metrics != nil {
				s.metrics.ErrorsEngine.Add(1)
			}
			s.writeStreamError(conn, err.Error())
			continue
		}
		if !s.emitSegments(conn, segments) {
			return
		}
	}
}

// handleControlOp runs one control frame; it returns false if the
// connection should be torn down (a write error occurred).
func (s *Server) handleControlOp(conn *websocket.Conn, session *stream.Controller, op string) bool {
	switch op {
	case "flush":
		seg, err := session.Flush()
		if err != nil {
			s.writeStreamError(conn, err.Error())
			return true
		}
		return s.emitSegments(conn, []stream.Segment{seg})
	case "reset":
		session.Reset()
		return true
	default:
		s.writeStreamError(conn, fmt.Sprintf("unknown op %q", op))
		return true
	}
}

// segmentResponse mirrors spec.md §6's streaming wire contract.
type segmentResponse struct {
	Text               string `json:"text"`
	RedactionCount     int    `json:"redactionCount"`
	ContainsRedactions bool   `json:"containsRedactions"`
	Position           int    `json:"position"`
}

func (s *Server) emitSegments(conn *websocket.Conn, segments []stream.Segment) bool {
	for _, seg := range segments {
		resp := segmentResponse{
			Text:               seg.Text,
			RedactionCount:     seg.RedactionCount,
			ContainsRedactions: seg.RedactionCount > 0,
			Position:           seg.Position,
		}
		if err := conn.WriteJSON(resp); err != nil {
			if s.logger != nil {
				s.logger.Warnf("stream", "write error: %v", err)
			}
			return false
		}
	}
	return true
}

func (s *Server) writeStreamError(conn *websocket.Conn, msg string) {
	if err := conn.WriteJSON(map[string]string{"error": msg}); err != nil && s.logger != nil {
		s.logger.Warnf("stream", "failed to write error frame: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
