// Package server exposes the core engine (spec §6 "Core → UI collaborator")
// behind a plain JSON-over-HTTP façade: the teacher's own RPC surface is
// Connect-RPC over protoc-generated types, which this repository cannot
// reproduce without a `buf generate` step (see DESIGN.md); the h2c
// transport shape is kept (cmd/grpcweb-inspector/main.go), the
// generated-codec layer is replaced with these handlers.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/grpcweb-inspector/core/internal/config"
	"github.com/grpcweb-inspector/core/internal/engine"
	"github.com/grpcweb-inspector/core/internal/loader"
	"github.com/grpcweb-inspector/core/internal/record"
	"github.com/grpcweb-inspector/core/internal/reflection"
	"github.com/grpcweb-inspector/core/internal/registry"
	"github.com/grpcweb-inspector/core/internal/session"
)

// SessionHeader is the header a UI collaborator sends to pin requests to a
// previously created session; the server mints a fresh one when absent.
const SessionHeader = "X-Session-Id"

// Server wires a session.Manager and a loader.Loader behind HTTP handlers.
type Server struct {
	sessions *session.Manager
	loader   *loader.Loader

	mu   sync.Mutex
	hubs map[string]*hub
}

// New builds a Server. Each session's engine is constructed from cfg; ttl
// bounds how long an idle session's state is kept.
func New(cfg config.Config, ttl time.Duration) *Server {
	return &Server{
		sessions: session.NewManager(ttl, cfg),
		loader:   loader.New(),
		hubs:     make(map[string]*hub),
	}
}

// Close stops the session manager's cleanup loop and discards all sessions.
func (s *Server) Close() error {
	return s.sessions.Close()
}

// Handler builds the mux the teacher's main.go serves behind h2c.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/process", s.handleProcess)
	mux.HandleFunc("/descriptors", s.handleDescriptors)
	mux.HandleFunc("/descriptors/clear", s.handleDescriptorsClear)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// engineFor returns the session's engine, creating one if sessionID is
// empty or unknown, and wires its callbacks onto that session's event hub
// the first time the server sees it.
func (s *Server) engineFor(sessionID string) (*engine.Engine, string, error) {
	e, id, err := s.sessions.GetOrCreate(sessionID)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	h, known := s.hubs[id]
	if !known {
		h = newHub()
		s.hubs[id] = h
		e.OnRecord = func(r *record.Enriched) {
			h.publish(notification{Type: "on_record", Record: r})
		}
		e.OnSchemaUpdated = func(origin string, stats registry.Stats) {
			h.publish(notification{Type: "on_schema_updated", Origin: origin, Stats: &stats})
		}
		e.OnReflectionStatus = func(origin string, state reflection.State) {
			h.publish(notification{Type: "on_reflection_status", Origin: origin, State: state.String()})
		}
	}
	s.mu.Unlock()

	return e, id, nil
}

// capturedDTO mirrors spec §6's "Capture collaborator → core" record shape
// in wire JSON. encoding/json already base64-encodes []byte fields, so
// request_raw/response_raw round-trip as base64 strings without extra
// handling; request_base64_encoded/response_base64_encoded communicate
// whether the *original* capture was itself base64 text (grpc-web-text) as
// opposed to this wire encoding.
type capturedDTO struct {
	ID                    string            `json:"id"`
	MethodPath            string            `json:"method_path"`
	URL                   string            `json:"url"`
	StartTimeMs           int64             `json:"start_time_ms"`
	DurationMs            int64             `json:"duration_ms"`
	HTTPStatus            int               `json:"http_status"`
	RequestHeaders        map[string]string `json:"request_headers"`
	ResponseHeaders       map[string]string `json:"response_headers"`
	RequestRaw            []byte            `json:"request_raw"`
	RequestIsText         bool              `json:"request_is_text"`
	RequestBase64Encoded  bool              `json:"request_base64_encoded"`
	ResponseRaw           []byte            `json:"response_raw"`
	ResponseIsText        bool              `json:"response_is_text"`
	ResponseBase64Encoded bool              `json:"response_base64_encoded"`
}

func (d capturedDTO) toCaptured() record.Captured {
	return record.Captured{
		ID:                    d.ID,
		MethodPath:            d.MethodPath,
		URL:                   d.URL,
		StartTimeMs:           d.StartTimeMs,
		DurationMs:            d.DurationMs,
		HTTPStatus:            d.HTTPStatus,
		RequestHeaders:        d.RequestHeaders,
		ResponseHeaders:       d.ResponseHeaders,
		RequestRaw:            d.RequestRaw,
		RequestIsText:         d.RequestIsText,
		RequestBase64Encoded:  d.RequestBase64Encoded,
		ResponseRaw:           d.ResponseRaw,
		ResponseIsText:        d.ResponseIsText,
		ResponseBase64Encoded: d.ResponseBase64Encoded,
	}
}

// handleProcess implements spec §6's `process(record)` over HTTP: POST a
// capturedDTO, get back the enriched record as JSON.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var dto capturedDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	e, sessionID, err := s.engineFor(r.Header.Get(SessionHeader))
	if err != nil {
		http.Error(w, fmt.Sprintf("session error: %v", err), http.StatusInternalServerError)
		return
	}

	enriched := e.Process(r.Context(), dto.toCaptured())

	w.Header().Set(SessionHeader, sessionID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(enriched)
}

// handleDescriptors implements spec §6's `register_descriptors` over HTTP:
// POST raw FileDescriptorSet bytes.
func (s *Server) handleDescriptors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading body: %v", err), http.StatusBadRequest)
		return
	}

	validated, err := s.loader.LoadFromBytes(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	e, sessionID, err := s.engineFor(r.Header.Get(SessionHeader))
	if err != nil {
		http.Error(w, fmt.Sprintf("session error: %v", err), http.StatusInternalServerError)
		return
	}

	if err := e.RegisterDescriptors(validated); err != nil {
		http.Error(w, fmt.Sprintf("registering descriptors: %v", err), http.StatusBadRequest)
		return
	}

	info, err := loader.Inspect(validated)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(SessionHeader, sessionID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

// handleDescriptorsClear implements spec §6's `clear_schemas` over HTTP.
func (s *Server) handleDescriptorsClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	e, sessionID, err := s.engineFor(r.Header.Get(SessionHeader))
	if err != nil {
		http.Error(w, fmt.Sprintf("session error: %v", err), http.StatusInternalServerError)
		return
	}
	e.ClearSchemas()

	w.Header().Set(SessionHeader, sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// notification is one chunk of the `/events` NDJSON stream, carrying
// exactly one of spec §6's three callbacks.
type notification struct {
	Type   string           `json:"type"`
	Origin string           `json:"origin,omitempty"`
	Record *record.Enriched `json:"record,omitempty"`
	Stats  *registry.Stats  `json:"stats,omitempty"`
	State  string           `json:"state,omitempty"`
}

// handleEvents streams on_record/on_schema_updated/on_reflection_status
// notifications for one session as chunked newline-delimited JSON, until
// the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = r.Header.Get(SessionHeader)
	}
	if sessionID == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}

	if _, _, err := s.engineFor(sessionID); err != nil {
		http.Error(w, fmt.Sprintf("session error: %v", err), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	h := s.hubs[sessionID]
	s.mu.Unlock()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	flusher, ok := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if ok {
		flusher.Flush()
	}

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case n := <-ch:
			if err := enc.Encode(n); err != nil {
				return
			}
			if ok {
				flusher.Flush()
			}
		}
	}
}
