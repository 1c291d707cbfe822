// Package interfaces collects the external contracts of spec §6: the shape
// the capture collaborator feeds records in, and the shape the UI
// collaborator drives the core with. No other package imports it:
// internal/server and internal/session work with the concrete
// *engine.Engine, *session.Manager and *loader.Loader types.
package interfaces

import (
	"context"

	"github.com/grpcweb-inspector/core/internal/record"
	"github.com/grpcweb-inspector/core/internal/reflection"
	"github.com/grpcweb-inspector/core/internal/registry"
)

// Core is the contract spec §6 names as "Core → UI collaborator": a single
// process() entry point plus the descriptor-registration operations the UI
// collaborator may call. *engine.Engine satisfies this.
type Core interface {
	// Process runs one captured record through the pipeline and returns
	// the enriched result (spec §6 `process(record)`).
	Process(ctx context.Context, rec record.Captured) *record.Enriched

	// RegisterDescriptors ingests externally-supplied FileDescriptorSet
	// bytes (spec §6 `register_descriptors`).
	RegisterDescriptors(data []byte) error

	// ClearSchemas discards every registered descriptor (spec §6
	// `clear_schemas`).
	ClearSchemas()

	// Registry exposes read access for schema-inspection endpoints.
	Registry() *registry.Registry
}

// Callbacks groups the three notifications spec §6 names: on_record,
// on_schema_updated, on_reflection_status. A caller wires these onto an
// engine.Engine's exported fields directly; this type exists so
// internal/server can describe "the set of callbacks a session wires" in
// one place.
type Callbacks struct {
	OnRecord           func(*record.Enriched)
	OnSchemaUpdated    func(origin string, stats registry.Stats)
	OnReflectionStatus func(origin string, state reflection.State)
}

// SessionManager manages the lifecycle of per-client Core instances, the
// way a single gRPC-Web-inspector deployment serves several independent UI
// collaborators without sharing registry or reflection state between them
// (spec §9 "Global mutable state" forbids a shared singleton).
type SessionManager interface {
	// GetOrCreate retrieves an existing session's Core or creates a new
	// one, returning its ID alongside it.
	GetOrCreate(sessionID string) (Core, string, error)

	// Get retrieves an existing session's Core by ID.
	Get(sessionID string) (Core, bool)

	// Delete removes a session by ID.
	Delete(sessionID string)

	// Close closes all sessions and stops the manager's background
	// cleanup.
	Close() error

	// Count returns the number of active sessions.
	Count() int
}

// DescriptorLoader loads raw FileDescriptorSet bytes from an external
// source for explicit registration (spec §4.3's "explicit registration"
// half of the registration contract; the teacher's loader.go shape,
// repurposed — see DESIGN.md).
type DescriptorLoader interface {
	// LoadFromPath reads a FileDescriptorSet from a local file path.
	LoadFromPath(path string) ([]byte, error)

	// LoadFromBytes validates that b is a well-formed FileDescriptorSet
	// without registering it, returning it unchanged on success.
	LoadFromBytes(b []byte) ([]byte, error)
}
