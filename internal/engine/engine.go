// Package engine wires the registry, codec, framing, reflection, and
// record collaborators together behind the external contract the UI
// collaborator drives (spec §6 "Core → UI collaborator").
package engine

import (
	"context"

	"github.com/grpcweb-inspector/core/internal/config"
	"github.com/grpcweb-inspector/core/internal/record"
	"github.com/grpcweb-inspector/core/internal/reflection"
	"github.com/grpcweb-inspector/core/internal/registry"
)

// Engine is the single explicitly-constructed object tests and callers
// instantiate fresh, replacing the source's process-wide singletons (spec
// §9 "Global mutable state").
type Engine struct {
	reg         *registry.Registry
	coordinator *reflection.Coordinator
	processor   *record.Processor
	cfg         config.Config

	// OnRecord, OnSchemaUpdated, and OnReflectionStatus are the three
	// callbacks the UI collaborator may set (spec §6). Any may be left
	// nil.
	OnRecord           func(*record.Enriched)
	OnSchemaUpdated    func(origin string, stats registry.Stats)
	OnReflectionStatus func(origin string, state reflection.State)
}

// New builds an Engine from cfg. Reflection is wired in only when
// cfg.ReflectionEnabled is set.
func New(cfg config.Config) *Engine {
	reg := registry.New()
	e := &Engine{reg: reg, cfg: cfg}

	var coordinator *reflection.Coordinator
	if cfg.ReflectionEnabled {
		coordinator = reflection.New(reg, cfg.ReflectionTimeout, e.handleReflectionStatus)
	}
	e.coordinator = coordinator
	e.processor = record.NewProcessor(reg, coordinator, cfg.Codec, cfg.Framing)
	return e
}

// Registry exposes the underlying registry for callers that need direct
// read access (e.g. the server's schema-inspection endpoints).
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Process runs one captured record through the pipeline and fires
// OnRecord with the result (spec §6 `process(record)`).
func (e *Engine) Process(ctx context.Context, rec record.Captured) *record.Enriched {
	enriched := e.processor.Process(ctx, rec)
	if e.OnRecord != nil {
		e.OnRecord(enriched)
	}
	return enriched
}

// RegisterDescriptors ingests externally-supplied FileDescriptorSet bytes
// (spec §6 `register_descriptors`), then re-decodes any previously
// processed record whose method now resolves, firing OnRecord for each.
func (e *Engine) RegisterDescriptors(data []byte) error {
	if err := e.reg.RegisterFileDescriptorSetBytes(data); err != nil {
		return err
	}
	e.afterSchemaChange("")
	return nil
}

// ClearSchemas discards every registered descriptor (spec §6
// `clear_schemas`). It does not re-emit or discard prior records; future
// process() calls simply fall back to blind decode again.
func (e *Engine) ClearSchemas() {
	e.reg.Clear()
}

func (e *Engine) handleReflectionStatus(origin string, state reflection.State) {
	if e.OnReflectionStatus != nil {
		e.OnReflectionStatus(origin, state)
	}
	if state == reflection.StateReady {
		e.afterSchemaChange(origin)
	}
}

// afterSchemaChange implements spec §4.6 "Emission": notify the schema
// update, then re-emit every prior record whose method now resolves.
func (e *Engine) afterSchemaChange(origin string) {
	if e.OnSchemaUpdated != nil {
		e.OnSchemaUpdated(origin, e.reg.Stats())
	}
	redone := e.processor.ReplayMatching(context.Background())
	if e.OnRecord == nil {
		return
	}
	for _, r := range redone {
		e.OnRecord(r)
	}
}
