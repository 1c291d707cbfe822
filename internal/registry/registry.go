// Package registry holds the ingested Protobuf descriptor graph — files,
// messages, enums, and services — and resolves type and method names against
// it, either exactly or through the tolerant fallbacks the spec calls for
// when a captured call only carries a short method path. See spec §4.3.
//
// Descriptor bytes (whether loaded from disk or fetched over reflection) are
// plain descriptorpb.FileDescriptorProto messages — no protoc invocation is
// needed to produce or consume them. The registry builds a live
// protoreflect descriptor pool from them with protodesc, one file at a time
// in dependency order, so a file whose dependency never arrives simply
// fails to join the pool (and is recorded as a warning) instead of taking
// registration down with it.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ResolvedMethod is a method_index entry: the method descriptor plus its
// input/output message descriptors, resolved by protoreflect itself at
// registration time rather than by a second name lookup.
type ResolvedMethod struct {
	Method protoreflect.MethodDescriptor
	Input  protoreflect.MessageDescriptor
	Output protoreflect.MessageDescriptor
}

// Registry holds every FileDescriptorProto registered so far (raw), the
// live descriptor pool built from them (files), and the derived name
// indices used to answer FindMessage/FindEnum/FindMethod. Safe for
// concurrent use; the zero value is not usable, construct with New.
type Registry struct {
	mu sync.RWMutex

	raw   map[string]*descriptorpb.FileDescriptorProto
	files *protoregistry.Files

	message map[string]protoreflect.MessageDescriptor
	enum    map[string]protoreflect.EnumDescriptor
	method  map[string]*ResolvedMethod

	warnings []string
}

// New returns an empty Registry, already seeded with the well-known types'
// indices (they are available even before any application file is
// registered, since nothing application-level depends on them being absent).
func New() *Registry {
	r := &Registry{raw: make(map[string]*descriptorpb.FileDescriptorProto)}
	r.rebuildLocked()
	return r
}

// Warnings returns a copy of the non-fatal issues accumulated across every
// Register* call since the last Clear: dangling dependencies, dependency
// cycles, and files that failed to parse into a live descriptor.
func (r *Registry) Warnings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// RegisterFileDescriptorSetBytes parses a raw FileDescriptorSet (the shape
// `buf build`/the loader collaborator produces) and registers every file it
// contains.
func (r *Registry) RegisterFileDescriptorSetBytes(data []byte) error {
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("registry: parsing file descriptor set: %w", err)
	}
	return r.RegisterFileDescriptorProtos(set.GetFile())
}

// RegisterFileDescriptorProtos ingests already-parsed file descriptor
// protos (the reflection coordinator collects these one RPC response at a
// time, not as a single FileDescriptorSet blob) and rebuilds the descriptor
// pool and every derived index from scratch. Re-registering a file path
// that is already known replaces the prior entry.
func (r *Registry) RegisterFileDescriptorProtos(fdps []*descriptorpb.FileDescriptorProto) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fdp := range fdps {
		r.raw[fdp.GetName()] = fdp
	}
	r.rebuildLocked()
	return nil
}

// Clear drops every registered file and index entry. Well-known types
// remain resolvable afterward; they are never part of r.raw.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw = make(map[string]*descriptorpb.FileDescriptorProto)
	r.rebuildLocked()
}

// rebuildLocked reconstructs the live descriptor pool and every derived
// index from r.raw plus the well-known types, tolerating individual files
// whose dependencies cannot be resolved (spec §4.3 step 2): such a file, and
// anything that in turn depends on it, is simply left out of the pool and a
// warning is recorded, rather than failing registration outright. A file
// that closes a dependency cycle is the exception: it is built with the
// skipped import left unresolved, so both ends of the cycle register.
// Callers must hold r.mu.
func (r *Registry) rebuildLocked() {
	r.warnings = nil
	r.files = new(protoregistry.Files)

	all := make(map[string]*descriptorpb.FileDescriptorProto, len(r.raw)+len(wellKnownPaths))
	for path, fdp := range wellKnownFileDescriptorProtos() {
		all[path] = fdp
	}
	for path, fdp := range r.raw {
		all[path] = fdp
	}

	ordered, warnings := topoSort(all)
	r.warnings = append(r.warnings, warnings...)

	attempted := make(map[string]bool, len(ordered))
	for _, fdp := range ordered {
		attempted[fdp.GetName()] = true
		if _, err := r.files.FindFileByPath(fdp.GetName()); err == nil {
			continue
		}
		fd, err := protodesc.NewFile(fdp, r.files)
		if err != nil {
			for _, dep := range fdp.GetDependency() {
				if _, known := all[dep]; known && !attempted[dep] {
					// dep is the far end of a cycle edge topoSort skipped:
					// build this file with that import left unresolved.
					fd, err = protodesc.FileOptions{AllowUnresolvable: true}.New(fdp, r.files)
					break
				}
			}
		}
		if err != nil {
			r.warnings = append(r.warnings, fmt.Sprintf("registry: building %s: %v", fdp.GetName(), err))
			continue
		}
		if err := r.files.RegisterFile(fd); err != nil {
			r.warnings = append(r.warnings, fmt.Sprintf("registry: registering %s: %v", fdp.GetName(), err))
		}
	}

	r.rebuildIndices()
}

func (r *Registry) rebuildIndices() {
	r.message = make(map[string]protoreflect.MessageDescriptor)
	r.enum = make(map[string]protoreflect.EnumDescriptor)
	r.method = make(map[string]*ResolvedMethod)

	r.files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		indexMessages(fd.Messages(), r.message, r.enum)
		indexEnums(fd.Enums(), r.enum)
		indexMethods(fd.Services(), r.method)
		return true
	})
}

func indexMessages(msgs protoreflect.MessageDescriptors, mi map[string]protoreflect.MessageDescriptor, ei map[string]protoreflect.EnumDescriptor) {
	for i := 0; i < msgs.Len(); i++ {
		m := msgs.Get(i)
		mi[string(m.FullName())] = m
		indexMessages(m.Messages(), mi, ei)
		indexEnums(m.Enums(), ei)
	}
}

func indexEnums(enums protoreflect.EnumDescriptors, ei map[string]protoreflect.EnumDescriptor) {
	for i := 0; i < enums.Len(); i++ {
		e := enums.Get(i)
		ei[string(e.FullName())] = e
	}
}

func indexMethods(svcs protoreflect.ServiceDescriptors, mi map[string]*ResolvedMethod) {
	for i := 0; i < svcs.Len(); i++ {
		svc := svcs.Get(i)
		methods := svc.Methods()
		for j := 0; j < methods.Len(); j++ {
			m := methods.Get(j)
			path := "/" + string(svc.FullName()) + "/" + string(m.Name())
			mi[path] = &ResolvedMethod{Method: m, Input: m.Input(), Output: m.Output()}
		}
	}
}

// topoSort orders files by import edge (a file after everything it
// depends on) so protodesc.NewFile always sees a dependency's
// FileDescriptor already registered by the time it needs it. A dependency
// cycle is broken by skipping the edge that would revisit a file still
// being visited; the file itself is still emitted, and rebuildLocked builds
// it with that skipped import left unresolved.
func topoSort(files map[string]*descriptorpb.FileDescriptorProto) (ordered []*descriptorpb.FileDescriptorProto, warnings []string) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(names))

	var visit func(name string)
	visit = func(name string) {
		switch state[name] {
		case visited:
			return
		case visiting:
			warnings = append(warnings, fmt.Sprintf("registry: dependency cycle detected at %q; edge skipped", name))
			return
		}
		state[name] = visiting
		if f := files[name]; f != nil {
			for _, dep := range f.GetDependency() {
				if _, ok := files[dep]; ok {
					visit(dep)
				}
			}
			ordered = append(ordered, f)
		}
		state[name] = visited
	}

	for _, name := range names {
		visit(name)
	}
	return ordered, warnings
}

// Stats summarizes registry contents for diagnostics and the
// on_schema_updated notification payload.
type Stats struct {
	FileCount    int
	MessageCount int
	EnumCount    int
	MethodCount  int
}

// Stats reports the number of explicitly registered files (well-known
// types, which are always implicitly available, are not counted) plus the
// message/enum/method indices built from the full pool, well-known types
// included.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		FileCount:    len(r.raw),
		MessageCount: len(r.message),
		EnumCount:    len(r.enum),
		MethodCount:  len(r.method),
	}
}

// FindMessage resolves name against the message index using the spec's
// four-stage fallback (spec §4.3 "Name resolution"): exact full name, then
// a case-sensitive segment-bounded suffix match, then a case-insensitive
// one, then (if still unresolved) a unique match on the name's last
// segment alone.
func (r *Registry) FindMessage(name string) (protoreflect.MessageDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolveName(r.message, name)
}

// FindEnum resolves name the same way FindMessage does.
func (r *Registry) FindEnum(name string) (protoreflect.EnumDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return resolveName(r.enum, name)
}

// FindMethod resolves a captured call's method path ("/pkg.Service/Method")
// against the method index: an exact match first, then a case-insensitive
// suffix match, breaking ties on the lexicographically smallest candidate
// path for determinism.
func (r *Registry) FindMethod(path string) (*ResolvedMethod, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.method[path]; ok {
		return m, true
	}

	lowerQuery := strings.ToLower(path)
	var candidates []string
	for key := range r.method {
		if strings.HasSuffix(strings.ToLower(key), lowerQuery) {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Strings(candidates)
	return r.method[candidates[0]], true
}

func resolveName[T any](index map[string]T, query string) (T, bool) {
	var zero T
	query = strings.TrimPrefix(query, ".")
	if query == "" {
		return zero, false
	}
	if v, ok := index[query]; ok {
		return v, true
	}

	querySegs := strings.Split(query, ".")
	if v, ok := suffixMatch(index, querySegs, false); ok {
		return v, true
	}
	if v, ok := suffixMatch(index, querySegs, true); ok {
		return v, true
	}

	lastSeg := querySegs[len(querySegs)-1]
	var uniqueMatch string
	matchCount := 0
	for name := range index {
		seg := name
		if i := strings.LastIndex(name, "."); i >= 0 {
			seg = name[i+1:]
		}
		if seg == lastSeg {
			matchCount++
			uniqueMatch = name
		}
	}
	if matchCount == 1 {
		return index[uniqueMatch], true
	}
	return zero, false
}

func suffixMatch[T any](index map[string]T, querySegs []string, caseInsensitive bool) (T, bool) {
	var zero T
	var candidates []string
	for name := range index {
		nameSegs := strings.Split(name, ".")
		if len(nameSegs) < len(querySegs) {
			continue
		}
		tail := nameSegs[len(nameSegs)-len(querySegs):]
		if segsEqual(tail, querySegs, caseInsensitive) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return zero, false
	}
	sort.Strings(candidates)
	return index[candidates[0]], true
}

func segsEqual(a, b []string, caseInsensitive bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if caseInsensitive {
			if !strings.EqualFold(a[i], b[i]) {
				return false
			}
		} else if a[i] != b[i] {
			return false
		}
	}
	return true
}
