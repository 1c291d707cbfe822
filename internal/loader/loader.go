// Package loader reads raw FileDescriptorSet bytes from external sources
// for explicit registration (spec §4.3's "explicit registration" half of
// the registration contract). The teacher's loader.go shelled out to buf
// and git to build descriptor sets from proto source trees; this exercise
// has no toolchain access to run those external tools (see DESIGN.md), so
// the shape survives — "load descriptor bytes from somewhere, hand them to
// the registry" — while the buf/git-backed sources are replaced with a
// plain file-path source plus the in-memory validation the UI
// collaborator's `POST /descriptors` handler needs before it commits bytes
// to a session's registry.
package loader

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Loader reads FileDescriptorSet bytes from a local path and validates
// arbitrary bytes before a caller commits them to a registry.
type Loader struct{}

// New returns a Loader. It holds no state; its methods match
// interfaces.DescriptorLoader, though internal/server holds the concrete
// *Loader.
func New() *Loader {
	return &Loader{}
}

// LoadFromPath reads a FileDescriptorSet from a local file, validating it
// before returning.
func (l *Loader) LoadFromPath(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	return l.LoadFromBytes(data)
}

// LoadFromBytes validates that b parses as a well-formed FileDescriptorSet
// without registering it, returning b unchanged on success. This lets a
// caller reject malformed descriptor bytes before they ever reach a
// registry.
func (l *Loader) LoadFromBytes(b []byte) ([]byte, error) {
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(b, &set); err != nil {
		return nil, fmt.Errorf("loader: malformed descriptor set: %w", err)
	}
	return b, nil
}

// Info summarizes a FileDescriptorSet's contents for the UI collaborator
// (e.g. a confirmation after `POST /descriptors`).
type Info struct {
	Files    int
	Services []string
	Messages []string
	Enums    []string
}

// Inspect parses b and returns a summary of the files, top-level messages,
// enums, and services it defines.
func Inspect(b []byte) (Info, error) {
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(b, &set); err != nil {
		return Info{}, fmt.Errorf("loader: malformed descriptor set: %w", err)
	}
	info := Info{Files: len(set.GetFile())}
	for _, f := range set.GetFile() {
		pkg := f.GetPackage()
		for _, svc := range f.GetService() {
			info.Services = append(info.Services, joinName(pkg, svc.GetName()))
		}
		for _, msg := range f.GetMessageType() {
			info.Messages = append(info.Messages, joinName(pkg, msg.GetName()))
		}
		for _, en := range f.GetEnumType() {
			info.Enums = append(info.Enums, joinName(pkg, en.GetName()))
		}
	}
	return info, nil
}

func joinName(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}
