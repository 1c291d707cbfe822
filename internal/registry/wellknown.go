package registry

import (
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	_ "google.golang.org/protobuf/types/known/anypb"
	_ "google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/emptypb"
	_ "google.golang.org/protobuf/types/known/fieldmaskpb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

// wellKnownPaths are the google/protobuf/*.proto files a registered file may
// depend on without the caller shipping them explicitly (spec §4.3 step 1).
// They come straight from google.golang.org/protobuf's own compiled-in
// packages, blank-imported above so their init functions register them into
// protoregistry.GlobalFiles; descriptorpb registers "google/protobuf/
// descriptor.proto" itself just by being imported.
var wellKnownPaths = []string{
	"google/protobuf/empty.proto",
	"google/protobuf/timestamp.proto",
	"google/protobuf/duration.proto",
	"google/protobuf/any.proto",
	"google/protobuf/wrappers.proto",
	"google/protobuf/field_mask.proto",
	"google/protobuf/struct.proto",
	"google/protobuf/descriptor.proto",
}

// wellKnownFileDescriptorProtos reconstitutes the well-known types' raw
// FileDescriptorProtos from the live descriptors the known-types packages
// already registered globally, so the registry's build pipeline (which
// works from *descriptorpb.FileDescriptorProto, same as any file obtained
// over reflection or loaded from disk) can treat them like any other file.
func wellKnownFileDescriptorProtos() map[string]*descriptorpb.FileDescriptorProto {
	out := make(map[string]*descriptorpb.FileDescriptorProto, len(wellKnownPaths))
	for _, path := range wellKnownPaths {
		fd, err := protoregistry.GlobalFiles.FindFileByPath(path)
		if err != nil {
			// Every path above ships inside google.golang.org/protobuf
			// itself; a lookup miss here means that module's own
			// well-known packages failed to self-register, a build-time
			// problem this registry has no way to recover from.
			panic("registry: well-known file not found: " + path + ": " + err.Error())
		}
		out[path] = protodesc.ToFileDescriptorProto(fd)
	}
	return out
}
