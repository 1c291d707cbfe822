package loader

import (
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/grpcweb-inspector/core/internal/wire"
)

func testDescriptorSetBytes(t *testing.T) []byte {
	t.Helper()
	set := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			{
				Name:    proto.String("test.proto"),
				Package: proto.String("test.v1"),
				Syntax:  proto.String("proto3"),
				MessageType: []*descriptorpb.DescriptorProto{
					{Name: proto.String("Request"), Field: []*descriptorpb.FieldDescriptorProto{
						{Name: proto.String("id"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()},
					}},
					{Name: proto.String("Response"), Field: []*descriptorpb.FieldDescriptorProto{
						{Name: proto.String("ok"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_BOOL.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()},
					}},
				},
				EnumType: []*descriptorpb.EnumDescriptorProto{
					{Name: proto.String("Status"), Value: []*descriptorpb.EnumValueDescriptorProto{
						{Name: proto.String("UNKNOWN"), Number: proto.Int32(0)},
						{Name: proto.String("OK"), Number: proto.Int32(1)},
					}},
				},
				Service: []*descriptorpb.ServiceDescriptorProto{
					{Name: proto.String("TestService"), Method: []*descriptorpb.MethodDescriptorProto{
						{Name: proto.String("TestMethod"), InputType: proto.String(".test.v1.Request"), OutputType: proto.String(".test.v1.Response")},
					}},
				},
			},
		},
	}
	data, err := proto.Marshal(set)
	if err != nil {
		t.Fatalf("proto.Marshal: %v", err)
	}
	return data
}

func TestLoadFromPathSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "descriptors.bin")
	if err := os.WriteFile(path, testDescriptorSetBytes(t), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := New()
	data, err := l.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	info, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Files != 1 {
		t.Errorf("Files = %d, want 1", info.Files)
	}
	if len(info.Services) != 1 || info.Services[0] != "test.v1.TestService" {
		t.Errorf("Services = %v", info.Services)
	}
	if len(info.Messages) != 2 {
		t.Errorf("Messages = %v", info.Messages)
	}
	if len(info.Enums) != 1 {
		t.Errorf("Enums = %v", info.Enums)
	}
}

func TestLoadFromPathNonExistent(t *testing.T) {
	l := New()
	if _, err := l.LoadFromPath("/nonexistent/path/to/descriptors.bin"); err == nil {
		t.Fatal("expected error for non-existent path, got nil")
	}
}

func TestLoadFromBytesRejectsMalformedSet(t *testing.T) {
	l := New()
	if _, err := l.LoadFromBytes([]byte{0xFF, 0xFF, 0xFF}); err == nil {
		t.Fatal("expected error for malformed descriptor set, got nil")
	}
}

func TestLoadFromBytesRejectsTruncatedFileDescriptorProto(t *testing.T) {
	w := wire.NewWriter()
	w.WriteTag(1, wire.WireLengthDelimited)
	// A length-delimited file entry whose body is itself a truncated
	// length-delimited field: proto.Unmarshal validates submessages eagerly,
	// surfacing this as a malformed-proto error rather than deferring it.
	w.WriteLengthDelimited([]byte{0x0A, 0x05, 'a', 'b'})
	if _, err := New().LoadFromBytes(w.Bytes()); err == nil {
		t.Fatal("expected error for truncated file descriptor proto, got nil")
	}
}

func TestInspectEmptyDescriptorSet(t *testing.T) {
	info, err := Inspect(nil)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Files != 0 || len(info.Services) != 0 || len(info.Messages) != 0 || len(info.Enums) != 0 {
		t.Errorf("expected empty Info, got %+v", info)
	}
}

func TestInspectNoPackage(t *testing.T) {
	set := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			{
				Name:   proto.String("test.proto"),
				Syntax: proto.String("proto3"),
				MessageType: []*descriptorpb.DescriptorProto{
					{Name: proto.String("Request"), Field: []*descriptorpb.FieldDescriptorProto{
						{Name: proto.String("id"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()},
					}},
				},
				Service: []*descriptorpb.ServiceDescriptorProto{
					{Name: proto.String("TestService"), Method: []*descriptorpb.MethodDescriptorProto{
						{Name: proto.String("TestMethod"), InputType: proto.String(".Request"), OutputType: proto.String(".Request")},
					}},
				},
			},
		},
	}
	data, err := proto.Marshal(set)
	if err != nil {
		t.Fatalf("proto.Marshal: %v", err)
	}

	info, err := Inspect(data)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(info.Services) != 1 || info.Services[0] != "TestService" {
		t.Errorf("Services = %v", info.Services)
	}
	if len(info.Messages) != 1 || info.Messages[0] != "Request" {
		t.Errorf("Messages = %v", info.Messages)
	}
}
