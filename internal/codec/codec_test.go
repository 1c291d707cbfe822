package codec

import (
	"reflect"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/grpcweb-inspector/core/internal/registry"
)

func field(name string, num int32, t descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Type:   t.Enum(),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
}

func repeatedField(name string, num int32, t descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	f := field(name, num, t)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func typedField(name string, num int32, t descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := field(name, num, t)
	f.TypeName = proto.String(typeName)
	return f
}

func newTestRegistry(t *testing.T, fdp *descriptorpb.FileDescriptorProto) *registry.Registry {
	t.Helper()
	r := registry.New()
	if err := r.RegisterFileDescriptorProtos([]*descriptorpb.FileDescriptorProto{fdp}); err != nil {
		t.Fatalf("RegisterFileDescriptorProtos() error = %v", err)
	}
	return r
}

func simpleRegistry(t *testing.T) *registry.Registry {
	return newTestRegistry(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test/simple.proto"),
		Package: proto.String("test"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Simple"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("id", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					field("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
		},
	})
}

// TestDecodeUnaryVarintAndString is the spec's §8 concrete scenario:
// test.Simple{id:int32=1,name:string=2} decoding "08 2A 12 04 74 65 73 74".
func TestDecodeUnaryVarintAndString(t *testing.T) {
	reg := simpleRegistry(t)
	data := []byte{0x08, 0x2a, 0x12, 0x04, 0x74, 0x65, 0x73, 0x74}

	v := Decode(reg, "test.Simple", data, DefaultOptions())
	if v.Kind != KindMessage {
		t.Fatalf("Kind = %v, want message", v.Kind)
	}
	id := v.Get("id")
	if id == nil || id.Scalar != int32(42) {
		t.Errorf("id = %+v", id)
	}
	name := v.Get("name")
	if name == nil || name.Scalar != "test" {
		t.Errorf("name = %+v", name)
	}
}

// TestBlindDecodeUnknownType is the spec's §8 scenario: input "08 0A" with
// no schema decodes to {field_1: 10}.
func TestBlindDecodeUnknownType(t *testing.T) {
	v := Decode(nil, "", []byte{0x08, 0x0a}, DefaultOptions())
	if v.Kind != KindMessage {
		t.Fatalf("Kind = %v, want message", v.Kind)
	}
	f1 := v.Get("field_1")
	if f1 == nil || f1.Scalar != int64(10) {
		t.Errorf("field_1 = %+v", f1)
	}
}

// TestEncodeThenDecode is the spec's §8 scenario: encode("test.Simple",
// {id:42,name:"hi"}) then decode returns {id:42,name:"hi"}.
func TestEncodeThenDecode(t *testing.T) {
	reg := simpleRegistry(t)

	in := NewMessage("test.Simple")
	in.Set("id", NewScalar(int32(42)))
	in.Set("name", NewScalar("hi"))

	data, err := Encode(reg, "test.Simple", in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := Decode(reg, "test.Simple", data, DefaultOptions())
	if out.Get("id").Scalar != int32(42) {
		t.Errorf("id = %+v", out.Get("id"))
	}
	if out.Get("name").Scalar != "hi" {
		t.Errorf("name = %+v", out.Get("name"))
	}
}

func TestEncodeSchemaMissing(t *testing.T) {
	reg := registry.New()
	_, err := Encode(reg, "test.DoesNotExist", NewMessage("test.DoesNotExist"))
	if err == nil {
		t.Fatal("expected SchemaMissingError")
	}
	if _, ok := err.(*SchemaMissingError); !ok {
		t.Errorf("error type = %T, want *SchemaMissingError", err)
	}
}

func TestEncodeTypeMismatch(t *testing.T) {
	reg := simpleRegistry(t)
	in := NewMessage("test.Simple")
	in.Set("id", NewScalar("not-an-int-but-also-not-parseable"))

	_, err := Encode(reg, "test.Simple", in)
	if err == nil {
		t.Fatal("expected TypeMismatchError")
	}
	if _, ok := err.(*TypeMismatchError); !ok {
		t.Errorf("error type = %T, want *TypeMismatchError", err)
	}
}

func TestDecodeUnknownFieldKeepsGoing(t *testing.T) {
	reg := simpleRegistry(t)
	// Field 1 (id, known) then field 99 (unknown varint) then field 2 (name, known).
	data := []byte{0x08, 0x01, 0x98, 0x06, 0x2a, 0x12, 0x01, 0x78}

	v := Decode(reg, "test.Simple", data, DefaultOptions())
	if v.Get("id").Scalar != int32(1) {
		t.Errorf("id = %+v", v.Get("id"))
	}
	if v.Get("name").Scalar != "x" {
		t.Errorf("name = %+v", v.Get("name"))
	}
	unk := v.Get("field_99")
	if unk == nil || unk.Scalar != int64(42) {
		t.Errorf("field_99 = %+v", unk)
	}
}

func TestDecodePackedRepeated(t *testing.T) {
	values := repeatedField("values", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32)
	values.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(true)}
	reg := newTestRegistry(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test/packed.proto"),
		Package: proto.String("test"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("Nums"), Field: []*descriptorpb.FieldDescriptorProto{values}},
		},
	})

	in := NewMessage("test.Nums")
	in.Set("values", &Value{Kind: KindRepeated, Repeated: []*Value{
		NewScalar(int32(1)), NewScalar(int32(2)), NewScalar(int32(3)),
	}})
	data, err := Encode(reg, "test.Nums", in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := Decode(reg, "test.Nums", data, DefaultOptions())
	got := out.Get("values")
	if got == nil || got.Kind != KindRepeated || len(got.Repeated) != 3 {
		t.Fatalf("values = %+v", got)
	}
	for i, want := range []int32{1, 2, 3} {
		if got.Repeated[i].Scalar != want {
			t.Errorf("values[%d] = %+v, want %d", i, got.Repeated[i], want)
		}
	}
}

func TestDecodeEnumField(t *testing.T) {
	reg := newTestRegistry(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test/enum.proto"),
		Package: proto.String("test"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			{Name: proto.String("Status"), Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("UNKNOWN"), Number: proto.Int32(0)},
				{Name: proto.String("ACTIVE"), Number: proto.Int32(1)},
			}},
		},
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("Thing"), Field: []*descriptorpb.FieldDescriptorProto{
				typedField("status", 1, descriptorpb.FieldDescriptorProto_TYPE_ENUM, ".test.Status"),
			}},
		},
	})

	in := NewMessage("test.Thing")
	in.Set("status", NewEnum(1, "ACTIVE"))
	data, err := Encode(reg, "test.Thing", in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := Decode(reg, "test.Thing", data, DefaultOptions())
	status := out.Get("status")
	if status == nil || status.Kind != KindEnum || status.EnumName != "ACTIVE" || status.EnumNumber != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestDecodeEnumUnknownNumberKeepsNumeric(t *testing.T) {
	reg := newTestRegistry(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test/enum2.proto"),
		Package: proto.String("test"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			{Name: proto.String("Status"), Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("UNKNOWN"), Number: proto.Int32(0)},
			}},
		},
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("Thing"), Field: []*descriptorpb.FieldDescriptorProto{
				typedField("status", 1, descriptorpb.FieldDescriptorProto_TYPE_ENUM, ".test.Status"),
			}},
		},
	})
	data := []byte{0x08, 0x63} // field 1, varint 99 (not a declared enum value)
	out := Decode(reg, "test.Thing", data, DefaultOptions())
	status := out.Get("status")
	if status == nil || status.EnumName != "" || status.EnumNumber != 99 {
		t.Errorf("status = %+v", status)
	}
}

func TestDecodeMapField(t *testing.T) {
	reg := newTestRegistry(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test/map.proto"),
		Package: proto.String("test"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Config"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     proto.String("labels"),
						Number:   proto.Int32(1),
						Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
						TypeName: proto.String(".test.Config.LabelsEntry"),
					},
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name:    proto.String("LabelsEntry"),
						Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
						Field: []*descriptorpb.FieldDescriptorProto{
							field("key", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
							field("value", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
						},
					},
				},
			},
		},
	})
	in := NewMessage("test.Config")
	in.Set("labels", &Value{Kind: KindMap, MapEntries: []MapEntry{
		{Key: NewScalar("env"), Value: NewScalar("prod")},
		{Key: NewScalar("region"), Value: NewScalar("us")},
	}})
	data, err := Encode(reg, "test.Config", in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := Decode(reg, "test.Config", data, DefaultOptions())
	labels := out.Get("labels")
	if labels == nil || labels.Kind != KindMap || len(labels.MapEntries) != 2 {
		t.Fatalf("labels = %+v", labels)
	}
	got := map[string]string{}
	for _, e := range labels.MapEntries {
		got[e.Key.Scalar.(string)] = e.Value.Scalar.(string)
	}
	want := map[string]string{"env": "prod", "region": "us"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("labels = %+v, want %+v", got, want)
	}
}

func TestDecodeBigIntegerAsDecimalString(t *testing.T) {
	reg := newTestRegistry(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test/big.proto"),
		Package: proto.String("test"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("Big"), Field: []*descriptorpb.FieldDescriptorProto{
				field("n", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			}},
		},
	})

	const huge = int64(1) << 60
	in := NewMessage("test.Big")
	in.Set("n", NewScalar(huge))
	data, err := Encode(reg, "test.Big", in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := Decode(reg, "test.Big", data, DefaultOptions())
	n := out.Get("n")
	s, ok := n.Scalar.(string)
	if !ok {
		t.Fatalf("n.Scalar = %T, want string (decimal)", n.Scalar)
	}
	if s != "1152921504606846976" {
		t.Errorf("n = %q", s)
	}
}

func TestDecodeInvalidUTF8FallsBackToBytes(t *testing.T) {
	reg := simpleRegistry(t)
	// field 2 (name, string), length 2, invalid UTF-8 bytes.
	data := []byte{0x12, 0x02, 0xff, 0xfe}

	out := Decode(reg, "test.Simple", data, DefaultOptions())
	name := out.Get("name")
	if b, ok := name.Scalar.([]byte); !ok || len(b) != 2 {
		t.Errorf("name = %+v, want raw bytes fallback", name)
	}
}

func TestDecodeInvalidUTF8StrictErrors(t *testing.T) {
	reg := simpleRegistry(t)
	data := []byte{0x12, 0x02, 0xff, 0xfe}

	opts := DefaultOptions()
	opts.StrictUTF8 = true
	out := Decode(reg, "test.Simple", data, opts)
	name := out.Get("name")
	if name == nil || name.Kind != KindError {
		t.Errorf("name = %+v, want KindError under strict_utf8", name)
	}
}

func TestBlindDecodeNestedMessageHeuristic(t *testing.T) {
	// field 1: nested message field 1=int32(5), field 2=string("ok") -
	// should be recognized as a message since it parses cleanly and
	// consumes all its bytes.
	inner := []byte{0x08, 0x05, 0x12, 0x02, 0x6f, 0x6b}
	outer := append([]byte{0x0a, byte(len(inner))}, inner...)

	v := Decode(nil, "", outer, DefaultOptions())
	f1 := v.Get("field_1")
	if f1 == nil || f1.Kind != KindMessage {
		t.Fatalf("field_1 = %+v, want nested message", f1)
	}
	if f1.Get("field_1").Scalar != int64(5) {
		t.Errorf("nested field_1 = %+v", f1.Get("field_1"))
	}
	if f1.Get("field_2").Scalar != "ok" {
		t.Errorf("nested field_2 = %+v", f1.Get("field_2"))
	}
}

func TestBlindDecodeStringFallback(t *testing.T) {
	// Starts with 'b' (0x62: wire type 2, field 12) followed by 'y' (0x79 =
	// 121), which the nested-message attempt reads as a length prefix far
	// longer than the remaining buffer — it fails immediately, so the
	// nested-message heuristic rejects this payload and it falls through
	// to the UTF-8 string branch instead.
	payload := []byte("by the time this ends it will just be plain text, not protobuf")
	data := append([]byte{0x0a, byte(len(payload))}, payload...)

	v := Decode(nil, "", data, DefaultOptions())
	f1 := v.Get("field_1")
	if f1 == nil || f1.Kind != KindScalar {
		t.Fatalf("field_1 = %+v, want scalar string", f1)
	}
	if f1.Scalar != string(payload) {
		t.Errorf("field_1 = %q, want %q", f1.Scalar, payload)
	}
}

func TestBlindDecodeHexFallback(t *testing.T) {
	// Bytes that are neither a plausible nested message nor valid UTF-8.
	payload := []byte{0xff, 0xfe, 0xfd, 0x00, 0x01, 0x02, 0x80, 0x81}
	data := append([]byte{0x0a, byte(len(payload))}, payload...)

	v := Decode(nil, "", data, DefaultOptions())
	f1 := v.Get("field_1")
	if f1 == nil || f1.Kind != KindScalar {
		t.Fatalf("field_1 = %+v", f1)
	}
	s, ok := f1.Scalar.(string)
	if !ok {
		t.Fatalf("field_1.Scalar = %T, want hex string", f1.Scalar)
	}
	if s != "fffefd0001028081" {
		t.Errorf("field_1 = %q", s)
	}
}

func TestDecodeFieldNumberZeroTerminatesGracefully(t *testing.T) {
	reg := simpleRegistry(t)
	// Valid id field, then a tag whose field number is 0.
	data := []byte{0x08, 0x01, 0x00}
	out := Decode(reg, "test.Simple", data, DefaultOptions())
	if out.Get("id").Scalar != int32(1) {
		t.Errorf("id = %+v", out.Get("id"))
	}
	if _, hasErr := out.Fields["_error"]; hasErr {
		t.Error("field number 0 should stop decoding gracefully, not record an error")
	}
}

func TestTemplateZeroesFields(t *testing.T) {
	reg := simpleRegistry(t)
	tmpl, err := Template(reg, "test.Simple")
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}
	if tmpl.Get("id").Scalar != int64(0) {
		t.Errorf("id default = %+v", tmpl.Get("id"))
	}
	if tmpl.Get("name").Scalar != "" {
		t.Errorf("name default = %+v", tmpl.Get("name"))
	}
}

func TestTemplateHandlesSelfReferentialMessage(t *testing.T) {
	reg := newTestRegistry(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test/tree.proto"),
		Package: proto.String("test"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("Node"), Field: []*descriptorpb.FieldDescriptorProto{
				field("value", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32),
				typedField("child", 2, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".test.Node"),
			}},
		},
	})

	tmpl, err := Template(reg, "test.Node")
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}
	child := tmpl.Get("child")
	if child == nil || child.Kind != KindMessage {
		t.Fatalf("child = %+v", child)
	}
	// Would stack-overflow without the visiting guard; getting here at all
	// demonstrates termination.
	if _, hasValue := child.Fields["value"]; hasValue {
		t.Error("recursive expansion should stop at an empty message on revisit")
	}
}

func TestDecodeIdempotence(t *testing.T) {
	reg := simpleRegistry(t)
	data := []byte{0x08, 0x2a, 0x12, 0x04, 0x74, 0x65, 0x73, 0x74}

	first := Decode(reg, "test.Simple", data, DefaultOptions())
	second := Decode(reg, "test.Simple", data, DefaultOptions())
	if first.Get("id").Scalar != second.Get("id").Scalar {
		t.Error("decode is not idempotent for id")
	}
	if first.Get("name").Scalar != second.Get("name").Scalar {
		t.Error("decode is not idempotent for name")
	}
}
