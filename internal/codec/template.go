package codec

import (
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/grpcweb-inspector/core/internal/registry"
)

// Template returns a zeroed value tree for type_name with every declared
// field present at its default value (spec §4.4 "Templates"), used to seed
// interactive request editing in the (external) UI collaborator.
func Template(reg *registry.Registry, typeName string) (*Value, error) {
	msg, ok := reg.FindMessage(typeName)
	if !ok {
		return nil, &SchemaMissingError{TypeName: typeName}
	}
	return templateMessage(reg, msg, map[string]bool{}), nil
}

// templateMessage builds defaults recursively. visiting guards against
// cyclic descriptor graphs (spec §9: messages may be mutually recursive):
// a type already on the current recursion path is stopped at an empty
// message rather than expanded again.
func templateMessage(reg *registry.Registry, msg protoreflect.MessageDescriptor, visiting map[string]bool) *Value {
	full := string(msg.FullName())
	out := NewMessage(full)
	if visiting[full] {
		return out
	}
	visiting[full] = true
	defer delete(visiting, full)

	fields := msg.Fields()
	for i := 0; i < fields.Len(); i++ {
		f := fields.Get(i)
		out.Set(string(f.Name()), templateField(reg, f, visiting))
	}
	return out
}

func templateField(reg *registry.Registry, f protoreflect.FieldDescriptor, visiting map[string]bool) *Value {
	if f.IsMap() {
		return &Value{Kind: KindMap, MapEntries: nil}
	}
	if f.Cardinality() == protoreflect.Repeated {
		return &Value{Kind: KindRepeated, Repeated: nil}
	}
	return templateScalarOrMessage(reg, f, visiting)
}

func templateScalarOrMessage(reg *registry.Registry, f protoreflect.FieldDescriptor, visiting map[string]bool) *Value {
	switch f.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return templateMessage(reg, f.Message(), visiting)
	case protoreflect.EnumKind:
		values := f.Enum().Values()
		if zero := values.ByNumber(0); zero != nil {
			return NewEnum(0, string(zero.Name()))
		}
		return NewEnum(0, "")
	default:
		return zeroScalar(f.Kind())
	}
}
