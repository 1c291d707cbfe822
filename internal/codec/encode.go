package codec

import (
	"sort"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/grpcweb-inspector/core/internal/registry"
	"github.com/grpcweb-inspector/core/internal/wire"
)

// Encode serializes a value tree against the named message type, resolved
// through reg, in deterministic field-number-ascending order (spec §4.4
// "Encoding"). Missing fields are simply omitted; there is no default-value
// emission.
func Encode(reg *registry.Registry, typeName string, v *Value) ([]byte, error) {
	msg, ok := reg.FindMessage(typeName)
	if !ok {
		return nil, &SchemaMissingError{TypeName: typeName}
	}
	return encodeMessage(reg, msg, v)
}

func encodeMessage(reg *registry.Registry, msg protoreflect.MessageDescriptor, v *Value) ([]byte, error) {
	w := wire.NewWriter()

	fd := msg.Fields()
	fields := make([]protoreflect.FieldDescriptor, fd.Len())
	for i := 0; i < fd.Len(); i++ {
		fields[i] = fd.Get(i)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Number() < fields[j].Number() })

	for _, f := range fields {
		fv := v.Get(string(f.Name()))
		if fv == nil {
			continue
		}
		if f.IsMap() {
			if err := encodeMapField(reg, w, f, fv); err != nil {
				return nil, err
			}
			continue
		}
		if f.Cardinality() == protoreflect.Repeated {
			if err := encodeRepeatedField(reg, w, f, fv); err != nil {
				return nil, err
			}
			continue
		}
		if err := encodeSingularField(reg, w, f, fv); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func encodeRepeatedField(reg *registry.Registry, w *wire.Writer, f protoreflect.FieldDescriptor, v *Value) error {
	elems := v.Repeated
	if v.Kind != KindRepeated {
		elems = []*Value{v}
	}
	// f.IsPacked() already applies proto3's "packed unless the field
	// explicitly opts out" defaulting, so no separate packedDefault helper
	// is needed.
	if isPackableKind(f.Kind()) && f.IsPacked() {
		sub := wire.NewWriter()
		for _, e := range elems {
			if err := encodePackedElement(sub, f.Kind(), e); err != nil {
				return fieldErr(f, err)
			}
		}
		w.WriteTag(int32(f.Number()), wire.WireLengthDelimited)
		w.WriteLengthDelimited(sub.Bytes())
		return nil
	}
	for _, e := range elems {
		if err := encodeSingularValue(reg, w, f, e); err != nil {
			return err
		}
	}
	return nil
}

func encodeMapField(reg *registry.Registry, w *wire.Writer, f protoreflect.FieldDescriptor, v *Value) error {
	if v.Kind != KindMap {
		return &TypeMismatchError{Field: string(f.Name()), Want: "map", Got: v.Kind.String()}
	}
	keyField := f.MapKey()
	valField := f.MapValue()
	for _, entry := range v.MapEntries {
		sub := wire.NewWriter()
		sub.WriteTag(1, wireTypeFor(keyField.Kind()))
		if err := encodeScalarValue(sub, keyField.Kind(), entry.Key); err != nil {
			return fieldErr(f, err)
		}
		switch valField.Kind() {
		case protoreflect.MessageKind, protoreflect.GroupKind:
			nested, err := Encode(reg, string(valField.Message().FullName()), entry.Value)
			if err != nil {
				return err
			}
			sub.WriteTag(2, wire.WireLengthDelimited)
			sub.WriteLengthDelimited(nested)
		case protoreflect.EnumKind:
			sub.WriteTag(2, wire.WireVarint)
			sub.WriteVarint(uint64(uint32(entry.Value.EnumNumber)))
		default:
			sub.WriteTag(2, wireTypeFor(valField.Kind()))
			if err := encodeScalarValue(sub, valField.Kind(), entry.Value); err != nil {
				return fieldErr(f, err)
			}
		}
		w.WriteTag(int32(f.Number()), wire.WireLengthDelimited)
		w.WriteLengthDelimited(sub.Bytes())
	}
	return nil
}

func encodeSingularField(reg *registry.Registry, w *wire.Writer, f protoreflect.FieldDescriptor, v *Value) error {
	return encodeSingularValue(reg, w, f, v)
}

func encodeSingularValue(reg *registry.Registry, w *wire.Writer, f protoreflect.FieldDescriptor, v *Value) error {
	switch f.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if v.Kind != KindMessage {
			return &TypeMismatchError{Field: string(f.Name()), Want: "message", Got: v.Kind.String()}
		}
		b, err := Encode(reg, string(f.Message().FullName()), v)
		if err != nil {
			return err
		}
		w.WriteTag(int32(f.Number()), wire.WireLengthDelimited)
		w.WriteLengthDelimited(b)
		return nil
	case protoreflect.EnumKind:
		if v.Kind != KindEnum {
			return &TypeMismatchError{Field: string(f.Name()), Want: "enum", Got: v.Kind.String()}
		}
		w.WriteTag(int32(f.Number()), wire.WireVarint)
		w.WriteVarint(uint64(uint32(v.EnumNumber)))
		return nil
	default:
		w.WriteTag(int32(f.Number()), wireTypeFor(f.Kind()))
		if err := encodeScalarValue(w, f.Kind(), v); err != nil {
			return fieldErr(f, err)
		}
		return nil
	}
}

func encodePackedElement(w *wire.Writer, k protoreflect.Kind, v *Value) error {
	if k == protoreflect.EnumKind {
		if v.Kind != KindEnum {
			return &TypeMismatchError{Want: "enum", Got: v.Kind.String()}
		}
		w.WriteVarint(uint64(uint32(v.EnumNumber)))
		return nil
	}
	return encodeScalarValue(w, k, v)
}

func wireTypeFor(k protoreflect.Kind) wire.WireType {
	switch k {
	case protoreflect.DoubleKind, protoreflect.Fixed64Kind, protoreflect.Sfixed64Kind:
		return wire.WireFixed64
	case protoreflect.FloatKind, protoreflect.Fixed32Kind, protoreflect.Sfixed32Kind:
		return wire.WireFixed32
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.MessageKind, protoreflect.GroupKind:
		return wire.WireLengthDelimited
	default:
		return wire.WireVarint
	}
}

// encodeScalarValue coerces v.Scalar (or, for big integers, its
// decimal-string form) to the declared wire kind and writes it.
func encodeScalarValue(w *wire.Writer, k protoreflect.Kind, v *Value) error {
	if v.Kind != KindScalar {
		return &TypeMismatchError{Want: k.String(), Got: v.Kind.String()}
	}
	switch k {
	case protoreflect.DoubleKind:
		f, ok := asFloat64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteDouble(f)
	case protoreflect.FloatKind:
		f, ok := asFloat64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteFloat(float32(f))
	case protoreflect.Int64Kind:
		n, ok := asInt64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteVarint(uint64(n))
	case protoreflect.Sint64Kind:
		n, ok := asInt64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteSint64(n)
	case protoreflect.Sfixed64Kind:
		n, ok := asInt64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteFixed64(uint64(n))
	case protoreflect.Uint64Kind:
		n, ok := asUint64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteVarint(n)
	case protoreflect.Fixed64Kind:
		n, ok := asUint64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteFixed64(n)
	case protoreflect.Int32Kind:
		n, ok := asInt64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteVarint(uint64(int64(int32(n))))
	case protoreflect.Sint32Kind:
		n, ok := asInt64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteSint32(int32(n))
	case protoreflect.Sfixed32Kind:
		n, ok := asInt64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteFixed32(uint32(int32(n)))
	case protoreflect.Uint32Kind:
		n, ok := asUint64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteVarint(uint64(uint32(n)))
	case protoreflect.Fixed32Kind:
		n, ok := asUint64(v.Scalar)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteFixed32(uint32(n))
	case protoreflect.BoolKind:
		b, ok := v.Scalar.(bool)
		if !ok {
			return mismatch(k, v)
		}
		if b {
			w.WriteVarint(1)
		} else {
			w.WriteVarint(0)
		}
	case protoreflect.StringKind:
		s, ok := v.Scalar.(string)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteLengthDelimited([]byte(s))
	case protoreflect.BytesKind:
		b, ok := v.Scalar.([]byte)
		if !ok {
			return mismatch(k, v)
		}
		w.WriteLengthDelimited(b)
	default:
		return mismatch(k, v)
	}
	return nil
}

func mismatch(k protoreflect.Kind, v *Value) error {
	return &TypeMismatchError{Want: k.String(), Got: kindOf(v.Scalar)}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "bool"
	case string:
		return "string"
	case []byte:
		return "bytes"
	default:
		return "number"
	}
}

func fieldErr(f protoreflect.FieldDescriptor, err error) error {
	if tm, ok := err.(*TypeMismatchError); ok && tm.Field == "" {
		tm.Field = string(f.Name())
		return tm
	}
	return err
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case string:
		return parseDecimalFloat(n)
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		return parseDecimalInt(n)
	default:
		return 0, false
	}
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case int32:
		return uint64(n), true
	case float64:
		return uint64(n), true
	case string:
		return parseDecimalUint(n)
	default:
		return 0, false
	}
}
