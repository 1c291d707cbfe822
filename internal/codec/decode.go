package codec

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/grpcweb-inspector/core/internal/registry"
	"github.com/grpcweb-inspector/core/internal/wire"
)

// Options configures decode/encode behavior per the spec §6 configuration
// table.
type Options struct {
	StrictUTF8           bool
	BlindDecodeThreshold float64
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		StrictUTF8:           false,
		BlindDecodeThreshold: 0.8,
	}
}

func fieldKey(n int32) string {
	return fmt.Sprintf("field_%d", n)
}

func formatUint64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}

func varintScalarValue(v uint64) *Value {
	if isSafeUnsigned(v) {
		return NewScalar(int64(v))
	}
	return NewScalar(formatUint64(v))
}

// Decode decodes data against the named message type, resolved through reg.
// It never fails fatally: unresolvable types fall back to blind decode, and
// individual field errors become in-tree "_error" markers (spec §4.4).
func Decode(reg *registry.Registry, typeName string, data []byte, opts Options) *Value {
	if typeName != "" {
		if msg, ok := reg.FindMessage(typeName); ok {
			return decodeMessage(reg, msg, data, opts)
		}
	}
	return blindDecode(data, opts)
}

// decodeMessage decodes data against a resolved message descriptor, driven
// entirely by protoreflect field metadata rather than a hand-rolled
// descriptor model (spec §4.4).
func decodeMessage(reg *registry.Registry, msg protoreflect.MessageDescriptor, data []byte, opts Options) *Value {
	r := wire.NewReader(data)
	out := &Value{Kind: KindMessage, TypeName: string(msg.FullName()), Fields: make(map[string]*Value)}

	type accum struct {
		field protoreflect.FieldDescriptor // nil for unknown fields
		key   string
		vals  []*Value
		isMap bool
		mapEs []MapEntry
	}
	fields := msg.Fields()
	order := make([]string, 0, fields.Len())
	collected := make(map[string]*accum)

	appendVal := func(key string, f protoreflect.FieldDescriptor, v *Value) {
		a, ok := collected[key]
		if !ok {
			a = &accum{field: f, key: key}
			collected[key] = a
			order = append(order, key)
		}
		a.vals = append(a.vals, v)
	}
	appendMapEntries := func(key string, f protoreflect.FieldDescriptor, entries []MapEntry) {
		a, ok := collected[key]
		if !ok {
			a = &accum{field: f, key: key, isMap: true}
			collected[key] = a
			order = append(order, key)
		}
		a.mapEs = append(a.mapEs, entries...)
	}

	for !r.Done() {
		num, wt, err := r.ReadTag()
		if err != nil {
			if err == wire.ErrInvalidFieldNumber {
				break
			}
			out.Set("_error", NewError(errKindForWireErr(err), err.Error()))
			break
		}

		field := fields.ByNumber(protoreflect.FieldNumber(num))
		if field == nil {
			v, err := decodeUnknownField(r, wt, opts)
			if err != nil {
				out.Set("_error", NewError(errKindForWireErr(err), err.Error()))
				break
			}
			appendVal(fieldKey(num), nil, v)
			continue
		}

		if field.IsMap() {
			entry, err := decodeMapEntry(reg, field, r, opts)
			if err != nil {
				out.Set("_error", NewError(errKindForWireErr(err), err.Error()))
				break
			}
			appendMapEntries(string(field.Name()), field, []MapEntry{entry})
			continue
		}

		if field.Cardinality() == protoreflect.Repeated && isPackableKind(field.Kind()) && wt == wire.WireLengthDelimited {
			elems, err := decodePacked(field.Kind(), r)
			if err != nil {
				out.Set("_error", NewError(errKindForWireErr(err), err.Error()))
				break
			}
			for _, e := range elems {
				appendVal(string(field.Name()), field, e)
			}
			continue
		}

		v, err := decodeScalarOrMessage(reg, field, wt, r, opts)
		if err != nil {
			out.Set("_error", NewError(errKindForWireErr(err), err.Error()))
			break
		}
		appendVal(string(field.Name()), field, v)
	}

	for _, key := range order {
		a := collected[key]
		switch {
		case a.isMap:
			out.Set(key, &Value{Kind: KindMap, MapEntries: a.mapEs})
		case a.field != nil && a.field.Cardinality() == protoreflect.Repeated:
			out.Set(key, &Value{Kind: KindRepeated, Repeated: a.vals})
		case len(a.vals) > 0:
			// Singular field: last value on the wire wins (spec §4.4 step 3).
			out.Set(key, a.vals[len(a.vals)-1])
		}
	}

	return out
}

// isPackableKind reports whether a repeated field of this kind may be
// encoded packed (proto3 scalars other than string/bytes/message/group).
// Decoding must accept packed or unpacked regardless of the field's own
// packed option, so this only depends on the kind.
func isPackableKind(k protoreflect.Kind) bool {
	switch k {
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.MessageKind, protoreflect.GroupKind:
		return false
	default:
		return true
	}
}

// decodeScalarOrMessage decodes a single occurrence of a declared,
// non-packed, non-map field.
func decodeScalarOrMessage(reg *registry.Registry, field protoreflect.FieldDescriptor, wt wire.WireType, r *wire.Reader, opts Options) (*Value, error) {
	switch field.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		b, err := r.ReadLengthDelimited()
		if err != nil {
			return nil, err
		}
		return Decode(reg, string(field.Message().FullName()), b, opts), nil
	case protoreflect.EnumKind:
		v, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		number := int32(v)
		name := ""
		if ev := field.Enum().Values().ByNumber(protoreflect.EnumNumber(number)); ev != nil {
			name = string(ev.Name())
		}
		return NewEnum(number, name), nil
	default:
		return decodeScalar(field.Kind(), wt, r, opts)
	}
}

// decodeScalar decodes one primitive value per the field's declared kind.
func decodeScalar(k protoreflect.Kind, wt wire.WireType, r *wire.Reader, opts Options) (*Value, error) {
	switch k {
	case protoreflect.DoubleKind:
		v, err := r.ReadDouble()
		if err != nil {
			return nil, err
		}
		return NewScalar(v), nil
	case protoreflect.FloatKind:
		v, err := r.ReadFloat()
		if err != nil {
			return nil, err
		}
		return NewScalar(v), nil
	case protoreflect.Int64Kind, protoreflect.Sfixed64Kind:
		var v int64
		var err error
		if k == protoreflect.Sfixed64Kind {
			u, e := r.ReadFixed64()
			v, err = int64(u), e
		} else {
			u, e := r.ReadVarint()
			v, err = int64(u), e
		}
		if err != nil {
			return nil, err
		}
		return int64ScalarValue(v), nil
	case protoreflect.Sint64Kind:
		v, err := r.ReadSint64()
		if err != nil {
			return nil, err
		}
		return int64ScalarValue(v), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		var v uint64
		var err error
		if k == protoreflect.Fixed64Kind {
			v, err = r.ReadFixed64()
		} else {
			v, err = r.ReadVarint()
		}
		if err != nil {
			return nil, err
		}
		return varintScalarValue(v), nil
	case protoreflect.Int32Kind, protoreflect.Sfixed32Kind:
		var v int32
		if k == protoreflect.Sfixed32Kind {
			u, err := r.ReadFixed32()
			if err != nil {
				return nil, err
			}
			v = int32(u)
		} else {
			u, err := r.ReadVarint()
			if err != nil {
				return nil, err
			}
			v = int32(u)
		}
		return NewScalar(v), nil
	case protoreflect.Sint32Kind:
		v, err := r.ReadSint32()
		if err != nil {
			return nil, err
		}
		return NewScalar(v), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		var v uint32
		var err error
		if k == protoreflect.Fixed32Kind {
			v, err = r.ReadFixed32()
		} else {
			var u uint64
			u, err = r.ReadVarint()
			v = uint32(u)
		}
		if err != nil {
			return nil, err
		}
		return NewScalar(v), nil
	case protoreflect.BoolKind:
		v, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		return NewScalar(v != 0), nil
	case protoreflect.StringKind:
		s, ok, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if !ok {
			if opts.StrictUTF8 {
				return NewError("InvalidUTF8", "field contains invalid UTF-8"), nil
			}
			return NewScalar([]byte(s)), nil
		}
		return NewScalar(s), nil
	case protoreflect.BytesKind:
		b, err := r.ReadLengthDelimited()
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return NewScalar(cp), nil
	default:
		if err := r.SkipField(wt); err != nil {
			return nil, err
		}
		return NewError("UnsupportedType", fmt.Sprintf("unsupported field type %v", k)), nil
	}
}

// int64ScalarValue applies the big-integer-as-decimal-string rule (spec
// §4.4, §9) to a signed 64-bit value.
func int64ScalarValue(v int64) *Value {
	if isSafeInteger(v) {
		return NewScalar(v)
	}
	return NewScalar(formatInt64(v))
}

// decodePacked decodes a packed-repeated length-delimited field into its
// element values (spec §4.4).
func decodePacked(k protoreflect.Kind, r *wire.Reader) ([]*Value, error) {
	b, err := r.ReadLengthDelimited()
	if err != nil {
		return nil, err
	}
	sub := wire.NewReader(b)
	var out []*Value
	for !sub.Done() {
		v, err := decodePackedElement(k, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodePackedElement(k protoreflect.Kind, r *wire.Reader) (*Value, error) {
	switch k {
	case protoreflect.Fixed32Kind, protoreflect.Sfixed32Kind, protoreflect.FloatKind:
		return decodeScalar(k, wire.WireFixed32, r, Options{})
	case protoreflect.Fixed64Kind, protoreflect.Sfixed64Kind, protoreflect.DoubleKind:
		return decodeScalar(k, wire.WireFixed64, r, Options{})
	case protoreflect.EnumKind:
		v, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		return NewEnum(int32(v), ""), nil
	default:
		return decodeScalar(k, wire.WireVarint, r, Options{})
	}
}

// decodeMapEntry decodes one occurrence of a map field's synthetic Entry
// submessage directly from its key/value shape (MapKey/MapValue on the
// resolved field descriptor), rather than recursing through the generic
// message decoder, so the result is an ordered MapEntry instead of a
// {key,value} message.
func decodeMapEntry(reg *registry.Registry, field protoreflect.FieldDescriptor, r *wire.Reader, opts Options) (MapEntry, error) {
	b, err := r.ReadLengthDelimited()
	if err != nil {
		return MapEntry{}, err
	}
	sub := wire.NewReader(b)
	var key, val *Value
	keyField := field.MapKey()
	valField := field.MapValue()

	for !sub.Done() {
		num, wt, err := sub.ReadTag()
		if err != nil {
			if err == wire.ErrInvalidFieldNumber {
				break
			}
			return MapEntry{}, err
		}
		switch num {
		case 1:
			v, err := decodeScalar(keyField.Kind(), wt, sub, opts)
			if err != nil {
				return MapEntry{}, err
			}
			key = v
		case 2:
			var v *Value
			switch valField.Kind() {
			case protoreflect.MessageKind, protoreflect.GroupKind:
				nb, err := sub.ReadLengthDelimited()
				if err != nil {
					return MapEntry{}, err
				}
				v = Decode(reg, string(valField.Message().FullName()), nb, opts)
			case protoreflect.EnumKind:
				raw, err := sub.ReadVarint()
				if err != nil {
					return MapEntry{}, err
				}
				name := ""
				if ev := valField.Enum().Values().ByNumber(protoreflect.EnumNumber(int32(raw))); ev != nil {
					name = string(ev.Name())
				}
				v = NewEnum(int32(raw), name)
			default:
				v, err = decodeScalar(valField.Kind(), wt, sub, opts)
				if err != nil {
					return MapEntry{}, err
				}
			}
			val = v
		default:
			if err := sub.SkipField(wt); err != nil {
				return MapEntry{}, err
			}
		}
	}
	if key == nil {
		key = zeroScalar(keyField.Kind())
	}
	if val == nil {
		val = zeroScalar(valField.Kind())
	}
	return MapEntry{Key: key, Value: val}, nil
}

func zeroScalar(k protoreflect.Kind) *Value {
	switch k {
	case protoreflect.StringKind:
		return NewScalar("")
	case protoreflect.BytesKind:
		return NewScalar([]byte{})
	case protoreflect.BoolKind:
		return NewScalar(false)
	case protoreflect.DoubleKind, protoreflect.FloatKind:
		return NewScalar(float64(0))
	default:
		return NewScalar(int64(0))
	}
}
