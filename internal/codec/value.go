// Package codec encodes and decodes Protobuf messages against registry
// descriptors, with blind-decode and template generation for schemas the
// registry cannot (yet) resolve. See spec §4.4.
package codec

// Kind discriminates the variant a Value holds.
type Kind int

const (
	KindScalar Kind = iota
	KindEnum
	KindMap
	KindRepeated
	KindMessage
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindEnum:
		return "enum"
	case KindMap:
		return "map"
	case KindRepeated:
		return "repeated"
	case KindMessage:
		return "message"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// MapEntry is one key/value pair of a decoded map field. Order is
// preserved as encountered on the wire.
type MapEntry struct {
	Key   *Value
	Value *Value
}

// Value is the recursive decoded-value tree described by spec §3: a
// scalar, an enum (name-or-number), a map, a repeated sequence, a message
// (field name -> Value, with a $type tag), or an in-tree error marker.
//
// Exactly the fields relevant to Kind are populated; the rest are zero.
// This mirrors the source's dynamically-typed value representation
// collapsed into one tagged sum type (spec §9).
type Value struct {
	Kind Kind

	// Scalar holds the Go-native value for KindScalar: bool, int32, int64,
	// uint32, uint64, float32, float64, string, or []byte. 64-bit integers
	// outside the JavaScript-safe integer range are represented as a
	// decimal string instead of an int64/uint64 (spec §4.4, §9).
	Scalar any

	// Enum fields.
	EnumName   string // resolved name, empty if unresolved
	EnumNumber int32

	// Map entries, in wire order.
	MapEntries []MapEntry

	// Repeated holds the ordered elements of a repeated field.
	Repeated []*Value

	// TypeName is the fully-qualified message type name, set for
	// KindMessage (the carried "$type" tag).
	TypeName string
	// Fields maps field name to decoded value for KindMessage. FieldOrder
	// preserves first-seen order for deterministic re-encoding/printing.
	Fields     map[string]*Value
	FieldOrder []string

	// ErrorKind/ErrorMessage populate KindError leaves (spec §7).
	ErrorKind    string
	ErrorMessage string
}

// NewScalar wraps a native scalar value.
func NewScalar(v any) *Value {
	return &Value{Kind: KindScalar, Scalar: v}
}

// NewEnum wraps a resolved-or-not enum value.
func NewEnum(number int32, name string) *Value {
	return &Value{Kind: KindEnum, EnumNumber: number, EnumName: name}
}

// NewError builds an in-tree error leaf (spec §7: decode errors never
// unwind past the record).
func NewError(kind, message string) *Value {
	return &Value{Kind: KindError, ErrorKind: kind, ErrorMessage: message}
}

// NewMessage builds an empty message value for the given type name.
func NewMessage(typeName string) *Value {
	return &Value{Kind: KindMessage, TypeName: typeName, Fields: make(map[string]*Value)}
}

// Set stores a field value, recording first-seen order.
func (v *Value) Set(name string, fv *Value) {
	if v.Fields == nil {
		v.Fields = make(map[string]*Value)
	}
	if _, exists := v.Fields[name]; !exists {
		v.FieldOrder = append(v.FieldOrder, name)
	}
	v.Fields[name] = fv
}

// Get returns a message field's value, or nil if absent.
func (v *Value) Get(name string) *Value {
	if v.Fields == nil {
		return nil
	}
	return v.Fields[name]
}

// isSafeInteger reports whether n fits the JavaScript-safe integer range
// used by the host UI collaborator, i.e. |n| <= 2^53 - 1 (spec §4.4, §9).
func isSafeInteger(n int64) bool {
	const maxSafe = int64(1) << 53
	return n > -maxSafe && n < maxSafe
}

func isSafeUnsigned(n uint64) bool {
	const maxSafe = uint64(1) << 53
	return n < maxSafe
}
