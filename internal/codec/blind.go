package codec

import (
	"encoding/hex"
	"unicode/utf8"

	"github.com/grpcweb-inspector/core/internal/wire"
)

// blindResult carries the bookkeeping blindDecodeMessage needs to let its
// caller apply the nested-message acceptance heuristic (spec §4.4): how
// many bytes were actually consumed and how many fields were produced.
type blindResult struct {
	value    *Value
	consumed int
	fields   int
}

// blindDecode reconstructs a best-effort value tree from raw bytes with no
// descriptor available at all (spec §4.4 "Blind decode"). The result is
// always a KindMessage value with an empty TypeName and synthesized
// field_<n> keys.
func blindDecode(data []byte, opts Options) *Value {
	return blindDecodeMessage(data, opts).value
}

// blindDecodeMessage walks data as a sequence of tags with no descriptor,
// synthesizing field_<n> names. It never returns an error: a read failure
// simply stops the loop, the same graceful-termination rule decodeMessage
// applies for field number 0.
func blindDecodeMessage(data []byte, opts Options) blindResult {
	r := wire.NewReader(data)
	msg := &Value{Kind: KindMessage, Fields: make(map[string]*Value)}
	collected := make(map[string][]*Value)
	order := make([]string, 0)

	for !r.Done() {
		startPos := r.Pos()
		num, wt, err := r.ReadTag()
		if err != nil {
			if err == wire.ErrInvalidFieldNumber {
				break
			}
			msg.Set("_error", NewError(errKindForWireErr(err), err.Error()))
			break
		}
		key := fieldKey(num)
		v, err := decodeUnknownField(r, wt, opts)
		if err != nil {
			msg.Set("_error", NewError(errKindForWireErr(err), err.Error()))
			// Rewind isn't meaningful here; stop where we are.
			_ = startPos
			break
		}
		if _, seen := collected[key]; !seen {
			order = append(order, key)
		}
		collected[key] = append(collected[key], v)
	}

	for _, key := range order {
		vals := collected[key]
		if len(vals) == 1 {
			msg.Set(key, vals[0])
		} else {
			msg.Set(key, &Value{Kind: KindRepeated, Repeated: vals})
		}
	}

	fieldCount := len(order)
	if _, hasErr := msg.Fields["_error"]; hasErr {
		fieldCount--
	}
	return blindResult{value: msg, consumed: r.Pos(), fields: fieldCount}
}

// decodeUnknownField consumes one field's value with no type information
// beyond its wire type, producing the best-effort Value the spec's blind
// decode and unknown-field handling share.
func decodeUnknownField(r *wire.Reader, wt wire.WireType, opts Options) (*Value, error) {
	switch wt {
	case wire.WireVarint:
		v, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		return varintScalarValue(v), nil
	case wire.WireFixed32:
		v, err := r.ReadFixed32()
		if err != nil {
			return nil, err
		}
		return NewScalar(int64(v)), nil
	case wire.WireFixed64:
		v, err := r.ReadFixed64()
		if err != nil {
			return nil, err
		}
		if isSafeUnsigned(v) {
			return NewScalar(int64(v)), nil
		}
		return NewScalar(formatUint64(v)), nil
	case wire.WireLengthDelimited:
		b, err := r.ReadLengthDelimited()
		if err != nil {
			return nil, err
		}
		return blindLengthDelimitedValue(b, opts), nil
	default:
		return nil, wire.ErrUnsupportedGroup
	}
}

// blindLengthDelimitedValue applies spec §4.4's nested-message-then-string
// -then-hex fallback chain to an unresolved length-delimited field.
func blindLengthDelimitedValue(b []byte, opts Options) *Value {
	if len(b) > 0 {
		nested := blindDecodeMessage(b, opts)
		threshold := opts.BlindDecodeThreshold
		if threshold <= 0 {
			threshold = DefaultOptions().BlindDecodeThreshold
		}
		if nested.fields >= 1 && float64(nested.consumed) >= threshold*float64(len(b)) {
			nested.value.TypeName = ""
			return nested.value
		}
	}
	if utf8.Valid(b) {
		return NewScalar(string(b))
	}
	return NewScalar(hex.EncodeToString(b))
}

func errKindForWireErr(err error) string {
	switch err {
	case wire.ErrTruncated:
		return "Truncated"
	case wire.ErrVarintOverflow:
		return "VarintOverflow"
	case wire.ErrUnsupportedGroup:
		return "UnsupportedGroup"
	default:
		return "DecodeError"
	}
}
