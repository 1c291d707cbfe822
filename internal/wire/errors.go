// Package wire implements the primitive Protobuf binary wire format: varints,
// fixed-width integers, length-delimited fields, and tags, read from and
// written to a cursor over a byte slice.
package wire

import "errors"

// Sentinel errors returned by Reader. Callers compare with errors.Is.
var (
	// ErrTruncated is returned when a read runs past the end of the buffer.
	ErrTruncated = errors.New("wire: truncated")
	// ErrVarintOverflow is returned when a varint exceeds 10 bytes.
	ErrVarintOverflow = errors.New("wire: varint overflow")
	// ErrUnsupportedGroup is returned for the deprecated group wire types (3, 4).
	ErrUnsupportedGroup = errors.New("wire: unsupported group wire type")
	// ErrInvalidFieldNumber is returned when a tag decodes to field number 0.
	ErrInvalidFieldNumber = errors.New("wire: invalid field number")
)

// WireType identifies how a field's value is encoded on the wire.
type WireType uint8

const (
	WireVarint          WireType = 0
	WireFixed64         WireType = 1
	WireLengthDelimited WireType = 2
	WireStartGroup      WireType = 3 // deprecated, unsupported
	WireEndGroup        WireType = 4 // deprecated, unsupported
	WireFixed32         WireType = 5
)
