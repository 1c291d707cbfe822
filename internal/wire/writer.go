package wire

import (
	"encoding/binary"
	"math"
)

// Writer accumulates an encoded Protobuf byte stream.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// WriteTag writes a field tag combining the field number and wire type.
func (w *Writer) WriteTag(fieldNumber int32, wt WireType) {
	w.WriteVarint(uint64(fieldNumber)<<3 | uint64(wt))
}

// WriteVarint writes v as a base-128 varint.
func (w *Writer) WriteVarint(v uint64) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// WriteSint32 writes a ZigZag-encoded 32-bit signed integer.
func (w *Writer) WriteSint32(v int32) {
	w.WriteVarint(uint64(uint32(v<<1) ^ uint32(v>>31)))
}

// WriteSint64 writes a ZigZag-encoded 64-bit signed integer.
func (w *Writer) WriteSint64(v int64) {
	w.WriteVarint(uint64(v<<1) ^ uint64(v>>63))
}

// WriteFixed32 writes a little-endian 32-bit fixed value.
func (w *Writer) WriteFixed32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteFixed64 writes a little-endian 64-bit fixed value.
func (w *Writer) WriteFixed64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteFloat writes an IEEE-754 single-precision float.
func (w *Writer) WriteFloat(v float32) {
	w.WriteFixed32(math.Float32bits(v))
}

// WriteDouble writes an IEEE-754 double-precision float.
func (w *Writer) WriteDouble(v float64) {
	w.WriteFixed64(math.Float64bits(v))
}

// WriteLengthDelimited writes a varint length prefix followed by b.
func (w *Writer) WriteLengthDelimited(b []byte) {
	w.WriteVarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}
