// Package framing unwraps the layered envelopes a captured HTTP exchange
// carries before the bytes inside are plain Protobuf: base64, grpc-web-text
// double-base64, gzip, and the gRPC/Connect length-prefixed frame format.
// See spec §4.5.
package framing

import "fmt"

// FramingError reports a malformed length-prefixed frame header. Partial
// frames parsed before the failure are retained (spec §7).
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing: %s", e.Reason)
}

// DecompressionFailure reports a gzip inflate failure or a payload that
// would exceed the configured output budget. The original buffer is kept
// unchanged by the caller (spec §7).
type DecompressionFailure struct {
	Reason string
}

func (e *DecompressionFailure) Error() string {
	return fmt.Sprintf("framing: decompression failed: %s", e.Reason)
}
