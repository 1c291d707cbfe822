package framing

import "strings"

// Options configures the unwrap pipeline. See spec §6 "framing.*".
type Options struct {
	GzipMaxOutputBytes uint64
}

func DefaultOptions() Options {
	return Options{GzipMaxOutputBytes: 64 << 20}
}

// Result is the outcome of running Unwrap over one captured request or
// response body: the Protobuf payloads it carried (one per RPC message)
// plus any gRPC-Web trailer metadata and non-fatal warnings collected along
// the way.
type Result struct {
	Payloads [][]byte
	Trailer  map[string]string
	Warnings []string
}

// Unwrap runs the full layered-envelope pipeline described in spec §4.5:
// normalize to bytes, undo grpc-web-text's base64 layer, inflate gzip, then
// split the gRPC/Connect length-prefixed frame stream into individual
// payloads. headers carries the relevant captured HTTP header values,
// keyed case-insensitively by content-type / grpc-encoding /
// connect-content-encoding.
func Unwrap(raw []byte, isText bool, base64Encoded bool, headers map[string]string, opts Options) *Result {
	h := newHeaderLookup(headers)
	res := &Result{}

	buf := normalize(raw, isText, base64Encoded)

	if strings.Contains(h.get("content-type"), "grpc-web-text") {
		buf = unwrapGrpcWebText(buf)
	}

	if strings.EqualFold(h.get("grpc-encoding"), "gzip") || strings.EqualFold(h.get("connect-content-encoding"), "gzip") {
		inflated, err := inflate(buf, opts.GzipMaxOutputBytes)
		if err != nil {
			res.Warnings = append(res.Warnings, "framing: gzip inflate failed: "+err.Error())
		} else {
			buf = inflated
		}
	}

	if looksFramed(h) {
		payloads, trailer, warnings := parseFrames(buf, opts)
		res.Payloads = payloads
		res.Trailer = trailer
		res.Warnings = append(res.Warnings, warnings...)
		return res
	}

	if len(buf) > 0 {
		res.Payloads = [][]byte{buf}
	}
	return res
}

func looksFramed(h headerLookup) bool {
	ct := h.get("content-type")
	return strings.Contains(ct, "grpc") || strings.Contains(ct, "connect") || strings.Contains(ct, "application/grpc")
}

type headerLookup map[string]string

func newHeaderLookup(headers map[string]string) headerLookup {
	out := make(headerLookup, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = strings.ToLower(v)
	}
	return out
}

func (h headerLookup) get(key string) string {
	return h[key]
}
