package framing

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
)

const (
	frameHeaderLen = 5

	flagCompressed byte = 0x01
	flagTrailer    byte = 0x80
)

// parseFrames walks the gRPC/Connect length-prefixed wire format: each
// message is a 5-byte header ([flags:u8][length:u32 big-endian]) followed
// by that many bytes. Bit 0 of flags marks a per-frame gzip payload, bit 7
// marks a trailer frame (its body is header-style "key: value\r\n" lines,
// not Protobuf). Parsing stops at the first malformed header, keeping
// whatever frames were already parsed (spec §7 partial-frame tolerance).
func parseFrames(data []byte, opts Options) (payloads [][]byte, trailer map[string]string, warnings []string) {
	pos := 0
	for pos < len(data) {
		if len(data)-pos < frameHeaderLen {
			warnings = append(warnings, (&FramingError{Reason: "truncated frame header"}).Error())
			break
		}
		flags := data[pos]
		length := binary.BigEndian.Uint32(data[pos+1 : pos+5])
		start := pos + frameHeaderLen
		end := start + int(length)
		if end < start || end > len(data) {
			warnings = append(warnings, (&FramingError{Reason: "frame length exceeds remaining buffer"}).Error())
			break
		}
		body := data[start:end]

		if flags&flagTrailer != 0 {
			if trailer == nil {
				trailer = map[string]string{}
			}
			for k, v := range parseTrailerLines(body) {
				trailer[k] = v
			}
			pos = end
			continue
		}

		if flags&flagCompressed != 0 {
			inflated, err := inflate(body, opts.GzipMaxOutputBytes)
			if err != nil {
				warnings = append(warnings, "framing: frame decompression failed: "+err.Error())
				payloads = append(payloads, body)
			} else {
				payloads = append(payloads, inflated)
			}
		} else {
			payloads = append(payloads, body)
		}
		pos = end
	}
	return payloads, trailer, warnings
}

// parseTrailerLines reads a gRPC-Web trailer frame's body, which is plain
// HTTP-style header lines separated by CRLF (or bare LF).
func parseTrailerLines(body []byte) map[string]string {
	out := map[string]string{}
	line := make([]byte, 0, 64)
	flush := func() {
		if len(line) == 0 {
			return
		}
		idx := -1
		for i, c := range line {
			if c == ':' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		key := trimSpace(string(line[:idx]))
		val := trimSpace(string(line[idx+1:]))
		if key != "" {
			out[key] = val
		}
	}
	for _, c := range body {
		if c == '\n' {
			flush()
			line = line[:0]
			continue
		}
		if c == '\r' {
			continue
		}
		line = append(line, c)
	}
	flush()
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// FrameMessages builds the length-prefixed wire format for a sequence of
// Protobuf payloads, the inverse of parseFrames' data-frame handling. When
// compressed is true each body is gzipped individually and the per-frame
// compression bit is set, mirroring what parseFrames expects to inflate.
// It is used by tests exercising the frame/unframe round trip and by
// callers that need to re-frame a payload for replay.
func FrameMessages(payloads [][]byte, compressed bool) []byte {
	out := make([]byte, 0, len(payloads)*frameHeaderLen)
	for _, p := range payloads {
		body := p
		if compressed {
			var gz bytes.Buffer
			zw := gzip.NewWriter(&gz)
			zw.Write(p)
			zw.Close()
			body = gz.Bytes()
		}
		var hdr [frameHeaderLen]byte
		if compressed {
			hdr[0] = flagCompressed
		}
		binary.BigEndian.PutUint32(hdr[1:], uint32(len(body)))
		out = append(out, hdr[:]...)
		out = append(out, body...)
	}
	return out
}
