package framing

import (
	"bytes"
	"compress/gzip"
	"io"
)

// inflate decompresses the whole of b, refusing to produce more than
// maxOutputBytes of plaintext (spec's gzip bomb guard, §6
// framing.gzip_max_output_bytes).
func inflate(b []byte, maxOutputBytes uint64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	limited := io.LimitReader(zr, int64(maxOutputBytes)+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) > maxOutputBytes {
		return nil, &DecompressionFailure{Reason: "output exceeds configured budget"}
	}
	return out, nil
}
