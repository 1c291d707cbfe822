package codec

import "strconv"

// parseDecimal{Int,Uint,Float} support encoding a value tree produced by
// Decode (where out-of-safe-range 64-bit integers are decimal strings)
// straight back through Encode without the caller having to convert types.
func parseDecimalInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func parseDecimalUint(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

func parseDecimalFloat(s string) (float64, bool) {
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}
