package scanner

import "encoding/base64"

// Encode returns the wire form of a byte-valued field (row key, column,
// comparator value). The gateway expects standard, padded base64.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
