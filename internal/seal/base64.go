package seal

import "encoding/base64"

// EncodeKey encodes bytes as unpadded URL-safe base64. All key material and
// envelope fields on the wire use this alphabet.
func EncodeKey(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeKey decodes unpadded URL-safe base64. The alphabet is strict: the
// characters `+`, `/` and `=` are rejected, which is what the export format
// validation relies on.
func DecodeKey(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// EncodeContent encodes attachment content as standard padded base64.
func EncodeContent(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeContent decodes standard padded base64 attachment content.
func DecodeContent(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
