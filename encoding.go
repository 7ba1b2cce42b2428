package capturer

import (
	"fmt"

	"golang.org/x/text/encoding/ianaindex"
)

// DefaultEncoding is the IANA name of the character encoding used to decode
// captured output when Options.Encoding is left empty.
const DefaultEncoding = "UTF-8"

// decodeText decodes captured bytes to text using the named IANA character
// encoding.
func decodeText(data []byte, name string) (string, error) {
	if name == "" {
		name = DefaultEncoding
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return "", fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	if enc == nil {
		// The index knows the name but has no decoder for it.
		return "", fmt.Errorf("unsupported encoding %q", name)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode captured output as %s: %w", name, err)
	}
	return string(decoded), nil
}
