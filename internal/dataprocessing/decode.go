package dataprocessing

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Text encodings accepted by the loader.
const (
	EncodingPermissive  = "permissive"
	EncodingUTF8        = "utf-8"
	EncodingLatin1      = "latin1"
	EncodingWindows1252 = "windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText converts raw upload bytes to UTF-8.
//
// permissive strips a leading BOM and replaces invalid sequences with U+FFFD.
// utf-8 is strict. latin1 and windows-1252 go through the matching charmap.
func decodeText(data []byte, name string) ([]byte, error) {
	var dec *encoding.Decoder

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingPermissive:
		dec = unicode.UTF8BOM.NewDecoder()
	case EncodingUTF8, "utf8":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("input is not valid UTF-8")
		}
		return bytes.TrimPrefix(data, utf8BOM), nil
	case EncodingLatin1, "iso-8859-1":
		dec = charmap.ISO8859_1.NewDecoder()
	case EncodingWindows1252, "cp1252":
		dec = charmap.Windows1252.NewDecoder()
	default:
		return nil, fmt.Errorf("unknown text encoding %q", name)
	}

	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}
