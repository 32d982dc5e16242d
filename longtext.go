package client

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextEncoding names the byte encoding of streamed long-text values.
type TextEncoding string

const (
	// EncodingUTF16LE is the platform's native long-text encoding.
	EncodingUTF16LE TextEncoding = "utf-16le"

	// EncodingUTF8 is used by instances configured for UTF-8 streams.
	EncodingUTF8 TextEncoding = "utf-8"
)

// ParseTextEncoding converts a user-supplied name into a TextEncoding.
func ParseTextEncoding(name string) (TextEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-16le", "utf16le", "utf-16", "unicode":
		return EncodingUTF16LE, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	default:
		return "", fmt.Errorf("unsupported text encoding %q", name)
	}
}

// decoder returns the x/text decoder for the encoding. A byte order mark at
// the start of the stream overrides the configured byte order.
func (e TextEncoding) decoder() *encoding.Decoder {
	switch e {
	case EncodingUTF8:
		return unicode.UTF8BOM.NewDecoder()
	default:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	}
}

// decodeLongText reads r to EOF and decodes it. The text is returned exactly
// as streamed: nothing is trimmed or truncated.
func decodeLongText(r io.Reader, enc TextEncoding) (string, error) {
	var sb strings.Builder
	if _, err := io.Copy(&sb, transform.NewReader(r, enc.decoder())); err != nil {
		return "", fmt.Errorf("decode %s long text: %w", enc, err)
	}
	return sb.String(), nil
}
