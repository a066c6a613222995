package mailparser

import (
	"io"
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
)

var (
	wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

	// rawWordDecoder hands back the payload bytes of a word whose charset
	// nothing recognises; the caller strips what is not valid UTF-8.
	rawWordDecoder = &mime.WordDecoder{
		CharsetReader: func(_ string, input io.Reader) (io.Reader, error) {
			return input, nil
		},
	}

	encodedWord         = regexp.MustCompile(`=\?[^?\s]+\?[bBqQ]\?[^?\s]*\?=`)
	adjacentWordSpacing = regexp.MustCompile(`(\?=)\s+(=\?)`)
)

// DecodeHeader decodes every RFC 2047 encoded-word in value, each with its own
// charset. It never fails: words that cannot be converted fall back to their
// raw bytes with invalid UTF-8 dropped, and malformed words are kept verbatim.
func DecodeHeader(value string) string {
	if value == "" {
		return ""
	}

	if decoded, err := wordDecoder.DecodeHeader(value); err == nil {
		return cleanText(decoded)
	}

	value = adjacentWordSpacing.ReplaceAllString(value, "$1$2")
	decoded := encodedWord.ReplaceAllStringFunc(value, decodeWord)
	return cleanText(decoded)
}

func decodeWord(word string) string {
	if decoded, err := wordDecoder.Decode(word); err == nil {
		return decoded
	}
	if decoded, err := rawWordDecoder.Decode(word); err == nil {
		return strings.ToValidUTF8(decoded, "")
	}
	return word
}

// cleanText drops invalid UTF-8 and NUL bytes, neither of which a Postgres
// text column accepts.
func cleanText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}
