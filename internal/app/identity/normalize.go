// Package identity canonicalizes track references and resolves them
// against candidate lists (engine queue, library cache).
package identity

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

var (
	ErrMalformedEscape = errors.New("malformed percent escape")
	ErrInvalidUTF8     = errors.New("invalid utf-8 sequence")
)

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

const upperHex = "0123456789ABCDEF"

// uriSafe holds the bytes EncodeURI leaves untouched.
var uriSafe = func() [256]bool {
	var t [256]bool
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		t[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for _, c := range ";,/?:@&=+$-_.!~*'()#" {
		t[c] = true
	}
	return t
}()

// uriReserved holds the bytes whose escapes DecodeURI keeps intact.
var uriReserved = func() [256]bool {
	var t [256]bool
	for _, c := range ";/?:@&=+$,#" {
		t[c] = true
	}
	return t
}()

// Normalize returns the canonical comparison form of a URL or path.
// Absolute http(s) URLs are decoded once and re-encoded; anything else is
// encoded with existing escapes preserved. The result is stable under
// repeated application and Normalize never fails: when encoding is not
// possible the trimmed input is returned unchanged.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if absoluteURL.MatchString(s) {
		decoded, err := DecodeURI(s)
		if err != nil {
			decoded = s
		}
		encoded, err := EncodeURI(decoded)
		if err != nil {
			return s
		}
		return encoded
	}

	encoded, err := encodeKeepingEscapes(s)
	if err != nil {
		return s
	}
	return encoded
}

// EncodeURI percent-encodes every byte outside the URI safe set.
// '%' itself is encoded, so the operation is not idempotent on its own.
func EncodeURI(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		writeByte(&b, s[i])
	}
	return b.String(), nil
}

// DecodeURI decodes percent escapes, keeping escapes of reserved
// characters (";/?:@&=+$,#") as they are.
func DecodeURI(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		v, ok := unhexAt(s, i)
		if !ok {
			return "", errors.Wrapf(ErrMalformedEscape, "at offset %d", i)
		}
		if uriReserved[v] {
			b.WriteString(s[i : i+3])
		} else {
			b.WriteByte(v)
		}
		i += 2
	}
	out := b.String()
	if !utf8.ValidString(out) {
		return "", ErrInvalidUTF8
	}
	return out, nil
}

// Filename returns the last non-empty '/'-separated segment of u.
func Filename(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return u
}

// encodeKeepingEscapes behaves like EncodeURI but leaves well-formed
// escapes in place, normalizing their hex digits to upper case.
func encodeKeepingEscapes(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' {
			if v, ok := unhexAt(s, i); ok {
				b.WriteByte('%')
				b.WriteByte(upperHex[v>>4])
				b.WriteByte(upperHex[v&0x0f])
				i += 2
				continue
			}
		}
		writeByte(&b, s[i])
	}
	return b.String(), nil
}

func writeByte(b *strings.Builder, c byte) {
	if uriSafe[c] {
		b.WriteByte(c)
		return
	}
	b.WriteByte('%')
	b.WriteByte(upperHex[c>>4])
	b.WriteByte(upperHex[c&0x0f])
}

func unhexAt(s string, i int) (byte, bool) {
	if i+2 >= len(s) {
		return 0, false
	}
	hi, ok1 := unhex(s[i+1])
	lo, ok2 := unhex(s[i+2])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
