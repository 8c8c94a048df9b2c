// File: internal/uri/uri.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Browser-style URI percent-encoding. Non-ASCII input is escaped byte by
// byte; callers wanting conformant behavior pass UTF-8.

package uri

import (
	"encoding/base64"
	"strings"
)

const upperhex = "0123456789ABCDEF"

func isReserved(c byte) bool {
	switch c {
	case ';', ',', '/', '?', ':', '@', '&', '=', '+', '$':
		return true
	}
	return false
}

func needsEscape(c byte, encodeReserved bool) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return false
	case isReserved(c):
		return encodeReserved
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return false
	}
	return true
}

func encode(s string, encodeReserved bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !needsEscape(c, encodeReserved) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func unhex(c byte) int {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0')
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10
	case 'A' <= c && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// decode never fails: malformed escapes are copied through verbatim.
func decode(s string, component bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' || i+2 >= len(s) {
			b.WriteByte(c)
			continue
		}
		hi, lo := unhex(s[i+1]), unhex(s[i+2])
		if hi < 0 || lo < 0 {
			b.WriteString(s[i : i+3])
			i += 2
			continue
		}
		v := byte(hi<<4 | lo)
		if !component && isReserved(v) {
			b.WriteString(s[i : i+3])
		} else {
			b.WriteByte(v)
		}
		i += 2
	}
	return b.String()
}

// EncodeURI escapes s, leaving the reserved set ;,/?:@&=+$ intact.
func EncodeURI(s string) string { return encode(s, false) }

// EncodeURIComponent escapes s including reserved characters.
func EncodeURIComponent(s string) string { return encode(s, true) }

// DecodeURI reverses EncodeURI. Escapes that decode to a reserved character
// are left encoded.
func DecodeURI(s string) string { return decode(s, false) }

// DecodeURIComponent decodes every valid escape.
func DecodeURIComponent(s string) string { return decode(s, true) }

// Base64Encode returns the standard padded base64 form of b.
func Base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
