// Package escape converts raw byte patterns to the textual form consumed by
// the RXP rule compiler, and back.
package escape

import (
	"fmt"
	"strings"
)

// Pattern renders a raw byte pattern in compiler-safe form. Alphanumeric
// bytes pass through unchanged; every other byte becomes a fixed-width
// \xHH escape with lowercase hex digits. Two raw patterns that escape to
// the same text are the same pattern as far as the hardware is concerned.
// A zero-length input yields an empty string.
func Pattern(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))

	for _, c := range raw {
		if isAlnum(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, `\x%02x`, c)
		}
	}

	return b.String()
}

// Literal inverts Pattern, recovering the raw bytes from an escaped pattern.
// Only the escape form produced by Pattern is accepted; patterns carrying
// other regex constructs are rejected.
func Literal(esc string) ([]byte, error) {
	out := make([]byte, 0, len(esc))

	for i := 0; i < len(esc); {
		c := esc[i]
		if c != '\\' {
			if !isAlnum(c) {
				return nil, fmt.Errorf("unescaped non-alphanumeric byte %q at offset %d", c, i)
			}
			out = append(out, c)
			i++
			continue
		}

		if i+4 > len(esc) || esc[i+1] != 'x' {
			return nil, fmt.Errorf("malformed escape at offset %d", i)
		}
		hi, ok1 := hexVal(esc[i+2])
		lo, ok2 := hexVal(esc[i+3])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("invalid hex escape %q at offset %d", esc[i:i+4], i)
		}
		out = append(out, hi<<4|lo)
		i += 4
	}

	return out, nil
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
