package escape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternAlphanumericPassthrough(t *testing.T) {
	assert.Equal(t, "abcXYZ019", Pattern([]byte("abcXYZ019")))
}

func TestPatternEscapesNonAlphanumeric(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"space and punctuation", []byte("a b!"), `a\x20b\x21`},
		{"control byte", []byte{'a', 0x01, 'c'}, `a\x01c`},
		{"nul byte", []byte{0x00}, `\x00`},
		{"high bytes lowercase hex", []byte{0xAB, 0xFF}, `\xab\xff`},
		{"backslash itself", []byte(`a\b`), `a\x5cb`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pattern(tt.raw))
		})
	}
}

func TestPatternEmptyInput(t *testing.T) {
	assert.Equal(t, "", Pattern(nil))
	assert.Equal(t, "", Pattern([]byte{}))
}

func TestPatternDeterministic(t *testing.T) {
	raw := []byte("GET /index.html\r\n")
	assert.Equal(t, Pattern(raw), Pattern(raw))
}

func TestLiteralRoundTrip(t *testing.T) {
	inputs := [][]byte{
		[]byte("abc"),
		{'a', 0x01, 'c'},
		{0x00, 0xff, 'Z', ' '},
		[]byte("content-length: 0"),
	}

	for _, raw := range inputs {
		got, err := Literal(Pattern(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	}
}

func TestLiteralRejectsMalformed(t *testing.T) {
	for _, esc := range []string{`\x1`, `\q`, `\xzz`, `a b`, `a\x`} {
		_, err := Literal(esc)
		assert.Error(t, err, "escape %q should be rejected", esc)
	}
}
