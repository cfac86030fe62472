package mvstring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvert(t *testing.T) {
	assert.Equal(t, "Xbd", string(Convert([]byte("ac"), []byte("X"), []byte("abcd"))))
}

func TestTrimAllCompressesAndStrips(t *testing.T) {
	got := Trim([]byte("  a   b  c  "), ' ', TrimAll)
	assert.Equal(t, "a b c", string(got))
}

func TestTrimLeadingTrailing(t *testing.T) {
	assert.Equal(t, "x  ", string(Trim([]byte("  x  "), ' ', TrimLeading)))
	assert.Equal(t, "  x", string(Trim([]byte("  x  "), ' ', TrimTrailing)))
}

func TestRaiseLowerRoundTrip(t *testing.T) {
	s := []byte{'a', 0xFC, 'b', 0xFD, 'c'}
	up := Raise(s)
	down := Lower(up)
	assert.Equal(t, s, down)
}

func TestSoundex(t *testing.T) {
	assert.Equal(t, "R163", Soundex([]byte("Robert")))
	assert.Equal(t, "R163", Soundex([]byte("Rupert")))
}

func TestQuoteDoublesEmbedded(t *testing.T) {
	assert.Equal(t, `"a""b"`, string(Quote([]byte(`a"b`))))
}

func TestChecksumDeterministic(t *testing.T) {
	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	c := Checksum([]byte("hellp"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPwCryptLength(t *testing.T) {
	h := PwCrypt([]byte("secret"))
	assert.Len(t, h, 16)
	assert.Equal(t, h, PwCrypt([]byte("secret")))
}
