package mvstring

import (
	"testing"

	"github.com/scarletdme/qmcore/internal/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRdiReplaceRoundTrip(t *testing.T) {
	src := []byte("f1" + string(descriptor.FieldMark) + "f2")
	pos := Position{Field: 2}
	replaced := Rdi(src, pos, ModeReplace, []byte("X"), false)

	got, ok := Extract(replaced, pos)
	require.True(t, ok)
	assert.Equal(t, "X", string(got))
}

func TestRdiDeleteCollapses(t *testing.T) {
	src := []byte("a" + string(descriptor.ValueMark) + "b" + string(descriptor.ValueMark) + "c")
	out := Rdi(src, Position{Field: 1, Value: 2}, ModeDelete, nil, false)
	assert.Equal(t, "a"+string(descriptor.ValueMark)+"c", string(out))
}

func TestRdiAppendField(t *testing.T) {
	src := []byte("a")
	out := Rdi(src, Position{Field: -1}, ModeInsert, []byte("b"), false)
	assert.Equal(t, "a"+string(descriptor.FieldMark)+"b", string(out))
}

func TestRdiInsertPadsToDepth(t *testing.T) {
	out := Rdi(nil, Position{Field: 2, Value: 3}, ModeReplace, []byte("z"), false)
	got, ok := Extract(out, Position{Field: 2, Value: 3})
	require.True(t, ok)
	assert.Equal(t, "z", string(got))
}
