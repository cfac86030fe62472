package mvstring

import (
	"strconv"
	"testing"

	"github.com/scarletdme/qmcore/internal/descriptor"
	"github.com/stretchr/testify/assert"
)

func addOp(x, y []byte) []byte {
	nx, _ := descriptor.ParseNumber(string(x))
	ny, _ := descriptor.ParseNumber(string(y))
	sum := descriptor.AddInt32(nx.Int, ny.Int)
	return []byte(strconv.FormatInt(int64(sum.Int), 10))
}

func TestMVDWithReuse(t *testing.T) {
	a := []byte("1" + string(descriptor.ValueMark) + "2" + string(descriptor.ValueMark) + "3")
	b := []byte("10")
	got := MVD(a, b, true, addOp)
	assert.Equal(t, "11"+string(descriptor.ValueMark)+"12"+string(descriptor.ValueMark)+"13", string(got))
}

func TestMVDWithoutReuseUsesDefault(t *testing.T) {
	a := []byte("1" + string(descriptor.ValueMark) + "2" + string(descriptor.ValueMark) + "3")
	b := []byte("10")
	got := MVD(a, b, false, func(x, y []byte) []byte {
		if len(y) == 0 {
			y = []byte("0")
		}
		return addOp(x, y)
	})
	assert.Equal(t, "11"+string(descriptor.ValueMark)+"2"+string(descriptor.ValueMark)+"3", string(got))
}
