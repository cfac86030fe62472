package dirfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scarletdme/qmcore/internal/descriptor"
)

func TestWriteReadDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "CUSTOMERS")
	f, err := Open(dir, false, false)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Write("1001", descriptor.NewFromBytes([]byte("Alice"))))
	data, actual, err := f.Read("1001")
	require.NoError(t, err)
	require.Equal(t, "1001", actual)
	require.Equal(t, "Alice", string(descriptor.Bytes(data)))

	require.NoError(t, f.Delete("1001"))
	_, _, err = f.Read("1001")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSafedirWriteSurvivesAsSingleFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ORDERS")
	f, err := Open(dir, false, true)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Write("ord1", descriptor.NewFromBytes([]byte("payload"))))
	ids, err := f.Select()
	require.NoError(t, err)
	require.Equal(t, []string{"ord1"}, ids)

	data, _, err := f.Read("ord1")
	require.NoError(t, err)
	require.Equal(t, "payload", string(descriptor.Bytes(data)))
}

func TestNoCaseLookup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ITEMS")
	f, err := Open(dir, true, false)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Write("Widget", descriptor.NewFromBytes([]byte("v1"))))
	data, actual, err := f.Read("widget")
	require.NoError(t, err)
	require.Equal(t, "Widget", actual)
	require.Equal(t, "v1", string(descriptor.Bytes(data)))
}

func TestExclusiveOpenBlocksConcurrentOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "LOCKED")
	f, err := Open(dir, false, false)
	require.NoError(t, err)
	defer f.Close()

	_, err = ExclusiveOpen(dir, false, false)
	require.ErrorIs(t, err, ErrExclusive)
}

func TestClearfileRemovesAllRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "SCRATCH")
	f, err := Open(dir, false, false)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Write("a", descriptor.NewFromBytes([]byte("1"))))
	require.NoError(t, f.Write("b", descriptor.NewFromBytes([]byte("2"))))

	count, err := f.RecordCount()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, f.Clearfile())
	count, err = f.RecordCount()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
