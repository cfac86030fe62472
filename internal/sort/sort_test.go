package sort

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Sorter) []string {
	t.Helper()
	var out []string
	for {
		_, keys, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, keys[0])
	}
	return out
}

func TestInMemorySortNoSpill(t *testing.T) {
	s := New(Config{Keys: []KeyFlags{{}}})
	for _, v := range []string{"banana", "apple", "cherry"} {
		inserted, err := s.Add([]string{v}, nil)
		require.NoError(t, err)
		require.True(t, inserted)
	}
	require.Equal(t, []string{"apple", "banana", "cherry"}, collect(t, s))
	require.Empty(t, s.spills)
}

func TestDescendingOrder(t *testing.T) {
	s := New(Config{Keys: []KeyFlags{{Descending: true}}})
	for _, v := range []string{"1", "3", "2"} {
		_, err := s.Add([]string{v}, nil)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"3", "2", "1"}, collect(t, s))
}

func TestRightJustifiedNumericOrder(t *testing.T) {
	s := New(Config{Keys: []KeyFlags{{RightJustified: true}}})
	for _, v := range []string{"9", "10", "2"} {
		_, err := s.Add([]string{v}, nil)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"2", "9", "10"}, collect(t, s))
}

func TestLeftJustifiedByteOrder(t *testing.T) {
	s := New(Config{Keys: []KeyFlags{{}}})
	for _, v := range []string{"9", "10", "2"} {
		_, err := s.Add([]string{v}, nil)
		require.NoError(t, err)
	}
	// plain byte compare: "10" < "2" < "9"
	require.Equal(t, []string{"10", "2", "9"}, collect(t, s))
}

func TestUniqueRejectsDuplicate(t *testing.T) {
	s := New(Config{Keys: []KeyFlags{{Unique: true}}})
	inserted, err := s.Add([]string{"a"}, nil)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.Add([]string{"a"}, nil)
	require.NoError(t, err)
	require.False(t, inserted)

	inserted, err = s.Add([]string{"b"}, nil)
	require.NoError(t, err)
	require.True(t, inserted)

	require.Equal(t, []string{"a", "b"}, collect(t, s))
}

func TestStableDuplicateOrderOnNonUniqueKey(t *testing.T) {
	s := New(Config{Keys: []KeyFlags{{}}, HasData: true})
	_, err := s.Add([]string{"a"}, []byte("first"))
	require.NoError(t, err)
	_, err = s.Add([]string{"a"}, []byte("second"))
	require.NoError(t, err)

	data1, _, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first", string(data1))

	data2, _, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", string(data2))
}

func TestForcedSpillMergesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{
		Keys:       []KeyFlags{{RightJustified: true}},
		MemLimit:   40,
		MergeFanIn: 2,
		WorkDir:    dir,
		PID:        1234,
		HasData:    true,
	})

	values := []int{50, 10, 40, 20, 30, 5, 45, 15, 35, 25}
	for _, v := range values {
		key := fmt.Sprintf("%d", v)
		_, err := s.Add([]string{key}, []byte("d"+key))
		require.NoError(t, err)
	}
	require.NotEmpty(t, s.spills, "expected MemLimit to trigger at least one spill")

	var got []string
	for {
		data, keys, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.Equal(t, "d"+keys[0], string(data))
		got = append(got, keys[0])
	}
	require.Equal(t, []string{"5", "10", "15", "20", "25", "30", "35", "40", "45", "50"}, got)
}

func TestCleanupRemovesSpillFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{
		Keys:     []KeyFlags{{RightJustified: true}},
		MemLimit: 20,
		WorkDir:  dir,
		PID:      9999,
	})
	for i := 0; i < 10; i++ {
		_, err := s.Add([]string{fmt.Sprintf("%d", i)}, nil)
		require.NoError(t, err)
	}
	require.NotEmpty(t, s.spills)

	s.Cleanup()
	matches, err := filepath.Glob(filepath.Join(dir, "~QMS9999.*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestAddAfterExtractionStarted(t *testing.T) {
	s := New(Config{Keys: []KeyFlags{{}}})
	_, err := s.Add([]string{"a"}, nil)
	require.NoError(t, err)
	_, _, _, err = s.Next()
	require.NoError(t, err)

	_, err = s.Add([]string{"b"}, nil)
	require.Error(t, err)
}

func TestWrongKeyColumnCount(t *testing.T) {
	s := New(Config{Keys: []KeyFlags{{}, {}}})
	_, err := s.Add([]string{"only-one"}, nil)
	require.Error(t, err)
}
