package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cdb-features/internal/cdb/cdbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "models.zip")
	require.NoError(t, cdbtest.WriteZip(p, "b_house.flt", "a_tree.flt"))

	l := NewLister(4, time.Minute)
	names, err := l.List(p, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_tree.flt", "b_house.flt"}, names)
	assert.True(t, l.Contains(p, false, "b_house.flt"))
	assert.False(t, l.Contains(p, false, "c_car.flt"))
}

func TestListCachesUntilExpiry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inflated")
	require.NoError(t, cdbtest.Touch(filepath.Join(dir, "x.flt")))

	l := NewLister(4, time.Hour)
	names, err := l.List(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.flt"}, names)

	require.NoError(t, cdbtest.Touch(filepath.Join(dir, "y.flt")))
	names, _ = l.List(dir, true)
	assert.Equal(t, []string{"x.flt"}, names)

	short := NewLister(4, time.Nanosecond)
	_, _ = short.List(dir, true)
	time.Sleep(time.Millisecond)
	names, _ = short.List(dir, true)
	assert.Equal(t, []string{"x.flt", "y.flt"}, names)
}

func TestListMissing(t *testing.T) {
	l := NewLister(1, time.Minute)
	_, err := l.List(filepath.Join(t.TempDir(), "none.zip"), false)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = l.List(filepath.Join(t.TempDir(), "none"), true)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestListerEvictsOldest(t *testing.T) {
	root := t.TempDir()
	l := NewLister(1, time.Hour)
	for _, d := range []string{"a", "b"} {
		require.NoError(t, cdbtest.Touch(filepath.Join(root, d, "m.flt")))
		_, err := l.List(filepath.Join(root, d), true)
		require.NoError(t, err)
	}
	_, ok := l.get(filepath.Join(root, "a"))
	assert.False(t, ok)
	_, ok = l.get(filepath.Join(root, "b"))
	assert.True(t, ok)
}
