package plugins

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cdb-features/internal/cdb/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(NewCDBDriver(t.TempDir())))
	assert.Error(t, m.Register(NewCDBDriver("")))

	d, ok := m.Lookup(CDBExtension)
	require.True(t, ok)
	assert.Equal(t, "cdb", d.Name())
	_, ok = m.Lookup("osgearth_feature_ogr")
	assert.False(t, ok)
}

func TestHeartbeatMarksUnhealthy(t *testing.T) {
	m := NewManager()
	good := NewCDBDriver(t.TempDir())
	require.NoError(t, m.Register(good))
	bad := &namedDriver{CDBDriver: NewCDBDriver(filepath.Join(t.TempDir(), "gone")), ext: "osgearth_feature_cdb_missing"}
	require.NoError(t, m.Register(bad))
	assert.Len(t, m.HealthyDrivers(), 2)

	m.doHeartbeat(context.Background())
	hs := m.HealthyDrivers()
	require.Len(t, hs, 1)
	assert.Equal(t, CDBExtension, hs[0].Extension())

	st := m.Statuses()
	require.Len(t, st, 2)
	assert.False(t, st[1].Healthy)
	assert.NotEmpty(t, st[1].Error)
}

func TestCDBDriverOpen(t *testing.T) {
	root := t.TempDir()
	d := NewCDBDriver(root)
	src, err := d.Open(source.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, root, src.Options().RootDir)
	assert.NoError(t, src.Status())

	err = NewCDBDriver("").Heartbeat(context.Background())
	assert.True(t, errors.Is(err, source.ErrConfiguration))
}

type namedDriver struct {
	*CDBDriver
	ext string
}

func (n *namedDriver) Extension() string { return n.ext }
