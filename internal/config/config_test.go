package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"CDB_ROOT_DIR", "CDB_NO_SECOND_REF", "CDB_MIN_LOD", "CDB_MAX_LOD", "CDB_GEOTYPICAL", "CDB_LIMITS"} {
		t.Setenv(k, "")
	}
	o := SourceFromEnv()
	assert.True(t, o.NoSecondRef)
	assert.False(t, o.GeoTypical)
	assert.Nil(t, o.MinLOD)
	assert.Nil(t, o.MaxLOD)
}

func TestSourceFromEnv(t *testing.T) {
	t.Setenv("CDB_ROOT_DIR", "/data/cdb")
	t.Setenv("CDB_NO_SECOND_REF", "false")
	t.Setenv("CDB_EDIT_SUPPORT", "1")
	t.Setenv("CDB_MIN_LOD", "0")
	t.Setenv("CDB_MAX_LOD", "bad")
	t.Setenv("CDB_LIMITS", "-122,37,-120,38")
	o := SourceFromEnv()
	assert.Equal(t, "/data/cdb", o.RootDir)
	assert.False(t, o.NoSecondRef)
	assert.True(t, o.EditSupport)
	require.NotNil(t, o.MinLOD)
	assert.Equal(t, 0, *o.MinLOD)
	assert.Nil(t, o.MaxLOD)
	assert.Equal(t, "-122,37,-120,38", o.Limits)
}

func TestServerFromEnv(t *testing.T) {
	t.Setenv("ADDR", "")
	t.Setenv("API_BASE", "")
	t.Setenv("SLOW_REQUEST_MS", "50")
	s := ServerFromEnv()
	assert.Equal(t, ":8080", s.Addr)
	assert.Equal(t, "/api", s.APIBase)
	assert.Equal(t, 50*time.Millisecond, s.SlowRequest)
}

func TestCapturePath(t *testing.T) {
	assert.Equal(t, "sqlite:"+filepath.Join("/tmp/cdb", "GeoSpecificModelCapture.gpkg"), CapturePath("sqlite", "/tmp/cdb"))
	assert.Equal(t, "sqlite:/x.gpkg", CapturePath("sqlite:/x.gpkg", "/tmp/cdb"))
	assert.Equal(t, "postgres", CapturePath("postgres", "/tmp/cdb"))
}
