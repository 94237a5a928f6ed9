package capture

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"cdb-features/internal/feature"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(fid int64) Record {
	f := &feature.Feature{ID: fid, Geometry: orb.Point{-121.5, 37.5}, Z: []float64{10}}
	f.Set("osge_basename", "AL015_116_house")
	return FromFeature("00000000-0000-0000-0000-000000000001", "N37W122_D100_S001_T001_L02_U1_R2", 2, f)
}

func TestFromFeature(t *testing.T) {
	r := sample(9)
	assert.Equal(t, int64(9), r.FID)
	assert.Equal(t, "AL015_116_house", r.ModelKey)
	assert.Equal(t, "N37W122_D100_S001_T001_L02_U1_R2", r.Tile)
	assert.Equal(t, -121.5, r.Lon)
	assert.Equal(t, 37.5, r.Lat)
	assert.Equal(t, 10.0, r.Z)
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "capture.gpkg"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(ctx, []Record{sample(1), sample(2)}))
	require.NoError(t, s.Write(ctx, nil))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOpenSpec(t *testing.T) {
	s, err := Open("", nil)
	assert.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open("kafka", nil)
	assert.Error(t, err)

	s, err = Open("sqlite:"+filepath.Join(t.TempDir(), "x.gpkg"), nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.Name())
	require.NoError(t, s.Close())
}

func TestPGSink(t *testing.T) {
	dsn := os.Getenv("CDB_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CDB_TEST_PG_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	s, err := NewPGSink(db)
	require.NoError(t, err)
	defer s.Close()

	r := sample(1)
	r.Session = uuid.NewString()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, []Record{r, r}))
	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM cdb_captured_features WHERE session_id=$1`, r.Session).Scan(&n))
	assert.Equal(t, 1, n)
}
