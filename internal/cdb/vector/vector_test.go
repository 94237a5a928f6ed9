package vector

import (
	"path/filepath"
	"testing"

	"cdb-features/internal/cdb/cdbtest"

	"gitee.com/LJ_COOL/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapefileReadsPointZAndAttributes(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pts.shp")
	require.NoError(t, cdbtest.WriteShapefile(p, []cdbtest.Point{
		{X: -121.9, Y: 37.1, Z: 12, M: 3, Attrs: map[string]string{"MODL": "house03", "FACC": "AL015", "FSC": "116"}},
		{X: -121.8, Y: 37.2, Z: 0, M: 0, Attrs: map[string]string{"MODL": "tree01", "FACC": "EC030", "FSC": "2.000"}},
	}))

	r, err := Shapefile{}.Open(p)
	require.NoError(t, err)
	defer r.Close()

	rec, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, orb.Point{-121.9, 37.1}, rec.Geometry)
	assert.Equal(t, []float64{12}, rec.Z)
	assert.Equal(t, []float64{3}, rec.M)
	v, ok := rec.Attr("modl")
	require.True(t, ok)
	assert.Equal(t, "house03", v)

	rec, ok = r.Next()
	require.True(t, ok)
	fsc, ok := rec.Int("FSC")
	require.True(t, ok)
	assert.Equal(t, 2, fsc)

	_, ok = r.Next()
	assert.False(t, ok)
}

func TestShapefileOpenMissing(t *testing.T) {
	_, err := Shapefile{}.Open(filepath.Join(t.TempDir(), "none.shp"))
	assert.Error(t, err)
}

func TestConvertPolygonParts(t *testing.T) {
	pts := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}, {X: 2, Y: 2}, {X: 3, Y: 2}, {X: 3, Y: 3}, {X: 2, Y: 2}}
	rec, err := convert(&shp.Polygon{Parts: []int32{0, 4}, Points: pts})
	require.NoError(t, err)
	poly, ok := rec.Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 2)
	assert.Len(t, poly[1], 4)

	rec, err = convert(&shp.PolyLine{Parts: []int32{0}, Points: pts[:3]})
	require.NoError(t, err)
	_, ok = rec.Geometry.(orb.LineString)
	assert.True(t, ok)
}

func TestRecordNumericAttrs(t *testing.T) {
	r := &Record{Attrs: map[string]string{"BSR": "4.5", "inst": "1", "bad": "x"}}
	f, ok := r.Float("bsr")
	require.True(t, ok)
	assert.Equal(t, 4.5, f)
	n, ok := r.Int("INST")
	require.True(t, ok)
	assert.Equal(t, 1, n)
	_, ok = r.Int("bad")
	assert.False(t, ok)
	_, ok = r.Float("missing")
	assert.False(t, ok)
}
