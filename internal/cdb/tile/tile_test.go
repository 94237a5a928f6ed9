package tile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLonStep(t *testing.T) {
	tests := []struct {
		south int
		want  int
	}{
		{0, 1}, {37, 1}, {49, 1}, {50, 2}, {69, 2}, {70, 3}, {75, 4}, {80, 6}, {89, 12},
		{-1, 1}, {-50, 1}, {-51, 2}, {-71, 3}, {-90, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LonStep(tt.south), "south=%d", tt.south)
	}
}

func TestCellNames(t *testing.T) {
	c := CellFor(37.5, -121.5)
	assert.Equal(t, Cell{Lat: 37, Lon: -122, LonStep: 1}, c)
	assert.Equal(t, "N37W122", c.Name())

	c = CellFor(-0.5, 5.2)
	assert.Equal(t, "S01E005", c.Name())

	c = CellFor(61.2, 11.0)
	assert.Equal(t, 2, c.LonStep)
	assert.Equal(t, 10, c.Lon)
}

func TestAddressNaming(t *testing.T) {
	a := Address{Cell: Cell{Lat: 37, Lon: -122, LonStep: 1}, LOD: 2, U: 1, R: 3}
	assert.Equal(t, "N37W122_D100_S001_T001_L02_U1_R3", a.Base(GSFeature, 1, 1))
	assert.Equal(t, filepath.Join("root", "Tiles", "N37", "W122", "300_GSModelGeometry", "L02", "U1", "N37W122_D300_S001_T001_L02_U1_R3.zip"),
		a.Path("root", GSModelGeometry, 1, 1, "zip"))

	lc := a.Coarser(-2)
	assert.Equal(t, "N37W122_D101_S002_T001_LC02_U0_R0", lc.Base(GTFeature, 2, 1))
	assert.True(t, lc.Extent().Equal(Extent{North: 38, South: 37, East: -121, West: -122}))
}

func TestLocateAligned(t *testing.T) {
	l := &Locator{Root: "root", Kind: GeoSpecific}
	e := Extent{North: 37.5, South: 37.25, East: -121.25, West: -121.5}
	tl, ok := l.Locate(e)
	require.True(t, ok)
	assert.Equal(t, 2, tl.LOD())
	assert.Equal(t, 1, tl.Address.U)
	assert.Equal(t, 2, tl.Address.R)
	assert.False(t, tl.Subtile)
	_, has := tl.Filter()
	assert.False(t, has)
	require.Equal(t, 1, tl.Count())
	assert.Equal(t, "N37W122_D100_S001_T001_L02_U1_R2", tl.File(0).Base)
}

func TestLocateSubtileExpandsToGeocell(t *testing.T) {
	l := &Locator{Root: "root", Kind: GeoSpecific}
	// 60°N 处地理单元宽 2°，1°x1° 请求需扩展
	e := Extent{North: 61, South: 60, East: 12, West: 11}
	tl, ok := l.Locate(e)
	require.True(t, ok)
	assert.True(t, tl.Subtile)
	assert.Equal(t, 0, tl.LOD())
	assert.True(t, tl.Actual.Equal(Extent{North: 61, South: 60, East: 12, West: 10}))
	f, has := tl.Filter()
	require.True(t, has)
	assert.True(t, f.Equal(e))
}

func TestLocateRejectsCrossCell(t *testing.T) {
	l := &Locator{Root: "root", Kind: GeoSpecific}
	_, ok := l.Locate(Extent{North: 38.5, South: 37.5, East: -121, West: -122})
	assert.False(t, ok)
	_, ok = l.Locate(Extent{North: 40, South: 37, East: -119, West: -122})
	assert.False(t, ok)
	_, ok = l.Locate(Extent{North: 37, South: 37, East: -121, West: -122})
	assert.False(t, ok)
}

func TestLocateGeoTypicalSelectionsAndFullStack(t *testing.T) {
	l := &Locator{Root: "root", Kind: GeoTypical, FullStackLOD0: true}
	tl, ok := l.Locate(Extent{North: 38, South: 37, East: -121, West: -122})
	require.True(t, ok)
	// 10 个 LC 层加 L00，每层两个 selection
	require.Equal(t, 22, tl.Count())
	assert.Equal(t, -10, tl.File(0).Address.LOD)
	assert.Equal(t, 2, tl.Realsel(1))
	assert.Equal(t, 0, tl.File(21).Address.LOD)
}

func TestLocateOnDisk(t *testing.T) {
	root := t.TempDir()
	l := &Locator{Root: root, Kind: GeoTypical}
	e := Extent{North: 38, South: 37, East: -121, West: -122}
	_, ok := l.LocateOnDisk(e)
	assert.False(t, ok)

	tl, _ := l.Locate(e)
	p := tl.File(1).Path
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte{}, 0o644))

	tl, ok = l.LocateOnDisk(e)
	require.True(t, ok)
	require.Equal(t, 1, tl.Count())
	assert.Equal(t, 2, tl.Realsel(0))
	assert.Equal(t, 0, tl.File(0).Index)
}

func TestKeyFromArchiveName(t *testing.T) {
	header := "N37W122_D300_S001_T001_L02_U1_R3_"
	assert.Equal(t, "AL015_116_house03", KeyFromArchiveName(header+"AL015_116_house03.flt", header))
	assert.Equal(t, "", KeyFromArchiveName("other_AL015_116_house03.flt", header))
	assert.Equal(t, "", KeyFromArchiveName(header+"AL015_116_house03.rgb", header))
}

func TestExtentContainsPointHalfOpen(t *testing.T) {
	e := Extent{North: 1, South: 0, East: 1, West: 0}
	assert.True(t, e.ContainsPoint(orb.Point{0, 0}))
	assert.False(t, e.ContainsPoint(orb.Point{1, 0.5}))
	assert.False(t, e.ContainsPoint(orb.Point{0.5, 1}))
}

func TestGTModelPath(t *testing.T) {
	p := GTModelPath("root", "EC030", 2, "oak")
	assert.Equal(t, filepath.Join("root", "GTModel", "500_GTModelGeometry", "E", "C", "EC030", "D500_S001_T001_EC030_002_oak.flt"), p)
	assert.Equal(t, "EC030_002_oak", ModelKey("EC030", 2, "oak"))
}

func TestLocateLOD(t *testing.T) {
	l := &Locator{Root: "root", Kind: GeoSpecific}
	tl, ok := l.LocateLOD(37.3, -121.6, 2)
	require.True(t, ok)
	assert.Equal(t, 1, tl.Address.U)
	assert.Equal(t, 1, tl.Address.R)
	assert.False(t, tl.Subtile)

	tl, ok = l.LocateLOD(37.3, -121.6, -3)
	require.True(t, ok)
	assert.Equal(t, "N37W122_D100_S001_T001_LC03_U0_R0", tl.File(0).Base)

	_, ok = l.LocateLOD(37.3, -121.6, 24)
	assert.False(t, ok)
}
