// 包 tile：CDB 目录布局下的地理单元、LOD 与瓦片路径计算
package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const eps = 1e-9

// Extent：请求范围（WGS84 经纬度）
type Extent struct {
	North float64
	South float64
	East  float64
	West  float64
}

func (e Extent) Height() float64 { return e.North - e.South }
func (e Extent) Width() float64  { return e.East - e.West }

// Bound：转换为 orb 包围盒，Min 为西南角
func (e Extent) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.West, e.South}, Max: orb.Point{e.East, e.North}}
}

// Equal：按 eps 容差比较两个范围
func (e Extent) Equal(o Extent) bool {
	return math.Abs(e.North-o.North) < eps && math.Abs(e.South-o.South) < eps &&
		math.Abs(e.East-o.East) < eps && math.Abs(e.West-o.West) < eps
}

// ContainsPoint：半开区间判定（西、南边界包含，东、北边界不含），保证相邻子瓦片不重复收录同一点
func (e Extent) ContainsPoint(p orb.Point) bool {
	return p[0] >= e.West && p[0] < e.East && p[1] >= e.South && p[1] < e.North
}

func (e Extent) String() string {
	return fmt.Sprintf("N%.6f S%.6f E%.6f W%.6f", e.North, e.South, e.East, e.West)
}

// LonStep：按地理单元南边界所在纬度带返回经度跨度（度）
// 南半球以靠近赤道的一侧边界判定纬度带
func LonStep(cellSouth int) int {
	a := cellSouth
	if a < 0 {
		a = -(cellSouth + 1)
	}
	switch {
	case a < 50:
		return 1
	case a < 70:
		return 2
	case a < 75:
		return 3
	case a < 80:
		return 4
	case a < 89:
		return 6
	}
	return 12
}

// Cell：1° 纬度高的地理单元，Lat/Lon 为西南角整数度
type Cell struct {
	Lat     int
	Lon     int
	LonStep int
}

// CellFor：返回包含给定点的地理单元
func CellFor(lat, lon float64) Cell {
	s := int(math.Floor(lat + eps))
	if s > 89 {
		s = 89
	}
	if s < -90 {
		s = -90
	}
	step := LonStep(s)
	col := int(math.Floor((lon + 180 + eps) / float64(step)))
	w := -180 + col*step
	if w >= 180 {
		w = 180 - step
	}
	return Cell{Lat: s, Lon: w, LonStep: step}
}

func (c Cell) LatDir() string {
	if c.Lat < 0 {
		return fmt.Sprintf("S%02d", -c.Lat)
	}
	return fmt.Sprintf("N%02d", c.Lat)
}

func (c Cell) LonDir() string {
	if c.Lon < 0 {
		return fmt.Sprintf("W%03d", -c.Lon)
	}
	return fmt.Sprintf("E%03d", c.Lon)
}

// Name：地理单元名，如 N37W122
func (c Cell) Name() string { return c.LatDir() + c.LonDir() }

func (c Cell) Extent() Extent {
	return Extent{
		North: float64(c.Lat + 1),
		South: float64(c.Lat),
		East:  float64(c.Lon + c.LonStep),
		West:  float64(c.Lon),
	}
}
