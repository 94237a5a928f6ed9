package tile

import (
	"fmt"
	"path/filepath"
	"strconv"
)

const (
	MinLOD = -10
	MaxLOD = 23
)

// Dataset：CDB 数据集编码与目录名
type Dataset struct {
	Code int
	Dir  string
}

var (
	GSFeature       = Dataset{Code: 100, Dir: "100_GSFeature"}
	GTFeature       = Dataset{Code: 101, Dir: "101_GTFeature"}
	GSModelGeometry = Dataset{Code: 300, Dir: "300_GSModelGeometry"}
	GSModelTexture  = Dataset{Code: 301, Dir: "301_GSModelTexture"}
	GTModelGeometry = Dataset{Code: 500, Dir: "500_GTModelGeometry"}
)

// Address：地理单元内某 LOD 的瓦片坐标
// 约束：LOD<0 时 U=R=0，瓦片覆盖整个地理单元；LOD>=0 时 U、R 取值 [0, 2^LOD)
type Address struct {
	Cell Cell
	LOD  int
	U    int
	R    int
}

func (a Address) divisions() int {
	if a.LOD <= 0 {
		return 1
	}
	return 1 << uint(a.LOD)
}

// Extent：瓦片实际覆盖范围
func (a Address) Extent() Extent {
	n := float64(a.divisions())
	h := 1.0 / n
	w := float64(a.Cell.LonStep) / n
	s := float64(a.Cell.Lat) + float64(a.U)*h
	west := float64(a.Cell.Lon) + float64(a.R)*w
	return Extent{North: s + h, South: s, East: west + w, West: west}
}

// LODDir：L00..L23 或 LC01..LC10
func (a Address) LODDir() string {
	if a.LOD < 0 {
		return fmt.Sprintf("LC%02d", -a.LOD)
	}
	return fmt.Sprintf("L%02d", a.LOD)
}

// Base：瓦片文件基名，如 N37W122_D100_S001_T001_L02_U1_R3
func (a Address) Base(ds Dataset, sel, typ int) string {
	return fmt.Sprintf("%s_D%03d_S%03d_T%03d_%s_U%d_R%d", a.Cell.Name(), ds.Code, sel, typ, a.LODDir(), a.U, a.R)
}

// Dir：瓦片所在目录（相对 root 的 Tiles 树）
func (a Address) Dir(root string, ds Dataset) string {
	return filepath.Join(root, "Tiles", a.Cell.LatDir(), a.Cell.LonDir(), ds.Dir, a.LODDir(), "U"+strconv.Itoa(a.U))
}

// Path：完整文件路径；ext 为空时返回无扩展名路径（展开模式目录）
func (a Address) Path(root string, ds Dataset, sel, typ int, ext string) string {
	name := a.Base(ds, sel, typ)
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(a.Dir(root, ds), name)
}

// Coarser：同一地理单元的 LC 层地址（lod 取负值）
func (a Address) Coarser(lod int) Address {
	return Address{Cell: a.Cell, LOD: lod}
}

// GTModelPath：通用模型几何文件路径
func GTModelPath(root, facc string, fsc int, modl string) string {
	dir := filepath.Join(root, "GTModel", GTModelGeometry.Dir)
	if len(facc) >= 2 {
		dir = filepath.Join(dir, facc[0:1], facc[1:2], facc)
	}
	return filepath.Join(dir, fmt.Sprintf("D%03d_S001_T001_%s_%03d_%s.flt", GTModelGeometry.Code, facc, fsc, modl))
}

// ModelKey：模型键名 FACC_FSC_MODL
func ModelKey(facc string, fsc int, modl string) string {
	return fmt.Sprintf("%s_%03d_%s", facc, fsc, modl)
}
