package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"cdb-features/internal/cdb/tile"
	"cdb-features/internal/logger"
)

// Options：数据源选项
type Options struct {
	RootDir     string
	Inflated    bool
	GeoTypical  bool
	GSUsesGTTex bool
	// NoSecondRef：默认开启
	NoSecondRef     bool
	EditSupport     bool
	GTLOD0FullStack bool
	GSLOD0FullStack bool
	Verbose         bool
	// AbsZInM：点要素的 M 值为绝对高程，Z 为相对偏移
	AbsZInM bool
	// Limits："minlon,minlat,maxlon,maxlat"，按地理单元取整
	Limits string
	// MinLOD/MaxLOD 为空时分别取 2 与 MinLOD
	MinLOD *int
	MaxLOD *int
	// CacheDir：运行期落盘目录（采集文件默认位置）
	CacheDir string
}

// DefaultOptions：与环境变量缺省值一致
func DefaultOptions() Options {
	return Options{NoSecondRef: true}
}

// Profile：要素剖面（覆盖范围、分块数与 LOD 区间）
type Profile struct {
	Extent tile.Extent `json:"extent"`
	TilesX int         `json:"tiles_x"`
	TilesY int         `json:"tiles_y"`
	MinLOD int         `json:"min_lod"`
	MaxLOD int         `json:"max_lod"`
}

func worldProfile() Profile {
	return Profile{Extent: tile.Extent{North: 90, South: -90, East: 180, West: -180}, TilesX: 90, TilesY: 45}
}

// parseLimits：解析范围限制，失败返回 false
func parseLimits(s string) (Profile, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Profile{}, false
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Profile{}, false
		}
		v[i] = math.Round(f)
	}
	minLon, minLat, maxLon, maxLat := v[0], v[1], v[2], v[3]
	if maxLon <= minLon || maxLat <= minLat {
		return Profile{}, false
	}
	return Profile{
		Extent: tile.Extent{North: maxLat, South: minLat, East: maxLon, West: minLon},
		TilesX: int(maxLon - minLon),
		TilesY: int(maxLat - minLat),
	}, true
}

// BuildProfile：由选项构建剖面
// 约束：Limits 无效时记警告并退回全球剖面；LOD 区间超出 CDB 可寻址范围时返回 ErrResourceUnavailable
func BuildProfile(o Options) (Profile, error) {
	p := worldProfile()
	if o.Limits != "" {
		if lp, ok := parseLimits(o.Limits); ok {
			p = lp
		} else {
			logger.L().Warn("cdb_limits_invalid", "limits", o.Limits)
		}
	}
	minLOD := 2
	if o.MinLOD != nil {
		minLOD = *o.MinLOD
	}
	maxLOD := minLOD
	if o.MaxLOD != nil {
		maxLOD = *o.MaxLOD
		if maxLOD < minLOD {
			minLOD = maxLOD
		}
	}
	if minLOD < tile.MinLOD || maxLOD > tile.MaxLOD {
		return Profile{}, fmt.Errorf("%w: lod range [%d,%d] outside [%d,%d]", ErrResourceUnavailable, minLOD, maxLOD, tile.MinLOD, tile.MaxLOD)
	}
	p.MinLOD, p.MaxLOD = minLOD, maxLOD
	return p, nil
}

// normalize：通用模型强制展开模式
func (o Options) normalize() Options {
	if o.GeoTypical && !o.Inflated {
		logger.L().Warn("cdb_geotypical_forces_inflated")
		o.Inflated = true
	}
	return o
}

func (o Options) kind() tile.Kind {
	if o.GeoTypical {
		return tile.GeoTypical
	}
	return tile.GeoSpecific
}

// fullStack：当前类型对应的 LOD0 全栈开关
func (o Options) fullStack() bool {
	if o.GeoTypical {
		return o.GTLOD0FullStack
	}
	return o.GSLOD0FullStack
}
