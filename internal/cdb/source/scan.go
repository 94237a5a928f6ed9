package source

import (
	"context"
	"errors"
	"fmt"
	"math"

	"cdb-features/internal/cdb/tile"
	"cdb-features/internal/feature"
	"cdb-features/internal/session"
)

// TileStat：一次扫描中单个瓦片的结果
type TileStat struct {
	Tile         string `json:"tile"`
	LOD          int    `json:"lod"`
	Features     int    `json:"features"`
	FilesChecked int    `json:"files_checked"`
	Err          string `json:"err,omitempty"`
}

// Scan：按 LOD 遍历 bbox 覆盖的全部瓦片，逐块调用 Features 并回调结果
// 瓦片缺失不视为错误；ctx 取消时立即返回
func (s *Source) Scan(ctx context.Context, sess *session.Session, bbox tile.Extent, lod int, fn func(TileStat, *feature.Result)) error {
	if lod < 0 || lod > tile.MaxLOD {
		return fmt.Errorf("%w: scan lod %d", ErrResourceUnavailable, lod)
	}
	if bbox.Height() <= 0 || bbox.Width() <= 0 {
		return fmt.Errorf("empty bbox %s", bbox)
	}
	loc := &tile.Locator{Root: s.opts.RootDir, Kind: s.opts.kind()}
	n := 1 << uint(lod)
	for lat := math.Max(math.Floor(bbox.South), -90); lat < bbox.North && lat < 90; lat++ {
		west := math.Max(bbox.West, -180)
		cell := tile.CellFor(lat, west)
		for lon := float64(cell.Lon); lon < bbox.East && lon < 180; lon += float64(cell.LonStep) {
			for u := 0; u < n; u++ {
				for r := 0; r < n; r++ {
					if err := ctx.Err(); err != nil {
						return err
					}
					cLat := lat + (float64(u)+0.5)/float64(n)
					cLon := lon + (float64(r)+0.5)*float64(cell.LonStep)/float64(n)
					t, ok := loc.LocateLOD(cLat, cLon, lod)
					if !ok || !t.Actual.Bound().Intersects(bbox.Bound()) {
						continue
					}
					// 磁盘上没有任何候选文件的瓦片直接跳过，不进入黑名单
					if _, ok := loc.LocateOnDisk(t.Actual); !ok {
						continue
					}
					res, err := s.Features(ctx, sess, t.Actual)
					st := TileStat{Tile: res.Tile, LOD: res.LOD, Features: res.Len(), FilesChecked: res.FilesChecked}
					if err != nil {
						if errors.Is(err, ErrConfiguration) {
							return err
						}
						if !errors.Is(err, ErrNotFound) {
							st.Err = err.Error()
						}
					}
					if st.FilesChecked == 0 && st.Features == 0 && st.Err == "" {
						continue
					}
					fn(st, res)
				}
			}
		}
	}
	return nil
}
