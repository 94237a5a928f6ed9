// 包 cdbtest：在临时目录构建最小 CDB 目录树，供各包测试使用
package cdbtest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"

	"gitee.com/LJ_COOL/go-shp"
)

// Point：带 Z/M 的点要素与其 DBF 属性
type Point struct {
	X, Y, Z, M float64
	Attrs      map[string]string
}

// WriteShapefile：写出 PointZ 类型 shapefile；字段名取所有点属性键的并集（字符型，长 64）
func WriteShapefile(path string, pts []Point) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	w, err := shp.Create(path, shp.POINTZ)
	if err != nil {
		return err
	}
	defer w.Close()
	seen := map[string]bool{}
	var names []string
	for _, p := range pts {
		for k := range p.Attrs {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	fields := make([]shp.Field, len(names))
	for i, n := range names {
		fields[i] = shp.StringField(n, 64)
	}
	if len(fields) > 0 {
		if err := w.SetFields(fields); err != nil {
			return err
		}
	}
	for _, p := range pts {
		row := w.Write(&shp.PointZ{X: p.X, Y: p.Y, Z: p.Z, M: p.M})
		for i, n := range names {
			if err := w.WriteAttribute(int(row), i, p.Attrs[n]); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteZip：写出包含给定成员名（内容为空）的 zip 包
func WriteZip(path string, names ...string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, n := range names {
		if _, err := zw.Create(n); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Touch：创建空文件（含父目录）
func Touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}
