// 包 capture：把输出的地理专属要素落库，便于离线核对模型引用
// 采集失败只记日志与指标，不影响瓦片请求
package capture

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cdb-features/internal/feature"
	"cdb-features/internal/migrate"

	"github.com/paulmach/orb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Record：一条采集记录
type Record struct {
	FID      int64
	Session  string
	ModelKey string
	Tile     string
	LOD      int
	Lon, Lat float64
	Z        float64
	Attrs    map[string]any
}

// FromFeature：由输出要素构造采集记录；几何取包围盒中心
func FromFeature(sessionID, tileName string, lod int, f *feature.Feature) Record {
	var c orb.Point
	if f.Geometry != nil {
		c = f.Geometry.Bound().Center()
	}
	z := 0.0
	if len(f.Z) > 0 {
		z = f.Z[0]
	}
	return Record{
		FID:      f.ID,
		Session:  sessionID,
		ModelKey: f.String("osge_basename"),
		Tile:     tileName,
		LOD:      lod,
		Lon:      c.Lon(),
		Lat:      c.Lat(),
		Z:        z,
		Attrs:    f.Attrs,
	}
}

// Sink：采集输出
type Sink interface {
	Write(ctx context.Context, recs []Record) error
	Name() string
	Close() error
}

// PGSink：postgres 采集，表结构由 migrate.EnsureSchema 维护
type PGSink struct {
	db *sql.DB
}

func NewPGSink(db *sql.DB) (*PGSink, error) {
	if err := migrate.EnsureSchema(db); err != nil {
		return nil, fmt.Errorf("ensure capture schema: %w", err)
	}
	return &PGSink{db: db}, nil
}

func (s *PGSink) Name() string { return "postgres" }

func (s *PGSink) Write(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cdb_captured_features(fid, session_id, model_key, tile_name, lod, lon, lat, z, attrs)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (session_id, fid) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range recs {
		attrs, err := json.Marshal(r.Attrs)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.FID, r.Session, r.ModelKey, r.Tile, r.LOD, r.Lon, r.Lat, r.Z, string(attrs)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *PGSink) Close() error { return s.db.Close() }

// GeoSpecificModelData：sqlite 采集表
type GeoSpecificModelData struct {
	ID         uint   `gorm:"primaryKey"`
	FID        int64  `gorm:"uniqueIndex:idx_session_fid"`
	SessionID  string `gorm:"uniqueIndex:idx_session_fid"`
	ModelKey   string `gorm:"index"`
	TileName   string
	LOD        int
	Lon        float64
	Lat        float64
	Z          float64
	Attrs      string
	CapturedAt time.Time
}

func (GeoSpecificModelData) TableName() string { return "GeoSpecificModelData" }

// SQLiteSink：单文件 sqlite 采集，默认文件名 GeoSpecificModelCapture.gpkg
type SQLiteSink struct {
	db *gorm.DB
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		path = "GeoSpecificModelCapture.gpkg"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open capture sqlite: %w", err)
	}
	if err := db.AutoMigrate(&GeoSpecificModelData{}); err != nil {
		return nil, fmt.Errorf("migrate capture sqlite: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Write(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]GeoSpecificModelData, 0, len(recs))
	now := time.Now()
	for _, r := range recs {
		attrs, err := json.Marshal(r.Attrs)
		if err != nil {
			return err
		}
		rows = append(rows, GeoSpecificModelData{
			FID: r.FID, SessionID: r.Session, ModelKey: r.ModelKey, TileName: r.Tile, LOD: r.LOD,
			Lon: r.Lon, Lat: r.Lat, Z: r.Z, Attrs: string(attrs), CapturedAt: now,
		})
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

// Count：已采集条数
func (s *SQLiteSink) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&GeoSpecificModelData{}).Count(&n).Error
	return n, err
}

func (s *SQLiteSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Open：按 CDB_CAPTURE 取值打开采集输出
// 约束：取值 "sqlite:<path>" 或 "postgres"；为空返回 nil
func Open(target string, openPG func() (*sql.DB, error)) (Sink, error) {
	switch {
	case target == "":
		return nil, nil
	case target == "sqlite" || strings.HasPrefix(target, "sqlite:"):
		return NewSQLiteSink(strings.TrimPrefix(strings.TrimPrefix(target, "sqlite"), ":"))
	case target == "postgres":
		db, err := openPG()
		if err != nil {
			return nil, err
		}
		return NewPGSink(db)
	}
	return nil, fmt.Errorf("unknown capture sink %q", target)
}
