package migrate

import (
	"database/sql"

	"cdb-features/internal/logger"
)

// 背景：首次启用 postgres 采集时自动创建要素采集表与索引
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cdb_captured_features (
            fid BIGINT NOT NULL,
            session_id UUID NOT NULL,
            model_key TEXT NOT NULL,
            tile_name TEXT NOT NULL,
            lod INT NOT NULL,
            lon DOUBLE PRECISION NOT NULL,
            lat DOUBLE PRECISION NOT NULL,
            z DOUBLE PRECISION NOT NULL DEFAULT 0,
            attrs JSONB NOT NULL DEFAULT '{}'::jsonb,
            captured_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (session_id, fid)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_captured_model_key ON cdb_captured_features(model_key)`,
		`CREATE INDEX IF NOT EXISTS idx_captured_tile ON cdb_captured_features(tile_name, lod)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
