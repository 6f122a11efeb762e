package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/healthgraph-etl/internal/data/runlog"
	"github.com/yungbote/healthgraph-etl/internal/data/watermark"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&runlog.RunRecord{},
		&watermark.Record{},
	)
}
