package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is one named watermark row. Several pipelines can share a table.
type Record struct {
	Name                   string    `gorm:"column:name;primaryKey" json:"name"`
	LastSuccessfulLoadTime time.Time `gorm:"column:last_successful_load_time;not null" json:"last_successful_load_time"`
	UpdatedAt              time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Record) TableName() string { return "etl_watermark" }

type GormStore struct {
	db   *gorm.DB
	name string
}

func NewGormStore(db *gorm.DB, name string) *GormStore {
	if name == "" {
		name = "default"
	}
	return &GormStore{db: db, name: name}
}

func (s *GormStore) Load(ctx context.Context) (time.Time, bool, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("name = ?", s.name).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("watermark: load %s: %w", s.name, err)
	}
	return rec.LastSuccessfulLoadTime.UTC(), true, nil
}

func (s *GormStore) Save(ctx context.Context, t time.Time) error {
	rec := Record{Name: s.name, LastSuccessfulLoadTime: t.UTC(), UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_successful_load_time", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("watermark: save %s: %w", s.name, err)
	}
	return nil
}

func (s *GormStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("name = ?", s.name).Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("watermark: clear %s: %w", s.name, err)
	}
	return nil
}
