// Package runlog keeps a durable history of scheduler runs.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/healthgraph-etl/internal/jobs/scheduler"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

type RunRecord struct {
	ID              uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	State           string         `gorm:"column:state;not null;index" json:"state"`
	StartedAt       time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt      time.Time      `gorm:"column:finished_at" json:"finished_at"`
	Subjects        int            `gorm:"column:subjects;not null;default:0" json:"subjects"`
	Batches         int            `gorm:"column:batches;not null;default:0" json:"batches"`
	Retries         int            `gorm:"column:retries;not null;default:0" json:"retries"`
	Succeeded       int            `gorm:"column:succeeded;not null;default:0" json:"succeeded"`
	FailedCount     int            `gorm:"column:failed_count;not null;default:0" json:"failed_count"`
	FailedIDs       datatypes.JSON `gorm:"column:failed_ids" json:"failed_ids"`
	FailedTruncated bool           `gorm:"column:failed_truncated;not null;default:false" json:"failed_truncated"`
	Watermark       *time.Time     `gorm:"column:watermark" json:"watermark,omitempty"`
	Error           string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
}

func (RunRecord) TableName() string { return "etl_run" }

// FromSummary converts a scheduler summary. Summaries without a parseable
// run id get a fresh one.
func FromSummary(s scheduler.Summary) (*RunRecord, error) {
	id, err := uuid.Parse(s.RunID)
	if err != nil {
		id = uuid.New()
	}
	failed, err := json.Marshal(s.FailedIDs)
	if err != nil {
		return nil, fmt.Errorf("runlog: encode failed ids: %w", err)
	}
	return &RunRecord{
		ID:              id,
		State:           string(s.State),
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		Subjects:        s.Subjects,
		Batches:         s.Batches,
		Retries:         s.Retries,
		Succeeded:       s.Succeeded,
		FailedCount:     s.FailedCount,
		FailedIDs:       datatypes.JSON(failed),
		FailedTruncated: s.FailedTruncated,
		Watermark:       s.Watermark,
		Error:           s.Error,
	}, nil
}

// Summary converts the record back into the scheduler's view.
func (r *RunRecord) Summary() scheduler.Summary {
	s := scheduler.Summary{
		RunID:           r.ID.String(),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		State:           scheduler.State(r.State),
		Subjects:        r.Subjects,
		Batches:         r.Batches,
		Retries:         r.Retries,
		Succeeded:       r.Succeeded,
		FailedCount:     r.FailedCount,
		FailedTruncated: r.FailedTruncated,
		Watermark:       r.Watermark,
		Error:           r.Error,
	}
	if len(r.FailedIDs) > 0 {
		_ = json.Unmarshal(r.FailedIDs, &s.FailedIDs)
	}
	return s
}

type Repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, baseLog *logger.Logger) *Repo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Repo{db: db, log: baseLog.With("repo", "RunLogRepo")}
}

// Record implements scheduler.RunLog.
func (r *Repo) Record(ctx context.Context, s scheduler.Summary) error {
	rec, err := FromSummary(s)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("runlog: insert %s: %w", rec.ID, err)
	}
	r.log.Debug("run recorded", "run_id", rec.ID.String(), "state", rec.State)
	return nil
}

// Last returns the most recently started run, or nil when there is none.
func (r *Repo) Last(ctx context.Context) (*RunRecord, error) {
	var rec RunRecord
	err := r.db.WithContext(ctx).Order("started_at DESC").Order("created_at DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runlog: last: %w", err)
	}
	return &rec, nil
}

func (r *Repo) List(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []*RunRecord
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("runlog: list: %w", err)
	}
	return out, nil
}
