package scheduler

import (
	"sync"
	"time"
)

type State string

const (
	StateRunning   State = "RUNNING"
	StateCommitted State = "COMMIT_WATERMARK"
	StateHeld      State = "HOLD_WATERMARK"
	StateFailed    State = "FAILED"
)

// MaxReportedFailures caps FailedIDs in a summary.
const MaxReportedFailures = 10

type Summary struct {
	RunID             string     `json:"run_id"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        time.Time  `json:"finished_at"`
	State             State      `json:"state"`
	Subjects          int        `json:"subjects"`
	Batches           int        `json:"batches"`
	Retries           int        `json:"retries"`
	Succeeded         int        `json:"succeeded"`
	FailedCount       int        `json:"failed_count"`
	FailedIDs         []string   `json:"failed_ids,omitempty"`
	FailedTruncated   bool       `json:"failed_truncated,omitempty"`
	PreviousWatermark *time.Time `json:"previous_watermark,omitempty"`
	Watermark         *time.Time `json:"watermark,omitempty"`
	Error             string     `json:"error,omitempty"`
}

func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *Summary) setFailed(ids []string) {
	s.FailedCount = len(ids)
	if len(ids) > MaxReportedFailures {
		s.FailedIDs = append([]string(nil), ids[:MaxReportedFailures]...)
		s.FailedTruncated = true
		return
	}
	s.FailedIDs = append([]string(nil), ids...)
	s.FailedTruncated = false
}

func (s Summary) LogKVs() []interface{} {
	return []interface{}{
		"run_id", s.RunID,
		"state", string(s.State),
		"subjects", s.Subjects,
		"batches", s.Batches,
		"retries", s.Retries,
		"succeeded", s.Succeeded,
		"failed", s.FailedCount,
		"failed_ids", s.FailedIDs,
		"failed_truncated", s.FailedTruncated,
		"dur", s.Duration().String(),
	}
}

// failureSet is an insertion-ordered set shared by pool workers.
type failureSet struct {
	mu    sync.Mutex
	order []string
	seen  map[string]struct{}
}

func newFailureSet() *failureSet {
	return &failureSet{seen: map[string]struct{}{}}
}

func (f *failureSet) Add(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[id]; ok {
		return
	}
	f.seen[id] = struct{}{}
	f.order = append(f.order, id)
}

func (f *failureSet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *failureSet) IDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}
