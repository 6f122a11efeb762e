// Package watermark persists the incremental extraction boundary. It is
// read at run start and written only after a run with no failures.
package watermark

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Store interface {
	// Load returns the stored time and whether one exists.
	Load(ctx context.Context) (time.Time, bool, error)
	Save(ctx context.Context, t time.Time) error
	Clear(ctx context.Context) error
}

// Document is the persisted form shared by the file, redis and s3 backends.
type Document struct {
	LastSuccessfulLoadTime time.Time `json:"last_successful_load_time"`
}

func encode(t time.Time) ([]byte, error) {
	return json.MarshalIndent(Document{LastSuccessfulLoadTime: t.UTC()}, "", "  ")
}

func decode(b []byte) (time.Time, bool, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return time.Time{}, false, fmt.Errorf("watermark: decode: %w", err)
	}
	if doc.LastSuccessfulLoadTime.IsZero() {
		return time.Time{}, false, nil
	}
	return doc.LastSuccessfulLoadTime, true, nil
}
