package etlerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := Run("catalog", errors.New("connection refused"))
	wrapped := fmt.Errorf("scheduler: fetch ids: %w", base)

	k, ok := KindOf(wrapped)
	if !ok || k != KindRun {
		t.Fatalf("KindOf: want=%v got=%v ok=%v", KindRun, k, ok)
	}
	if !IsRun(wrapped) {
		t.Fatalf("IsRun: want=true")
	}
	if got := base.Error(); got != "catalog: connection refused" {
		t.Fatalf("Error: want=%q got=%q", "catalog: connection refused", got)
	}
}

func TestSentinelSurvivesSubjectWrap(t *testing.T) {
	err := Subject("ingest", fmt.Errorf("P9: %w", ErrMissingSubjectID))
	if !errors.Is(err, ErrMissingSubjectID) {
		t.Fatalf("errors.Is: want match")
	}
	if IsRun(err) {
		t.Fatalf("IsRun: want=false for subject error")
	}
}
