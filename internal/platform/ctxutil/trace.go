package ctxutil

import "context"

type runDataKey struct{}

// RunData identifies the run and subject a context belongs to.
type RunData struct {
	RunID     string
	Attempt   int
	SubjectID string
}

func WithRunData(ctx context.Context, rd *RunData) context.Context {
	return context.WithValue(ctx, runDataKey{}, rd)
}

func GetRunData(ctx context.Context) *RunData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(runDataKey{}).(*RunData); ok {
		return rd
	}
	return nil
}

// WithSubject returns a child context carrying a copy of the parent's run
// data with the subject set.
func WithSubject(ctx context.Context, subjectID string) context.Context {
	next := RunData{SubjectID: subjectID}
	if rd := GetRunData(ctx); rd != nil {
		next.RunID = rd.RunID
		next.Attempt = rd.Attempt
	}
	return WithRunData(ctx, &next)
}

// LogKVs returns the run data as logger key/value pairs.
func LogKVs(ctx context.Context) []interface{} {
	rd := GetRunData(ctx)
	if rd == nil {
		return nil
	}
	kv := []interface{}{"run_id", rd.RunID, "attempt", rd.Attempt}
	if rd.SubjectID != "" {
		kv = append(kv, "patient_id", rd.SubjectID)
	}
	return kv
}
