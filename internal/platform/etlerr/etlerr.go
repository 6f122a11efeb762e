package etlerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindSkip marks a fragment dropped by a data-quality gate.
	KindSkip Kind = iota + 1
	// KindParse marks an unparseable field that was set to absent.
	KindParse
	// KindSubject marks a per-subject failure that is eligible for retry.
	KindSubject
	// KindRun marks a failure of the run's own infrastructure.
	KindRun
)

func (k Kind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindParse:
		return "parse"
	case KindSubject:
		return "subject"
	case KindRun:
		return "run"
	default:
		return "unknown"
	}
}

var (
	ErrMissingSubjectID = errors.New("document has no patientId")
	ErrNoData           = errors.New("provider returned no data")
)

type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Code != "" {
			return e.Code + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

func Subject(code string, err error) *Error { return New(KindSubject, code, err) }

func Run(code string, err error) *Error { return New(KindRun, code, err) }

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind, true
	}
	return 0, false
}

func IsRun(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindRun
}
