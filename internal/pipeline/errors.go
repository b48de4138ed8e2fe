package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPlan  = errors.New("invalid pipeline plan")
	ErrUnknownStage = errors.New("unknown stage")
)

// StageError records which stage of which sequence failed.
type StageError struct {
	Sequence string
	Stage    StageName
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s failed: %v", e.Sequence, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PlanError wraps plan validation failures.
type PlanError struct {
	Kind error
	Msg  string
}

func (e *PlanError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *PlanError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &PlanError{Kind: ErrInvalidPlan, Msg: fmt.Sprintf(format, args...)}
}
