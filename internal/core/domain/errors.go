package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// StageError is an adapter failure scoped to one pipeline stage. Transient
// failures are eligible for manual retry sooner; both kinds are recorded on
// the document rather than propagated to callers.
type StageError struct {
	Stage     Stage
	Message   string
	Transient bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Message)
}

// NewStageError classifies err into a StageError for the given stage.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{
		Stage:     stage,
		Message:   err.Error(),
		Transient: IsKind(err, ErrTemporary),
	}
}

func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
