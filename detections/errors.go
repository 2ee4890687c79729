package detections

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is matched by every *ShapeMismatchError.
var ErrShapeMismatch = errors.New("tensor shape mismatch")

// ShapeMismatchError reports a tensor buffer that does not fit its declared
// or inferred layout.
type ShapeMismatchError struct {
	Reason string
	Got    int
	Want   int
}

func (e *ShapeMismatchError) Error() string {
	if e.Want > 0 {
		return fmt.Sprintf("%v: %s (got %d, want %d)", ErrShapeMismatch, e.Reason, e.Got, e.Want)
	}
	return fmt.Sprintf("%v: %s (got %d)", ErrShapeMismatch, e.Reason, e.Got)
}

func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

func shapeMismatch(reason string, got, want int) error {
	return &ShapeMismatchError{Reason: reason, Got: got, Want: want}
}

type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}
