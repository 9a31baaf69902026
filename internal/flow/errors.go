package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable wraps any failure of the completion call.
	ErrModelUnavailable = errors.New("completion service unavailable")
	// ErrInvalidArguments marks tool arguments that are malformed or missing required fields.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrSlotNotHeld is returned when a booking refers to a held slot that does not exist.
	ErrSlotNotHeld = errors.New("no matching slot on hold")
)

// ToolError records a failure while executing a named tool.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func invalidArgs(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}
