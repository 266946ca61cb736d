package inspector

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a run is requested while another is active.
	ErrBusy               = errors.New("inspection already in progress")
	ErrUnrecognizedOutput = errors.New("unrecognized model output shape")
)

// ProcessingError wraps anything that went wrong while handling one file.
type ProcessingError struct {
	File string
	Op   string
	Err  error
}

func (e *ProcessingError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PreconditionError reports a run that could not start: missing source
// directory, missing model file or a model that failed to load.
type PreconditionError struct {
	Msg string
	Err error
}

func (e *PreconditionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
