package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady is returned when inference is requested before LoadModel.
	ErrEngineNotReady = errors.New("engine not ready: model is not loaded")
	ErrEngineBusy     = errors.New("engine is busy")
	ErrAlreadyLoaded  = errors.New("model already loaded")
	ErrEngineReleased = errors.New("engine has been released")
	ErrEmptyOutput    = errors.New("model produced no output values")
)

// DecodeError reports an image that could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("decode %s", e.Path)
	}
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ModelLoadError reports a model artifact that is missing or malformed.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
