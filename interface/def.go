package iface

import (
	"fmt"
	"time"
)

// Verdict is the final classification of one frame.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictNG
	// VerdictError means the model output matched no known contract.
	VerdictError
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "OK"
	case VerdictNG:
		return "NG"
	case VerdictError:
		return "ERROR"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Camera identifies the capture device a frame came from.
type Camera int

const (
	CameraUnknown Camera = iota
	CameraOne
	CameraTwo
)

func (c Camera) String() string {
	switch c {
	case CameraOne:
		return "Cam1"
	case CameraTwo:
		return "Cam2"
	default:
		return "Unrecognized"
	}
}

func (c Camera) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Cameras lists the recognized cameras in dispatch order.
var Cameras = []Camera{CameraOne, CameraTwo}

type PresenceThresholds struct {
	Mean float64 `yaml:"mean" json:"mean"`
	Std  float64 `yaml:"std" json:"std"`
}

var DefaultPresenceThresholds = PresenceThresholds{Mean: 50.0, Std: 5.0}

// Tensor is a dense float32 NCHW tensor.
type Tensor struct {
	Shape [4]int64
	Data  []float32
}

// RGBImage holds interleaved 8-bit RGB pixels, row-major.
type RGBImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// GrayImage holds 8-bit intensity pixels, row-major.
type GrayImage struct {
	Width  int
	Height int
	Pix    []uint8
}

type TensorInfo struct {
	Name  string
	Shape []int64
}

type EngineConfig struct {
	Camera           Camera
	ModelPath        string
	InputName        string
	InputWidth       int
	InputHeight      int
	AnomalyThreshold float32
	Normalization    string
}

// OutcomeKind is the bucket a processed file is counted in.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeNG
	OutcomeSkipped
	OutcomeErrored
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeNG:
		return "ng"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeErrored:
		return "errored"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the per-file result of a batch run.
type Outcome struct {
	File     string        `json:"file"`
	Camera   Camera        `json:"camera"`
	Kind     OutcomeKind   `json:"kind"`
	Verdict  Verdict       `json:"verdict"`
	Present  bool          `json:"present"`
	Dest     string        `json:"dest,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

type RunState int

const (
	StateIdle RunState = iota
	StateLoading
	StateRunning
	StateCancelling
	StateCompleted
	StateFailed
	StateCancelled
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a run in this state still owns the worker.
func (s RunState) Active() bool {
	return s == StateLoading || s == StateRunning || s == StateCancelling
}

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Counts tallies outcomes by kind.
type Counts struct {
	OK      int `json:"ok"`
	NG      int `json:"ng"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

func (c *Counts) Add(kind OutcomeKind) {
	switch kind {
	case OutcomeOK:
		c.OK++
	case OutcomeNG:
		c.NG++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeErrored:
		c.Errored++
	}
}

func (c Counts) Sum() int {
	return c.OK + c.NG + c.Skipped + c.Errored
}

// Progress is an immutable snapshot of a run; never mutate a published value.
type Progress struct {
	RunID     string        `json:"runId"`
	SourceDir string        `json:"sourceDir"`
	State     RunState      `json:"state"`
	Current   int           `json:"current"`
	Total     int           `json:"total"`
	Percent   int           `json:"percent"`
	Counts    Counts        `json:"counts"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RunInfo identifies a run to recorders.
type RunInfo struct {
	ID        string
	SourceDir string
	StartedAt time.Time
}

// Summary is handed to recorders when a run reaches a terminal state.
type Summary struct {
	RunID     string
	SourceDir string
	State     RunState
	Total     int
	Counts    Counts
	Status    string
	StartedAt time.Time
	Elapsed   time.Duration
	Err       error
}
