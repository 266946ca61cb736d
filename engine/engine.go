package engine

import (
	"errors"
	"fmt"
	"sync"

	iface "OnnxInspector/interface"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

// Engine owns one loaded model for one camera.
type Engine struct {
	Camera           iface.Camera
	ModelPath        string
	InputWidth       int
	InputHeight      int
	AnomalyThreshold float32
	Normalization    string
	State            int

	mu         sync.Mutex
	loader     iface.ImageLoader
	runtime    iface.Runtime
	session    iface.Session
	inputName  string
	outputName string
}

// Options sizes the model input and sets the single-score threshold. Zero
// or negative sizes and thresholds mean the defaults (224x224, 0.8); an
// empty Normalization means raw /255 scaling. Callers wanting a stricter
// contract validate before New, as config.Validate does.
type Options struct {
	InputWidth       int
	InputHeight      int
	AnomalyThreshold float32
	Normalization    string
}

func DefaultOptions() Options {
	return Options{
		InputWidth:       DefaultInputWidth,
		InputHeight:      DefaultInputHeight,
		AnomalyThreshold: DefaultAnomalyThreshold,
		Normalization:    NormalizationRaw,
	}
}

func New(camera iface.Camera, loader iface.ImageLoader, runtime iface.Runtime, opts Options) *Engine {
	if opts.InputWidth <= 0 {
		opts.InputWidth = DefaultInputWidth
	}
	if opts.InputHeight <= 0 {
		opts.InputHeight = DefaultInputHeight
	}
	if opts.Normalization == "" {
		opts.Normalization = NormalizationRaw
	}
	if opts.AnomalyThreshold <= 0 {
		opts.AnomalyThreshold = DefaultAnomalyThreshold
	}
	return &Engine{
		Camera:           camera,
		InputWidth:       opts.InputWidth,
		InputHeight:      opts.InputHeight,
		AnomalyThreshold: opts.AnomalyThreshold,
		Normalization:    opts.Normalization,
		State:            REGISTERED,
		loader:           loader,
		runtime:          runtime,
	}
}

func (e *Engine) CheckConfig() iface.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return iface.EngineConfig{
		Camera:           e.Camera,
		ModelPath:        e.ModelPath,
		InputName:        e.inputName,
		InputWidth:       e.InputWidth,
		InputHeight:      e.InputHeight,
		AnomalyThreshold: e.AnomalyThreshold,
		Normalization:    e.Normalization,
	}
}

// LoadModel opens modelPath and checks it takes a single 1x3xHxW input.
func (e *Engine) LoadModel(modelPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.State {
	case UNREGISTERED:
		return &ModelLoadError{Path: modelPath, Err: ErrEngineReleased}
	case IDLE, BUSY:
		return &ModelLoadError{Path: modelPath, Err: ErrAlreadyLoaded}
	}
	if e.runtime == nil {
		return &ModelLoadError{Path: modelPath, Err: errors.New("no inference runtime configured")}
	}
	session, err := e.runtime.Open(modelPath)
	if err != nil {
		return &ModelLoadError{Path: modelPath, Err: err}
	}
	in, out, err := e.bindIO(session)
	if err != nil {
		_ = session.Destroy()
		return &ModelLoadError{Path: modelPath, Err: err}
	}
	e.session = session
	e.inputName = in
	e.outputName = out
	e.ModelPath = modelPath
	e.State = IDLE
	return nil
}

func (e *Engine) bindIO(session iface.Session) (string, string, error) {
	inputs := session.Inputs()
	outputs := session.Outputs()
	if len(inputs) != 1 {
		return "", "", fmt.Errorf("expected 1 input, model has %d", len(inputs))
	}
	if len(outputs) == 0 {
		return "", "", errors.New("model has no outputs")
	}
	want := []int64{1, 3, int64(e.InputHeight), int64(e.InputWidth)}
	shape := inputs[0].Shape
	if len(shape) != len(want) {
		return "", "", fmt.Errorf("expected %dD input, got %dD", len(want), len(shape))
	}
	for i, d := range shape {
		// non-positive dims are dynamic
		if d > 0 && d != want[i] {
			return "", "", fmt.Errorf("input %q has shape %v, want %v", inputs[0].Name, shape, want)
		}
	}
	return inputs[0].Name, outputs[0].Name, nil
}

// IsProductPresent runs the presence gate on path.
func (e *Engine) IsProductPresent(path string, th iface.PresenceThresholds) bool {
	return IsProductPresent(e.loader, path, th)
}

// Predict classifies the frame at path. An unrecognized output shape yields
// VerdictError with a nil error.
func (e *Engine) Predict(path string) (iface.Verdict, error) {
	out, err := e.infer(path)
	if err != nil {
		return iface.VerdictError, err
	}
	return Interpret(out, e.AnomalyThreshold), nil
}

// RawScore returns the leading value of the model output (the anomaly score
// for [score, map, ...] models); the rest is discarded.
func (e *Engine) RawScore(path string) (float32, error) {
	out, err := e.infer(path)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, ErrEmptyOutput
	}
	return out[0], nil
}

func (e *Engine) infer(path string) ([]float32, error) {
	e.mu.Lock()
	switch e.State {
	case UNREGISTERED, REGISTERED:
		e.mu.Unlock()
		return nil, ErrEngineNotReady
	case BUSY:
		e.mu.Unlock()
		return nil, ErrEngineBusy
	}
	e.State = BUSY
	session, in, out := e.session, e.inputName, e.outputName
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.State == BUSY {
			e.State = IDLE
		}
		e.mu.Unlock()
	}()

	tensor, err := preprocess(e.loader, path, e.InputWidth, e.InputHeight, e.Normalization)
	if err != nil {
		return nil, err
	}
	result, err := session.Run(in, tensor, out)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", e.Camera, err)
	}
	return result, nil
}

// Destroy releases the model. Safe to call more than once.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
	}
	e.session = nil
	e.inputName = ""
	e.outputName = ""
	e.ModelPath = ""
	e.State = UNREGISTERED
	return err
}
