package engine

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"

	iface "OnnxInspector/interface"
)

// ONNXRuntime opens models with ONNX Runtime.
type ONNXRuntime struct {
	cfg BackendConfig
}

func NewONNXRuntime(cfg BackendConfig) (*ONNXRuntime, error) {
	if err := InitEnvironment(cfg); err != nil {
		return nil, err
	}
	return &ONNXRuntime{cfg: cfg}, nil
}

func (r *ONNXRuntime) Close() error {
	return DestroyEnvironment()
}

func (r *ONNXRuntime) Open(modelPath string) (iface.Session, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, err
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}

	opts, err := r.sessionOptions()
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	inNames := make([]string, len(inputs))
	for i, in := range inputs {
		inNames[i] = in.Name
	}
	outNames := make([]string, len(outputs))
	for i, out := range outputs {
		outNames[i] = out.Name
	}
	sess, err := ort.NewDynamicAdvancedSession(modelPath, inNames, outNames, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &onnxSession{
		session: sess,
		inputs:  toInfo(inputs),
		outputs: toInfo(outputs),
	}, nil
}

func (r *ONNXRuntime) sessionOptions() (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	if r.cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(r.cfg.IntraOpThreads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("intra-op threads: %w", err)
		}
	}
	if r.cfg.UseGPU {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda options: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(r.cfg.GPUDeviceID)}); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda options: %w", err)
		}
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda provider: %w", err)
		}
	}
	return opts, nil
}

func toInfo(in []ort.InputOutputInfo) []iface.TensorInfo {
	out := make([]iface.TensorInfo, len(in))
	for i, v := range in {
		out[i] = iface.TensorInfo{Name: v.Name, Shape: append([]int64(nil), v.Dimensions...)}
	}
	return out
}

type onnxSession struct {
	session *ort.DynamicAdvancedSession
	inputs  []iface.TensorInfo
	outputs []iface.TensorInfo
}

func (s *onnxSession) Inputs() []iface.TensorInfo  { return s.inputs }
func (s *onnxSession) Outputs() []iface.TensorInfo { return s.outputs }

func (s *onnxSession) Run(inputName string, input iface.Tensor, outputName string) ([]float32, error) {
	if s.session == nil {
		return nil, errors.New("session destroyed")
	}
	if len(s.inputs) != 1 || s.inputs[0].Name != inputName {
		return nil, fmt.Errorf("unknown input %q", inputName)
	}
	outIdx := -1
	for i, o := range s.outputs {
		if o.Name == outputName {
			outIdx = i
			break
		}
	}
	if outIdx < 0 {
		return nil, fmt.Errorf("unknown output %q", outputName)
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape[:]...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("tensor: %w", err)
	}
	defer in.Destroy()

	outs := make([]ort.Value, len(s.outputs))
	if err := s.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	t, ok := outs[outIdx].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outs[outIdx])
	}
	data := t.GetData()
	result := make([]float32, len(data))
	copy(result, data)
	return result, nil
}

func (s *onnxSession) Destroy() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
