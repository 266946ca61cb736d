package engine

import (
	"errors"
	"strings"
	"sync"

	iface "OnnxInspector/interface"
)

// fakeLoader serves synthetic images keyed by path.
type fakeLoader struct {
	mu    sync.Mutex
	rgb   map[string]iface.RGBImage
	gray  map[string]iface.GrayImage
	fail  map[string]bool
	calls int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		rgb:  map[string]iface.RGBImage{},
		gray: map[string]iface.GrayImage{},
		fail: map[string]bool{},
	}
}

func (l *fakeLoader) LoadRGB(path string, width, height int) (iface.RGBImage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.fail[path] {
		return iface.RGBImage{}, &DecodeError{Path: path, Err: errors.New("corrupt")}
	}
	if img, ok := l.rgb[path]; ok {
		return img, nil
	}
	return solidRGB(width, height, 128), nil
}

func (l *fakeLoader) LoadGray(path string) (iface.GrayImage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail[path] {
		return iface.GrayImage{}, errors.New("corrupt")
	}
	img, ok := l.gray[path]
	if !ok {
		return iface.GrayImage{}, errors.New("missing")
	}
	return img, nil
}

func solidRGB(w, h int, v uint8) iface.RGBImage {
	pix := make([]uint8, w*h*3)
	for i := range pix {
		pix[i] = v
	}
	return iface.RGBImage{Width: w, Height: h, Pix: pix}
}

type fakeRuntime struct {
	session *fakeSession
	err     error
	opened  []string
}

func (r *fakeRuntime) Open(modelPath string) (iface.Session, error) {
	r.opened = append(r.opened, modelPath)
	if r.err != nil {
		return nil, r.err
	}
	return r.session, nil
}

type fakeSession struct {
	inputs    []iface.TensorInfo
	outputs   []iface.TensorInfo
	out       []float32
	err       error
	last      iface.Tensor
	runs      int
	destroyed int
}

func newFakeSession(out ...float32) *fakeSession {
	return &fakeSession{
		inputs:  []iface.TensorInfo{{Name: "input", Shape: []int64{1, 3, 224, 224}}},
		outputs: []iface.TensorInfo{{Name: "output", Shape: []int64{1, int64(len(out))}}},
		out:     out,
	}
}

func (s *fakeSession) Inputs() []iface.TensorInfo  { return s.inputs }
func (s *fakeSession) Outputs() []iface.TensorInfo { return s.outputs }

func (s *fakeSession) Run(inputName string, input iface.Tensor, outputName string) ([]float32, error) {
	s.runs++
	s.last = input
	if s.err != nil {
		return nil, s.err
	}
	if !strings.EqualFold(inputName, s.inputs[0].Name) {
		return nil, errors.New("bad input name")
	}
	return append([]float32(nil), s.out...), nil
}

func (s *fakeSession) Destroy() error {
	s.destroyed++
	return nil
}
