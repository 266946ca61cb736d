package inspector

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	iface "OnnxInspector/interface"
)

// fakeLoader renders synthetic frames chosen by file name.
type fakeLoader struct {
	mu      sync.Mutex
	ng      map[string]bool
	empty   map[string]bool
	broken  map[string]bool
	panics  map[string]bool
	gate    chan struct{}
	entered chan string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		ng:      map[string]bool{},
		empty:   map[string]bool{},
		broken:  map[string]bool{},
		panics:  map[string]bool{},
		entered: make(chan string, 128),
	}
}

func (l *fakeLoader) LoadGray(path string) (iface.GrayImage, error) {
	name := filepath.Base(path)
	select {
	case l.entered <- name:
	default:
	}
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	mean, d := uint8(120), uint8(40)
	if l.empty[name] {
		mean, d = 60, 2
	}
	pix := make([]uint8, 64)
	for i := range pix {
		if i%2 == 0 {
			pix[i] = mean - d
		} else {
			pix[i] = mean + d
		}
	}
	return iface.GrayImage{Width: 8, Height: 8, Pix: pix}, nil
}

func (l *fakeLoader) LoadRGB(path string, width, height int) (iface.RGBImage, error) {
	name := filepath.Base(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panics[name] {
		panic("decoder crashed on " + name)
	}
	if l.broken[name] {
		return iface.RGBImage{}, errors.New("corrupt jpeg")
	}
	v := uint8(0)
	if l.ng[name] {
		v = 255
	}
	pix := make([]uint8, width*height*3)
	for i := range pix {
		pix[i] = v
	}
	return iface.RGBImage{Width: width, Height: height, Pix: pix}, nil
}

// fakeSession answers [1-p, p] where p is the first tensor value, so an
// all-white frame is NG and an all-black frame is OK.
type fakeSession struct {
	single    bool
	noOutput  bool
	runs      atomic.Int32
	destroyed atomic.Int32
}

func (s *fakeSession) Inputs() []iface.TensorInfo {
	return []iface.TensorInfo{{Name: "input", Shape: []int64{1, 3, 224, 224}}}
}

func (s *fakeSession) Outputs() []iface.TensorInfo {
	return []iface.TensorInfo{{Name: "output", Shape: []int64{1, 2}}}
}

func (s *fakeSession) Run(_ string, input iface.Tensor, _ string) ([]float32, error) {
	s.runs.Add(1)
	p := input.Data[0]
	switch {
	case s.noOutput:
		return nil, nil
	case s.single:
		return []float32{p}, nil
	default:
		return []float32{1 - p, p}, nil
	}
}

func (s *fakeSession) Destroy() error {
	s.destroyed.Add(1)
	return nil
}

type fakeRuntime struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	fail     map[string]error
	single   bool
	noOutput bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{sessions: map[string]*fakeSession{}, fail: map[string]error{}}
}

func (r *fakeRuntime) Open(modelPath string) (iface.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := filepath.Base(modelPath)
	if err := r.fail[name]; err != nil {
		return nil, err
	}
	s := &fakeSession{single: r.single, noOutput: r.noOutput}
	r.sessions[name] = s
	return s, nil
}

func (r *fakeRuntime) session(name string) *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[name]
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []iface.RunInfo
	files    []iface.Outcome
	finished []iface.Summary

	// called outside the lock
	onStart  func()
	onFinish func()
}

func (r *fakeRecorder) RunStarted(run iface.RunInfo) {
	r.mu.Lock()
	r.started = append(r.started, run)
	r.mu.Unlock()
	if r.onStart != nil {
		r.onStart()
	}
}

func (r *fakeRecorder) FileDone(_ iface.RunInfo, outcome iface.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, outcome)
}

func (r *fakeRecorder) RunFinished(_ iface.RunInfo, summary iface.Summary) {
	if r.onFinish != nil {
		r.onFinish()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, summary)
}

func (r *fakeRecorder) finishedRuns() []iface.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]iface.Summary(nil), r.finished...)
}

// fixture lays out a model dir with both camera models and an empty source dir.
type fixture struct {
	dir      string
	modelDir string
	loader   *fakeLoader
	runtime  *fakeRuntime
	recorder *fakeRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:      t.TempDir(),
		modelDir: t.TempDir(),
		loader:   newFakeLoader(),
		runtime:  newFakeRuntime(),
		recorder: &fakeRecorder{},
	}
	for _, c := range iface.Cameras {
		writeFile(t, f.modelDir, DefaultModelName(c), "onnx")
	}
	return f
}

func (f *fixture) inspector() *Inspector {
	return f.inspectorWith(func(o *Options) { o.PublishInterval = 5 * time.Millisecond })
}

func (f *fixture) inspectorWith(configure func(*Options)) *Inspector {
	opts := DefaultOptions(f.modelDir)
	configure(&opts)
	return New(f.loader, f.runtime, opts, nil, f.recorder)
}

// quiet never ticks, so a subscriber's buffer only holds real transitions.
func quiet(o *Options) {
	o.PublishInterval = time.Hour
}

// drain unsubscribes and returns what is still buffered.
func drain(ch <-chan iface.Progress, unsubscribe func()) []iface.Progress {
	unsubscribe()
	var snaps []iface.Progress
	for p := range ch {
		snaps = append(snaps, p)
	}
	return snaps
}

func waitTerminal(t *testing.T, ch <-chan iface.Progress) iface.Progress {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-ch:
			if p.State.Terminal() {
				return p
			}
		case <-deadline:
			t.Fatal("no terminal snapshot")
			return iface.Progress{}
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
