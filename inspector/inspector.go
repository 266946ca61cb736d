package inspector

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"OnnxInspector/engine"
	iface "OnnxInspector/interface"
	"OnnxInspector/logger"
)

// CameraConfig is the per-camera model and gate setup.
type CameraConfig struct {
	ModelPath        string
	Thresholds       iface.PresenceThresholds
	AnomalyThreshold float32
	Normalization    string
}

type Options struct {
	Cameras         map[iface.Camera]CameraConfig
	ModelDir        string
	Extensions      []string
	PublishInterval time.Duration
}

// DefaultOptions configures both cameras with Cam0N.onnx under modelDir.
func DefaultOptions(modelDir string) Options {
	cams := make(map[iface.Camera]CameraConfig, len(iface.Cameras))
	for _, c := range iface.Cameras {
		cams[c] = CameraConfig{
			ModelPath:        DefaultModelName(c),
			Thresholds:       iface.DefaultPresenceThresholds,
			AnomalyThreshold: engine.DefaultAnomalyThreshold,
			Normalization:    engine.NormalizationRaw,
		}
	}
	return Options{
		Cameras:         cams,
		ModelDir:        modelDir,
		Extensions:      DefaultExtensions,
		PublishInterval: DefaultPublishInterval,
	}
}

// Inspector runs batches of line images through the camera engines, one
// batch at a time.
type Inspector struct {
	loader    iface.ImageLoader
	runtime   iface.Runtime
	opts      Options
	log       *zap.Logger
	recorders []iface.Recorder

	busy     atomic.Bool
	progress *publisher

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(loader iface.ImageLoader, runtime iface.Runtime, opts Options, log *zap.Logger, recorders ...iface.Recorder) *Inspector {
	if log == nil {
		log = zap.NewNop()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = DefaultPublishInterval
	}
	if opts.Cameras == nil {
		opts.Cameras = DefaultOptions(opts.ModelDir).Cameras
	}
	return &Inspector{
		loader:    loader,
		runtime:   runtime,
		opts:      opts,
		log:       log,
		recorders: recorders,
		progress:  newPublisher(),
	}
}

// Busy reports whether a run owns the worker.
func (in *Inspector) Busy() bool {
	return in.busy.Load()
}

// Snapshot returns the latest progress. Safe from any goroutine.
func (in *Inspector) Snapshot() iface.Progress {
	snap := in.progress.load()
	if snap.State.Active() {
		snap.Elapsed = time.Since(snap.StartedAt)
	}
	return snap
}

// Subscribe streams progress snapshots. Slow readers lose the oldest
// snapshots, never the newest. Call the returned func to unsubscribe.
func (in *Inspector) Subscribe() (<-chan iface.Progress, func()) {
	return in.progress.subscribe()
}

// Run inspects dir on the calling goroutine.
func (in *Inspector) Run(ctx context.Context, dir string) (iface.Summary, error) {
	if !in.busy.CompareAndSwap(false, true) {
		return iface.Summary{}, ErrBusy
	}
	in.wg.Add(1)
	defer in.wg.Done()
	ctx, cancel := in.begin(ctx)
	return in.run(ctx, cancel, uuid.NewString(), dir)
}

// Start inspects dir on a dedicated goroutine and returns the run id.
func (in *Inspector) Start(ctx context.Context, dir string) (string, error) {
	if !in.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	id := uuid.NewString()
	in.wg.Add(1)
	ctx, cancel := in.begin(ctx)
	go func() {
		defer in.wg.Done()
		_, _ = in.run(ctx, cancel, id, dir)
	}()
	return id, nil
}

// Wait blocks until every started run has returned.
func (in *Inspector) Wait() {
	in.wg.Wait()
}

// Cancel asks the active run to stop before its next file.
func (in *Inspector) Cancel() bool {
	var cancel context.CancelFunc
	in.progress.updateIf(func(p *iface.Progress) bool {
		in.cancelMu.Lock()
		cancel = in.cancel
		in.cancelMu.Unlock()
		if cancel == nil || (p.State != iface.StateRunning && p.State != iface.StateLoading) {
			return false
		}
		p.State = iface.StateCancelling
		p.Status = "Cancelling..."
		return true
	})
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// begin installs the cancel func of a run that has just taken the busy flag,
// so Cancel works as soon as Run or Start is called.
func (in *Inspector) begin(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	in.cancelMu.Lock()
	in.cancel = cancel
	in.cancelMu.Unlock()
	return ctx, cancel
}

// conclude publishes the terminal snapshot. The busy flag and cancel func
// are cleared under the same lock, so whoever sees the snapshot can start
// the next run.
func (in *Inspector) conclude(fn func(*iface.Progress)) {
	in.progress.update(func(p *iface.Progress) {
		in.cancelMu.Lock()
		in.cancel = nil
		in.cancelMu.Unlock()
		in.busy.Store(false)
		fn(p)
	})
}

type runState struct {
	info    iface.RunInfo
	log     *zap.Logger
	engines map[iface.Camera]*engine.Engine
	okDir   string
	ngDir   string
	total   int
	current int
	counts  iface.Counts
}

func (in *Inspector) run(ctx context.Context, cancel context.CancelFunc, id, dir string) (iface.Summary, error) {
	defer cancel()

	rs := &runState{
		info: iface.RunInfo{ID: id, SourceDir: dir, StartedAt: time.Now()},
		log:  logger.WithRun(in.log, id),
	}
	in.progress.publish(iface.Progress{
		RunID:     id,
		SourceDir: dir,
		State:     iface.StateLoading,
		Status:    "Loading models...",
		StartedAt: rs.info.StartedAt,
	})
	for _, r := range in.recorders {
		r.RunStarted(rs.info)
	}

	done := make(chan struct{})
	go in.progress.tick(in.opts.PublishInterval, done)
	err := in.execute(ctx, rs)
	close(done)
	return in.finish(rs, err), err
}

// execute holds the engines for the duration of one run. A cancel seen at
// any point, even after the last file, ends the run as cancelled.
func (in *Inspector) execute(ctx context.Context, rs *runState) error {
	rs.log.Info("inspection started", zap.String("dir", rs.info.SourceDir))
	if err := in.prepare(rs); err != nil {
		return err
	}
	defer in.release(rs)
	if err := ctx.Err(); err != nil {
		return err
	}

	names, err := in.enumerate(rs)
	if err != nil {
		return err
	}
	in.progress.update(func(p *iface.Progress) {
		if p.State == iface.StateLoading {
			p.State = iface.StateRunning
		}
		p.Total = rs.total
		p.Status = fmt.Sprintf("Inspecting %d files", rs.total)
	})

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, statErr := os.Stat(rs.info.SourceDir); statErr != nil {
			return fmt.Errorf("source directory became inaccessible: %w", statErr)
		}
		in.step(rs, name)
	}
	return ctx.Err()
}
