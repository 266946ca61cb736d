package inspector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"OnnxInspector/engine"
	iface "OnnxInspector/interface"
	"OnnxInspector/logger"
)

func (in *Inspector) modelPath(c iface.Camera) string {
	p := in.opts.Cameras[c].ModelPath
	if p == "" {
		p = DefaultModelName(c)
	}
	if !filepath.IsAbs(p) && in.opts.ModelDir != "" {
		p = filepath.Join(in.opts.ModelDir, p)
	}
	return p
}

// prepare checks the source directory and model files, then loads one
// engine per camera. Nothing in dir is touched.
func (in *Inspector) prepare(rs *runState) error {
	dir := rs.info.SourceDir
	info, err := os.Stat(dir)
	if err != nil {
		return &PreconditionError{Msg: fmt.Sprintf("Source directory not found: %s", dir), Err: err}
	}
	if !info.IsDir() {
		return &PreconditionError{Msg: fmt.Sprintf("Source path is not a directory: %s", dir)}
	}
	for _, c := range iface.Cameras {
		p := in.modelPath(c)
		if _, err := os.Stat(p); err != nil {
			return &PreconditionError{Msg: fmt.Sprintf("Model file for %s not found: %s", c, p), Err: err}
		}
	}

	rs.engines = make(map[iface.Camera]*engine.Engine, len(iface.Cameras))
	for _, c := range iface.Cameras {
		cc := in.opts.Cameras[c]
		e := engine.New(c, in.loader, in.runtime, engine.Options{
			InputWidth:       engine.DefaultInputWidth,
			InputHeight:      engine.DefaultInputHeight,
			AnomalyThreshold: cc.AnomalyThreshold,
			Normalization:    cc.Normalization,
		})
		rs.engines[c] = e
		if err := e.LoadModel(in.modelPath(c)); err != nil {
			in.release(rs)
			return &PreconditionError{Msg: fmt.Sprintf("Failed to load model for %s", c), Err: err}
		}
		rs.log.Debug("model loaded", zap.Stringer("camera", c), zap.String("model", e.ModelPath))
	}
	return nil
}

func (in *Inspector) release(rs *runState) {
	for c, e := range rs.engines {
		if err := e.Destroy(); err != nil {
			rs.log.Warn("release engine", zap.Stringer("camera", c), zap.Error(err))
		}
	}
	rs.engines = nil
}

func (in *Inspector) enumerate(rs *runState) ([]string, error) {
	rs.okDir = filepath.Join(rs.info.SourceDir, OKDir)
	rs.ngDir = filepath.Join(rs.info.SourceDir, NGDir)
	for _, d := range []string{rs.okDir, rs.ngDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}
	names, err := listImages(rs.info.SourceDir, in.opts.Extensions)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rs.info.SourceDir, err)
	}
	rs.total = len(names)
	return names, nil
}

// step processes one file and publishes the resulting progress.
func (in *Inspector) step(rs *runState, name string) {
	start := time.Now()
	out := in.processFile(rs, name)
	out.Duration = time.Since(start)

	rs.current++
	rs.counts.Add(out.Kind)

	status := statusLine(out)
	flog := logger.WithFile(rs.log, name, out.Camera.String())
	if out.Err != nil {
		flog.Warn("file failed", zap.Error(out.Err))
	} else {
		flog.Debug("file done", zap.Stringer("kind", out.Kind), zap.Duration("took", out.Duration))
	}

	for _, r := range in.recorders {
		r.FileDone(rs.info, out)
	}
	in.progress.update(func(p *iface.Progress) {
		p.Current = rs.current
		p.Total = rs.total
		p.Percent = percent(rs.current, rs.total)
		p.Counts = rs.counts
		p.Elapsed = time.Since(rs.info.StartedAt)
		if p.State != iface.StateCancelling {
			p.Status = status
		}
	})
}

func (in *Inspector) processFile(rs *runState, name string) (out iface.Outcome) {
	out = iface.Outcome{File: name, Camera: Classify(name), Verdict: iface.VerdictOK}
	defer func() {
		if r := recover(); r != nil {
			out.Kind = iface.OutcomeErrored
			out.Dest = ""
			out.Err = &ProcessingError{File: name, Op: "inspect", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if out.Camera == iface.CameraUnknown {
		out.Kind = iface.OutcomeSkipped
		return out
	}
	eng, ok := rs.engines[out.Camera]
	if !ok {
		out.Kind = iface.OutcomeErrored
		out.Err = &ProcessingError{File: name, Op: "route", Err: fmt.Errorf("no engine for %s", out.Camera)}
		return out
	}

	src := filepath.Join(rs.info.SourceDir, name)
	out.Present = eng.IsProductPresent(src, in.opts.Cameras[out.Camera].Thresholds)
	if out.Present {
		verdict, err := eng.Predict(src)
		if err != nil {
			out.Kind = iface.OutcomeErrored
			out.Verdict = iface.VerdictError
			out.Err = &ProcessingError{File: name, Op: "predict", Err: err}
			return out
		}
		out.Verdict = verdict
	}

	destDir := rs.okDir
	if out.Verdict != iface.VerdictOK {
		destDir = rs.ngDir
	}
	dst := filepath.Join(destDir, name)
	if err := copyFile(src, dst); err != nil {
		out.Kind = iface.OutcomeErrored
		out.Err = &ProcessingError{File: name, Op: "copy", Err: err}
		return out
	}
	out.Dest = dst

	switch out.Verdict {
	case iface.VerdictOK:
		out.Kind = iface.OutcomeOK
	case iface.VerdictNG:
		out.Kind = iface.OutcomeNG
	default:
		out.Kind = iface.OutcomeErrored
		out.Err = &ProcessingError{File: name, Op: "interpret", Err: ErrUnrecognizedOutput}
	}
	return out
}

func statusLine(out iface.Outcome) string {
	switch {
	case out.Kind == iface.OutcomeSkipped:
		return fmt.Sprintf("Skip: %s (no camera tag)", out.File)
	case out.Err != nil && !errors.Is(out.Err, ErrUnrecognizedOutput):
		return fmt.Sprintf("Err: %s - %v", out.File, out.Err)
	default:
		return fmt.Sprintf("[%s] %s (%s)", out.Verdict, out.File, out.Camera)
	}
}

func percent(current, total int) int {
	if total <= 0 {
		return 100
	}
	return current * 100 / total
}

// finish notifies recorders, then publishes the terminal snapshot and
// frees the inspector for the next run.
func (in *Inspector) finish(rs *runState, err error) iface.Summary {
	elapsed := time.Since(rs.info.StartedAt)
	state := iface.StateCompleted
	var status string
	switch {
	case err == nil:
		status = fmt.Sprintf("Inspection complete (total %d files, elapsed %s)", rs.total, FormatElapsed(elapsed))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		state = iface.StateCancelled
		status = fmt.Sprintf("Inspection cancelled after %d of %d files (elapsed %s)", rs.current, rs.total, FormatElapsed(elapsed))
	default:
		state = iface.StateFailed
		status = fmt.Sprintf("Inspection failed: %v", err)
		var pre *PreconditionError
		if errors.As(err, &pre) {
			status = pre.Error()
		}
	}

	summary := iface.Summary{
		RunID:     rs.info.ID,
		SourceDir: rs.info.SourceDir,
		State:     state,
		Total:     rs.total,
		Counts:    rs.counts,
		Status:    status,
		StartedAt: rs.info.StartedAt,
		Elapsed:   elapsed,
		Err:       err,
	}
	for _, r := range in.recorders {
		r.RunFinished(rs.info, summary)
	}
	in.conclude(func(p *iface.Progress) {
		p.State = state
		p.Current = rs.current
		p.Total = rs.total
		p.Counts = rs.counts
		p.Status = status
		p.Elapsed = elapsed
		if state == iface.StateCompleted {
			p.Percent = 100
		}
	})

	fields := []zap.Field{
		zap.Stringer("state", state),
		zap.Int("total", rs.total),
		zap.Int("ok", rs.counts.OK),
		zap.Int("ng", rs.counts.NG),
		zap.Int("skipped", rs.counts.Skipped),
		zap.Int("errored", rs.counts.Errored),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil && state == iface.StateFailed {
		rs.log.Error("inspection failed", append(fields, zap.Error(err))...)
	} else {
		rs.log.Info("inspection finished", fields...)
	}
	return summary
}
