package inspector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	iface "OnnxInspector/interface"
	"OnnxInspector/logger"
)

const ScoreLogName = "ScoreLog.txt"

// ScoreReport describes a raw-score pass.
type ScoreReport struct {
	Path    string
	Total   int
	Scored  int
	Skipped int
	Errored int
}

// Score writes the raw anomaly score of every tagged image in dir to
// ScoreLog.txt, one "name<TAB>score" line per file. Nothing is copied.
// Progress is published like an inspection run and Cancel stops it between
// files.
func (in *Inspector) Score(ctx context.Context, dir string) (ScoreReport, error) {
	if !in.busy.CompareAndSwap(false, true) {
		return ScoreReport{}, ErrBusy
	}
	in.wg.Add(1)
	defer in.wg.Done()
	ctx, cancel := in.begin(ctx)
	defer cancel()

	id := uuid.NewString()
	rs := &runState{
		info: iface.RunInfo{ID: id, SourceDir: dir, StartedAt: time.Now()},
		log:  logger.WithRun(in.log, id).With(zap.String("mode", "score")),
	}
	in.progress.publish(iface.Progress{
		RunID:     id,
		SourceDir: dir,
		State:     iface.StateLoading,
		Status:    "Loading models...",
		StartedAt: rs.info.StartedAt,
	})

	done := make(chan struct{})
	go in.progress.tick(in.opts.PublishInterval, done)
	report, err := in.score(ctx, rs)
	close(done)

	elapsed := time.Since(rs.info.StartedAt)
	state := iface.StateCompleted
	status := fmt.Sprintf("Score log written: %s (scored %d of %d files, elapsed %s)",
		report.Path, report.Scored, report.Total, FormatElapsed(elapsed))
	switch {
	case err == nil:
		rs.log.Info("score log written", zap.String("path", report.Path), zap.Int("scored", report.Scored))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		state = iface.StateCancelled
		status = fmt.Sprintf("Scoring cancelled after %d of %d files (elapsed %s)", rs.current, report.Total, FormatElapsed(elapsed))
		rs.log.Info("scoring cancelled", zap.Int("current", rs.current))
	default:
		state = iface.StateFailed
		status = fmt.Sprintf("Scoring failed: %v", err)
		var pre *PreconditionError
		if errors.As(err, &pre) {
			status = pre.Error()
		}
		rs.log.Error("scoring failed", zap.Error(err))
	}
	in.conclude(func(p *iface.Progress) {
		p.State = state
		p.Current = rs.current
		p.Total = report.Total
		p.Status = status
		p.Elapsed = elapsed
		if state == iface.StateCompleted {
			p.Percent = 100
		}
	})
	return report, err
}

func (in *Inspector) score(ctx context.Context, rs *runState) (report ScoreReport, err error) {
	dir := rs.info.SourceDir
	if err = in.prepare(rs); err != nil {
		return report, err
	}
	defer in.release(rs)

	names, err := listImages(dir, in.opts.Extensions)
	if err != nil {
		return report, fmt.Errorf("list %s: %w", dir, err)
	}
	report = ScoreReport{Path: filepath.Join(dir, ScoreLogName), Total: len(names)}
	in.progress.update(func(p *iface.Progress) {
		if p.State == iface.StateLoading {
			p.State = iface.StateRunning
		}
		p.Total = report.Total
		p.Status = fmt.Sprintf("Scoring %d files", report.Total)
	})

	f, err := os.Create(report.Path)
	if err != nil {
		return report, err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_ = w.Flush()
			return report, err
		}
		line := in.scoreFile(rs, &report, w, name)
		rs.current++
		in.progress.update(func(p *iface.Progress) {
			p.Current = rs.current
			p.Percent = percent(rs.current, report.Total)
			p.Elapsed = time.Since(rs.info.StartedAt)
			if p.State != iface.StateCancelling {
				p.Status = line
			}
		})
	}
	if err := w.Flush(); err != nil {
		return report, err
	}
	return report, f.Sync()
}

// scoreFile appends one line for name and returns the status line for it.
func (in *Inspector) scoreFile(rs *runState, report *ScoreReport, w *bufio.Writer, name string) string {
	cam := Classify(name)
	eng, ok := rs.engines[cam]
	if !ok {
		report.Skipped++
		return fmt.Sprintf("Skip: %s (no camera tag)", name)
	}
	score, err := eng.RawScore(filepath.Join(rs.info.SourceDir, name))
	if err != nil {
		report.Errored++
		rs.log.Warn("score failed", zap.String("file", name), zap.Error(err))
		return fmt.Sprintf("Err: %s - %v", name, err)
	}
	report.Scored++
	fmt.Fprintf(w, "%s\t%.4f\n", name, score)
	return fmt.Sprintf("%s %.4f (%s)", name, score, cam)
}
