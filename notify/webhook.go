package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	iface "OnnxInspector/interface"
)

const TimeOutSeconds = 5

// RunReport is the JSON body posted when a run finishes.
type RunReport struct {
	RunID     string       `json:"runId"`
	Station   string       `json:"station"`
	SourceDir string       `json:"sourceDir"`
	State     string       `json:"state"`
	Total     int          `json:"total"`
	Counts    iface.Counts `json:"counts"`
	Status    string       `json:"status"`
	StartedAt time.Time    `json:"startedAt"`
	ElapsedMs int64        `json:"elapsedMs"`
	Error     string       `json:"error,omitempty"`
}

// Webhook posts a RunReport to url for every finished run. Posts happen
// off the inspection worker; Close waits for the ones in flight.
type Webhook struct {
	url     string
	station string
	client  *resty.Client
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewWebhook(url, station string, timeout time.Duration, log *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = TimeOutSeconds * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Webhook{
		url:     url,
		station: station,
		client:  resty.New().SetTimeout(timeout),
		log:     log,
	}
}

func (w *Webhook) RunStarted(iface.RunInfo) {}

func (w *Webhook) FileDone(iface.RunInfo, iface.Outcome) {}

func (w *Webhook) RunFinished(_ iface.RunInfo, summary iface.Summary) {
	report := RunReport{
		RunID:     summary.RunID,
		Station:   w.station,
		SourceDir: summary.SourceDir,
		State:     summary.State.String(),
		Total:     summary.Total,
		Counts:    summary.Counts,
		Status:    summary.Status,
		StartedAt: summary.StartedAt,
		ElapsedMs: summary.Elapsed.Milliseconds(),
	}
	if summary.Err != nil {
		report.Error = summary.Err.Error()
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Post(context.Background(), report); err != nil {
			w.log.Warn("run webhook", zap.String("run", report.RunID), zap.Error(err))
		}
	}()
}

func (w *Webhook) Post(ctx context.Context, report RunReport) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(report).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	return nil
}

func (w *Webhook) Close() {
	w.wg.Wait()
}
