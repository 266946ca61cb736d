package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	iface "OnnxInspector/interface"
)

// Metrics records inspection outcomes and process usage for prometheus.
type Metrics struct {
	registry *prometheus.Registry

	files       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	running     prometheus.Gauge
	lastRun     prometheus.Gauge
	fileSeconds *prometheus.HistogramVec
	memUsage    prometheus.Gauge
	cpuUsage    prometheus.Gauge
	grpcTotal   prometheus.Counter

	pid *process.Process
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_files_total",
			Help: "Files processed, by camera and outcome",
		}, []string{"camera", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inspector_runs_total",
			Help: "Finished inspection runs, by terminal state",
		}, []string{"state"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspector_run_in_progress",
			Help: "1 while a run owns the worker",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspector_last_run_duration_seconds",
			Help: "Wall-clock duration of the last finished run",
		}),
		fileSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inspector_file_duration_seconds",
			Help:    "Per-file processing time including presence gate, inference and copy",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"camera"}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_Megabytes",
			Help: "Memory usage in Megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage in percent",
		}),
		grpcTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests processed",
		}),
	}
	m.registry.MustRegister(m.files, m.runs, m.running, m.lastRun, m.fileSeconds, m.memUsage, m.cpuUsage, m.grpcTotal)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RunStarted(iface.RunInfo) {
	m.running.Set(1)
}

func (m *Metrics) FileDone(_ iface.RunInfo, outcome iface.Outcome) {
	cam := outcome.Camera.String()
	m.files.WithLabelValues(cam, outcome.Kind.String()).Inc()
	m.fileSeconds.WithLabelValues(cam).Observe(outcome.Duration.Seconds())
}

func (m *Metrics) RunFinished(_ iface.RunInfo, summary iface.Summary) {
	m.running.Set(0)
	m.runs.WithLabelValues(summary.State.String()).Inc()
	m.lastRun.Set(summary.Elapsed.Seconds())
}

func (m *Metrics) GRPCRequest() {
	m.grpcTotal.Inc()
}

func (m *Metrics) CheckProcessInfo() {
	if m.pid == nil {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return
		}
		m.pid = p
	}
	if memInfo, err := m.pid.MemoryInfo(); err == nil && memInfo != nil {
		m.memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpuPercent, err := m.pid.CPUPercent(); err == nil {
		m.cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves /metrics on port and samples process usage until ctx ends.
func (m *Metrics) StartMon(ctx context.Context, port int, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.Int("port", port))

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			m.CheckProcessInfo()
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", zap.Error(err))
	}
}
