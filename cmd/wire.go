package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"OnnxInspector/config"
	"OnnxInspector/engine"
	iface "OnnxInspector/interface"
	"OnnxInspector/inspector"
	"OnnxInspector/monitor"
	"OnnxInspector/notify"
	"OnnxInspector/store"
)

// app holds everything a command needs, built from the config.
type app struct {
	inspector *inspector.Inspector
	runtime   *engine.ONNXRuntime
	metrics   *monitor.Metrics
	ledger    *store.Store
	webhook   *notify.Webhook
	log       *zap.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	loader, err := engine.NewImageLoader()
	if err != nil {
		return nil, err
	}
	rt, err := engine.NewONNXRuntime(cfg.Backend)
	if err != nil {
		return nil, err
	}
	a := &app{runtime: rt, metrics: monitor.New(), log: log}

	recorders := []iface.Recorder{a.metrics}
	if cfg.Database.DSN != "" {
		a.ledger, err = store.New(ctx, cfg.Database.DSN, log.Named("ledger"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		recorders = append(recorders, a.ledger)
	}
	if cfg.Webhook.URL != "" {
		a.webhook = notify.NewWebhook(cfg.Webhook.URL, cfg.Station, time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second, log.Named("webhook"))
		recorders = append(recorders, a.webhook)
	}

	a.inspector = inspector.New(loader, rt, cfg.InspectorOptions(), log.Named("inspector"), recorders...)
	log.Info("inspector ready",
		zap.String("modelDir", cfg.ModelDir),
		zap.Bool("gpu", cfg.Backend.UseGPU),
		zap.Bool("ledger", a.ledger != nil),
		zap.Bool("webhook", a.webhook != nil))
	return a, nil
}

func (a *app) Close() {
	if a.webhook != nil {
		a.webhook.Close()
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.runtime != nil {
		if err := a.runtime.Close(); err != nil {
			a.log.Warn("release onnxruntime", zap.Error(err))
		}
	}
}
