package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"OnnxInspector/api"
	rpc "OnnxInspector/gRPC"
	"OnnxInspector/logger"
	"OnnxInspector/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control API, gRPC health, metrics and heartbeat",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		log := logger.Log()

		a, err := buildApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		var wg sync.WaitGroup

		grpcServer, err := rpc.StartGRPCServer(cfg.Server.RPCPort, a.metrics, log.Named("grpc"))
		if err != nil {
			return err
		}
		defer grpcServer.GracefulStop()
		updates, unsubscribe := a.inspector.Subscribe()
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			grpcServer.Watch(ctx, updates)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.metrics.StartMon(ctx, cfg.Server.MetricsPort, log.Named("monitor"))
		}()

		if cfg.Heartbeat.Enabled {
			ip, err := notify.GetOutboundIP()
			if err != nil {
				log.Warn("Failed to get outbound IP", zap.Error(err))
			}
			wg.Add(1)
			go notify.SendAliveMessage(ctx, notify.RegServerConfig{
				URL:      cfg.Heartbeat.URL,
				Station:  cfg.Station,
				IP:       ip,
				Port:     cfg.Server.HTTPPort,
				Interval: time.Duration(cfg.Heartbeat.IntervalSeconds) * time.Second,
			}, a.inspector.Snapshot, log.Named("heartbeat"), &wg)
		} else {
			log.Info("heartbeat disabled, skipping registration")
		}

		if !cfg.Development {
			gin.SetMode(gin.ReleaseMode)
		}
		var runs api.RunLister
		if a.ledger != nil {
			runs = a.ledger
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler:           api.New(ctx, a.inspector, runs, cfg.SourceDir, log.Named("api")).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()
		log.Info("HTTP API started", zap.Int("port", cfg.Server.HTTPPort))

		select {
		case <-ctx.Done():
		case err = <-serveErr:
		}
		log.Info("shutting down")
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warn("HTTP shutdown", zap.Error(shutdownErr))
		}
		// no new runs after Shutdown; the engines must be gone before a.Close
		a.inspector.Cancel()
		a.inspector.Wait()
		wg.Wait()
		log.Info("Safely exited")
		return err
	},
}
