package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	iface "OnnxInspector/interface"
	"OnnxInspector/inspector"
	"OnnxInspector/store"
)

// Controller is the part of the inspector the HTTP surface drives.
type Controller interface {
	Start(ctx context.Context, dir string) (string, error)
	Cancel() bool
	Snapshot() iface.Progress
	Subscribe() (<-chan iface.Progress, func())
}

// RunLister serves run history; nil when no ledger is configured.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]store.RunRecord, error)
}

type startRequest struct {
	Dir string `json:"dir"`
}

type Server struct {
	ctx        context.Context
	ctrl       Controller
	runs       RunLister
	defaultDir string
	log        *zap.Logger
	upgrader   websocket.Upgrader
}

// New builds the API. Runs started over HTTP live as long as ctx.
func New(ctx context.Context, ctrl Controller, runs RunLister, defaultDir string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		ctx:        ctx,
		ctrl:       ctrl,
		runs:       runs,
		defaultDir: defaultDir,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/status", s.status)
	r.POST("/api/runs", s.startRun)
	r.POST("/api/runs/cancel", s.cancelRun)
	r.GET("/api/runs", s.listRuns)
	r.GET("/ws/progress", s.progressStream)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.ctrl.Snapshot()})
}

func (s *Server) startRun(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Dir == "" {
		req.Dir = s.defaultDir
	}
	if req.Dir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dir is required"})
		return
	}
	id, err := s.ctrl.Start(s.ctx, req.Dir)
	if errors.Is(err, inspector.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "data": s.ctrl.Snapshot()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runId": id, "dir": req.Dir})
}

func (s *Server) cancelRun(c *gin.Context) {
	if !s.ctrl.Cancel() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "cancelling"})
}

func (s *Server) listRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run ledger not configured"})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}
	runs, err := s.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

// progressStream pushes every progress snapshot to the client as JSON
// until either side closes.
func (s *Server) progressStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-s.ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(p); err != nil {
				s.log.Debug("progress stream closed", zap.Error(err))
				return
			}
		}
	}
}
