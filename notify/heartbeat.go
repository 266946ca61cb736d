package notify

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	iface "OnnxInspector/interface"
)

type RegisterRequest struct {
	Id        string `json:"id"`
	Station   string `json:"station"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	State     string `json:"state"`
	Busy      bool   `json:"busy"`
	Percent   int    `json:"percent"`
	TimeStamp int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	URL      string
	Station  string
	IP       string
	Port     int
	Interval time.Duration
}

// GetOutboundIP returns the local address used for outbound traffic. No
// packet is sent; dialing UDP only resolves the route.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// SendAliveMessage registers the station with cfg.URL and refreshes the
// registration every cfg.Interval until ctx is done.
func SendAliveMessage(ctx context.Context, cfg RegServerConfig, status func() iface.Progress, log *zap.Logger, wg *sync.WaitGroup) {
	defer wg.Done()
	if log == nil {
		log = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = TimeOutSeconds * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	client := resty.New().SetTimeout(TimeOutSeconds * time.Second)
	id := uuid.NewString()

	safeDoRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error(fmt.Sprintf("SendAliveMessage panic recovered: %v", r))
			}
		}()
		req := RegisterRequest{
			Id:        id,
			Station:   cfg.Station,
			IP:        cfg.IP,
			Port:      cfg.Port,
			TimeStamp: time.Now().Unix(),
		}
		if status != nil {
			p := status()
			req.State = p.State.String()
			req.Busy = p.State.Active()
			req.Percent = p.Percent
		}
		var respBody RegisterResponse
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(req).
			SetResult(&respBody).
			Post(cfg.URL)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("heartbeat request error", zap.Error(err))
			}
			return
		}
		if resp.IsError() {
			log.Warn("heartbeat rejected", zap.String("status", resp.Status()), zap.String("body", resp.String()))
			return
		}
		if !respBody.Success {
			log.Debug("heartbeat not acknowledged", zap.String("id", respBody.Id))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			log.Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}
