package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"OnnxInspector/engine"
	iface "OnnxInspector/interface"
	"OnnxInspector/inspector"
)

const DefaultPath = "config.yaml"

type CameraConfig struct {
	Model            string                   `yaml:"model"`
	Presence         iface.PresenceThresholds `yaml:"presence"`
	AnomalyThreshold float32                  `yaml:"anomalyThreshold"`
	Normalization    string                   `yaml:"normalization"`
}

type ServerConfig struct {
	HTTPPort    int `yaml:"httpPort"`
	RPCPort     int `yaml:"RPCPort"`
	MetricsPort int `yaml:"metricsPort"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type WebhookConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type HeartbeatConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	IntervalSeconds int    `yaml:"intervalSeconds"`
}

type Config struct {
	Station           string                  `yaml:"station"`
	ModelDir          string                  `yaml:"modelDir"`
	SourceDir         string                  `yaml:"sourceDir"`
	LogLevel          string                  `yaml:"logLevel"`
	Development       bool                    `yaml:"development"`
	Extensions        []string                `yaml:"extensions"`
	PublishIntervalMs int                     `yaml:"publishIntervalMs"`
	Cameras           map[string]CameraConfig `yaml:"cameras"`
	Backend           engine.BackendConfig    `yaml:"backend"`
	Server            ServerConfig            `yaml:"server"`
	Database          DatabaseConfig          `yaml:"database"`
	Webhook           WebhookConfig           `yaml:"webhook"`
	Heartbeat         HeartbeatConfig         `yaml:"heartbeat"`
}

// cameraKeys maps the yaml keys of the cameras block.
var cameraKeys = map[string]iface.Camera{
	"cam1": iface.CameraOne,
	"cam2": iface.CameraTwo,
}

func Default() *Config {
	cfg := &Config{
		Station:           "line",
		LogLevel:          "info",
		Extensions:        append([]string(nil), inspector.DefaultExtensions...),
		PublishIntervalMs: int(inspector.DefaultPublishInterval / time.Millisecond),
		Cameras:           map[string]CameraConfig{},
		Server:            ServerConfig{HTTPPort: 8080, RPCPort: 50051, MetricsPort: 9090},
		Webhook:           WebhookConfig{TimeoutSeconds: 5},
		Heartbeat:         HeartbeatConfig{IntervalSeconds: 5},
	}
	for key, cam := range cameraKeys {
		cfg.Cameras[key] = defaultCamera(cam)
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		cfg.Station = host
	}
	return cfg
}

func defaultCamera(c iface.Camera) CameraConfig {
	return CameraConfig{
		Model:            inspector.DefaultModelName(c),
		Presence:         iface.DefaultPresenceThresholds,
		AnomalyThreshold: engine.DefaultAnomalyThreshold,
		Normalization:    engine.NormalizationRaw,
	}
}

// Load reads .env, then path (a missing DefaultPath means defaults), then
// INSPECTOR_* environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("INSPECTOR_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("INSPECTOR_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("INSPECTOR_MODEL_DIR"); v != "" {
		c.ModelDir = v
	}
	if v := os.Getenv("INSPECTOR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("INSPECTOR_ORT_LIBRARY"); v != "" {
		c.Backend.LibraryPath = v
	}
	if v := os.Getenv("INSPECTOR_USE_GPU"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Backend.UseGPU = b
		}
	}
}

// fillDefaults completes partially specified camera blocks.
func (c *Config) fillDefaults() {
	if c.Cameras == nil {
		c.Cameras = map[string]CameraConfig{}
	}
	for key, cam := range cameraKeys {
		cc, ok := c.Cameras[key]
		def := defaultCamera(cam)
		if !ok {
			c.Cameras[key] = def
			continue
		}
		if cc.Model == "" {
			cc.Model = def.Model
		}
		if cc.Presence == (iface.PresenceThresholds{}) {
			cc.Presence = def.Presence
		}
		if cc.AnomalyThreshold == 0 {
			cc.AnomalyThreshold = def.AnomalyThreshold
		}
		if cc.Normalization == "" {
			cc.Normalization = def.Normalization
		}
		c.Cameras[key] = cc
	}
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), inspector.DefaultExtensions...)
	}
	for i, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Extensions[i] = ext
	}
	if c.PublishIntervalMs <= 0 {
		c.PublishIntervalMs = int(inspector.DefaultPublishInterval / time.Millisecond)
	}
	if c.ModelDir == "" {
		if exe, err := os.Executable(); err == nil {
			c.ModelDir = filepath.Dir(exe)
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	for key := range c.Cameras {
		if _, ok := cameraKeys[key]; !ok {
			errs = append(errs, fmt.Errorf("cameras.%s: unknown camera (want cam1 or cam2)", key))
		}
	}
	for key, cc := range c.Cameras {
		if cc.AnomalyThreshold <= 0 || cc.AnomalyThreshold >= 1 {
			errs = append(errs, fmt.Errorf("cameras.%s.anomalyThreshold must be in (0,1), got %v", key, cc.AnomalyThreshold))
		}
		if cc.Presence.Mean < 0 || cc.Presence.Std < 0 {
			errs = append(errs, fmt.Errorf("cameras.%s.presence thresholds must not be negative", key))
		}
		switch cc.Normalization {
		case engine.NormalizationRaw, engine.NormalizationImageNet:
		default:
			errs = append(errs, fmt.Errorf("cameras.%s.normalization must be %q or %q", key, engine.NormalizationRaw, engine.NormalizationImageNet))
		}
	}
	for name, port := range map[string]int{"httpPort": c.Server.HTTPPort, "RPCPort": c.Server.RPCPort, "metricsPort": c.Server.MetricsPort} {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("server.%s out of range: %d", name, port))
		}
	}
	if c.Heartbeat.Enabled && c.Heartbeat.URL == "" {
		errs = append(errs, errors.New("heartbeat.url is required when heartbeat is enabled"))
	}
	return errors.Join(errs...)
}

// InspectorOptions converts the camera blocks into inspector options.
func (c *Config) InspectorOptions() inspector.Options {
	opts := inspector.DefaultOptions(c.ModelDir)
	for key, cc := range c.Cameras {
		cam, ok := cameraKeys[key]
		if !ok {
			continue
		}
		opts.Cameras[cam] = inspector.CameraConfig{
			ModelPath:        cc.Model,
			Thresholds:       cc.Presence,
			AnomalyThreshold: cc.AnomalyThreshold,
			Normalization:    cc.Normalization,
		}
	}
	opts.Extensions = c.Extensions
	opts.PublishInterval = time.Duration(c.PublishIntervalMs) * time.Millisecond
	return opts
}
