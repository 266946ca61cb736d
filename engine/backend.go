package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// BackendConfig selects and tunes the ONNX Runtime shared library.
type BackendConfig struct {
	LibraryPath    string `yaml:"libraryPath"`
	BackendDir     string `yaml:"backendDir"`
	BackendLibName string `yaml:"backendLibName"`
	UseGPU         bool   `yaml:"useGPU"`
	GPUDeviceID    int    `yaml:"gpuDeviceID"`
	IntraOpThreads int    `yaml:"intraOpThreads"`
}

var envMu sync.Mutex

func detArch(system, arch string) (string, error) {
	switch arch {
	case "amd64":
		return fmt.Sprintf("%s-%s", system, "x64"), nil
	case "386":
		return fmt.Sprintf("%s-%s", system, "x86"), nil
	case "arm64":
		return fmt.Sprintf("%s-%s", system, "arm64"), nil
	default:
		return "", fmt.Errorf("architecture %s not supported", arch)
	}
}

func getPlatform(system, arch string) (string, error) {
	switch system {
	case "windows", "linux", "darwin":
		return detArch(system, arch)
	default:
		return "", fmt.Errorf("operating system %s not supported", system)
	}
}

// defaultLibName returns the ONNX Runtime library file name for a platform.
func defaultLibName(platform string) string {
	switch {
	case strings.HasPrefix(platform, "windows"):
		return "onnxruntime.dll"
	case strings.HasPrefix(platform, "darwin"):
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// libraryCandidates lists where the shared library is looked for, in order:
// explicit path, then each base dir joined with BackendDir, then base dir itself.
func libraryCandidates(cfg BackendConfig, platform string, baseDirs []string) []string {
	if cfg.LibraryPath != "" {
		return []string{cfg.LibraryPath}
	}
	name := cfg.BackendLibName
	if name == "" {
		name = defaultLibName(platform)
	}
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, dir := range baseDirs {
		if dir == "" {
			continue
		}
		if cfg.BackendDir != "" {
			add(filepath.Join(dir, cfg.BackendDir, name))
		}
		add(filepath.Join(dir, name))
	}
	return out
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// ResolveLibrary finds the ONNX Runtime shared library next to the executable
// or in the working directory.
func ResolveLibrary(cfg BackendConfig) (string, error) {
	platform, err := getPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	var bases []string
	if exePath, err := os.Executable(); err == nil {
		bases = append(bases, filepath.Dir(exePath))
	}
	if cwd, err := os.Getwd(); err == nil {
		bases = append(bases, cwd)
	}
	candidates := libraryCandidates(cfg, platform, bases)
	for _, p := range candidates {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("onnxruntime library not found, tried: %s", strings.Join(candidates, ", "))
}

// InitEnvironment loads the shared library once per process.
func InitEnvironment(cfg BackendConfig) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	lib, err := ResolveLibrary(cfg)
	if err != nil {
		return err
	}
	if err := addLibraryDir(filepath.Dir(lib)); err != nil {
		return fmt.Errorf("library dir %s: %w", filepath.Dir(lib), err)
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnxruntime (%s): %w", lib, err)
	}
	return nil
}

func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
