package inspector

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	iface "OnnxInspector/interface"
)

const (
	OKDir = "Result_OK"
	NGDir = "Result_NG"
)

var DefaultExtensions = []string{".jpg", ".png", ".bmp"}

// Classify derives the camera from the filename tag.
func Classify(name string) iface.Camera {
	switch {
	case strings.Contains(name, "_Lucid-1_"):
		return iface.CameraOne
	case strings.Contains(name, "_Lucid-2_"):
		return iface.CameraTwo
	default:
		return iface.CameraUnknown
	}
}

// DefaultModelName is the model file a camera loads when none is configured.
func DefaultModelName(c iface.Camera) string {
	return fmt.Sprintf("Cam%02d.onnx", int(c))
}

// listImages returns the names of regular files directly under dir whose
// extension matches exts (case-insensitive), sorted.
func listImages(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}
	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// copyFile copies src to dst, replacing dst if it exists.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// FormatElapsed renders d as hh:mm:ss.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
