package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlatform(t *testing.T) {
	p, err := getPlatform("windows", "amd64")
	require.NoError(t, err)
	assert.Equal(t, "windows-x64", p)

	p, err = getPlatform("linux", "arm64")
	require.NoError(t, err)
	assert.Equal(t, "linux-arm64", p)

	_, err = getPlatform("plan9", "amd64")
	assert.Error(t, err)
	_, err = getPlatform("linux", "mips")
	assert.Error(t, err)
}

func TestDefaultLibName(t *testing.T) {
	assert.Equal(t, "onnxruntime.dll", defaultLibName("windows-x64"))
	assert.Equal(t, "libonnxruntime.so", defaultLibName("linux-x64"))
	assert.Equal(t, "libonnxruntime.dylib", defaultLibName("darwin-arm64"))
}

func TestLibraryCandidates(t *testing.T) {
	got := libraryCandidates(BackendConfig{LibraryPath: "/opt/ort/lib.so"}, "linux-x64", []string{"/a"})
	assert.Equal(t, []string{"/opt/ort/lib.so"}, got)

	got = libraryCandidates(BackendConfig{BackendDir: "src"}, "linux-x64", []string{"/a", "", "/a", "/b"})
	assert.Equal(t, []string{
		filepath.Join("/a", "src", "libonnxruntime.so"),
		filepath.Join("/a", "libonnxruntime.so"),
		filepath.Join("/b", "src", "libonnxruntime.so"),
		filepath.Join("/b", "libonnxruntime.so"),
	}, got)
}

func TestResolveLibrary_Explicit(t *testing.T) {
	_, err := ResolveLibrary(BackendConfig{LibraryPath: filepath.Join(t.TempDir(), "missing.so")})
	assert.Error(t, err)
}
