package inspector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iface "OnnxInspector/interface"
)

func TestClassify(t *testing.T) {
	cases := map[string]iface.Camera{
		"Line_Lucid-1_0007.jpg": iface.CameraOne,
		"Line_Lucid-2_0007.jpg": iface.CameraTwo,
		"frame_0007.jpg":        iface.CameraUnknown,
		"Line_Lucid-10007.jpg":  iface.CameraUnknown,
		"line_lucid-1_0007.jpg": iface.CameraUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, Classify(name), name)
	}
}

func TestDefaultModelName(t *testing.T) {
	assert.Equal(t, "Cam01.onnx", DefaultModelName(iface.CameraOne))
	assert.Equal(t, "Cam02.onnx", DefaultModelName(iface.CameraTwo))
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.PNG", "a.jpg", "c.bmp", "d.jpeg", "e.txt", "noext"} {
		writeFile(t, dir, n, "x")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))

	names, err := listImages(dir, DefaultExtensions)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.PNG", "c.bmp"}, names)

	_, err = listImages(filepath.Join(dir, "missing"), DefaultExtensions)
	assert.Error(t, err)
}

func TestCopyFile_Overwrites(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src.jpg", "new")
	writeFile(t, dir, "dst.jpg", "old-and-longer")

	require.NoError(t, copyFile(filepath.Join(dir, "src.jpg"), filepath.Join(dir, "dst.jpg")))
	b, err := os.ReadFile(filepath.Join(dir, "dst.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
	assert.NoFileExists(t, filepath.Join(dir, "dst.jpg.part"))

	assert.Error(t, copyFile(filepath.Join(dir, "missing.jpg"), filepath.Join(dir, "x.jpg")))
	assert.NoFileExists(t, filepath.Join(dir, "x.jpg"))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatElapsed(0))
	assert.Equal(t, "00:01:05", FormatElapsed(65*time.Second+300*time.Millisecond))
	assert.Equal(t, "02:03:04", FormatElapsed(2*time.Hour+3*time.Minute+4*time.Second))
	assert.Equal(t, "00:00:00", FormatElapsed(-time.Second))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 33, percent(1, 3))
	assert.Equal(t, 66, percent(2, 3))
	assert.Equal(t, 100, percent(3, 3))
	assert.Equal(t, 100, percent(0, 0))
}

func TestPublisher_DropsOldest(t *testing.T) {
	p := newPublisher()
	ch, unsubscribe := p.subscribe()
	for i := 1; i <= subscriberBuffer*2; i++ {
		p.publish(iface.Progress{Current: i})
	}

	var last iface.Progress
	n := 0
	for len(ch) > 0 {
		last = <-ch
		n++
	}
	assert.Equal(t, subscriberBuffer, n)
	assert.Equal(t, subscriberBuffer*2, last.Current)
	assert.Equal(t, subscriberBuffer*2, p.load().Current)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestPublisher_UpdateIf(t *testing.T) {
	p := newPublisher()
	ch, unsubscribe := p.subscribe()
	<-ch

	p.updateIf(func(s *iface.Progress) bool { return false })
	assert.Zero(t, len(ch))

	p.updateIf(func(s *iface.Progress) bool {
		s.Status = "changed"
		return true
	})
	assert.Equal(t, "changed", (<-ch).Status)
	assert.Equal(t, "changed", p.load().Status)
	unsubscribe()
}
