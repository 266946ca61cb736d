package engine

import (
	"errors"
	"testing"

	iface "OnnxInspector/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToTensor_Layout(t *testing.T) {
	// 2x1 image: red pixel then blue pixel
	img := iface.RGBImage{Width: 2, Height: 1, Pix: []uint8{255, 0, 0, 0, 0, 255}}
	tensor, err := ToTensor(img)
	require.NoError(t, err)
	assert.Equal(t, [4]int64{1, 3, 1, 2}, tensor.Shape)
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1}, tensor.Data)
}

func TestToTensor_Invalid(t *testing.T) {
	_, err := ToTensor(iface.RGBImage{})
	assert.Error(t, err)
	_, err = ToTensor(iface.RGBImage{Width: 2, Height: 2, Pix: make([]uint8, 5)})
	assert.Error(t, err)
}

func TestPreprocess_ShapeAndRange(t *testing.T) {
	loader := newFakeLoader()
	pix := make([]uint8, 224*224*3)
	for i := range pix {
		pix[i] = uint8(i % 256)
	}
	loader.rgb["wide.png"] = iface.RGBImage{Width: 224, Height: 224, Pix: pix}

	for _, path := range []string{"wide.png", "other.bmp"} {
		tensor, err := Preprocess(loader, path, 224, 224)
		require.NoError(t, err)
		assert.Equal(t, [4]int64{1, 3, 224, 224}, tensor.Shape)
		require.Len(t, tensor.Data, 3*224*224)
		for _, v := range tensor.Data {
			if v < 0 || v > 1 {
				t.Fatalf("value %v out of [0,1]", v)
			}
		}
	}
}

func TestPreprocess_ImageNet(t *testing.T) {
	loader := newFakeLoader()
	loader.rgb["x.jpg"] = solidRGB(1, 1, 255)
	tensor, err := preprocess(loader, "x.jpg", 1, 1, NormalizationImageNet)
	require.NoError(t, err)
	assert.InDelta(t, (1-0.485)/0.229, tensor.Data[0], 1e-5)
	assert.InDelta(t, (1-0.456)/0.224, tensor.Data[1], 1e-5)
	assert.InDelta(t, (1-0.406)/0.225, tensor.Data[2], 1e-5)
}

type plainErrLoader struct{}

func (plainErrLoader) LoadRGB(string, int, int) (iface.RGBImage, error) {
	return iface.RGBImage{}, errors.New("no such file")
}

func (plainErrLoader) LoadGray(string) (iface.GrayImage, error) {
	return iface.GrayImage{}, errors.New("no such file")
}

func TestPreprocess_DecodeErrors(t *testing.T) {
	_, err := Preprocess(plainErrLoader{}, "gone.jpg", 224, 224)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "gone.jpg", decErr.Path)

	loader := newFakeLoader()
	loader.rgb["small.jpg"] = solidRGB(10, 10, 1)
	_, err = Preprocess(loader, "small.jpg", 224, 224)
	assert.ErrorAs(t, err, &decErr)
}
