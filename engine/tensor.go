package engine

import (
	"errors"
	"fmt"

	iface "OnnxInspector/interface"
)

const (
	DefaultInputWidth  = 224
	DefaultInputHeight = 224

	NormalizationRaw      = "raw"
	NormalizationImageNet = "imagenet"
)

// ImageNet statistics. The deployed models are exported for raw /255 input,
// so these only apply when a camera is configured with NormalizationImageNet.
var (
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess decodes path through loader and returns a 1x3xHxW tensor scaled to [0,1].
func Preprocess(loader iface.ImageLoader, path string, width, height int) (iface.Tensor, error) {
	return preprocess(loader, path, width, height, NormalizationRaw)
}

func preprocess(loader iface.ImageLoader, path string, width, height int, normalization string) (iface.Tensor, error) {
	img, err := loader.LoadRGB(path, width, height)
	if err != nil {
		var decErr *DecodeError
		if errors.As(err, &decErr) {
			return iface.Tensor{}, err
		}
		return iface.Tensor{}, &DecodeError{Path: path, Err: err}
	}
	if img.Width != width || img.Height != height {
		return iface.Tensor{}, &DecodeError{Path: path, Err: fmt.Errorf("loader returned %dx%d, want %dx%d", img.Width, img.Height, width, height)}
	}
	t, err := ToTensor(img)
	if err != nil {
		return iface.Tensor{}, &DecodeError{Path: path, Err: err}
	}
	if normalization == NormalizationImageNet {
		normalizeImageNet(t)
	}
	return t, nil
}

// ToTensor lays out RGB pixels channel-major: t[0,c,y,x] = pix(y,x,c) / 255.
func ToTensor(img iface.RGBImage) (iface.Tensor, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return iface.Tensor{}, fmt.Errorf("invalid image size %dx%d", img.Width, img.Height)
	}
	plane := img.Width * img.Height
	if len(img.Pix) != plane*3 {
		return iface.Tensor{}, fmt.Errorf("expected %d RGB bytes, got %d", plane*3, len(img.Pix))
	}
	data := make([]float32, 3*plane)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			idx := y*img.Width + x
			px := img.Pix[idx*3 : idx*3+3]
			data[idx] = float32(px[0]) / 255.0
			data[plane+idx] = float32(px[1]) / 255.0
			data[2*plane+idx] = float32(px[2]) / 255.0
		}
	}
	return iface.Tensor{
		Shape: [4]int64{1, 3, int64(img.Height), int64(img.Width)},
		Data:  data,
	}, nil
}

func normalizeImageNet(t iface.Tensor) {
	plane := int(t.Shape[2] * t.Shape[3])
	for c := 0; c < 3; c++ {
		ch := t.Data[c*plane : (c+1)*plane]
		for i := range ch {
			ch[i] = (ch[i] - imageNetMean[c]) / imageNetStd[c]
		}
	}
}
