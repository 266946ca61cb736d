//go:build gocv
// +build gocv

package engine

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	iface "OnnxInspector/interface"
)

// CVLoader decodes frames with OpenCV so resampling matches the training pipeline.
type CVLoader struct{}

func NewImageLoader() (iface.ImageLoader, error) {
	return &CVLoader{}, nil
}

func (l *CVLoader) LoadRGB(path string, width, height int) (iface.RGBImage, error) {
	src := gocv.IMRead(path, gocv.IMReadColor)
	defer src.Close()
	if src.Empty() {
		return iface.RGBImage{}, &DecodeError{Path: path, Err: errors.New("file missing or unsupported format")}
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationCubic)

	// IMRead yields BGR; the models were trained on RGB.
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	return iface.RGBImage{
		Width:  rgb.Cols(),
		Height: rgb.Rows(),
		Pix:    rgb.ToBytes(),
	}, nil
}

func (l *CVLoader) LoadGray(path string) (iface.GrayImage, error) {
	src := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer src.Close()
	if src.Empty() {
		return iface.GrayImage{}, &DecodeError{Path: path, Err: errors.New("file missing or unsupported format")}
	}
	return iface.GrayImage{
		Width:  src.Cols(),
		Height: src.Rows(),
		Pix:    src.ToBytes(),
	}, nil
}
