//go:build !gocv
// +build !gocv

package engine

import (
	"errors"

	iface "OnnxInspector/interface"
)

var ErrNoDecoder = errors.New("gocv build tag is not enabled")

// NewImageLoader fails when the binary is built without OpenCV.
func NewImageLoader() (iface.ImageLoader, error) {
	return nil, ErrNoDecoder
}
