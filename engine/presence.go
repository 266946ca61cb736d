package engine

import (
	"math"

	iface "OnnxInspector/interface"
)

// MeanStdDev returns the arithmetic mean and population standard deviation of the pixels.
func MeanStdDev(img iface.GrayImage) (mean, std float64) {
	n := len(img.Pix)
	if n == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, p := range img.Pix {
		v := float64(p)
		sum += v
		sumSq += v * v
	}
	mean = sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// IsProductPresent reports whether the frame at path looks like it holds a product.
// Unreadable or empty frames count as empty conveyor.
func IsProductPresent(loader iface.ImageLoader, path string, th iface.PresenceThresholds) bool {
	gray, err := loader.LoadGray(path)
	if err != nil || len(gray.Pix) == 0 {
		return false
	}
	mean, std := MeanStdDev(gray)
	return mean > th.Mean && std > th.Std
}
