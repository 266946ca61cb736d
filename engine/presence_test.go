package engine

import (
	"testing"

	iface "OnnxInspector/interface"

	"github.com/stretchr/testify/assert"
)

// grayWith builds an image whose pixels alternate mean-d and mean+d,
// giving exactly the requested mean and a population std of d.
func grayWith(mean, d uint8, n int) iface.GrayImage {
	pix := make([]uint8, n)
	for i := range pix {
		if i%2 == 0 {
			pix[i] = mean - d
		} else {
			pix[i] = mean + d
		}
	}
	return iface.GrayImage{Width: n, Height: 1, Pix: pix}
}

func TestMeanStdDev(t *testing.T) {
	mean, std := MeanStdDev(grayWith(60, 2, 100))
	assert.InDelta(t, 60, mean, 1e-9)
	assert.InDelta(t, 2, std, 1e-9)

	mean, std = MeanStdDev(iface.GrayImage{})
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestIsProductPresent(t *testing.T) {
	loader := newFakeLoader()
	loader.gray["flat.png"] = grayWith(60, 2, 100)
	loader.gray["product.png"] = grayWith(120, 40, 100)
	loader.gray["dark.png"] = grayWith(30, 20, 100)
	loader.gray["edge.png"] = grayWith(50, 5, 100)
	loader.gray["empty.png"] = iface.GrayImage{}
	loader.fail["corrupt.png"] = true
	th := iface.DefaultPresenceThresholds

	cases := map[string]bool{
		"flat.png":    false,
		"product.png": true,
		"dark.png":    false,
		"edge.png":    false,
		"empty.png":   false,
		"corrupt.png": false,
		"missing.png": false,
	}
	for path, want := range cases {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, IsProductPresent(loader, path, th))
			// same input, same answer
			assert.Equal(t, want, IsProductPresent(loader, path, th))
		})
	}
}

func TestIsProductPresent_CustomThresholds(t *testing.T) {
	loader := newFakeLoader()
	loader.gray["flat.png"] = grayWith(60, 2, 100)
	assert.True(t, IsProductPresent(loader, "flat.png", iface.PresenceThresholds{Mean: 50, Std: 1}))
}
