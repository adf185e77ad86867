package imageutil

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := solidImage(16, 16, color.RGBA{200, 100, 50, 255})

	data, err := EncodeJPEG(src)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())
	assert.Equal(t, 16, decoded.Bounds().Dy())
}

func TestDecodeGarbageFails(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	require.Error(t, err)
}

func TestGrayAtIsIntegerMeanOfChannels(t *testing.T) {
	img := solidImage(2, 2, color.RGBA{10, 20, 31, 255})
	// (10 + 20 + 31) / 3 = 20 with integer division.
	assert.Equal(t, 20, GrayAt(img, 0, 0))
}

func TestGrayPlaneMatchesGrayAt(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 40), uint8(y * 60), 90, 255})
		}
	}

	plane := GrayPlane(img)
	require.Len(t, plane, 3)
	require.Len(t, plane[0], 4)
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, GrayAt(img, x, y), plane[y][x])
		}
	}
}

func TestAverageBrightness(t *testing.T) {
	assert.Equal(t, 255, AverageBrightness(solidImage(8, 8, color.RGBA{255, 255, 255, 255})))
	assert.Equal(t, 0, AverageBrightness(solidImage(8, 8, color.RGBA{0, 0, 0, 255})))
}

func TestResize(t *testing.T) {
	out := Resize(solidImage(64, 64, color.RGBA{80, 80, 80, 255}), 16, 8)
	assert.Equal(t, 16, out.Bounds().Dx())
	assert.Equal(t, 8, out.Bounds().Dy())
}

func TestHeatMapRampEndpoints(t *testing.T) {
	cold := HeatMap(solidImage(2, 2, color.RGBA{0, 0, 0, 255}))
	hot := HeatMap(solidImage(2, 2, color.RGBA{255, 255, 255, 255}))

	// Darkest input maps to pure blue, brightest to pure red.
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, cold.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, hot.RGBAAt(0, 0))
}
