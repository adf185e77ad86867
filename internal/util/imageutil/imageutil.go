// Package imageutil holds the shared decode/encode helpers used by the
// processors, the flare detector and the status surface.
package imageutil

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	// Accept bmp/webp bodies from sources that do not serve strict JPEG.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode parses raw encoded bytes into an image.
func Decode(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data))
}

// EncodeJPEG re-encodes an image as JPEG bytes.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GrayAt returns the intensity of one pixel as (R+G+B)/3 with integer division.
func GrayAt(img image.Image, x, y int) int {
	r, g, b, _ := img.At(x, y).RGBA()
	return (int(r>>8) + int(g>>8) + int(b>>8)) / 3
}

// GrayPlane converts the whole image into a row-major intensity plane.
func GrayPlane(img image.Image) [][]int {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := make([][]int, h)
	for y := 0; y < h; y++ {
		row := make([]int, w)
		for x := 0; x < w; x++ {
			row[x] = GrayAt(img, bounds.Min.X+x, bounds.Min.Y+y)
		}
		plane[y] = row
	}
	return plane
}

// AverageBrightness returns the mean gray intensity across the image.
func AverageBrightness(img image.Image) int {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var total int64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			total += int64(GrayAt(img, x, y))
		}
	}
	return int(total / int64(w*h))
}

// Resize scales an image with bilinear interpolation.
func Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Linear)
}

// HeatMap maps gray intensity onto a blue-cyan-green-yellow-red ramp,
// used by dashboard consumers to visualise activity.
func HeatMap(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			gray := GrayAt(src, bounds.Min.X+x, bounds.Min.Y+y)
			out.SetRGBA(x, y, heatColor(gray))
		}
	}
	return out
}

func heatColor(value int) color.RGBA {
	ratio := float64(value) / 255.0
	switch {
	case ratio < 0.25:
		t := ratio * 4
		return color.RGBA{0, uint8(t * 255), 255, 255}
	case ratio < 0.5:
		t := (ratio - 0.25) * 4
		return color.RGBA{0, 255, uint8((1 - t) * 255), 255}
	case ratio < 0.75:
		t := (ratio - 0.5) * 4
		return color.RGBA{uint8(t * 255), 255, 0, 255}
	default:
		t := (ratio - 0.75) * 4
		return color.RGBA{255, uint8((1 - t) * 255), 0, 255}
	}
}
