// Package process implements the two edge-detection variants compared by the
// pipeline: a band-parallel fast processor and a sequential reference
// processor. Both compute the same Sobel magnitude over a shared gray plane
// and must produce pixel-identical output.
package process

import (
	"image"
	"image/color"
	"math"

	"solarlab-server-go/internal/util/imageutil"
)

// grayRows fills rows [yStart, yEnd) of the intensity plane from the source image.
func grayRows(img image.Image, plane [][]int, yStart, yEnd int) {
	bounds := img.Bounds()
	w := bounds.Dx()
	for y := yStart; y < yEnd; y++ {
		row := plane[y]
		for x := 0; x < w; x++ {
			row[x] = imageutil.GrayAt(img, bounds.Min.X+x, bounds.Min.Y+y)
		}
	}
}

// sobelRows writes the Sobel magnitude for interior rows [yStart, yEnd) into
// out. The plane is always read in full, so band workers see complete
// neighbor rows at their edges and no seam artifacts can appear.
func sobelRows(plane [][]int, out *image.Gray, yStart, yEnd int) {
	h := len(plane)
	if h < 3 {
		return
	}
	w := len(plane[0])

	if yStart < 1 {
		yStart = 1
	}
	if yEnd > h-1 {
		yEnd = h - 1
	}

	for y := yStart; y < yEnd; y++ {
		above, cur, below := plane[y-1], plane[y], plane[y+1]
		for x := 1; x < w-1; x++ {
			gx := -above[x-1] - 2*cur[x-1] - below[x-1] +
				above[x+1] + 2*cur[x+1] + below[x+1]
			gy := -above[x-1] - 2*above[x] - above[x+1] +
				below[x-1] + 2*below[x] + below[x+1]

			mag := int(math.Round(math.Sqrt(float64(gx*gx + gy*gy))))
			if mag > 255 {
				mag = 255
			}
			out.SetGray(x, y, color.Gray{Y: uint8(mag)})
		}
	}
}

func newGrayPlane(w, h int) [][]int {
	plane := make([][]int, h)
	for y := range plane {
		plane[y] = make([]int, w)
	}
	return plane
}
