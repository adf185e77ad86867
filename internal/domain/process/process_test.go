package process

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarlab-server-go/internal/domain/metrics"
	platformtesting "solarlab-server-go/internal/platform/testing"
	"solarlab-server-go/internal/util/imageutil"
)

// gradientImage builds a deterministic test frame with enough structure for
// the Sobel kernels to produce non-trivial edges.
func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255 / w) ^ (y * 255 / h))
			img.SetRGBA(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	// A bright block gives the detector hard edges.
	for y := h / 4; y < h/2; y++ {
		for x := w / 4; x < w/2; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 250, G: 250, B: 250, A: 255})
		}
	}
	return img
}

func encodeTestImage(t *testing.T, img image.Image) []byte {
	t.Helper()
	data, err := imageutil.EncodeJPEG(img)
	require.NoError(t, err)
	return data
}

func TestFastAndReference_PixelIdenticalOutput(t *testing.T) {
	lg := platformtesting.SetupTestLogger(t)
	collector := metrics.NewCollector()

	fast := NewFast(4, collector, lg)
	ref := NewReference(collector, lg)

	data := encodeTestImage(t, gradientImage(96, 64))

	fastOut, fastDur, err := fast.Process(context.Background(), data)
	require.NoError(t, err)
	refOut, refDur, err := ref.Process(context.Background(), data)
	require.NoError(t, err)

	assert.Positive(t, fastDur)
	assert.Positive(t, refDur)
	// Same decoded input, same gray plane, same Sobel pass: the re-encoded
	// JPEG bytes must match exactly.
	assert.Equal(t, refOut, fastOut, "fast and reference output must be pixel-identical")
}

func TestFast_WorkerCountDoesNotChangeOutput(t *testing.T) {
	lg := platformtesting.SetupTestLogger(t)
	collector := metrics.NewCollector()

	data := encodeTestImage(t, gradientImage(80, 57)) // odd height forces uneven bands

	var outputs [][]byte
	for _, workers := range []int{1, 2, 3, 8} {
		fast := NewFast(workers, collector, lg)
		out, _, err := fast.Process(context.Background(), data)
		require.NoError(t, err)
		outputs = append(outputs, out)
	}

	for i := 1; i < len(outputs); i++ {
		assert.Equal(t, outputs[0], outputs[i], "band partitioning must not introduce seams")
	}
}

func TestProcessors_PassThroughOnDecodeFailure(t *testing.T) {
	lg := platformtesting.SetupTestLogger(t)
	collector := metrics.NewCollector()

	garbage := []byte("definitely not a jpeg payload")

	fast := NewFast(2, collector, lg)
	out, dur, err := fast.Process(context.Background(), garbage)
	require.NoError(t, err, "decode failure must degrade, not fail the round")
	assert.Equal(t, garbage, out)
	assert.Positive(t, dur)

	ref := NewReference(collector, lg)
	out, dur, err = ref.Process(context.Background(), garbage)
	require.NoError(t, err)
	assert.Equal(t, garbage, out)
	assert.Positive(t, dur)
}

func TestProcessors_RecordPerPathDurations(t *testing.T) {
	lg := platformtesting.SetupTestLogger(t)
	collector := metrics.NewCollector()

	data := encodeTestImage(t, gradientImage(48, 48))

	fast := NewFast(2, collector, lg)
	_, _, err := fast.Process(context.Background(), data)
	require.NoError(t, err)

	ref := NewReference(collector, lg)
	_, _, err = ref.Process(context.Background(), data)
	require.NoError(t, err)

	// Both cumulative path totals are non-zero, so the speedup ratio is
	// defined and positive even though no full round was recorded.
	assert.Positive(t, collector.Speedup())
	// Per-path recording must not touch the round counters or min/max.
	assert.Equal(t, int64(0), collector.MinLatencyMs())
	assert.Equal(t, int64(0), collector.TotalFrames())
	assert.Zero(t, collector.FastAverageLatencyMs(), "per-path averages are per-frame and no frame completed")
}

func TestSobel_BorderLeftUnprocessed(t *testing.T) {
	lg := platformtesting.SetupTestLogger(t)
	collector := metrics.NewCollector()
	ref := NewReference(collector, lg)

	// Uniform white frame: every interior gradient is zero and the border is
	// never written, so the whole output decodes to black.
	white := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			white.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	out, _, err := ref.Process(context.Background(), encodeTestImage(t, white))
	require.NoError(t, err)

	decoded, err := imageutil.Decode(out)
	require.NoError(t, err)
	for _, p := range [][2]int{{0, 0}, {31, 31}, {16, 16}, {0, 16}} {
		assert.LessOrEqual(t, imageutil.GrayAt(decoded, p[0], p[1]), 8,
			"pixel (%d,%d) should be near black", p[0], p[1])
	}
}
