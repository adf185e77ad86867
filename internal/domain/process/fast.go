package process

import (
	"context"
	"image"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"

	"solarlab-server-go/internal/domain/metrics"
	"solarlab-server-go/internal/platform/logging"
	"solarlab-server-go/internal/util/imageutil"
)

// Fast is the parallel Sobel variant. It simulates accelerated execution by
// partitioning rows across CPU workers; there is no device offload.
type Fast struct {
	workers   int
	collector *metrics.Collector
	logger    *logging.Logger
}

// NewFast creates the parallel processor. A workers value of 0 selects the
// machine's hardware parallelism.
func NewFast(workers int, collector *metrics.Collector, logger *logging.Logger) *Fast {
	if workers <= 0 {
		workers = detectParallelism()
		logger.InfoTag("PROC", "fast: using %d workers (hardware parallelism)", workers)
	}
	return &Fast{
		workers:   workers,
		collector: collector,
		logger:    logger,
	}
}

func detectParallelism() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Process runs the same two passes as the reference processor, each fanned
// out over contiguous row bands. Both passes join before returning; partial
// results are never produced. Decode failures pass the payload through.
func (p *Fast) Process(ctx context.Context, data []byte) ([]byte, time.Duration, error) {
	start := time.Now()

	img, err := imageutil.Decode(data)
	if err != nil {
		p.logger.WarnTag("PROC", "fast: failed to decode image, passing through: %v", err)
		duration := time.Since(start)
		p.collector.RecordFastProcessing(duration)
		return data, duration, nil
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	workers := p.workers
	if workers > h {
		workers = h
	}
	if workers < 1 {
		workers = 1
	}

	plane := newGrayPlane(w, h)
	out := image.NewGray(image.Rect(0, 0, w, h))

	// Pass 1: grayscale conversion, one band per worker.
	g, _ := errgroup.WithContext(ctx)
	for t := 0; t < workers; t++ {
		yStart, yEnd := bandBounds(h, workers, t)
		g.Go(func() error {
			grayRows(img, plane, yStart, yEnd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return data, time.Since(start), err
	}

	// Pass 2: Sobel over the complete shared plane. Each worker only writes
	// its own rows; neighbor reads cross band edges safely because the plane
	// is fully populated after the first join.
	g, _ = errgroup.WithContext(ctx)
	for t := 0; t < workers; t++ {
		yStart, yEnd := bandBounds(h, workers, t)
		g.Go(func() error {
			sobelRows(plane, out, yStart, yEnd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return data, time.Since(start), err
	}

	encoded, err := imageutil.EncodeJPEG(out)
	if err != nil {
		p.logger.WarnTag("PROC", "fast: failed to encode result, passing through: %v", err)
		duration := time.Since(start)
		p.collector.RecordFastProcessing(duration)
		return data, duration, nil
	}

	duration := time.Since(start)
	p.collector.RecordFastProcessing(duration)
	return encoded, duration, nil
}

// bandBounds splits h rows into contiguous bands, the last band absorbing the
// remainder.
func bandBounds(h, workers, band int) (int, int) {
	rowsPer := h / workers
	yStart := band * rowsPer
	yEnd := yStart + rowsPer
	if band == workers-1 {
		yEnd = h
	}
	return yStart, yEnd
}
