package process

import (
	"context"
	"image"
	"time"

	"solarlab-server-go/internal/domain/metrics"
	"solarlab-server-go/internal/platform/logging"
	"solarlab-server-go/internal/util/imageutil"
)

// Reference is the single-threaded baseline Sobel implementation.
type Reference struct {
	collector *metrics.Collector
	logger    *logging.Logger
}

// NewReference creates the sequential baseline processor.
func NewReference(collector *metrics.Collector, logger *logging.Logger) *Reference {
	return &Reference{
		collector: collector,
		logger:    logger,
	}
}

// Process decodes the payload, runs grayscale conversion and Sobel top to
// bottom on the calling goroutine, and re-encodes as JPEG. A payload that does
// not decode is passed through unchanged; malformed input never fails a round.
func (p *Reference) Process(_ context.Context, data []byte) ([]byte, time.Duration, error) {
	start := time.Now()

	img, err := imageutil.Decode(data)
	if err != nil {
		p.logger.WarnTag("PROC", "reference: failed to decode image, passing through: %v", err)
		duration := time.Since(start)
		p.collector.RecordReferenceProcessing(duration)
		return data, duration, nil
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	plane := newGrayPlane(w, h)
	grayRows(img, plane, 0, h)

	out := image.NewGray(image.Rect(0, 0, w, h))
	sobelRows(plane, out, 1, h-1)

	encoded, err := imageutil.EncodeJPEG(out)
	if err != nil {
		p.logger.WarnTag("PROC", "reference: failed to encode result, passing through: %v", err)
		duration := time.Since(start)
		p.collector.RecordReferenceProcessing(duration)
		return data, duration, nil
	}

	duration := time.Since(start)
	p.collector.RecordReferenceProcessing(duration)
	return encoded, duration, nil
}
