// Package flare finds bright regions in processed frames and keeps a rolling
// record of detections for the status surface.
package flare

import (
	"time"

	"solarlab-server-go/internal/platform/config"
	"solarlab-server-go/internal/util/imageutil"
)

// Event is one detected bright region.
type Event struct {
	Sequence   int64     `json:"sequence"`
	CenterX    int       `json:"center_x"`
	CenterY    int       `json:"center_y"`
	Size       int       `json:"size"`
	Intensity  int       `json:"intensity"`
	DetectedAt time.Time `json:"detected_at"`
}

// Detector scans frames for connected regions brighter than a threshold.
type Detector struct {
	threshold int
	minSize   int
}

// NewDetector creates a detector; zero values fall back to the defaults.
func NewDetector(cfg config.FlareConfig) *Detector {
	if cfg.BrightnessThreshold <= 0 {
		cfg.BrightnessThreshold = config.DefaultConfig().Flare.BrightnessThreshold
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = config.DefaultConfig().Flare.MinSize
	}
	return &Detector{
		threshold: cfg.BrightnessThreshold,
		minSize:   cfg.MinSize,
	}
}

// Detect returns every connected bright region of at least minSize pixels.
// A pixel is bright when its gray intensity exceeds the threshold; regions
// grow 4-connected. Payloads that do not decode yield an empty result.
func (d *Detector) Detect(data []byte) []Event {
	if len(data) == 0 {
		return nil
	}
	img, err := imageutil.Decode(data)
	if err != nil {
		return nil
	}

	plane := imageutil.GrayPlane(img)
	h := len(plane)
	if h == 0 {
		return nil
	}
	w := len(plane[0])

	visited := make([][]bool, h)
	for y := range visited {
		visited[y] = make([]bool, w)
	}

	var events []Event
	now := time.Now()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y][x] || plane[y][x] <= d.threshold {
				continue
			}
			if ev, ok := d.fill(plane, visited, x, y, w, h); ok {
				ev.DetectedAt = now
				events = append(events, ev)
			}
		}
	}
	return events
}

type point struct{ x, y int }

// fill flood-fills one bright region breadth-first and reduces it to an
// event when it is large enough.
func (d *Detector) fill(plane [][]int, visited [][]bool, x, y, w, h int) (Event, bool) {
	queue := []point{{x, y}}
	visited[y][x] = true

	var size, sumX, sumY, sumIntensity int
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		size++
		sumX += p.x
		sumY += p.y
		sumIntensity += plane[p.y][p.x]

		for _, n := range [4]point{{p.x + 1, p.y}, {p.x - 1, p.y}, {p.x, p.y + 1}, {p.x, p.y - 1}} {
			if n.x < 0 || n.x >= w || n.y < 0 || n.y >= h {
				continue
			}
			if visited[n.y][n.x] || plane[n.y][n.x] <= d.threshold {
				continue
			}
			visited[n.y][n.x] = true
			queue = append(queue, n)
		}
	}

	if size < d.minSize {
		return Event{}, false
	}
	return Event{
		CenterX:   sumX / size,
		CenterY:   sumY / size,
		Size:      size,
		Intensity: sumIntensity / size,
	}, true
}
