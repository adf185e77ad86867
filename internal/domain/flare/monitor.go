package flare

import (
	"sync"

	"solarlab-server-go/internal/domain/eventbus"
	"solarlab-server-go/internal/domain/pipeline"
	"solarlab-server-go/internal/platform/config"
	"solarlab-server-go/internal/platform/logging"
)

// Monitor consumes the result stream, runs the detector on every frame and
// keeps a bounded ring of recent events. Each detection is also announced on
// the event bus.
type Monitor struct {
	detector *Detector
	logger   *logging.Logger

	mu     sync.RWMutex
	recent []Event
	limit  int

	cancel func()
	done   chan struct{}
}

// NewMonitor creates a monitor holding at most cfg.RecentEvents detections.
func NewMonitor(cfg config.FlareConfig, logger *logging.Logger) *Monitor {
	limit := cfg.RecentEvents
	if limit <= 0 {
		limit = config.DefaultConfig().Flare.RecentEvents
	}
	return &Monitor{
		detector: NewDetector(cfg),
		logger:   logger,
		limit:    limit,
		done:     make(chan struct{}),
	}
}

// Watch subscribes to the stream and processes frames until Stop or until
// the stream closes.
func (m *Monitor) Watch(stream *pipeline.Stream) {
	ch, cancel := stream.Subscribe()
	m.cancel = cancel

	go func() {
		defer close(m.done)
		for result := range ch {
			m.inspect(result)
		}
	}()
}

func (m *Monitor) inspect(result *pipeline.ProcessedResult) {
	events := m.detector.Detect(result.Data())
	if len(events) == 0 {
		return
	}

	for i := range events {
		events[i].Sequence = result.Sequence
		m.logger.InfoTag("FLARE", "frame %d: region of %d px at (%d,%d), intensity %d",
			result.Sequence, events[i].Size, events[i].CenterX, events[i].CenterY, events[i].Intensity)
		eventbus.Publish(eventbus.EventFlareDetected, eventbus.FlareEventData{
			Sequence:   events[i].Sequence,
			CenterX:    events[i].CenterX,
			CenterY:    events[i].CenterY,
			Size:       events[i].Size,
			Intensity:  events[i].Intensity,
			DetectedAt: events[i].DetectedAt,
		})
	}

	m.mu.Lock()
	m.recent = append(m.recent, events...)
	if overflow := len(m.recent) - m.limit; overflow > 0 {
		m.recent = append(m.recent[:0], m.recent[overflow:]...)
	}
	m.mu.Unlock()
}

// Recent returns a copy of the retained events, oldest first.
func (m *Monitor) Recent() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.recent))
	copy(out, m.recent)
	return out
}

// Stop detaches from the stream and waits for the watch loop to drain.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}
