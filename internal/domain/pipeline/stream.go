package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"solarlab-server-go/internal/platform/logging"
)

// subscriber is one consumer of the result stream.
type subscriber struct {
	ch      chan *ProcessedResult
	sent    atomic.Int64
	dropped atomic.Int64
}

// Stream broadcasts each published result to every live subscriber. Sends
// never block the producer: a subscriber whose buffer is full loses that
// result and only that subscriber falls behind.
type Stream struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*subscriber
	bufSize int
	closed  bool
	logger  *logging.Logger

	published atomic.Int64
	dropped   atomic.Int64
}

// NewStream creates a stream whose subscribers buffer bufSize results each.
func NewStream(bufSize int, logger *logging.Logger) *Stream {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Stream{
		subs:    make(map[uuid.UUID]*subscriber),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscribe registers a new consumer and returns its channel plus a cancel
// function. Subscribers only see results published after they join. The
// channel is closed by cancel or by Close.
func (s *Stream) Subscribe() (<-chan *ProcessedResult, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscriber{ch: make(chan *ProcessedResult, s.bufSize)}
	if s.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	id := uuid.New()
	s.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish fans one result out to all subscribers without blocking.
func (s *Stream) Publish(result *ProcessedResult) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	s.published.Add(1)

	for _, sub := range s.subs {
		select {
		case sub.ch <- result:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
			if s.dropped.Add(1)%100 == 1 {
				s.logger.WarnTag("STREAM", "slow subscriber dropped a frame (%d dropped total)", s.dropped.Load())
			}
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Published returns how many results have been fanned out.
func (s *Stream) Published() int64 { return s.published.Load() }

// Dropped returns the total frames lost across all subscribers.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

// Close terminates every subscriber channel. Publish and Subscribe after
// Close are no-ops.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
}
