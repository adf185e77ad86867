package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"solarlab-server-go/internal/domain/eventbus"
	"solarlab-server-go/internal/domain/fetch"
	"solarlab-server-go/internal/domain/metrics"
	"solarlab-server-go/internal/domain/process"
	"solarlab-server-go/internal/platform/config"
	"solarlab-server-go/internal/platform/logging"
)

// ErrStopped is returned by Start once the orchestrator has been stopped.
// Stopped is terminal: a fresh orchestrator is needed to run again.
var ErrStopped = errors.New("pipeline: orchestrator is stopped")

// Orchestrator states.
const (
	StateIdle int32 = iota
	StateRunning
	StateStopped
)

// Orchestrator drives the periodic rounds: fetch one frame, process it on
// both paths concurrently, merge, record metrics and broadcast. A failed
// round is logged and absorbed; the loop keeps ticking.
type Orchestrator struct {
	cfg       config.PipelineConfig
	fetcher   *fetch.Fetcher
	pool      *fetch.Pool
	fast      *process.Fast
	reference *process.Reference
	collector *metrics.Collector
	stream    *Stream
	logger    *logging.Logger

	state  atomic.Int32
	frames atomic.Int64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOrchestrator wires the pipeline together. The orchestrator owns the
// stream and, once stopped, the fetch pool.
func NewOrchestrator(
	cfg config.PipelineConfig,
	fetcher *fetch.Fetcher,
	pool *fetch.Pool,
	fast *process.Fast,
	reference *process.Reference,
	collector *metrics.Collector,
	logger *logging.Logger,
) *Orchestrator {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = config.DefaultConfig().Pipeline.UpdateInterval
	}
	return &Orchestrator{
		cfg:       cfg,
		fetcher:   fetcher,
		pool:      pool,
		fast:      fast,
		reference: reference,
		collector: collector,
		stream:    NewStream(cfg.SubscriberBuffer, logger),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Stream exposes the broadcast stream for subscribers.
func (o *Orchestrator) Stream() *Stream { return o.stream }

// Subscribe attaches a consumer to the result stream.
func (o *Orchestrator) Subscribe() (<-chan *ProcessedResult, func()) {
	return o.stream.Subscribe()
}

// FrameCount returns how many rounds have been published.
func (o *Orchestrator) FrameCount() int64 { return o.frames.Load() }

// MetricsSnapshot returns the collector's current state.
func (o *Orchestrator) MetricsSnapshot() metrics.Snapshot { return o.collector.Snapshot() }

// State returns the current lifecycle state.
func (o *Orchestrator) State() int32 { return o.state.Load() }

// Start begins the periodic loop. The first round fires immediately, then
// every UpdateInterval. Starting a running orchestrator is a no-op; starting
// a stopped one returns ErrStopped.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.state.CompareAndSwap(StateIdle, StateRunning) {
		if o.state.Load() == StateStopped {
			return ErrStopped
		}
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.logger.InfoTag("PIPELINE", "starting: interval=%s", o.cfg.UpdateInterval)
	eventbus.Publish(eventbus.EventPipelineStarted)

	go o.run(runCtx)
	return nil
}

// Stop cancels the loop, waits for any in-flight round (its result is
// discarded unpublished), then closes the stream and the fetch pool.
// Stop is terminal and idempotent.
func (o *Orchestrator) Stop() {
	prev := o.state.Swap(StateStopped)
	switch prev {
	case StateStopped:
		return
	case StateRunning:
		o.cancel()
		<-o.done
	}

	o.stream.Close()
	if o.pool != nil {
		o.pool.Close()
	}
	o.logger.InfoTag("PIPELINE", "stopped after %d frames", o.frames.Load())
	eventbus.Publish(eventbus.EventPipelineStopped)
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(o.cfg.UpdateInterval)
	defer ticker.Stop()

	o.round(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.round(ctx)
			// A tick that queued while the round ran is skipped, not
			// replayed; rounds follow the interval, they do not catch up.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// round runs one fetch/process/publish cycle. Errors are contained: they are
// logged, surfaced on the event bus and then forgotten.
func (o *Orchestrator) round(ctx context.Context) {
	data, err := o.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.logger.ErrorTag("PIPELINE", "round aborted, fetch failed: %v", err)
		eventbus.Publish(eventbus.EventFetchFailed, eventbus.ErrorEventData{
			Stage:   "fetch",
			Message: err.Error(),
		})
		return
	}

	seq := o.frames.Load() + 1
	// One reference per processor plus the orchestrator's own.
	raw := NewRawImage(data, seq, 3)

	var (
		fastOut, refOut []byte
		fastDur, refDur time.Duration
	)

	dispatch := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer raw.Release()
		var err error
		fastOut, fastDur, err = o.fast.Process(gctx, raw.Data())
		return err
	})
	g.Go(func() error {
		defer raw.Release()
		var err error
		refOut, refDur, err = o.reference.Process(gctx, raw.Data())
		return err
	})
	err = g.Wait()
	elapsed := time.Since(dispatch)

	// A pass-through output aliases the raw buffer; detach it from the pool
	// before the final release so subscribers keep a valid slice.
	if aliases(fastOut, raw.Data()) || aliases(refOut, raw.Data()) {
		raw.Leak()
	}
	size := raw.Len()
	raw.Release()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.logger.ErrorTag("PIPELINE", "round aborted, processing failed: %v", err)
		eventbus.Publish(eventbus.EventPipelineError, eventbus.ErrorEventData{
			Stage:   "process",
			Message: err.Error(),
		})
		return
	}

	o.collector.RecordProcessing(elapsed)

	if ctx.Err() != nil {
		// Stopped mid-round: the result is dropped, never published.
		return
	}

	result := &ProcessedResult{
		Sequence:          seq,
		FastOutput:        fastOut,
		ReferenceOutput:   refOut,
		FastTime:          fastDur,
		ReferenceTime:     refDur,
		OriginalSizeBytes: size,
		ProcessedAt:       time.Now(),
	}
	o.stream.Publish(result)

	frames := o.frames.Add(1)
	eventbus.Publish(eventbus.EventPipelineFrame, eventbus.FrameEventData{
		Sequence:    seq,
		SizeBytes:   size,
		FastTime:    fastDur,
		RefTime:     refDur,
		ProcessedAt: result.ProcessedAt,
	})

	if frames%10 == 0 {
		o.logger.InfoTag("PIPELINE", "processed %d frames | avg %.1f ms | %.2f fps | speedup %.2fx",
			frames,
			o.collector.AverageLatencyMs(),
			o.collector.ThroughputPerSec(),
			o.collector.Speedup())
	}
}

// aliases reports whether two slices share the same backing start.
func aliases(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
