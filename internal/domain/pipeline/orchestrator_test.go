package pipeline

import (
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarlab-server-go/internal/domain/fetch"
	"solarlab-server-go/internal/domain/metrics"
	"solarlab-server-go/internal/domain/process"
	"solarlab-server-go/internal/platform/config"
	platformtesting "solarlab-server-go/internal/platform/testing"
	"solarlab-server-go/internal/util/imageutil"
)

func testFrameBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	data, err := imageutil.EncodeJPEG(img)
	require.NoError(t, err)
	return data
}

func newTestOrchestrator(t *testing.T, sourceURL string, interval time.Duration) *Orchestrator {
	t.Helper()
	lg := platformtesting.SetupTestLogger(t)
	collector := metrics.NewCollector()

	pool := fetch.NewPool(config.PoolConfig{
		MaxConnections: 2,
		MaxPending:     4,
		AcquireTimeout: time.Second,
	}, lg)
	fetcher := fetch.NewFetcher(config.SourceConfig{
		PrimaryURL:   sourceURL,
		FetchTimeout: 2 * time.Second,
	}, pool, collector, lg)

	o := NewOrchestrator(
		config.PipelineConfig{UpdateInterval: interval, SubscriberBuffer: 16},
		fetcher,
		pool,
		process.NewFast(2, collector, lg),
		process.NewReference(collector, lg),
		collector,
		lg,
	)
	t.Cleanup(o.Stop)
	return o
}

func collectResults(t *testing.T, ch <-chan *ProcessedResult, n int) []*ProcessedResult {
	t.Helper()
	out := make([]*ProcessedResult, 0, n)
	deadline := time.After(10 * time.Second)
	for len(out) < n {
		select {
		case r, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed after %d of %d results", len(out), n)
			}
			out = append(out, r)
		case <-deadline:
			t.Fatalf("timed out after %d of %d results", len(out), n)
		}
	}
	return out
}

func TestOrchestrator_SubscribersSeeSameOrderedSequence(t *testing.T) {
	frame := testFrameBytes(t)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(frame)
	}))
	defer src.Close()

	o := newTestOrchestrator(t, src.URL, 30*time.Millisecond)

	a, cancelA := o.Subscribe()
	b, cancelB := o.Subscribe()
	defer cancelA()
	defer cancelB()

	require.NoError(t, o.Start(context.Background()))

	resultsA := collectResults(t, a, 3)
	resultsB := collectResults(t, b, 3)

	for i, r := range resultsA {
		assert.Equal(t, int64(i+1), r.Sequence, "sequences must be gapless from 1")
		assert.Equal(t, resultsB[i].Sequence, r.Sequence, "both subscribers see the same order")
		assert.Equal(t, resultsB[i].Data(), r.Data(), "both subscribers see the same payload")
		assert.Positive(t, r.FastTime)
		assert.Positive(t, r.ReferenceTime)
		assert.Equal(t, len(frame), r.OriginalSizeBytes)
	}

	assert.GreaterOrEqual(t, o.FrameCount(), int64(3))
	assert.GreaterOrEqual(t, o.MetricsSnapshot().TotalFrames, int64(3))
}

func TestOrchestrator_StartStopContract(t *testing.T) {
	frame := testFrameBytes(t)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(frame)
	}))
	defer src.Close()

	o := newTestOrchestrator(t, src.URL, 50*time.Millisecond)

	require.Equal(t, StateIdle, o.State())
	require.NoError(t, o.Start(context.Background()))
	require.Equal(t, StateRunning, o.State())

	// Starting a running orchestrator is a no-op.
	require.NoError(t, o.Start(context.Background()))

	o.Stop()
	o.Stop() // idempotent
	assert.Equal(t, StateStopped, o.State())

	// Stopped is terminal.
	assert.ErrorIs(t, o.Start(context.Background()), ErrStopped)
}

func TestOrchestrator_StopFromIdle(t *testing.T) {
	o := newTestOrchestrator(t, "http://127.0.0.1:0", 50*time.Millisecond)
	o.Stop()
	assert.Equal(t, StateStopped, o.State())
	assert.ErrorIs(t, o.Start(context.Background()), ErrStopped)
}

func TestOrchestrator_RoundErrorsAreContained(t *testing.T) {
	frame := testFrameBytes(t)
	var calls atomic.Int64
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// The first two rounds fail, then the source recovers.
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(frame)
	}))
	defer src.Close()

	o := newTestOrchestrator(t, src.URL, 30*time.Millisecond)
	ch, cancel := o.Subscribe()
	defer cancel()

	require.NoError(t, o.Start(context.Background()))

	results := collectResults(t, ch, 2)
	assert.Equal(t, int64(1), results[0].Sequence, "failed rounds do not consume sequence numbers")
	assert.Equal(t, int64(2), results[1].Sequence)
	assert.GreaterOrEqual(t, calls.Load(), int64(4))
}

func TestOrchestrator_StreamSurvivesGarbagePayload(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not an image at all"))
	}))
	defer src.Close()

	o := newTestOrchestrator(t, src.URL, 30*time.Millisecond)
	ch, cancel := o.Subscribe()
	defer cancel()

	require.NoError(t, o.Start(context.Background()))

	// Undecodable payloads pass through; the round still publishes.
	r := collectResults(t, ch, 1)[0]
	assert.Equal(t, []byte("not an image at all"), r.Data())
}

func TestProcessedResult_DataPrefersFastOutput(t *testing.T) {
	r := &ProcessedResult{FastOutput: []byte("fast"), ReferenceOutput: []byte("ref")}
	assert.Equal(t, []byte("fast"), r.Data())

	r = &ProcessedResult{ReferenceOutput: []byte("ref")}
	assert.Equal(t, []byte("ref"), r.Data())
}

func TestProcessedResult_SpeedupGuards(t *testing.T) {
	r := &ProcessedResult{FastTime: 0, ReferenceTime: time.Second}
	assert.Equal(t, 1.0, r.Speedup())

	r = &ProcessedResult{FastTime: 250 * time.Millisecond, ReferenceTime: time.Second}
	assert.InDelta(t, 4.0, r.Speedup(), 1e-9)
}
