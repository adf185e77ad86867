// Package metrics implements the lock-free performance collector shared by
// the pipeline. Every field is an independent atomic; readers may observe a
// sibling field still catching up, which is acceptable for statistics.
package metrics

import (
	"math"
	"sync/atomic"
	"time"
)

// Collector accumulates throughput and latency counters without locks.
// Safe for unbounded concurrent writers and readers.
type Collector struct {
	totalDownloads      atomic.Int64
	totalBytes          atomic.Int64
	totalProcessingNs   atomic.Int64
	fastProcessingNs    atomic.Int64
	refProcessingNs     atomic.Int64
	processedFrames     atomic.Int64
	minLatencyMs        atomic.Int64 // math.MaxInt64 until first sample
	maxLatencyMs        atomic.Int64
	startUnixNano       atomic.Int64
}

// NewCollector creates a collector with the wall clock started now.
func NewCollector() *Collector {
	c := &Collector{}
	c.minLatencyMs.Store(math.MaxInt64)
	c.startUnixNano.Store(time.Now().UnixNano())
	return c
}

// RecordDownload counts one completed download of the given size.
func (c *Collector) RecordDownload(bytes int64) {
	c.totalDownloads.Add(1)
	c.totalBytes.Add(bytes)
}

// RecordProcessing counts one completed round and folds its total duration
// into the latency min/max, measured in whole milliseconds.
func (c *Collector) RecordProcessing(d time.Duration) {
	c.totalProcessingNs.Add(int64(d))
	c.processedFrames.Add(1)
	c.updateLatency(int64(d) / int64(time.Millisecond))
}

// RecordFastProcessing adds to the fast path's cumulative total only.
func (c *Collector) RecordFastProcessing(d time.Duration) {
	c.fastProcessingNs.Add(int64(d))
}

// RecordReferenceProcessing adds to the reference path's cumulative total only.
func (c *Collector) RecordReferenceProcessing(d time.Duration) {
	c.refProcessingNs.Add(int64(d))
}

func (c *Collector) updateLatency(ms int64) {
	for {
		cur := c.minLatencyMs.Load()
		if ms >= cur || c.minLatencyMs.CompareAndSwap(cur, ms) {
			break
		}
	}
	for {
		cur := c.maxLatencyMs.Load()
		if ms <= cur || c.maxLatencyMs.CompareAndSwap(cur, ms) {
			break
		}
	}
}

// AverageLatencyMs returns the mean round duration in milliseconds,
// 0 when no frame has been recorded.
func (c *Collector) AverageLatencyMs() float64 {
	frames := c.processedFrames.Load()
	if frames == 0 {
		return 0
	}
	return float64(c.totalProcessingNs.Load()) / float64(frames) / 1e6
}

// FastAverageLatencyMs returns the fast path's mean duration in milliseconds.
func (c *Collector) FastAverageLatencyMs() float64 {
	frames := c.processedFrames.Load()
	if frames == 0 {
		return 0
	}
	return float64(c.fastProcessingNs.Load()) / float64(frames) / 1e6
}

// ReferenceAverageLatencyMs returns the reference path's mean duration in milliseconds.
func (c *Collector) ReferenceAverageLatencyMs() float64 {
	frames := c.processedFrames.Load()
	if frames == 0 {
		return 0
	}
	return float64(c.refProcessingNs.Load()) / float64(frames) / 1e6
}

// Speedup returns cumulative reference time over cumulative fast time.
// An empty fast total reads as 1.0: no measured advantage, never a fault.
func (c *Collector) Speedup() float64 {
	fast := c.fastProcessingNs.Load()
	if fast == 0 {
		return 1.0
	}
	return float64(c.refProcessingNs.Load()) / float64(fast)
}

// ThroughputPerSec returns frames per elapsed wall-clock second since start
// or the last reset.
func (c *Collector) ThroughputPerSec() float64 {
	elapsed := time.Now().UnixNano() - c.startUnixNano.Load()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.processedFrames.Load()) * float64(time.Second) / float64(elapsed)
}

// MinLatencyMs reads 0 until the first frame is recorded.
func (c *Collector) MinLatencyMs() int64 {
	min := c.minLatencyMs.Load()
	if min == math.MaxInt64 {
		return 0
	}
	return min
}

func (c *Collector) MaxLatencyMs() int64 {
	return c.maxLatencyMs.Load()
}

func (c *Collector) TotalFrames() int64 {
	return c.processedFrames.Load()
}

func (c *Collector) TotalBytes() int64 {
	return c.totalBytes.Load()
}

func (c *Collector) TotalDownloads() int64 {
	return c.totalDownloads.Load()
}

// Reset restores every counter to its initial state and restarts the wall clock.
func (c *Collector) Reset() {
	c.totalDownloads.Store(0)
	c.totalBytes.Store(0)
	c.totalProcessingNs.Store(0)
	c.fastProcessingNs.Store(0)
	c.refProcessingNs.Store(0)
	c.processedFrames.Store(0)
	c.minLatencyMs.Store(math.MaxInt64)
	c.maxLatencyMs.Store(0)
	c.startUnixNano.Store(time.Now().UnixNano())
}

// Snapshot is a copy-on-read view of the collector, shaped for the status API.
type Snapshot struct {
	TotalDownloads        int64   `json:"total_downloads"`
	TotalBytes            int64   `json:"total_bytes"`
	TotalFrames           int64   `json:"total_frames"`
	AverageLatencyMs      float64 `json:"average_latency_ms"`
	FastAverageLatencyMs  float64 `json:"fast_average_latency_ms"`
	RefAverageLatencyMs   float64 `json:"reference_average_latency_ms"`
	MinLatencyMs          int64   `json:"min_latency_ms"`
	MaxLatencyMs          int64   `json:"max_latency_ms"`
	Speedup               float64 `json:"speedup"`
	ThroughputPerSec      float64 `json:"throughput_per_sec"`
}

// Snapshot returns the current counter values as one value struct.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		TotalDownloads:       c.TotalDownloads(),
		TotalBytes:           c.TotalBytes(),
		TotalFrames:          c.TotalFrames(),
		AverageLatencyMs:     c.AverageLatencyMs(),
		FastAverageLatencyMs: c.FastAverageLatencyMs(),
		RefAverageLatencyMs:  c.ReferenceAverageLatencyMs(),
		MinLatencyMs:         c.MinLatencyMs(),
		MaxLatencyMs:         c.MaxLatencyMs(),
		Speedup:              c.Speedup(),
		ThroughputPerSec:     c.ThroughputPerSec(),
	}
}
