package pipeline

import "time"

// ProcessedResult is the merged outcome of one round: both processed
// variants of the same frame plus their timings.
type ProcessedResult struct {
	Sequence          int64         `json:"sequence"`
	FastOutput        []byte        `json:"-"`
	ReferenceOutput   []byte        `json:"-"`
	FastTime          time.Duration `json:"fast_time_ns"`
	ReferenceTime     time.Duration `json:"reference_time_ns"`
	OriginalSizeBytes int           `json:"original_size_bytes"`
	ProcessedAt       time.Time     `json:"processed_at"`
}

// Data returns the preferred payload for downstream consumers: the fast
// output when present, the reference output otherwise.
func (r *ProcessedResult) Data() []byte {
	if len(r.FastOutput) > 0 {
		return r.FastOutput
	}
	return r.ReferenceOutput
}

// Speedup compares the reference duration against the fast duration.
// A zero fast time reports 1.0 rather than dividing by zero.
func (r *ProcessedResult) Speedup() float64 {
	if r.FastTime <= 0 {
		return 1.0
	}
	return float64(r.ReferenceTime) / float64(r.FastTime)
}
