package eventbus

import "time"

// Event topics.
const (
	// Pipeline events
	EventPipelineStarted = "pipeline:started"
	EventPipelineStopped = "pipeline:stopped"
	EventPipelineFrame   = "pipeline:frame"
	EventPipelineError   = "pipeline:error"

	// Fetch events
	EventFetchFailed = "fetch:failed"

	// Flare events
	EventFlareDetected = "flare:detected"

	// System events
	EventSystemError = "system:error"
)

// FrameEventData describes one completed pipeline round.
type FrameEventData struct {
	Sequence    int64         `json:"sequence"`
	SizeBytes   int           `json:"size_bytes"`
	FastTime    time.Duration `json:"fast_time"`
	RefTime     time.Duration `json:"ref_time"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// FlareEventData describes one detected bright region.
type FlareEventData struct {
	Sequence   int64     `json:"sequence"`
	CenterX    int       `json:"center_x"`
	CenterY    int       `json:"center_y"`
	Size       int       `json:"size"`
	Intensity  int       `json:"intensity"`
	DetectedAt time.Time `json:"detected_at"`
}

// ErrorEventData carries a contained error out of the pipeline loop.
type ErrorEventData struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}
