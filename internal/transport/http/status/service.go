// Package status exposes the pipeline's metrics, recent flare events and a
// live websocket feed of processed frames.
package status

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"solarlab-server-go/internal/domain/flare"
	"solarlab-server-go/internal/domain/pipeline"
	perrors "solarlab-server-go/internal/platform/errors"
	"solarlab-server-go/internal/platform/logging"
	httptransport "solarlab-server-go/internal/transport/http"
	"solarlab-server-go/internal/util/imageutil"
)

// Service is the read-only HTTP surface over the running pipeline.
type Service struct {
	orchestrator *pipeline.Orchestrator
	monitor      *flare.Monitor
	logger       *logging.Logger
	upgrader     *websocket.Upgrader

	latest atomic.Value // *pipeline.ProcessedResult
	cancel func()
	done   chan struct{}
}

// NewService creates the status service.
func NewService(orchestrator *pipeline.Orchestrator, monitor *flare.Monitor, logger *logging.Logger) (*Service, error) {
	if orchestrator == nil {
		return nil, perrors.New(perrors.KindConfig, "status.new", "orchestrator is required")
	}
	return &Service{
		orchestrator: orchestrator,
		monitor:      monitor,
		logger:       logger,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}, nil
}

// Register attaches the status routes and starts tracking the latest frame.
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	router.GET("/metrics", s.handleMetrics)
	router.GET("/status", s.handleStatus)
	router.GET("/flares", s.handleFlares)
	router.GET("/frame", s.handleFrame)
	router.GET("/frame/heatmap", s.handleHeatmap)
	router.GET("/stream", s.handleStream)

	ch, cancel := s.orchestrator.Subscribe()
	s.cancel = cancel
	go func() {
		defer close(s.done)
		for result := range ch {
			s.latest.Store(result)
		}
	}()

	s.logger.InfoTag("HTTP", "status routes registered")
	return nil
}

// Close detaches the latest-frame tracker from the stream.
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Service) handleMetrics(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, s.orchestrator.MetricsSnapshot(), "")
}

func stateName(state int32) string {
	switch state {
	case pipeline.StateRunning:
		return "running"
	case pipeline.StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

func (s *Service) handleStatus(c *gin.Context) {
	stream := s.orchestrator.Stream()
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"state":       stateName(s.orchestrator.State()),
		"frames":      s.orchestrator.FrameCount(),
		"subscribers": stream.SubscriberCount(),
		"published":   stream.Published(),
		"dropped":     stream.Dropped(),
	}, "")
}

func (s *Service) handleFlares(c *gin.Context) {
	var events []flare.Event
	if s.monitor != nil {
		events = s.monitor.Recent()
	}
	httptransport.RespondSuccess(c, http.StatusOK, events, "")
}

func (s *Service) handleFrame(c *gin.Context) {
	result, ok := s.latest.Load().(*pipeline.ProcessedResult)
	if !ok {
		httptransport.RespondError(c, http.StatusNotFound, "no frame processed yet", nil)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", result.Data())
}

func (s *Service) handleHeatmap(c *gin.Context) {
	result, ok := s.latest.Load().(*pipeline.ProcessedResult)
	if !ok {
		httptransport.RespondError(c, http.StatusNotFound, "no frame processed yet", nil)
		return
	}
	img, err := imageutil.Decode(result.Data())
	if err != nil {
		httptransport.RespondError(c, http.StatusUnprocessableEntity, "latest frame is not decodable", nil)
		return
	}
	encoded, err := imageutil.EncodeJPEG(imageutil.HeatMap(img))
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "heatmap encoding failed", nil)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", encoded)
}

// frameHeader is the JSON message that precedes each binary frame on the
// websocket feed.
type frameHeader struct {
	Sequence      int64     `json:"sequence"`
	FastTimeMs    float64   `json:"fast_time_ms"`
	RefTimeMs     float64   `json:"ref_time_ms"`
	Speedup       float64   `json:"speedup"`
	OriginalBytes int       `json:"original_bytes"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// handleStream upgrades to websocket and forwards every published result:
// one JSON header message, then the processed JPEG as a binary message.
func (s *Service) handleStream(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WarnTag("HTTP", "websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	ch, cancel := s.orchestrator.Subscribe()
	defer cancel()

	// Drain client messages so close frames are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for result := range ch {
		header, err := sonic.Marshal(frameHeader{
			Sequence:      result.Sequence,
			FastTimeMs:    float64(result.FastTime.Microseconds()) / 1000,
			RefTimeMs:     float64(result.ReferenceTime.Microseconds()) / 1000,
			Speedup:       result.Speedup(),
			OriginalBytes: result.OriginalSizeBytes,
			ProcessedAt:   result.ProcessedAt,
		})
		if err != nil {
			continue
		}
		if err := ws.WriteMessage(websocket.TextMessage, header); err != nil {
			return
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, result.Data()); err != nil {
			return
		}
	}
}
