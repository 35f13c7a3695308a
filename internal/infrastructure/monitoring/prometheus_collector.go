package monitoring

import (
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes the daemon's session and protocol metrics.
type PrometheusCollector struct {
	sessionState      prometheus.Gauge
	sessionQuality    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	sessionDuration   prometheus.Histogram
	gatheringDuration prometheus.Histogram

	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesDropped  prometheus.Counter

	commonLibrarySize prometheus.Gauge
	syncDuration      prometheus.Histogram
	syncAttempts      prometheus.Histogram

	chatMessagesTotal *prometheus.CounterVec
}

// sessionStateValue maps session states onto a numeric gauge scale.
var sessionStateValue = map[domain.SessionState]float64{
	domain.SessionIdle:                0,
	domain.SessionInitializing:        1,
	domain.SessionGatheringCandidates: 2,
	domain.SessionWaitingForAnswer:    3,
	domain.SessionConnecting:          4,
	domain.SessionConnected:           5,
	domain.SessionDisconnected:        6,
	domain.SessionError:               7,
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "duo_session_state",
			Help: "Current session state (0=idle through 7=error)",
		}),

		sessionQuality: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "duo_session_quality_score",
			Help: "Connection quality score of the active session (0-100)",
		}),

		sessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "duo_sessions_total",
			Help: "Total number of sessions established",
		}),

		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "duo_session_duration_seconds",
			Help:    "Duration of completed sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),

		gatheringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "duo_ice_gathering_duration_seconds",
			Help:    "Time spent gathering ICE candidates before signaling",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}),

		framesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "duo_frames_sent_total",
			Help: "Protocol frames sent, by type",
		}, []string{"type"}),

		framesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "duo_frames_received_total",
			Help: "Protocol frames received, by type",
		}, []string{"type"}),

		framesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "duo_frames_dropped_total",
			Help: "Inbound frames dropped as malformed or unknown",
		}),

		commonLibrarySize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "duo_common_library_tracks",
			Help: "Number of tracks in the reconciled common library",
		}),

		syncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "duo_library_sync_duration_seconds",
			Help:    "Duration of library reconciliation rounds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		syncAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "duo_library_sync_attempts",
			Help:    "SYNC_LIBRARY sends needed before a response arrived",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),

		chatMessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "duo_chat_messages_total",
			Help: "Chat messages by direction",
		}, []string{"direction"}),
	}
}

func (p *PrometheusCollector) RecordSessionState(state domain.SessionState) {
	p.sessionState.Set(sessionStateValue[state])
	if state == domain.SessionConnected {
		p.sessionsTotal.Inc()
	}
}

func (p *PrometheusCollector) RecordQualityScore(score int) {
	p.sessionQuality.Set(float64(score))
}

func (p *PrometheusCollector) RecordSessionEnded(duration time.Duration) {
	p.sessionDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordGatheringDuration(duration time.Duration) {
	p.gatheringDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordFrameSent(frameType protocol.MessageType) {
	p.framesSent.WithLabelValues(string(frameType)).Inc()
}

func (p *PrometheusCollector) RecordFrameReceived(frameType protocol.MessageType) {
	p.framesReceived.WithLabelValues(string(frameType)).Inc()
}

func (p *PrometheusCollector) RecordFrameDropped() {
	p.framesDropped.Inc()
}

func (p *PrometheusCollector) RecordCommonLibrarySize(tracks int) {
	p.commonLibrarySize.Set(float64(tracks))
}

func (p *PrometheusCollector) RecordLibrarySync(duration time.Duration, attempts int) {
	p.syncDuration.Observe(duration.Seconds())
	p.syncAttempts.Observe(float64(attempts))
}

func (p *PrometheusCollector) RecordChatMessage(outbound bool) {
	direction := "received"
	if outbound {
		direction = "sent"
	}
	p.chatMessagesTotal.WithLabelValues(direction).Inc()
}
