package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_sessions_total",
		Help: "Total number of streaming sessions by outcome",
	}, []string{"outcome"}) // outcome: "connected", "failed"

	sessionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_client_session_open",
		Help: "Whether a streaming session is currently open (0 or 1)",
	})

	connectRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_connect_retries_total",
		Help: "Total number of connect retry attempts",
	})

	// Audio metrics
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_frames_sent_total",
		Help: "Total number of audio frames sent to the endpoint",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_frames_dropped_total",
		Help: "Total number of audio frames dropped on send failure",
	})

	audioBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_client_audio_bytes_sent_total",
		Help: "Total encoded audio bytes sent to the endpoint",
	})

	// Transcript metrics
	transcriptEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_transcript_events_total",
		Help: "Total transcript events received by kind",
	}, []string{"kind"}) // kind: "interim", "final"

	// Error metrics
	sessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_session_errors_total",
		Help: "Total classified session errors",
	}, []string{"category"})

	// Probe metrics
	probes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_client_probes_total",
		Help: "Total diagnostic probes by transport and outcome",
	}, []string{"transport", "outcome"}) // transport: "session", "sdk"
)

// RecordSessionConnected records a successfully opened session
func RecordSessionConnected() {
	sessionsTotal.WithLabelValues("connected").Inc()
	sessionOpen.Set(1)
}

// RecordSessionFailed records a session that never reached open
func RecordSessionFailed() {
	sessionsTotal.WithLabelValues("failed").Inc()
}

// RecordSessionClosed records a session leaving the open state
func RecordSessionClosed() {
	sessionOpen.Set(0)
}

// RecordConnectRetry records one connect retry attempt
func RecordConnectRetry() {
	connectRetries.Inc()
}

// RecordFrameSent records one audio frame forwarded to the endpoint
func RecordFrameSent(bytes int) {
	framesSent.Inc()
	audioBytesSent.Add(float64(bytes))
}

// RecordFrameDropped records one audio frame dropped on send failure
func RecordFrameDropped() {
	framesDropped.Inc()
}

// RecordTranscriptEvent records a received transcript event
func RecordTranscriptEvent(isFinal bool) {
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	transcriptEvents.WithLabelValues(kind).Inc()
}

// RecordSessionError records a classified session error
func RecordSessionError(category string) {
	sessionErrors.WithLabelValues(category).Inc()
}

// RecordProbe records a diagnostic probe outcome
func RecordProbe(transport string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	probes.WithLabelValues(transport, outcome).Inc()
}
