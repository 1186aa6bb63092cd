package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// FeedPollsTotal counts escalation feed refreshes by result.
	FeedPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callreview",
		Subsystem: "feed",
		Name:      "polls_total",
		Help:      "Escalation feed refreshes, labeled by result (success, error, rejected).",
	}, []string{"result"})

	// FeedCalls is the number of flagged calls in the current snapshot.
	FeedCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "callreview",
		Subsystem: "feed",
		Name:      "flagged_calls",
		Help:      "Number of flagged calls in the current feed snapshot.",
	})

	// DataQualityErrorsTotal counts feed records that failed validation.
	DataQualityErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callreview",
		Subsystem: "feed",
		Name:      "data_quality_errors_total",
		Help:      "Feed or transcript records that broke an ingestion invariant, labeled by kind.",
	}, []string{"kind"})

	// AudioHandlesLive must never exceed 1.
	AudioHandlesLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "callreview",
		Subsystem: "playback",
		Name:      "audio_handles_live",
		Help:      "Audio handles currently holding a loaded resource.",
	})

	// AudioLoadsTotal counts audio loads by result.
	AudioLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callreview",
		Subsystem: "playback",
		Name:      "audio_loads_total",
		Help:      "Audio loads, labeled by result (ready, error, cancelled).",
	}, []string{"result"})

	// SessionTransitionsTotal counts review session state transitions by target state.
	SessionTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callreview",
		Subsystem: "review",
		Name:      "session_transitions_total",
		Help:      "Review session transitions, labeled by the state entered.",
	}, []string{"state"})

	// FeedbackSubmissionsTotal counts feedback submissions by result.
	FeedbackSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callreview",
		Subsystem: "feedback",
		Name:      "submissions_total",
		Help:      "Coaching feedback submissions, labeled by result (accepted, invalid, failed).",
	}, []string{"result"})
)

// Register registers collectors on the default registry. Safe to call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			FeedPollsTotal,
			FeedCalls,
			DataQualityErrorsTotal,
			AudioHandlesLive,
			AudioLoadsTotal,
			SessionTransitionsTotal,
			FeedbackSubmissionsTotal,
		)
	})
}
