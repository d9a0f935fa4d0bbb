package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageResponses counts forwarding responses by stage and status code.
	StageResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jist_stage_responses_total",
			Help: "Responses received from downstream forwarding stages",
		},
		[]string{"stage", "code"},
	)

	// ItemsSkipped counts feed items dropped before AMP resolution.
	ItemsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jist_items_skipped_total",
			Help: "Feed items skipped by reason",
		},
		[]string{"reason"},
	)

	// FeedFailures counts feeds that contributed nothing to a run.
	FeedFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jist_feed_failures_total",
			Help: "Feeds abandoned for a run",
		},
		[]string{"domain"},
	)

	AmpQuotaCooldowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jist_amp_quota_cooldowns_total",
		Help: "AMP batch cooldowns caused by quota or API envelope errors",
	})

	DedupAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jist_dedup_anomalies_total",
		Help: "Existence lookups that returned an unexpected result",
	})

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jist_runs_total",
			Help: "Ingestion runs by result",
		},
		[]string{"result"},
	)
)

// ObserveStage records one downstream response.
func ObserveStage(stage string, code int) {
	StageResponses.WithLabelValues(stage, strconv.Itoa(code)).Inc()
}
