package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of players waiting for an opponent.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizduel",
		Name:      "matchmaking_queue_depth",
		Help:      "Number of players currently waiting in the matchmaking queue.",
	})

	// MatchesStarted counts sessions created by the matchmaking queue.
	MatchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizduel",
		Name:      "matches_started_total",
		Help:      "Number of matches started.",
	})

	// MatchesFinished counts finished sessions by outcome.
	MatchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizduel",
		Name:      "matches_finished_total",
		Help:      "Number of matches finished, by outcome.",
	}, []string{"outcome"})
)
