package configanalyzer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchesTotal counts Match calls.
	// Labels: outcome (matched, no_match, error)
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "configanalyzer",
			Name:      "matches_total",
			Help:      "Total number of configuration match attempts by outcome",
		},
		[]string{"outcome"},
	)

	// QueryCacheTotal counts corpus query cache lookups.
	// Labels: result (hit, miss)
	QueryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "configanalyzer",
			Name:      "query_cache_total",
			Help:      "Total number of corpus query cache lookups",
		},
		[]string{"result"},
	)
)
