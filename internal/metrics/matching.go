package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 评分调用结果标签。
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
)

// 缓存查询结果标签。
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

var (
	scoringCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobmatch",
			Subsystem: "scoring",
			Name:      "calls_total",
			Help:      "评分后端调用次数，按意图与结果（ok/fallback）区分。",
		},
		[]string{"intent", "outcome"},
	)

	scoringCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobmatch",
			Subsystem: "scoring",
			Name:      "call_duration_seconds",
			Help:      "评分后端调用耗时（秒）。",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"intent"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobmatch",
			Subsystem: "matching",
			Name:      "cache_lookups_total",
			Help:      "匹配结果缓存查询次数（hit/miss/stale）。",
		},
		[]string{"result"},
	)

	recomputeOffers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jobmatch",
			Subsystem: "matching",
			Name:      "recompute_offers",
			Help:      "单次重算参与评分的职位数量。",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// ObserveScoringCall 记录一次评分后端调用。
func ObserveScoringCall(intent, outcome string, elapsed time.Duration) {
	scoringCallsTotal.WithLabelValues(intent, outcome).Inc()
	scoringCallDuration.WithLabelValues(intent).Observe(elapsed.Seconds())
}

// IncCacheLookup 记录一次缓存查询。
func IncCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveRecomputeOffers 记录一次重算的职位数量。
func ObserveRecomputeOffers(n int) {
	recomputeOffers.Observe(float64(n))
}
