package resolve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_link_resolutions_total",
		Help: "Resolutions completed, by disposition.",
	}, []string{"disposition"})

	cacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_link_cache_total",
		Help: "Retrieval cache lookups, by result.",
	}, []string{"result"})

	strategyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_link_strategy_total",
		Help: "Registry search strategy attempts, by strategy and result.",
	}, []string{"strategy", "result"})

	dedupDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_link_dedup_dropped_total",
		Help: "Resolution requests dropped as duplicates.",
	})
)
