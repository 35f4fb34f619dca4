package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safeboda",
		Name:      "availability_cache_lookups_total",
		Help:      "Availability cache lookups grouped by outcome.",
	}, []string{"outcome"})

	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "safeboda",
		Name:      "availability_cache_invalidations_total",
		Help:      "Total availability cache invalidations issued.",
	})

	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safeboda",
		Name:      "availability_cache_store_errors_total",
		Help:      "Cache store failures absorbed by the fail-open path.",
	}, []string{"op"})
)
