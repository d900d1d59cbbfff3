package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ideaflow",
		Subsystem: "notify",
		Name:      "created_total",
		Help:      "Notifications persisted, by type.",
	}, []string{"type"})

	fanoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ideaflow",
		Subsystem: "notify",
		Name:      "fanout_failures_total",
		Help:      "Recipients that could not be notified during a fan-out.",
	})

	fanoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ideaflow",
		Subsystem: "notify",
		Name:      "fanout_duration_seconds",
		Help:      "Wall time of one NotifyAll call.",
		Buckets:   prometheus.DefBuckets,
	})
)
