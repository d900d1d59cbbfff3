package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ideaflow",
	Subsystem: "realtime",
	Name:      "pushes_total",
	Help:      "Realtime push outcomes per client or per attempt.",
}, []string{"result"})

var connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ideaflow",
	Subsystem: "realtime",
	Name:      "connections_active",
	Help:      "Open websocket connections.",
})
