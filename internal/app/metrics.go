package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ideaTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ideaflow",
		Subsystem: "ideas",
		Name:      "transitions_total",
		Help:      "Idea status transitions, by target status.",
	}, []string{"status"})

	mergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ideaflow",
		Subsystem: "ideas",
		Name:      "merges_total",
		Help:      "Merge attempts, by result.",
	}, []string{"result"})
)
