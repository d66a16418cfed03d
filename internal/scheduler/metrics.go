package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finpush_scheduler_ticks_total",
			Help: "Scheduler ticks by result (ok|lease_held|error)",
		},
		[]string{"result"},
	)

	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finpush_scheduler_dispatches_total",
			Help: "Scheduled notifications handed to the dispatcher",
		},
		[]string{"category"},
	)
)
