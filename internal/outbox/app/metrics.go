package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskengine",
			Name:      "tasks_processed_total",
			Help:      "Total number of claimed tasks processed by the dispatcher.",
		},
		[]string{"kind", "status"}, // status: success, failed, unknown_kind
	)
	taskDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskengine",
			Name:      "task_duration_seconds",
			Help:      "Duration of task handler execution.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
