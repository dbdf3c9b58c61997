package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var taskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casguard_task_runs",
	Help: "Number of background task runs by result",
}, []string{"task", "result"})

var taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "casguard_task_duration_sec",
	Help: "Duration of background task runs",
}, []string{"task"})
