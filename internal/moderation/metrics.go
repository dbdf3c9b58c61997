package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casguard_events_handled",
	Help: "Number of chat events handled by type",
}, []string{"type"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casguard_actions_taken",
	Help: "Number of moderation actions taken",
}, []string{"action", "source"})

var sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casguard_side_effect_failures",
	Help: "Number of failed platform calls after an action was committed",
}, []string{"call"})

var sweepCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "casguard_recheck_sweeps",
	Help: "Number of completed recheck sweeps",
})
