package reputation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checkCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casguard_reputation_checks",
	Help: "Number of reputation checks by result",
}, []string{"result"})

var checkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "casguard_reputation_check_duration_sec",
	Help: "Duration of remote reputation requests",
})

var breakerOpenCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "casguard_reputation_breaker_opened",
	Help: "Number of times the reputation circuit breaker was opened",
})
