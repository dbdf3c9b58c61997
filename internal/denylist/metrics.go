package denylist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var denylistSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "casguard_denylist_size",
	Help: "Number of account ids in the local denylist",
})

var refreshCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casguard_denylist_refreshes",
	Help: "Number of denylist refresh attempts by result",
}, []string{"result"})
