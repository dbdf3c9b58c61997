package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "casguard_classifier_verdicts",
	Help: "Number of classifications by deciding step",
}, []string{"step"})
