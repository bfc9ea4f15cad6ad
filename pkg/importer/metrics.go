package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hazyhaar/geotree/pkg/resolve"
)

var (
	importRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geotree",
		Subsystem: "import",
		Name:      "records_total",
		Help:      "Records processed by the importer broken down by kind and outcome.",
	}, []string{"kind", "outcome"})

	nodesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geotree",
		Name:      "nodes_created_total",
		Help:      "Geographic nodes created by imports.",
	})

	aliasesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geotree",
		Name:      "aliases_created_total",
		Help:      "Aliases created by imports.",
	})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geotree",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Wall time of one adapter run.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"adapter"})

	sourceUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "geotree",
		Subsystem: "source",
		Name:      "up",
		Help:      "1 when the last availability check of a source succeeded.",
	}, []string{"adapter"})
)

func observeOutcome(kind string, o resolve.Outcome) {
	importRecords.WithLabelValues(kind, o.String()).Inc()
}

// observeStats adds what the resolver created since before.
func observeStats(before, after resolve.Stats) {
	if d := after.NodesCreated - before.NodesCreated; d > 0 {
		nodesCreated.Add(float64(d))
	}
	if d := after.AliasesCreated - before.AliasesCreated; d > 0 {
		aliasesCreated.Add(float64(d))
	}
}

func observeCheck(r CheckResult) {
	v := 0.0
	if r.OK() {
		v = 1
	}
	sourceUp.WithLabelValues(r.AdapterID).Set(v)
}
