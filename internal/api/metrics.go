package api

import (
	"net/http"

	"github.com/SrJCBM/BDD-Avanzada/internal/store"
)

// MetricsHandler returns current store metrics as JSON.
// Only works if the server was initialized with an InstrumentedStore.
func MetricsHandler(instrumentedStore *store.InstrumentedStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := instrumentedStore.GetMetrics()

		ops := make(map[string]uint64, len(metrics))
		errs := make(map[string]uint64, len(metrics))
		latency := make(map[string]string, len(metrics))
		for op, m := range metrics {
			ops[op] = m.Count
			errs[op] = m.Errors
			latency[op] = m.AvgLatency.String()
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"operations":  ops,
			"errors":      errs,
			"avg_latency": latency,
		})
	}
}
