package httpapi

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

type metricPoint struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value,omitempty"`
	Count      uint64            `json:"count,omitempty"`
	Sum        float64           `json:"sum,omitempty"`
}

// handleMetrics collects the in-process reader and flattens it to a list of
// points. Histograms report count and sum only.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var rm metricdata.ResourceMetrics
	if err := s.Metrics.Collect(r.Context(), &rm); err != nil {
		s.Logger.Error("metrics_collect_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "metrics error")
		return
	}
	writeJSON(w, http.StatusOK, flatten(rm))
}

func flatten(rm metricdata.ResourceMetrics) []metricPoint {
	out := []metricPoint{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, metricPoint{Name: m.Name, Attributes: attrs(dp.Attributes), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, metricPoint{Name: m.Name, Attributes: attrs(dp.Attributes), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, metricPoint{Name: m.Name, Attributes: attrs(dp.Attributes), Count: dp.Count, Sum: dp.Sum})
				}
			}
		}
	}
	return out
}

func attrs(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	m := make(map[string]string, set.Len())
	for _, kv := range set.ToSlice() {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}
