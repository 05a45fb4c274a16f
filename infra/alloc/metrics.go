package alloc

import (
	"github.com/prometheus/client_golang/prometheus"

	"wsalloc/domain/workspace"
)

// Metrics instruments another allocator with prometheus counters. One
// Metrics value covers all three spaces; wrap each space with
// Space(...) to get a workspace.Allocator that records under that
// space's label.
type Metrics struct {
	allocsTotal *prometheus.CounterVec
	freesTotal  *prometheus.CounterVec
	allocFails  *prometheus.CounterVec
	bytesTotal  *prometheus.CounterVec
	bytesInUse  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		allocsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsalloc",
			Name:      "allocs_total",
			Help:      "Workspace buffer allocations per memory space.",
		}, []string{"space"}),
		freesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsalloc",
			Name:      "frees_total",
			Help:      "Workspace buffer frees per memory space.",
		}, []string{"space"}),
		allocFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsalloc",
			Name:      "alloc_failures_total",
			Help:      "Failed allocations per memory space.",
		}, []string{"space"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsalloc",
			Name:      "allocated_bytes_total",
			Help:      "Cumulative bytes handed out per memory space.",
		}, []string{"space"}),
		bytesInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wsalloc",
			Name:      "bytes_in_use",
			Help:      "Bytes currently allocated and not freed, per memory space.",
		}, []string{"space"}),
	}
	if reg != nil {
		reg.MustRegister(m.allocsTotal, m.freesTotal, m.allocFails, m.bytesTotal, m.bytesInUse)
	}
	return m
}

// Space wraps inner so its traffic is recorded under the given space label.
func (m *Metrics) Space(s workspace.SpaceID, inner workspace.Allocator) workspace.Allocator {
	return &metricsSpace{m: m, label: s.String(), inner: inner}
}

type metricsSpace struct {
	m     *Metrics
	label string
	inner workspace.Allocator
}

func (s *metricsSpace) Alloc(size, align uint64) ([]byte, error) {
	buf, err := s.inner.Alloc(size, align)
	if err != nil {
		s.m.allocFails.WithLabelValues(s.label).Inc()
		return nil, err
	}
	s.m.allocsTotal.WithLabelValues(s.label).Inc()
	s.m.bytesTotal.WithLabelValues(s.label).Add(float64(size))
	s.m.bytesInUse.WithLabelValues(s.label).Add(float64(size))
	return buf, nil
}

func (s *metricsSpace) Free(buf []byte, size, align uint64) {
	s.inner.Free(buf, size, align)
	s.m.freesTotal.WithLabelValues(s.label).Inc()
	s.m.bytesInUse.WithLabelValues(s.label).Sub(float64(size))
}
