package bufferpool

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "novabuf"
	metricsSubsystem = "bufferpool"
)

// Metrics are the pool's Prometheus collectors. With a nil registerer
// they still count but are not exported.
type Metrics struct {
	Hits           prometheus.Counter
	Misses         prometheus.Counter
	Evictions      prometheus.Counter
	WriteBacks     prometheus.Counter
	BufferExceeded prometheus.Counter

	PinnedFrames prometheus.GaugeFunc
	DirtyFrames  prometheus.GaugeFunc
	ValidFrames  prometheus.GaugeFunc
}

// newMetrics builds the collectors unregistered, then registers them on
// reg one by one. On a conflict the ones already registered are removed
// again and the error is returned.
func newMetrics(reg prometheus.Registerer, m *Manager) (*Metrics, error) {
	f := promauto.With(nil)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string, value func(Stats) int) prometheus.GaugeFunc {
		return f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(m.Stats())) })
	}

	mt := &Metrics{
		Hits:           counter("hits_total", "Page fetches served from the pool."),
		Misses:         counter("misses_total", "Page fetches that had to read from the file."),
		Evictions:      counter("evictions_total", "Valid frames reclaimed by the clock."),
		WriteBacks:     counter("writebacks_total", "Dirty frames written back to their file."),
		BufferExceeded: counter("buffer_exceeded_total", "Frame allocations that found every frame pinned."),

		PinnedFrames: gauge("pinned_frames", "Frames with a non-zero pin count.", func(s Stats) int { return s.Pinned }),
		DirtyFrames:  gauge("dirty_frames", "Frames holding unwritten changes.", func(s Stats) int { return s.Dirty }),
		ValidFrames:  gauge("valid_frames", "Frames holding a cached page.", func(s Stats) int { return s.Valid }),
	}
	if reg == nil {
		return mt, nil
	}

	cs := mt.collectors()
	for i, c := range cs {
		if err := reg.Register(c); err != nil {
			for _, done := range cs[:i] {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("bufferpool: register metrics: %w", err)
		}
	}
	return mt, nil
}

func (mt *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		mt.Hits, mt.Misses, mt.Evictions, mt.WriteBacks, mt.BufferExceeded,
		mt.PinnedFrames, mt.DirtyFrames, mt.ValidFrames,
	}
}

func (m *Manager) Metrics() *Metrics { return m.metrics }
