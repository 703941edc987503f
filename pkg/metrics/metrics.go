package metrics

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/zhangyunhao116/skipmap"
)

// Collector captures counters, gauges and histograms.
type Collector interface {
	IncCounter(name string, labels map[string]string, delta float64)
	SetGauge(name string, labels map[string]string, value float64)
	ObserveHistogram(name string, labels map[string]string, value float64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, map[string]string, float64)       {}
func (Nop) SetGauge(string, map[string]string, float64)         {}
func (Nop) ObserveHistogram(string, map[string]string, float64) {}

type kind uint8

const (
	counterKind kind = iota
	gaugeKind
	histogramKind
)

type series struct {
	mu    sync.Mutex
	kind  kind
	name  string
	label string
	value float64
	count uint64
}

// Registry is an in-memory Collector. Series are kept ordered by name and
// labels so the exposition output is stable.
type Registry struct {
	series *skipmap.FuncMap[string, *series]
}

func NewRegistry() *Registry {
	return &Registry{
		series: skipmap.NewFunc[string, *series](func(a, b string) bool {
			return a < b
		}),
	}
}

func (r *Registry) IncCounter(name string, labels map[string]string, delta float64) {
	s := r.get(counterKind, name, labels)
	s.mu.Lock()
	s.value += delta
	s.mu.Unlock()
}

func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	s := r.get(gaugeKind, name, labels)
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

func (r *Registry) ObserveHistogram(name string, labels map[string]string, value float64) {
	s := r.get(histogramKind, name, labels)
	s.mu.Lock()
	s.value += value
	s.count++
	s.mu.Unlock()
}

// Value returns the current value of a counter or gauge, or the sum of a
// histogram.
func (r *Registry) Value(name string, labels map[string]string) (float64, bool) {
	s, ok := r.series.Load(seriesKey(name, formatLabels(labels)))
	if !ok {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, true
}

// WriteText writes every series in a Prometheus-like text format.
func (r *Registry) WriteText(w io.Writer) error {
	var err error
	r.series.Range(func(_ string, s *series) bool {
		s.mu.Lock()
		value, count := s.value, s.count
		s.mu.Unlock()

		if s.kind == histogramKind {
			_, err = fmt.Fprintf(w, "%s_sum%s %g\n%s_count%s %d\n", s.name, s.label, value, s.name, s.label, count)
		} else {
			_, err = fmt.Fprintf(w, "%s%s %g\n", s.name, s.label, value)
		}
		return err == nil
	})
	return err
}

func (r *Registry) get(k kind, name string, labels map[string]string) *series {
	label := formatLabels(labels)
	key := seriesKey(name, label)
	if s, ok := r.series.Load(key); ok {
		return s
	}
	s, _ := r.series.LoadOrStore(key, &series{kind: k, name: name, label: label})
	return s
}

func seriesKey(name, label string) string {
	return name + label
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := slices.Sorted(maps.Keys(labels))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
