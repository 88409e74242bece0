// Package metrics is a small Prometheus-text registry for job counters,
// gauges, and histograms. Series are registered with an optional label
// set and exposed through an HTTP handler in the text exposition format.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets cover request-to-run latencies in seconds.
var DefaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

type kind uint8

const (
	kindCounter kind = iota
	kindGauge
	kindHistogram
)

func (k kind) String() string {
	switch k {
	case kindCounter:
		return "counter"
	case kindGauge:
		return "gauge"
	default:
		return "histogram"
	}
}

// series is one (name, label set) pair and its value cell.
type series struct {
	base   string
	labels string // k="v",... without braces, empty when unlabeled
	kind   kind

	intVal  atomic.Int64  // counter
	bitsVal atomic.Uint64 // gauge, float64 bits
	hist    *histogram
}

// Counter is a monotonically increasing series.
type Counter struct{ s *series }

func (c *Counter) Inc()         { c.s.intVal.Add(1) }
func (c *Counter) Add(n int64)  { c.s.intVal.Add(n) }
func (c *Counter) Value() int64 { return c.s.intVal.Load() }

// Gauge is a float-valued series that can move both ways.
type Gauge struct{ s *series }

func (g *Gauge) Set(v float64)  { g.s.bitsVal.Store(math.Float64bits(v)) }
func (g *Gauge) Value() float64 { return math.Float64frombits(g.s.bitsVal.Load()) }

// SetTime stores t as Unix seconds.
func (g *Gauge) SetTime(t time.Time) { g.Set(float64(t.Unix())) }

// Histogram distributes observed values over fixed buckets. Bucket lines
// are accumulated cumulatively at render time.
type Histogram struct{ s *series }

func (h *Histogram) Observe(v float64) { h.s.hist.observe(v) }

// Since observes the seconds elapsed from t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

type histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64
	sum    float64
	total  uint64
}

func (h *histogram) observe(v float64) {
	h.mu.Lock()
	h.sum += v
	h.total++
	for i, b := range h.bounds {
		if v <= b {
			h.counts[i]++
			break
		}
	}
	h.mu.Unlock()
}

func (h *histogram) snapshot() ([]float64, []uint64, float64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make([]uint64, len(h.counts))
	copy(counts, h.counts)
	return h.bounds, counts, h.sum, h.total
}

// Registry holds every registered series, grouped under their base name
// for rendering. A namespace, when set, prefixes each base name.
type Registry struct {
	namespace string

	mu     sync.RWMutex
	series map[string]*series
	order  []string // base names in registration order
	help   map[string]string
	kinds  map[string]kind
}

// New creates a Registry. The namespace may be empty.
func New(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		series:    make(map[string]*series),
		help:      make(map[string]string),
		kinds:     make(map[string]kind),
	}
}

// Counter registers (or returns) the counter series for name plus the
// given key/value label pairs.
func (r *Registry) Counter(name, help string, labels ...string) *Counter {
	return &Counter{s: r.lookup(name, help, kindCounter, nil, labels)}
}

// Gauge registers (or returns) the gauge series.
func (r *Registry) Gauge(name, help string, labels ...string) *Gauge {
	return &Gauge{s: r.lookup(name, help, kindGauge, nil, labels)}
}

// Histogram registers (or returns) the histogram series. A nil buckets
// slice selects DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64, labels ...string) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return &Histogram{s: r.lookup(name, help, kindHistogram, buckets, labels)}
}

func (r *Registry) lookup(name, help string, k kind, buckets []float64, labels []string) *series {
	base := name
	if r.namespace != "" {
		base = r.namespace + "_" + name
	}
	rendered := renderLabels(labels)
	key := base + "\x00" + rendered

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.series[key]; ok {
		return s
	}

	s := &series{base: base, labels: rendered, kind: k}
	if k == kindHistogram {
		bounds := make([]float64, len(buckets))
		copy(bounds, buckets)
		sort.Float64s(bounds)
		s.hist = &histogram{bounds: bounds, counts: make([]uint64, len(bounds))}
	}
	r.series[key] = s
	if _, seen := r.kinds[base]; !seen {
		r.order = append(r.order, base)
		r.kinds[base] = k
	}
	if help != "" {
		r.help[base] = help
	}
	return s
}

// renderLabels formats key/value pairs as k="v",... dropping a trailing
// odd key.
func renderLabels(kvs []string) string {
	if len(kvs) < 2 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(kvs); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", kvs[i], kvs[i+1])
	}
	return b.String()
}

// Render produces the text exposition of every series, grouped by base
// name with labeled variants in sorted order.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grouped := make(map[string][]*series, len(r.order))
	for _, s := range r.series {
		grouped[s.base] = append(grouped[s.base], s)
	}

	var b strings.Builder
	for _, base := range r.order {
		group := grouped[base]
		sort.Slice(group, func(i, j int) bool { return group[i].labels < group[j].labels })

		if h := r.help[base]; h != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", base, h)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", base, r.kinds[base])

		for _, s := range group {
			switch s.kind {
			case kindCounter:
				fmt.Fprintf(&b, "%s%s %d\n", base, braced(s.labels), s.intVal.Load())
			case kindGauge:
				fmt.Fprintf(&b, "%s%s %g\n", base, braced(s.labels), math.Float64frombits(s.bitsVal.Load()))
			case kindHistogram:
				writeHistogram(&b, base, s)
			}
		}
	}
	return b.String()
}

func writeHistogram(b *strings.Builder, base string, s *series) {
	bounds, counts, sum, total := s.hist.snapshot()
	var cum uint64
	for i, bound := range bounds {
		cum += counts[i]
		le := fmt.Sprintf(`le="%g"`, bound)
		fmt.Fprintf(b, "%s_bucket%s %d\n", base, braced(joinLabels(s.labels, le)), cum)
	}
	fmt.Fprintf(b, "%s_bucket%s %d\n", base, braced(joinLabels(s.labels, `le="+Inf"`)), total)
	fmt.Fprintf(b, "%s_sum%s %g\n", base, braced(s.labels), sum)
	fmt.Fprintf(b, "%s_count%s %d\n", base, braced(s.labels), total)
}

func joinLabels(a, b string) string {
	if a == "" {
		return b
	}
	return a + "," + b
}

func braced(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

// Handler serves the rendered registry.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}
