package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New("")
	c := r.Counter("runs_total", "Completed runs")
	if c.Value() != 0 {
		t.Fatalf("fresh counter = %d, want 0", c.Value())
	}
	c.Inc()
	c.Inc()
	c.Add(5)
	if c.Value() != 7 {
		t.Fatalf("counter = %d, want 7", c.Value())
	}

	// Re-registering the same name and labels hits the same series.
	again := r.Counter("runs_total", "")
	if again.Value() != 7 {
		t.Fatalf("re-registered counter = %d, want 7", again.Value())
	}
}

func TestCounterLabels(t *testing.T) {
	r := New("")
	ok := r.Counter("runs_total", "", "result", "ok")
	failed := r.Counter("runs_total", "", "result", "error")
	ok.Add(3)
	failed.Inc()

	if ok.Value() != 3 || failed.Value() != 1 {
		t.Fatalf("label series crossed: ok=%d error=%d", ok.Value(), failed.Value())
	}
	if r.Counter("runs_total", "", "result", "ok").Value() != 3 {
		t.Fatal("same label set should resolve to the same series")
	}
}

func TestGauge(t *testing.T) {
	r := New("")
	g := r.Gauge("last_run_items", "")
	g.Set(42)
	if g.Value() != 42 {
		t.Fatalf("gauge = %g, want 42", g.Value())
	}
	g.Set(1.5)
	if g.Value() != 1.5 {
		t.Fatalf("gauge = %g, want 1.5", g.Value())
	}

	at := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	g.SetTime(at)
	if g.Value() != float64(at.Unix()) {
		t.Fatalf("gauge = %g, want %d", g.Value(), at.Unix())
	}
}

func TestHistogram(t *testing.T) {
	r := New("")
	h := r.Histogram("run_duration_seconds", "", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)
	h.Observe(2.0)

	_, counts, sum, total := h.s.hist.snapshot()
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	if counts[0] != 1 || counts[1] != 1 || counts[2] != 1 {
		t.Fatalf("bucket counts = %v, want one per bucket", counts)
	}
	if want := 0.05 + 0.3 + 0.8 + 2.0; sum != want {
		t.Fatalf("sum = %g, want %g", sum, want)
	}
}

func TestHistogramSince(t *testing.T) {
	r := New("")
	h := r.Histogram("fetch_duration_seconds", "", nil)
	h.Since(time.Now().Add(-100 * time.Millisecond))
	if _, _, _, total := h.s.hist.snapshot(); total != 1 {
		t.Fatalf("total = %d, want 1 observation", total)
	}
}

func TestRenderLabels(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"k"}, ""},
		{[]string{"result", "ok"}, `result="ok"`},
		{[]string{"result", "ok", "backend", "mongodb"}, `result="ok",backend="mongodb"`},
		{[]string{"a", "1", "b"}, `a="1"`},
	}
	for _, tt := range tests {
		if got := renderLabels(tt.in); got != tt.want {
			t.Errorf("renderLabels(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	r := New("stocksync")
	r.Counter("runs_total", "Completed runs", "result", "ok").Add(10)
	r.Counter("runs_total", "", "result", "error").Add(2)
	r.Gauge("last_run_items", "Items in the last run").Set(512)
	h := r.Histogram("run_duration_seconds", "Run latency", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)

	out := r.Render()

	for _, want := range []string{
		"# HELP stocksync_runs_total Completed runs",
		"# TYPE stocksync_runs_total counter",
		`stocksync_runs_total{result="error"} 2`,
		`stocksync_runs_total{result="ok"} 10`,
		"# TYPE stocksync_last_run_items gauge",
		"stocksync_last_run_items 512",
		"# TYPE stocksync_run_duration_seconds histogram",
		`stocksync_run_duration_seconds_bucket{le="0.1"} 1`,
		`stocksync_run_duration_seconds_bucket{le="0.5"} 2`,
		`stocksync_run_duration_seconds_bucket{le="+Inf"} 2`,
		"stocksync_run_duration_seconds_sum 0.35",
		"stocksync_run_duration_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q, got:\n%s", want, out)
		}
	}

	// Label variants come sorted within their base name block.
	if strings.Index(out, `result="error"`) > strings.Index(out, `result="ok"`) {
		t.Error("labeled series should render in sorted order")
	}
}

func TestRenderLabeledHistogram(t *testing.T) {
	r := New("")
	r.Histogram("phase_duration_seconds", "", []float64{1}, "phase", "fetch").Observe(0.5)

	out := r.Render()
	for _, want := range []string{
		`phase_duration_seconds_bucket{phase="fetch",le="1"} 1`,
		`phase_duration_seconds_bucket{phase="fetch",le="+Inf"} 1`,
		`phase_duration_seconds_sum{phase="fetch"} 0.5`,
		`phase_duration_seconds_count{phase="fetch"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q, got:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New("stocksync")
	r.Counter("runs_total", "").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "stocksync_runs_total 1") {
		t.Errorf("handler body missing metric:\n%s", rec.Body.String())
	}
}
