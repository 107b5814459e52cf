package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_ReusedByKey(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("x_total", "help", `k="v"`)
	b := c.Counter("x_total", "help", `k="v"`)
	a.Inc()
	b.Add(2)
	if a != b || a.Value() != 3 {
		t.Fatalf("expected shared counter with value 3, got %d", a.Value())
	}
}

func TestGauge_IncDec(t *testing.T) {
	c := NewMetricsCollector()
	g := c.Gauge("g", "help", "")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("expected 1, got %d", g.Value())
	}
}

func TestRender_PrometheusFormat(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("relay_total", "Relayed", `outcome="ok"`).Inc()
	c.Counter("relay_total", "Relayed", `outcome="ignored"`).Add(2)
	h := c.Histogram("lat_seconds", "Latency", "", []float64{1, 0.5})
	h.Observe(0.7)

	out := c.Render()
	for _, want := range []string{
		"# TYPE relay_total counter",
		`relay_total{outcome="ok"} 1`,
		`relay_total{outcome="ignored"} 2`,
		`lat_seconds_bucket{le="0.5"} 0`,
		`lat_seconds_bucket{le="1"} 1`,
		`lat_seconds_bucket{le="+Inf"} 1`,
		"lat_seconds_count 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
	if strings.Count(out, "# HELP relay_total") != 1 {
		t.Error("HELP should be written once per metric name")
	}
}

func TestHandler_ContentType(t *testing.T) {
	c := NewMetricsCollector()
	rr := httptest.NewRecorder()
	c.Handler()(rr, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "wabridge_uptime_seconds") {
		t.Fatal("expected uptime gauge")
	}
}

func TestHelpers_RegisterLabelledSeries(t *testing.T) {
	WebhookEvent("ignored")
	Fallback("invalid_json")
	Send("text", "ok")
	out := Collector.Render()
	for _, want := range []string{
		`wabridge_webhook_events_total{outcome="ignored"}`,
		`wabridge_fallback_replies_total{reason="invalid_json"}`,
		`wabridge_sends_total{type="text",result="ok"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}
