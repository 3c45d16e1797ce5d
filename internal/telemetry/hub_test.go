package telemetry

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rjboer/GoSyspower/internal/logging"
)

func newTestHub() *Hub {
	return NewHub(2, logging.New(logging.Debug, logging.Text, io.Discard))
}

func TestHubHistoryIsBounded(t *testing.T) {
	hub := newTestHub()
	for i := 0; i < 5; i++ {
		hub.ReportTemplate(TemplateStats{Antenna: "ea01", Pol: i})
	}
	h := hub.History()
	if len(h) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(h))
	}
	if h[0].Stats.Pol != 3 || h[1].Stats.Pol != 4 {
		t.Fatalf("expected newest entries kept, got %+v", h)
	}
}

func TestHandleTemplatesFiltersByAntenna(t *testing.T) {
	hub := newTestHub()
	hub.SetCurves([]Curve{
		{Antenna: "ea01", Baseband: 0, Times: []float64{1}, Values: []float64{1}, Mask: []bool{false}},
		{Antenna: "ea02", Baseband: 1, Times: []float64{1}, Values: []float64{0}, Mask: []bool{true}},
	})

	rr := httptest.NewRecorder()
	NewHandler(hub, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/templates?antenna=ea02", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var curves []Curve
	if err := json.NewDecoder(rr.Body).Decode(&curves); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(curves) != 1 || curves[0].Antenna != "ea02" || !curves[0].Mask[0] {
		t.Fatalf("unexpected curves %+v", curves)
	}
}

func TestHandlersRejectPost(t *testing.T) {
	h := NewHandler(newTestHub(), nil)
	for _, path := range []string{"/api/history", "/api/outcomes", "/api/templates"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", path, rr.Code)
		}
	}
}

func TestPromReporterMetrics(t *testing.T) {
	p := NewPromReporter()
	p.ReportTemplate(TemplateStats{Antenna: "ea01", Baseband: 1, Pol: 0, Samples: 200, Flagged: 50, TemplateLen: 25, TemplateMasked: 5})
	p.ReportOutcome(OutcomeStats{Table: "rq.cal", Role: "gain", Applied: true, RowsFlagged: 3})

	if got := testutil.ToFloat64(p.flagged.WithLabelValues("ea01", "1", "0")); got != 0.25 {
		t.Fatalf("flagged ratio = %v", got)
	}
	if got := testutil.ToFloat64(p.masked.WithLabelValues("ea01", "1", "0")); got != 0.2 {
		t.Fatalf("masked ratio = %v", got)
	}
	if got := testutil.ToFloat64(p.applied.WithLabelValues("rq.cal", "gain")); got != 1 {
		t.Fatalf("apply_success = %v", got)
	}

	path := filepath.Join(t.TempDir(), "syspower.prom")
	if err := p.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "syspower_template_samples_total") {
		t.Fatalf("textfile missing metrics:\n%s", data)
	}

	rr := httptest.NewRecorder()
	NewHandler(newTestHub(), p.Registry()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "syspower_apply_success") {
		t.Fatalf("/metrics missing apply_success")
	}
}

func TestStdoutReporterWarnsOnFailedWrite(t *testing.T) {
	var buf bytes.Buffer
	r := NewStdoutReporter(logging.New(logging.Info, logging.Text, &buf))
	MultiReporter{r, nil}.ReportOutcome(OutcomeStats{Table: "rq.cal", Role: "gain", Reason: "shape mismatch"})
	if !strings.Contains(buf.String(), "[WARN] table not updated") || !strings.Contains(buf.String(), "shape mismatch") {
		t.Fatalf("unexpected log %q", buf.String())
	}
}
