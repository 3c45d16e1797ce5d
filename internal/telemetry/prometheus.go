package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PromReporter records run telemetry as Prometheus metrics.
type PromReporter struct {
	registry *prometheus.Registry
	samples  *prometheus.CounterVec
	flagged  *prometheus.GaugeVec
	masked   *prometheus.GaugeVec
	applied  *prometheus.GaugeVec
	rows     *prometheus.GaugeVec
}

// NewPromReporter registers the syspower metrics on a fresh registry.
func NewPromReporter() *PromReporter {
	labels := []string{"antenna", "baseband", "pol"}
	p := &PromReporter{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syspower",
			Name:      "template_samples_total",
			Help:      "Spectral-window samples read per antenna, baseband and polarization.",
		}, labels),
		flagged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "syspower",
			Name:      "template_flagged_ratio",
			Help:      "Fraction of samples rejected by the robust filters.",
		}, labels),
		masked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "syspower",
			Name:      "template_masked_ratio",
			Help:      "Fraction of template samples left masked.",
		}, labels),
		applied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "syspower",
			Name:      "apply_success",
			Help:      "1 when the table write-back succeeded.",
		}, []string{"table", "role"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "syspower",
			Name:      "apply_rows_flagged",
			Help:      "Rows whose flag was set by the template.",
		}, []string{"table", "role"}),
	}
	p.registry.MustRegister(p.samples, p.flagged, p.masked, p.applied, p.rows)
	return p
}

// Registry exposes the underlying registry for serving or export.
func (p *PromReporter) Registry() *prometheus.Registry { return p.registry }

// WriteTextfile writes the metrics in the node-exporter textfile format.
func (p *PromReporter) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

func (p *PromReporter) ReportTemplate(s TemplateStats) {
	lv := []string{s.Antenna, strconv.Itoa(s.Baseband), strconv.Itoa(s.Pol)}
	p.samples.WithLabelValues(lv...).Add(float64(s.Samples))
	if s.Samples > 0 {
		p.flagged.WithLabelValues(lv...).Set(float64(s.Flagged) / float64(s.Samples))
	}
	if s.TemplateLen > 0 {
		p.masked.WithLabelValues(lv...).Set(float64(s.TemplateMasked) / float64(s.TemplateLen))
	}
}

func (p *PromReporter) ReportOutcome(o OutcomeStats) {
	v := 0.0
	if o.Applied {
		v = 1
	}
	p.applied.WithLabelValues(o.Table, o.Role).Set(v)
	p.rows.WithLabelValues(o.Table, o.Role).Set(float64(o.RowsFlagged))
}
