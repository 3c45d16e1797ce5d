package telemetry

import (
	"github.com/rjboer/GoSyspower/internal/logging"
)

// TemplateStats summarises the construction of one antenna/baseband/polarization template.
type TemplateStats struct {
	Antenna   string `json:"antenna"`
	AntennaID int    `json:"antennaId"`
	Baseband  int    `json:"baseband"`
	Pol       int    `json:"pol"`
	// Samples counts the spectral-window samples feeding the template.
	Samples       int `json:"samples"`
	OnlineFlagged int `json:"onlineFlagged"`
	// Flagged counts samples rejected by the filters, online flags excluded.
	Flagged        int `json:"flagged"`
	TemplateLen    int `json:"templateLen"`
	TemplateMasked int `json:"templateMasked"`
}

// OutcomeStats describes a table write-back.
type OutcomeStats struct {
	Table       string `json:"table"`
	Role        string `json:"role"`
	Applied     bool   `json:"applied"`
	Reason      string `json:"reason,omitempty"`
	Rows        int    `json:"rows"`
	RowsFlagged int    `json:"rowsFlagged"`
}

// Reporter captures run telemetry.
type Reporter interface {
	ReportTemplate(s TemplateStats)
	ReportOutcome(o OutcomeStats)
}

// StdoutReporter logs run telemetry.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	return StdoutReporter{logger: logging.OrDefault(logger)}
}

func (r StdoutReporter) ReportTemplate(s TemplateStats) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "antenna", Value: s.Antenna},
		{Key: "baseband", Value: s.Baseband},
		{Key: "pol", Value: s.Pol},
		{Key: "samples", Value: s.Samples},
	}
	if s.OnlineFlagged != 0 {
		fields = append(fields, logging.Field{Key: "online_flagged", Value: s.OnlineFlagged})
	}
	if s.Flagged != 0 {
		fields = append(fields, logging.Field{Key: "flagged", Value: s.Flagged})
	}
	if s.TemplateMasked != 0 {
		fields = append(fields, logging.Field{Key: "template_masked", Value: s.TemplateMasked})
	}
	r.logger.Info("template built", fields...)
}

func (r StdoutReporter) ReportOutcome(o OutcomeStats) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "table", Value: o.Table},
		{Key: "role", Value: o.Role},
		{Key: "rows", Value: o.Rows},
		{Key: "rows_flagged", Value: o.RowsFlagged},
	}
	if !o.Applied {
		r.logger.Warn("table not updated", append(fields, logging.Field{Key: "reason", Value: o.Reason})...)
		return
	}
	r.logger.Info("table updated", fields...)
}

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

func (m MultiReporter) ReportTemplate(s TemplateStats) {
	for _, r := range m {
		if r != nil {
			r.ReportTemplate(s)
		}
	}
}

func (m MultiReporter) ReportOutcome(o OutcomeStats) {
	for _, r := range m {
		if r != nil {
			r.ReportOutcome(o)
		}
	}
}
