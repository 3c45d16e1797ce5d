// Package syspower builds switched-power gain templates and applies them to
// a requantizer-gain calibration table.
//
// The switched-power difference divided by the requantizer gain tracks
// the relative system gain of each antenna. Load reads and normalizes it,
// Build turns the spectral windows of each baseband into one robust,
// smoothed template per polarization, and Apply scales the gain table by
// those templates and writes a diagnostic copy holding the templates
// themselves.
package syspower

import (
	"context"
	"errors"
	"fmt"

	"github.com/rjboer/GoSyspower/internal/dsp"
	"github.com/rjboer/GoSyspower/internal/flagging"
	"github.com/rjboer/GoSyspower/internal/logging"
	"github.com/rjboer/GoSyspower/internal/table"
	"github.com/rjboer/GoSyspower/internal/telemetry"
)

// ErrMalformedTable is returned when an input table has inconsistent columns.
var ErrMalformedTable = errors.New("syspower: malformed table")

// Column names of the switched-power, antenna and gain tables.
const (
	ColTime            = "TIME"
	ColAntennaID       = "ANTENNA_ID"
	ColSpwID           = "SPECTRAL_WINDOW_ID"
	ColSwitchedDiff    = "SWITCHED_DIFF"
	ColRequantizerGain = "REQUANTIZER_GAIN"
	ColName            = "NAME"
	ColAntenna1        = "ANTENNA1"
	ColFParam          = "FPARAM"
	ColFlag            = "FLAG"
)

// TemplateSuffix names the diagnostic table when Inputs.TemplateTable is empty.
const TemplateSuffix = ".template"

// Inputs names the tables of one run and the external flag information.
type Inputs struct {
	SysPowerTable string
	AntennaTable  string
	GainTable     string
	TemplateTable string
	// FluxWindow selects the samples used to normalize each series. Nil
	// normalizes over the whole observation.
	FluxWindow  *flagging.TimeRange
	OnlineFlags flagging.List
}

func (in Inputs) templateTable() string {
	if in.TemplateTable != "" {
		return in.TemplateTable
	}
	return in.GainTable + TemplateSuffix
}

// Template is the correction curve of one antenna, baseband and polarization.
// Series is aligned with Times.
type Template struct {
	AntennaID int
	Antenna   string
	Baseband  int
	Pol       int
	Times     []float64
	Series    dsp.Series
}

// Curve converts t for the telemetry hub.
// Masked samples are sent as zero.
func (t Template) Curve() telemetry.Curve {
	values := make([]float64, t.Series.Len())
	mask := make([]bool, t.Series.Len())
	for i, v := range t.Series.Values {
		if t.Series.Masked(i) {
			mask[i] = true
			continue
		}
		values[i] = v
	}
	return telemetry.Curve{
		Antenna:  t.Antenna,
		Baseband: t.Baseband,
		Pol:      t.Pol,
		Times:    t.Times,
		Values:   values,
		Mask:     mask,
	}
}

// Outcome reports whether a table write-back took effect. Failures carry
// the reason and leave the decision to continue with the caller.
type Outcome struct {
	Applied bool
	Reason  string
}

// Result is the product of a full run.
type Result struct {
	Templates []Template
	Gain      Outcome
	// Diagnostic is the outcome of writing the template table.
	Diagnostic  Outcome
	Rows        int
	RowsFlagged int
}

// Corrector runs the switched-power correction against a table store.
type Corrector struct {
	store    table.Store
	reporter telemetry.Reporter
	logger   logging.Logger
	cfg      Config
}

// New validates cfg and builds a Corrector. reporter may be nil.
func New(store table.Store, reporter telemetry.Reporter, logger logging.Logger, cfg Config) (*Corrector, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil table store", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Corrector{
		store:    store,
		reporter: reporter,
		logger:   logging.OrDefault(logger).With(logging.F("subsystem", "syspower")),
		cfg:      cfg,
	}, nil
}

// Config returns the settings in use.
func (c *Corrector) Config() Config { return c.cfg }

// Prepare runs Load, Build and Apply. A returned error means nothing was
// written; write-back failures are reported in the Result instead.
func (c *Corrector) Prepare(ctx context.Context, in Inputs) (Result, error) {
	obs, err := c.Load(ctx, in)
	if err != nil {
		return Result{}, err
	}
	templates, err := c.Build(ctx, obs, in.OnlineFlags)
	if err != nil {
		return Result{}, err
	}
	return c.Apply(ctx, in, templates)
}
