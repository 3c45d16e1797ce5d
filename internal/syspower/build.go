package syspower

import (
	"context"
	"fmt"

	"github.com/rjboer/GoSyspower/internal/dsp"
	"github.com/rjboer/GoSyspower/internal/flagging"
	"github.com/rjboer/GoSyspower/internal/logging"
	"github.com/rjboer/GoSyspower/internal/telemetry"
)

// Baseband returns the baseband index of a spectral window.
func (c Config) Baseband(spw int) int { return spw / c.BasebandSize }

// NumBasebands returns how many basebands cover nspw spectral windows.
func (c Config) NumBasebands(nspw int) int {
	return (nspw + c.BasebandSize - 1) / c.BasebandSize
}

// Build computes one template per antenna, baseband and polarization.
// Samples inside an online flag are excluded from every pass and remain
// masked on the template, as do template values outside the clip range.
func (c *Corrector) Build(ctx context.Context, obs *Observation, online flagging.List) ([]Template, error) {
	nbb := c.cfg.NumBasebands(obs.NumSPW)
	templates := make([]Template, 0, len(obs.Antennas)*nbb*obs.NumPol)
	for a, ant := range obs.Antennas {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		onlineMask := online.Mask(ant.Name, obs.Times)
		for bb := 0; bb < nbb; bb++ {
			for pol := 0; pol < obs.NumPol; pol++ {
				tmpl, stats, err := c.buildOne(obs, a, bb, pol, onlineMask)
				if err != nil {
					return nil, fmt.Errorf("antenna %s baseband %d pol %d: %w", ant.Name, bb, pol, err)
				}
				templates = append(templates, tmpl)
				if c.reporter != nil {
					c.reporter.ReportTemplate(stats)
				}
			}
		}
	}
	return templates, nil
}

func (c *Corrector) buildOne(obs *Observation, a, bb, pol int, online []bool) (Template, telemetry.TemplateStats, error) {
	ant := obs.Antennas[a]
	nt := len(obs.Times)
	tmpl := Template{AntennaID: ant.ID, Antenna: ant.Name, Baseband: bb, Pol: pol, Times: obs.Times}
	stats := telemetry.TemplateStats{Antenna: ant.Name, AntennaID: ant.ID, Baseband: bb, Pol: pol, TemplateLen: nt}

	var members []dsp.Series
	first := bb * c.cfg.BasebandSize
	for spw := first; spw < first+c.cfg.BasebandSize && spw < obs.NumSPW; spw++ {
		s := obs.ratio[a][spw][pol]
		if s.MaskedCount() == s.Len() {
			continue
		}
		before := s.MaskedCount()
		s = s.WithMask(online)
		stats.OnlineFlagged += s.MaskedCount() - before
		members = append(members, s)
	}
	stats.Samples = len(members) * nt

	if len(members) == 0 {
		tmpl.Series = allMasked(nt)
		stats.TemplateMasked = nt
		return tmpl, stats, nil
	}
	initial := maskedTotal(members)

	linear, members, err := c.runPass(members, c.cfg.Schedule.Linear)
	if err != nil {
		return Template{}, stats, fmt.Errorf("linear pass: %w", err)
	}
	c.logger.Debug("linear template",
		logging.F("antenna", ant.Name), logging.F("baseband", bb), logging.F("pol", pol),
		logging.F("masked", linear.MaskedCount()))

	roots := make([]dsp.Series, len(members))
	for i, m := range members {
		roots[i] = m.Sqrt()
	}
	series, roots, err := c.runPass(roots, c.cfg.Schedule.Root)
	if err != nil {
		return Template{}, stats, fmt.Errorf("root pass: %w", err)
	}
	stats.Flagged = maskedTotal(roots) - initial

	series = series.WithMask(online).MaskOutside(c.cfg.ClipLow, c.cfg.ClipHigh)
	tmpl.Series = series
	stats.TemplateMasked = series.MaskedCount()
	return tmpl, stats, nil
}

// runPass flags the members against the per-time median across them, then
// against the resulting template, and returns the interpolated and smoothed
// median of what survives together with the flagged members.
func (c *Corrector) runPass(members []dsp.Series, p PassSchedule) (dsp.Series, []dsp.Series, error) {
	members, err := flagResiduals(members, dsp.MedianAcross(members), p.Spike, p.Noise)
	if err != nil {
		return dsp.Series{}, nil, err
	}
	members, err = flagResiduals(members, dsp.MedianAcross(members), p.ResidualSpike, p.ResidualNoise)
	if err != nil {
		return dsp.Series{}, nil, err
	}

	s := c.cfg.Schedule
	tmpl, err := dsp.InterpWithMedFilt(dsp.MedianAcross(members), s.InterpWindow, c.logger)
	if err != nil {
		return dsp.Series{}, nil, err
	}
	tmpl, err = dsp.SmoothSeries(tmpl, s.SmoothWindow, s.SmoothOrder)
	if err != nil {
		return dsp.Series{}, nil, err
	}
	return tmpl, members, nil
}

// flagResiduals runs a spike filter then a noise filter on each member's
// residual against ref and merges the new flags into the member.
func flagResiduals(members []dsp.Series, ref dsp.Series, spike, noise FilterStep) ([]dsp.Series, error) {
	out := make([]dsp.Series, len(members))
	for i, m := range members {
		resid := m.Sub(ref)
		flagged, err := dsp.MedFilt(resid, spike.Window, dsp.FilterOptions{Threshold: spike.Threshold, FlagMedian: true})
		if err != nil {
			return nil, err
		}
		flagged, err = dsp.MedFilt(flagged, noise.Window, dsp.FilterOptions{Threshold: noise.Threshold, FlagRMS: true})
		if err != nil {
			return nil, err
		}
		out[i] = m.WithMask(flagged.Mask)
	}
	return out, nil
}

func maskedTotal(members []dsp.Series) int {
	n := 0
	for _, m := range members {
		n += m.MaskedCount()
	}
	return n
}

func allMasked(n int) dsp.Series {
	s := dsp.Series{Values: make([]float64, n), Mask: make([]bool, n)}
	for i := range s.Mask {
		s.Mask[i] = true
	}
	return s
}
