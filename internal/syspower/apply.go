package syspower

import (
	"context"
	"fmt"
	"sort"

	"github.com/rjboer/GoSyspower/internal/logging"
	"github.com/rjboer/GoSyspower/internal/table"
	"github.com/rjboer/GoSyspower/internal/telemetry"
)

// Apply scales the gain table by the templates and writes the diagnostic
// template table. The first parameter of each polarization block of FPARAM
// is multiplied by the template value at the row's time; the block's FLAG
// is set wherever the template is masked or has no sample at that time.
//
// Reading the gain table is an error. Failing to write either table is
// reported through the returned Outcomes and logged as a warning.
func (c *Corrector) Apply(ctx context.Context, in Inputs, templates []Template) (Result, error) {
	res := Result{Templates: templates}

	gt, err := c.store.Open(ctx, in.GainTable, table.ReadOnly)
	if err != nil {
		return res, fmt.Errorf("open gain table: %w", err)
	}
	rows, err := readGainRows(ctx, gt)
	gt.Close()
	if err != nil {
		return res, fmt.Errorf("read gain table %s: %w", in.GainTable, err)
	}
	res.Rows = len(rows.times)

	set := newTemplateSet(templates)
	fparam := cloneFloatCells(rows.fparam)
	flag := cloneBoolCells(rows.flag)
	tmplParam := cloneFloatCells(rows.fparam)
	tmplFlag := cloneBoolCells(rows.flag)

	for r := range rows.times {
		npar := len(fparam[r])
		npol, block := 2, npar/2
		if npar < 2 {
			npol, block = npar, 1
		}
		newlyFlagged := false
		for pol := 0; pol < npol; pol++ {
			v, ok := set.lookup(rows.ants[r], c.cfg.Baseband(rows.spws[r]), pol, rows.times[r])
			lo := pol * block
			if ok {
				fparam[r][lo] *= v
			}
			for j := lo; j < lo+block; j++ {
				tmplParam[r][j] = v
				if j >= len(flag[r]) {
					continue
				}
				tmplFlag[r][j] = !ok
				if !ok && !flag[r][j] {
					flag[r][j] = true
					newlyFlagged = true
				}
			}
		}
		if newlyFlagged {
			res.RowsFlagged++
		}
	}

	res.Gain = c.write(ctx, in.GainTable, fparam, flag)
	c.report(in.GainTable, "gain", res.Gain, res.Rows, res.RowsFlagged)

	diag := in.templateTable()
	if err := c.store.Copy(ctx, in.GainTable, diag); err != nil {
		res.Diagnostic = c.failed(diag, fmt.Errorf("copy %s: %w", in.GainTable, err))
	} else {
		res.Diagnostic = c.write(ctx, diag, tmplParam, tmplFlag)
	}
	c.report(diag, "template", res.Diagnostic, res.Rows, countFlaggedRows(tmplFlag))
	return res, nil
}

// write stores flags before parameters so a partial failure never leaves
// scaled gains without their flags. When only the parameters fail the
// reason says the flags were already written.
func (c *Corrector) write(ctx context.Context, name string, fparam [][]float64, flag [][]bool) Outcome {
	t, err := c.store.Open(ctx, name, table.ReadWrite)
	if err != nil {
		return c.failed(name, err)
	}
	defer t.Close()
	if err := t.PutBoolCells(ctx, ColFlag, flag); err != nil {
		return c.failed(name, err)
	}
	if err := t.PutFloatCells(ctx, ColFParam, fparam); err != nil {
		return c.failed(name, fmt.Errorf("%s written, %s not: %w", ColFlag, ColFParam, err))
	}
	c.logger.Info("table written", logging.F("table", name), logging.F("rows", len(fparam)))
	return Outcome{Applied: true}
}

func (c *Corrector) failed(name string, err error) Outcome {
	c.logger.Warn("table write failed, correction not applied", logging.F("table", name), logging.F("err", err))
	return Outcome{Reason: err.Error()}
}

func (c *Corrector) report(name, role string, o Outcome, rows, flagged int) {
	if c.reporter == nil {
		return
	}
	c.reporter.ReportOutcome(telemetry.OutcomeStats{
		Table:       name,
		Role:        role,
		Applied:     o.Applied,
		Reason:      o.Reason,
		Rows:        rows,
		RowsFlagged: flagged,
	})
}

type gainRows struct {
	times  []float64
	spws   []int
	ants   []int
	fparam [][]float64
	flag   [][]bool
}

func readGainRows(ctx context.Context, t table.Table) (gainRows, error) {
	var (
		g   gainRows
		err error
	)
	if g.times, err = t.Floats(ctx, ColTime); err != nil {
		return g, err
	}
	if g.spws, err = t.Ints(ctx, ColSpwID); err != nil {
		return g, err
	}
	if g.ants, err = t.Ints(ctx, ColAntenna1); err != nil {
		return g, err
	}
	if g.fparam, err = t.FloatCells(ctx, ColFParam); err != nil {
		return g, err
	}
	if g.flag, err = t.BoolCells(ctx, ColFlag); err != nil {
		return g, err
	}
	n := len(g.times)
	if len(g.spws) != n || len(g.ants) != n || len(g.fparam) != n || len(g.flag) != n {
		return g, fmt.Errorf("%w: gain columns have different lengths", ErrMalformedTable)
	}
	return g, nil
}

type templateKey struct {
	ant, bb, pol int
}

// templateSet finds template samples by antenna, baseband, polarization and time.
type templateSet struct {
	byKey map[templateKey]Template
	index map[*float64]timeIndex
}

func newTemplateSet(templates []Template) templateSet {
	s := templateSet{byKey: make(map[templateKey]Template, len(templates)), index: map[*float64]timeIndex{}}
	for _, t := range templates {
		s.byKey[templateKey{t.AntennaID, t.Baseband, t.Pol}] = t
		if len(t.Times) == 0 {
			continue
		}
		// Templates of one observation share their time grid.
		if _, ok := s.index[&t.Times[0]]; !ok {
			s.index[&t.Times[0]] = newTimeIndex(t.Times)
		}
	}
	return s
}

// lookup returns the template value and whether it is usable.
func (s templateSet) lookup(ant, bb, pol int, t float64) (float64, bool) {
	tmpl, ok := s.byKey[templateKey{ant, bb, pol}]
	if !ok || len(tmpl.Times) == 0 {
		return 0, false
	}
	i, ok := s.index[&tmpl.Times[0]].find(t)
	if !ok {
		return 0, false
	}
	return tmpl.Series.Values[i], !tmpl.Series.Masked(i)
}

// timeIndex matches timestamps exactly, falling back to the nearest sample
// within half the median sampling interval.
type timeIndex struct {
	times []float64
	exact map[float64]int
	tol   float64
}

func newTimeIndex(times []float64) timeIndex {
	ix := timeIndex{times: times, exact: make(map[float64]int, len(times))}
	for i, t := range times {
		ix.exact[t] = i
	}
	if len(times) > 1 {
		steps := make([]float64, len(times)-1)
		for i := range steps {
			steps[i] = times[i+1] - times[i]
		}
		sort.Float64s(steps)
		ix.tol = steps[len(steps)/2] / 2
	}
	return ix
}

func (ix timeIndex) find(t float64) (int, bool) {
	if i, ok := ix.exact[t]; ok {
		return i, true
	}
	if ix.tol <= 0 {
		return 0, false
	}
	j := sort.SearchFloat64s(ix.times, t)
	best, bestDiff := -1, ix.tol
	for _, k := range []int{j - 1, j} {
		if k < 0 || k >= len(ix.times) {
			continue
		}
		d := ix.times[k] - t
		if d < 0 {
			d = -d
		}
		if d <= bestDiff {
			best, bestDiff = k, d
		}
	}
	return best, best >= 0
}

func cloneFloatCells(v [][]float64) [][]float64 {
	out := make([][]float64, len(v))
	for i := range v {
		out[i] = append([]float64(nil), v[i]...)
	}
	return out
}

func cloneBoolCells(v [][]bool) [][]bool {
	out := make([][]bool, len(v))
	for i := range v {
		out[i] = append([]bool(nil), v[i]...)
	}
	return out
}

func countFlaggedRows(flag [][]bool) int {
	n := 0
	for _, row := range flag {
		for _, f := range row {
			if f {
				n++
				break
			}
		}
	}
	return n
}
