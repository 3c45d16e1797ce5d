package syspower

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rjboer/GoSyspower/internal/dsp"
	"github.com/rjboer/GoSyspower/internal/flagging"
	"github.com/rjboer/GoSyspower/internal/logging"
	"github.com/rjboer/GoSyspower/internal/table"
)

// Antenna identifies an antenna by table row and name.
type Antenna struct {
	ID   int
	Name string
}

// Observation holds the normalized switched-power ratios on a common time grid.
type Observation struct {
	Times    []float64
	Antennas []Antenna
	NumSPW   int
	NumPol   int
	// ratio[a][spw][pol], a indexing Antennas.
	ratio [][][]dsp.Series
}

// Series returns the normalized ratio of one antenna (by position in
// Antennas), spectral window and polarization.
func (o *Observation) Series(ant, spw, pol int) (dsp.Series, bool) {
	if ant < 0 || ant >= len(o.ratio) || spw < 0 || spw >= o.NumSPW || pol < 0 || pol >= o.NumPol {
		return dsp.Series{}, false
	}
	return o.ratio[ant][spw][pol].Clone(), true
}

// Load reads the switched-power and antenna tables and returns the ratio
// SWITCHED_DIFF/REQUANTIZER_GAIN of every antenna, spectral window and
// polarization, each divided by its median over the flux window.
func (c *Corrector) Load(ctx context.Context, in Inputs) (*Observation, error) {
	names, err := readAntennaNames(ctx, c.store, in.AntennaTable)
	if err != nil {
		return nil, err
	}

	sp, err := c.store.Open(ctx, in.SysPowerTable, table.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("open switched power table: %w", err)
	}
	defer sp.Close()

	times, err := sp.Floats(ctx, ColTime)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ColTime, err)
	}
	antIDs, err := sp.Ints(ctx, ColAntennaID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ColAntennaID, err)
	}
	spws, err := sp.Ints(ctx, ColSpwID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ColSpwID, err)
	}
	diff, err := sp.FloatCells(ctx, ColSwitchedDiff)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ColSwitchedDiff, err)
	}
	rq, err := sp.FloatCells(ctx, ColRequantizerGain)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ColRequantizerGain, err)
	}
	n := len(times)
	if len(antIDs) != n || len(spws) != n || len(diff) != n || len(rq) != n {
		return nil, fmt.Errorf("%w: %s columns have different lengths", ErrMalformedTable, in.SysPowerTable)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformedTable, in.SysPowerTable)
	}

	for r, t := range times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: row %d: %s is %v", ErrMalformedTable, r, ColTime, t)
		}
	}

	obs := &Observation{Times: uniqueSorted(times)}
	slot := make(map[float64]int, len(obs.Times))
	for i, t := range obs.Times {
		slot[t] = i
	}

	antSlot := map[int]int{}
	for _, id := range uniqueInts(antIDs) {
		if id < 0 || id >= len(names) {
			return nil, fmt.Errorf("%w: antenna id %d not in %s", ErrMalformedTable, id, in.AntennaTable)
		}
		antSlot[id] = len(obs.Antennas)
		obs.Antennas = append(obs.Antennas, Antenna{ID: id, Name: names[id]})
	}
	for r := 0; r < n; r++ {
		if spws[r] < 0 {
			return nil, fmt.Errorf("%w: row %d: negative spectral window", ErrMalformedTable, r)
		}
		obs.NumSPW = max(obs.NumSPW, spws[r]+1)
		obs.NumPol = max(obs.NumPol, len(diff[r]))
	}

	nt := len(obs.Times)
	obs.ratio = make([][][]dsp.Series, len(obs.Antennas))
	for a := range obs.ratio {
		obs.ratio[a] = make([][]dsp.Series, obs.NumSPW)
		for s := range obs.ratio[a] {
			obs.ratio[a][s] = make([]dsp.Series, obs.NumPol)
			for p := range obs.ratio[a][s] {
				obs.ratio[a][s][p] = allMasked(nt)
			}
		}
	}
	for r := 0; r < n; r++ {
		ser := obs.ratio[antSlot[antIDs[r]]][spws[r]]
		ti := slot[times[r]]
		for p := 0; p < obs.NumPol; p++ {
			if p >= len(diff[r]) || p >= len(rq[r]) {
				continue
			}
			v := diff[r][p] / rq[r][p]
			ser[p].Values[ti] = v
			ser[p].Mask[ti] = v == 0 || math.IsNaN(v) || math.IsInf(v, 0)
		}
	}

	for a, ant := range obs.Antennas {
		for s := 0; s < obs.NumSPW; s++ {
			for p := 0; p < obs.NumPol; p++ {
				obs.ratio[a][s][p] = c.normalize(obs.ratio[a][s][p], obs.Times, in.FluxWindow,
					logging.F("antenna", ant.Name), logging.F("spw", s), logging.F("pol", p))
			}
		}
	}

	c.logger.Info("switched power loaded",
		logging.F("rows", n),
		logging.F("times", nt),
		logging.F("antennas", len(obs.Antennas)),
		logging.F("spws", obs.NumSPW),
		logging.F("pols", obs.NumPol))
	return obs, nil
}

// normalize divides s by its median inside window. Without valid samples in
// the window the median of the whole series is used.
func (c *Corrector) normalize(s dsp.Series, times []float64, window *flagging.TimeRange, fields ...logging.Field) dsp.Series {
	if s.MaskedCount() == s.Len() {
		return s
	}
	var (
		ref float64
		ok  bool
	)
	if window != nil {
		inWindow := s.Clone()
		for i, t := range times {
			if !window.Contains(t) {
				inWindow.Mask[i] = true
			}
		}
		ref, ok = inWindow.Median()
		if !ok {
			c.logger.Warn("no valid samples in flux window, normalizing by full series",
				append(fields, logging.F("window", window.String()))...)
		}
	}
	if !ok {
		ref, _ = s.Median()
	}
	out := s.Clone()
	for i := range out.Values {
		if !out.Mask[i] {
			out.Values[i] /= ref
		}
	}
	return out.MaskInvalid()
}

func readAntennaNames(ctx context.Context, store table.Store, name string) ([]string, error) {
	t, err := store.Open(ctx, name, table.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("open antenna table: %w", err)
	}
	defer t.Close()
	names, err := t.Strings(ctx, ColName)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", name, ColName, err)
	}
	return names, nil
}

func uniqueSorted(v []float64) []float64 {
	out := append([]float64(nil), v...)
	sort.Float64s(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[j-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}

func uniqueInts(v []int) []int {
	seen := make(map[int]struct{}, len(v))
	out := make([]int, 0)
	for _, x := range v {
		if _, ok := seen[x]; !ok {
			seen[x] = struct{}{}
			out = append(out, x)
		}
	}
	sort.Ints(out)
	return out
}
