// Package synth writes synthetic switched-power observations into a table
// store for tests and demonstrations.
package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rjboer/GoSyspower/internal/table"
)

// Outlier multiplies one switched-power sample by Factor.
type Outlier struct {
	Antenna   int
	SPW       int
	Pol       int
	TimeIndex int
	Factor    float64
}

// Step scales the gain of an antenna by Factor from FromIndex onwards.
type Step struct {
	Antenna   int
	FromIndex int
	Factor    float64
}

// Config describes the generated observation. Zero fields take defaults.
type Config struct {
	Antennas int
	SPWs     int
	Pols     int
	Times    int
	// Start is the first timestamp in MJD seconds, Interval the spacing in seconds.
	Start    float64
	Interval float64
	// Noise is the relative standard deviation of the Gaussian noise.
	Noise float64
	// Drift is the amplitude of the slow sinusoidal gain variation.
	Drift    float64
	Seed     uint64
	Outliers []Outlier
	Steps    []Step

	SysPowerTable string
	AntennaTable  string
	GainTable     string
}

func (c *Config) defaults() {
	if c.Antennas == 0 {
		c.Antennas = 3
	}
	if c.SPWs == 0 {
		c.SPWs = 16
	}
	if c.Pols == 0 {
		c.Pols = 2
	}
	if c.Times == 0 {
		c.Times = 120
	}
	if c.Start == 0 {
		// 2012/03/04/00:00:00
		c.Start = 55990 * 86400
	}
	if c.Interval == 0 {
		c.Interval = 1
	}
	if c.Noise == 0 {
		c.Noise = 1e-3
	}
	if c.SysPowerTable == "" {
		c.SysPowerTable = "SYSPOWER"
	}
	if c.AntennaTable == "" {
		c.AntennaTable = "ANTENNA"
	}
	if c.GainTable == "" {
		c.GainTable = "rq.cal"
	}
}

// Layout describes what Write produced.
type Layout struct {
	Config   Config
	Times    []float64
	Antennas []string
}

// AntennaName returns the synthetic name of antenna i.
func AntennaName(i int) string { return fmt.Sprintf("ea%02d", i+1) }

// RequantizerGain returns the synthetic requantizer gain of an antenna and
// spectral window.
func RequantizerGain(ant, spw int) float64 {
	return 2 + 0.25*float64((ant+spw)%4)
}

// Gain returns the true relative gain of an antenna at time index i, before
// per-window offsets and noise.
func (c Config) Gain(ant, i int) float64 {
	g := 1 + c.Drift*math.Sin(2*math.Pi*float64(i)/float64(c.Times)+float64(ant))
	for _, s := range c.Steps {
		if s.Antenna == ant && i >= s.FromIndex {
			g *= s.Factor
		}
	}
	return g
}

// Write creates the switched-power, antenna and gain tables in store.
// The same Config and Seed always produce the same tables; outliers do
// not change the noise of other samples.
func Write(ctx context.Context, store table.Store, cfg Config) (Layout, error) {
	cfg.defaults()
	noise := distuv.Normal{Mu: 0, Sigma: cfg.Noise, Src: rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)}

	outlier := map[[4]int]float64{}
	for _, o := range cfg.Outliers {
		outlier[[4]int{o.Antenna, o.SPW, o.Pol, o.TimeIndex}] = o.Factor
	}

	layout := Layout{Config: cfg, Times: make([]float64, cfg.Times)}
	for i := range layout.Times {
		layout.Times[i] = cfg.Start + float64(i)*cfg.Interval
	}
	for a := 0; a < cfg.Antennas; a++ {
		layout.Antennas = append(layout.Antennas, AntennaName(a))
	}

	rows := cfg.Times * cfg.Antennas * cfg.SPWs
	var (
		times   = make([]float64, 0, rows)
		antIDs  = make([]int, 0, rows)
		spwIDs  = make([]int, 0, rows)
		diffs   = make([][]float64, 0, rows)
		rqs     = make([][]float64, 0, rows)
		fparams = make([][]float64, 0, rows)
		flags   = make([][]bool, 0, rows)
	)
	for i, t := range layout.Times {
		for a := 0; a < cfg.Antennas; a++ {
			g := cfg.Gain(a, i)
			for s := 0; s < cfg.SPWs; s++ {
				rq := RequantizerGain(a, s)
				offset := 1 + 0.1*float64(s%8)
				diff := make([]float64, cfg.Pols)
				rqCell := make([]float64, cfg.Pols)
				for p := 0; p < cfg.Pols; p++ {
					diff[p] = g * offset * rq * (1 + noise.Rand())
					if f, ok := outlier[[4]int{a, s, p, i}]; ok {
						diff[p] *= f
					}
					rqCell[p] = rq
				}
				times = append(times, t)
				antIDs = append(antIDs, a)
				spwIDs = append(spwIDs, s)
				diffs = append(diffs, diff)
				rqs = append(rqs, rqCell)
				fparams = append(fparams, append([]float64(nil), rqCell...))
				flags = append(flags, make([]bool, cfg.Pols))
			}
		}
	}

	if err := store.Create(ctx, cfg.AntennaTable, []table.Column{
		{Name: "NAME", Kind: table.String, Strings: layout.Antennas},
	}); err != nil {
		return Layout{}, fmt.Errorf("create %s: %w", cfg.AntennaTable, err)
	}
	if err := store.Create(ctx, cfg.SysPowerTable, []table.Column{
		{Name: "TIME", Kind: table.Float, Floats: times},
		{Name: "ANTENNA_ID", Kind: table.Int, Ints: antIDs},
		{Name: "SPECTRAL_WINDOW_ID", Kind: table.Int, Ints: spwIDs},
		{Name: "SWITCHED_DIFF", Kind: table.FloatCell, FloatCells: diffs},
		{Name: "REQUANTIZER_GAIN", Kind: table.FloatCell, FloatCells: rqs},
	}); err != nil {
		return Layout{}, fmt.Errorf("create %s: %w", cfg.SysPowerTable, err)
	}
	if err := store.Create(ctx, cfg.GainTable, []table.Column{
		{Name: "TIME", Kind: table.Float, Floats: times},
		{Name: "SPECTRAL_WINDOW_ID", Kind: table.Int, Ints: spwIDs},
		{Name: "ANTENNA1", Kind: table.Int, Ints: antIDs},
		{Name: "FPARAM", Kind: table.FloatCell, FloatCells: fparams},
		{Name: "FLAG", Kind: table.BoolCell, BoolCells: flags},
	}); err != nil {
		return Layout{}, fmt.Errorf("create %s: %w", cfg.GainTable, err)
	}
	return layout, nil
}
