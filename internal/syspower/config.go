package syspower

import (
	"errors"
	"fmt"

	"github.com/rjboer/GoSyspower/internal/dsp"
)

// ErrInvalidConfig is returned by Validate and New for unusable settings.
var ErrInvalidConfig = errors.New("syspower: invalid config")

// FilterStep is one robust filter: a window width and a threshold in robust scales.
type FilterStep struct {
	Window    int     `yaml:"window"`
	Threshold float64 `yaml:"threshold"`
}

// PassSchedule lists the filters of one template pass. Spike and Noise act on
// residuals against the per-time median across spectral windows,
// ResidualSpike and ResidualNoise on residuals against the first template.
type PassSchedule struct {
	Spike         FilterStep `yaml:"spike"`
	Noise         FilterStep `yaml:"noise"`
	ResidualSpike FilterStep `yaml:"residual_spike"`
	ResidualNoise FilterStep `yaml:"residual_noise"`
}

// Schedule is the full filter plan: a pass on the ratio, a pass on its
// square root, then gap interpolation and smoothing of each template.
type Schedule struct {
	Linear       PassSchedule `yaml:"linear"`
	Root         PassSchedule `yaml:"root"`
	InterpWindow int          `yaml:"interp_window"`
	SmoothWindow int          `yaml:"smooth_window"`
	SmoothOrder  int          `yaml:"smooth_order"`
}

// Config controls template construction.
type Config struct {
	ClipLow      float64  `yaml:"clip_low"`
	ClipHigh     float64  `yaml:"clip_high"`
	BasebandSize int      `yaml:"baseband_size"`
	Schedule     Schedule `yaml:"schedule"`
}

// DefaultConfig returns the standard VLA settings.
func DefaultConfig() Config {
	return Config{
		ClipLow:      0.7,
		ClipHigh:     1.2,
		BasebandSize: 8,
		Schedule:     DefaultSchedule(),
	}
}

// DefaultSchedule returns the filter plan used for VLA switched power.
func DefaultSchedule() Schedule {
	linear := PassSchedule{
		Spike:         FilterStep{Window: 9, Threshold: 8},
		Noise:         FilterStep{Window: 5, Threshold: 8},
		ResidualSpike: FilterStep{Window: 11, Threshold: 7},
		ResidualNoise: FilterStep{Window: 5, Threshold: 7},
	}
	root := linear
	root.Spike.Threshold = 6
	root.Noise.Threshold = 6
	root.ResidualSpike.Threshold = 6
	root.ResidualNoise.Threshold = 6
	return Schedule{
		Linear:       linear,
		Root:         root,
		InterpWindow: 5,
		SmoothWindow: 7,
		SmoothOrder:  3,
	}
}

// Validate checks the clip range, the baseband size and every filter step.
func (c Config) Validate() error {
	if !(c.ClipLow < c.ClipHigh) {
		return fmt.Errorf("%w: clip range [%g, %g]", ErrInvalidConfig, c.ClipLow, c.ClipHigh)
	}
	if c.BasebandSize < 1 {
		return fmt.Errorf("%w: baseband size %d", ErrInvalidConfig, c.BasebandSize)
	}
	s := c.Schedule
	steps := map[string]FilterStep{
		"linear.spike":          s.Linear.Spike,
		"linear.noise":          s.Linear.Noise,
		"linear.residual_spike": s.Linear.ResidualSpike,
		"linear.residual_noise": s.Linear.ResidualNoise,
		"root.spike":            s.Root.Spike,
		"root.noise":            s.Root.Noise,
		"root.residual_spike":   s.Root.ResidualSpike,
		"root.residual_noise":   s.Root.ResidualNoise,
		"interp":                {Window: s.InterpWindow, Threshold: 1},
	}
	for name, st := range steps {
		if st.Window < 1 || st.Window%2 == 0 {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, dsp.ErrInvalidWindow)
		}
		if !(st.Threshold > 0) {
			return fmt.Errorf("%w: %s threshold %g", ErrInvalidConfig, name, st.Threshold)
		}
	}
	if _, err := dsp.SavGolCoefficients(s.SmoothWindow, s.SmoothOrder); err != nil {
		return fmt.Errorf("%w: smoother: %w", ErrInvalidConfig, err)
	}
	return nil
}
