package phaseconfig

import (
	"fmt"
	"time"
)

// Kind classifies what work a phase performs.
type Kind string

const (
	KindGainers   Kind = "gainers"   // load premarket top-gainers list
	KindUniverse  Kind = "universe"  // resolve latest symbols universe
	KindPrefilter Kind = "prefilter" // full data pull + pre-filter
	KindPrimary   Kind = "primary"   // primary qualification
	KindMomentum  Kind = "momentum"  // momentum check against a prior phase
)

// Phase is one clock-triggered step of the daily pipeline.
type Phase struct {
	ID         string `yaml:"id" json:"id"`
	Kind       Kind   `yaml:"kind" json:"kind"`
	Checkpoint string `yaml:"checkpoint" json:"checkpoint"` // HH:MM, trading timezone
	Critical   bool   `yaml:"critical" json:"critical"`
	Prior      string `yaml:"prior,omitempty" json:"prior,omitempty"` // momentum only
	Final      bool   `yaml:"final,omitempty" json:"final,omitempty"` // buy list output
}

// CheckpointAt anchors the phase's HH:MM checkpoint to a concrete date in the
// given location.
func (p Phase) CheckpointAt(date time.Time, loc *time.Location) time.Time {
	t, _ := time.Parse("15:04", p.Checkpoint)
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

// Thresholds are the numeric qualification bounds. They are configuration,
// not logic: every revision of the strategy tunes these without code changes.
type Thresholds struct {
	// Pre-filter
	MinMarketCapMillions float64 `yaml:"min_market_cap_millions" json:"min_market_cap_millions"`
	MinPreviousClose     float64 `yaml:"min_previous_close" json:"min_previous_close"`

	// Primary qualification (inclusive bounds)
	MinVolume  float64 `yaml:"min_volume" json:"min_volume"`
	MinGainPct float64 `yaml:"min_gain_pct" json:"min_gain_pct"`
	MaxGainPct float64 `yaml:"max_gain_pct" json:"max_gain_pct"`

	// Minimum fraction of complete records for a pull to count as healthy
	MinCompleteRate float64 `yaml:"min_complete_rate" json:"min_complete_rate"`
}

// Config is the full phase schedule plus thresholds.
type Config struct {
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`
	Phases     []Phase    `yaml:"phases" json:"phases"`
}

// Default returns the compiled-in schedule the system runs with when no YAML
// file is supplied.
func Default() *Config {
	return &Config{
		Thresholds: Thresholds{
			MinMarketCapMillions: 50,
			MinPreviousClose:     3.00,
			MinVolume:            1_000_000,
			MinGainPct:           5.0,
			MaxGainPct:           60.0,
			MinCompleteRate:      0.6,
		},
		Phases: []Phase{
			{ID: "gainers", Kind: KindGainers, Checkpoint: "08:24"},
			{ID: "universe", Kind: KindUniverse, Checkpoint: "08:27"},
			{ID: "prefilter", Kind: KindPrefilter, Checkpoint: "08:35", Critical: true},
			{ID: "8:37", Kind: KindPrimary, Checkpoint: "08:37", Critical: true},
			{ID: "8:40", Kind: KindMomentum, Checkpoint: "08:40", Prior: "8:37"},
			{ID: "8:50", Kind: KindMomentum, Checkpoint: "08:50", Prior: "8:40", Final: true},
		},
	}
}

// PhaseByID returns the phase with the given id.
func (c *Config) PhaseByID(id string) (Phase, bool) {
	for _, p := range c.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// Primary returns the primary qualification phase.
func (c *Config) Primary() (Phase, bool) {
	for _, p := range c.Phases {
		if p.Kind == KindPrimary {
			return p, true
		}
	}
	return Phase{}, false
}

// FinalPhase returns the terminal momentum phase whose qualified set is the
// buy list.
func (c *Config) FinalPhase() (Phase, bool) {
	for _, p := range c.Phases {
		if p.Final {
			return p, true
		}
	}
	return Phase{}, false
}

// String implements fmt.Stringer for log output.
func (p Phase) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.Checkpoint)
}
