package phaseconfig

import (
	"fmt"
	"time"
)

// Validate checks structural and numeric consistency of a phase config.
func Validate(c *Config) error {
	if len(c.Phases) == 0 {
		return fmt.Errorf("phase config: no phases defined")
	}

	seen := make(map[string]Phase, len(c.Phases))
	var prevCheckpoint time.Time
	primaryCount := 0
	finalCount := 0

	for i, p := range c.Phases {
		if p.ID == "" {
			return fmt.Errorf("phase config: phase %d has empty id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("phase config: duplicate phase id %q", p.ID)
		}

		cp, err := time.Parse("15:04", p.Checkpoint)
		if err != nil {
			return fmt.Errorf("phase config: phase %q has invalid checkpoint %q", p.ID, p.Checkpoint)
		}
		if i > 0 && !cp.After(prevCheckpoint) {
			return fmt.Errorf("phase config: phase %q checkpoint %s is not after the previous phase", p.ID, p.Checkpoint)
		}
		prevCheckpoint = cp

		switch p.Kind {
		case KindGainers, KindUniverse, KindPrefilter:
			if p.Prior != "" {
				return fmt.Errorf("phase config: phase %q of kind %s must not set prior", p.ID, p.Kind)
			}
		case KindPrimary:
			primaryCount++
		case KindMomentum:
			prior, ok := seen[p.Prior]
			if !ok {
				return fmt.Errorf("phase config: momentum phase %q references unknown prior %q", p.ID, p.Prior)
			}
			if prior.Kind != KindPrimary && prior.Kind != KindMomentum {
				return fmt.Errorf("phase config: momentum phase %q prior %q must be primary or momentum", p.ID, p.Prior)
			}
		default:
			return fmt.Errorf("phase config: phase %q has unknown kind %q", p.ID, p.Kind)
		}

		if p.Final {
			finalCount++
			if p.Kind != KindMomentum {
				return fmt.Errorf("phase config: final phase %q must be a momentum phase", p.ID)
			}
		}

		seen[p.ID] = p
	}

	if primaryCount != 1 {
		return fmt.Errorf("phase config: exactly one primary phase required, got %d", primaryCount)
	}
	if finalCount > 1 {
		return fmt.Errorf("phase config: at most one final phase allowed, got %d", finalCount)
	}
	if last := c.Phases[len(c.Phases)-1]; last.Kind == KindMomentum && !last.Final {
		return fmt.Errorf("phase config: last momentum phase %q must be marked final", last.ID)
	}

	t := c.Thresholds
	if t.MinMarketCapMillions <= 0 {
		return fmt.Errorf("phase config: min_market_cap_millions must be > 0")
	}
	if t.MinPreviousClose <= 0 {
		return fmt.Errorf("phase config: min_previous_close must be > 0")
	}
	if t.MinVolume <= 0 {
		return fmt.Errorf("phase config: min_volume must be > 0")
	}
	if t.MaxGainPct <= t.MinGainPct {
		return fmt.Errorf("phase config: max_gain_pct (%.2f) must exceed min_gain_pct (%.2f)", t.MaxGainPct, t.MinGainPct)
	}
	if t.MinCompleteRate <= 0 || t.MinCompleteRate > 1 {
		return fmt.Errorf("phase config: min_complete_rate must be in (0, 1]")
	}

	return nil
}
