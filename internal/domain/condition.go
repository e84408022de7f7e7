package domain

import (
	"errors"
	"fmt"
	"math"
)

// Band is an aquifer criticality band. Bands are ordered from most to least
// stressed, so comparisons like band < BandSafe are meaningful.
type Band int

const (
	BandCritical Band = iota
	BandSemiCritical
	BandSafe
)

// Bands lists every band in severity order.
var Bands = [...]Band{BandCritical, BandSemiCritical, BandSafe}

// String returns the machine label used in JSON and configuration.
func (b Band) String() string {
	switch b {
	case BandCritical:
		return "critical"
	case BandSemiCritical:
		return "semi_critical"
	case BandSafe:
		return "safe"
	default:
		return fmt.Sprintf("band(%d)", int(b))
	}
}

// Label returns the human-readable name shown on dashboards.
func (b Band) Label() string {
	switch b {
	case BandCritical:
		return "Critical"
	case BandSemiCritical:
		return "Semi-Critical"
	case BandSafe:
		return "Safe"
	default:
		return b.String()
	}
}

// Indicator returns the traffic-light marker dashboards append to the label.
func (b Band) Indicator() string {
	switch b {
	case BandCritical:
		return "🔴"
	case BandSemiCritical:
		return "🟡"
	case BandSafe:
		return "🟢"
	default:
		return ""
	}
}

func (b Band) MarshalText() ([]byte, error) {
	if !b.valid() {
		return nil, fmt.Errorf("unknown band %d", int(b))
	}
	return []byte(b.String()), nil
}

func (b *Band) UnmarshalText(text []byte) error {
	parsed, err := ParseBand(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b Band) valid() bool {
	return b >= BandCritical && b <= BandSafe
}

// ParseBand resolves a machine label ("critical", "semi_critical", "safe").
func ParseBand(s string) (Band, error) {
	for _, b := range Bands {
		if b.String() == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown band %q", s)
}

// Default classification thresholds in meters.
const (
	DefaultCriticalThreshold     = 2.15
	DefaultSemiCriticalThreshold = 2.25
)

// ActionsPerBand is the number of recommended actions every band carries.
const ActionsPerBand = 3

// Policy holds the thresholds and recommended actions used by Classify.
type Policy struct {
	CriticalThreshold     float64
	SemiCriticalThreshold float64
	Actions               map[Band][]string
}

// DefaultPolicy returns the stock thresholds and action text.
func DefaultPolicy() Policy {
	return Policy{
		CriticalThreshold:     DefaultCriticalThreshold,
		SemiCriticalThreshold: DefaultSemiCriticalThreshold,
		Actions: map[Band][]string{
			BandCritical: {
				"Advise immediate reduction in agricultural pumping.",
				"Prioritize this area for the Jal Shakti Abhiyan campaign.",
				"Consider temporary restrictions on new borewells.",
			},
			BandSemiCritical: {
				"Launch a public awareness campaign for water conservation.",
				"Promote micro-irrigation techniques (drip, sprinklers).",
				"Conduct an audit of industrial water usage.",
			},
			BandSafe: {
				"Promote rainwater harvesting structures for continued recharge.",
				"Maintain and monitor existing water bodies.",
				"Continue regular data monitoring to track trends.",
			},
		},
	}
}

// Validate checks that thresholds are finite and ascending and that every
// band has exactly ActionsPerBand non-empty actions.
func (p Policy) Validate() error {
	if math.IsNaN(p.CriticalThreshold) || math.IsInf(p.CriticalThreshold, 0) {
		return errors.New("critical threshold must be finite")
	}
	if math.IsNaN(p.SemiCriticalThreshold) || math.IsInf(p.SemiCriticalThreshold, 0) {
		return errors.New("semi-critical threshold must be finite")
	}
	if p.CriticalThreshold >= p.SemiCriticalThreshold {
		return fmt.Errorf("critical threshold %g must be below semi-critical threshold %g",
			p.CriticalThreshold, p.SemiCriticalThreshold)
	}
	for _, b := range Bands {
		actions := p.Actions[b]
		if len(actions) != ActionsPerBand {
			return fmt.Errorf("band %s: expected %d actions, got %d", b, ActionsPerBand, len(actions))
		}
		for i, a := range actions {
			if a == "" {
				return fmt.Errorf("band %s: action %d is empty", b, i+1)
			}
		}
	}
	return nil
}

// Band resolves the band for a level using strict less-than comparisons, so a
// level equal to a threshold falls into the less critical band.
func (p Policy) Band(level float64) Band {
	switch {
	case level < p.CriticalThreshold:
		return BandCritical
	case level < p.SemiCriticalThreshold:
		return BandSemiCritical
	default:
		return BandSafe
	}
}

// Classify maps a smoothed level to its band and recommended actions.
func Classify(level float64, p Policy) ConditionReport {
	band := p.Band(level)
	return ConditionReport{
		Band:    band,
		Level:   level,
		Actions: append([]string(nil), p.Actions[band]...),
	}
}
