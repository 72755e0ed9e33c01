package calculator

import (
	"math"

	"github.com/sdpower/ccstatusbar-go/internal/types"
)

// Level is the alert state of today's spend against the daily limit.
type Level string

const (
	LevelUnknown  Level = "unknown"
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Rank orders levels by severity; unknown ranks lowest.
func (l Level) Rank() int {
	switch l {
	case LevelOK:
		return 1
	case LevelWarning:
		return 2
	case LevelCritical:
		return 3
	default:
		return 0
	}
}

const (
	DefaultWarningThreshold  = 70.0
	DefaultCriticalThreshold = 90.0
	// trendDeadBand keeps tiny float noise from reading as movement.
	trendDeadBand = 0.01
)

type Calculator struct {
	warning  float64
	critical float64
}

// New returns a calculator with the given percentage thresholds. Zero or
// inverted values fall back to the defaults.
func New(warning, critical float64) *Calculator {
	if warning <= 0 {
		warning = DefaultWarningThreshold
	}
	if critical <= 0 {
		critical = DefaultCriticalThreshold
	}
	if warning > critical {
		warning, critical = critical, warning
	}
	return &Calculator{warning: warning, critical: critical}
}

func (c *Calculator) Thresholds() (warning, critical float64) {
	return c.warning, c.critical
}

// Level classifies a record. Records without a limit are LevelUnknown.
func (c *Calculator) Level(rec types.UsageRecord) Level {
	if !rec.HasLimit() || rec.CostPercentage == nil {
		return LevelUnknown
	}
	p := *rec.CostPercentage
	switch {
	case p >= c.critical:
		return LevelCritical
	case p >= c.warning:
		return LevelWarning
	default:
		return LevelOK
	}
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CostPercentage is nil when there is no limit, else round1(cost/limit*100).
func CostPercentage(todayCost, costLimit float64) *float64 {
	if costLimit <= 0 {
		return nil
	}
	pct := todayCost / costLimit * 100
	if math.IsInf(pct, 0) || math.IsNaN(pct) {
		pct = 0
	}
	pct = Round1(pct)
	return &pct
}

// Normalize clamps negative upstream values and re-derives the percentage.
func Normalize(rec types.UsageRecord) types.UsageRecord {
	rec.RequestCount = max(rec.RequestCount, 0)
	rec.TokenCount = clamp(rec.TokenCount)
	rec.TodayCost = clamp(rec.TodayCost)
	rec.CostLimit = clamp(rec.CostLimit)
	rec.CostPercentage = CostPercentage(rec.TodayCost, rec.CostLimit)
	return rec
}

// Trend compares the first and last of the most recent window values.
func Trend(values []float64, window int) string {
	if window < 2 {
		window = 2
	}
	if len(values) > window {
		values = values[len(values)-window:]
	}
	if len(values) < 2 {
		return "flat"
	}
	diff := values[len(values)-1] - values[0]
	switch {
	case diff > trendDeadBand:
		return "up"
	case diff < -trendDeadBand:
		return "down"
	default:
		return "flat"
	}
}

func clamp(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
