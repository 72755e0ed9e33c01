package output

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"
	"github.com/samber/lo"

	"github.com/sdpower/ccstatusbar-go/internal/calculator"
	"github.com/sdpower/ccstatusbar-go/internal/config"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

const (
	separator        = " | "
	ellipsis         = "…"
	progressBarWidth = 10

	expiryPrefix = "到期："
	updatePrefix = "更新："
)

const (
	IconOK       = "🟢"
	IconWarning  = "🟡"
	IconCritical = "🔴"
	IconOffline  = "⚠️ API离线"
)

type segmentKind int

const (
	segPrompt segmentKind = iota
	segIcon
	segRequests
	segTokens
	segCost
	segBar
	segExpiry
	segUpdate
)

// compactionOrder is the order segments are dropped in when the line is too wide.
var compactionOrder = []segmentKind{segTokens, segRequests, segExpiry, segUpdate}

type segment struct {
	kind segmentKind
	text string
}

// StatusOptions controls what the status line shows.
type StatusOptions struct {
	Display   config.Display
	Warning   float64
	Critical  float64
	MaxLength int
	Color     bool
	// Prompt is the prebuilt shell prompt prefix; empty omits it.
	Prompt   string
	Location *time.Location
}

// StatusOptionsFromConfig maps the loaded configuration onto StatusOptions.
func StatusOptionsFromConfig(cfg *config.Config) StatusOptions {
	return StatusOptions{
		Display:   cfg.Display,
		Warning:   cfg.Alerts.CostWarningThreshold,
		Critical:  cfg.Alerts.CostCriticalThreshold,
		MaxLength: cfg.MaxLength,
		Color:     cfg.Color,
		Location:  time.Local,
	}
}

// StatusLine renders rec as a single " | " separated line that fits in
// opts.MaxLength display cells (0 means no limit).
func StatusLine(rec types.UsageRecord, opts StatusOptions) string {
	return compact(segments(rec, opts), opts.MaxLength)
}

// OfflineLine is printed when no record could be rendered at all.
func OfflineLine(prompt string) string {
	if prompt == "" {
		return "⚠️ CC状态栏错误"
	}
	return prompt + separator + IconOffline
}

// Compact joins parts and fits them into maxLen cells by dropping token,
// request, expiry and update parts in that order, then truncating.
func Compact(parts []string, maxLen int) string {
	segs := lo.Map(parts, func(p string, _ int) segment { return segment{kind: classify(p), text: p} })
	return compact(segs, maxLen)
}

func classify(part string) segmentKind {
	switch {
	case strings.HasSuffix(part, " Tokens"):
		return segTokens
	case strings.HasSuffix(part, " Requests"):
		return segRequests
	case strings.HasPrefix(part, expiryPrefix):
		return segExpiry
	case strings.HasPrefix(part, updatePrefix):
		return segUpdate
	default:
		return segCost
	}
}

func segments(rec types.UsageRecord, opts StatusOptions) []segment {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	d := opts.Display
	var segs []segment

	if opts.Prompt != "" {
		segs = append(segs, segment{segPrompt, opts.Prompt})
	}
	segs = append(segs, segment{segIcon, StatusIcon(rec, opts.Warning, opts.Critical)})

	if d.ShowRequests {
		segs = append(segs, segment{segRequests, fmt.Sprintf("%d Requests", rec.RequestCount)})
	}
	if d.ShowTokens {
		segs = append(segs, segment{segTokens, FormatTokens(rec.TokenCount) + " Tokens"})
	}
	if d.ShowCost {
		cost := "$" + FormatMoney(rec.TodayCost)
		if d.ShowPercentage && rec.HasLimit() && rec.CostPercentage != nil {
			cost += "(" + formatPercent(*rec.CostPercentage) + "%)"
		}
		if opts.Color {
			cost = colorize(cost, rec, opts.Warning, opts.Critical)
		}
		segs = append(segs, segment{segCost, cost})
	}
	if d.ShowProgressBar && rec.HasLimit() {
		segs = append(segs, segment{segBar, ProgressBar(rec.Percentage(), progressBarWidth)})
	}
	if d.ShowExpiry && rec.ExpiryDate != "" {
		if exp, ok := ParseExpiry(rec.ExpiryDate, loc); ok {
			segs = append(segs, segment{segExpiry, expiryPrefix + exp.In(loc).Format("2006/01/02 15:04")})
		}
	}
	if d.ShowLastUpdate && !rec.LastUpdate.IsZero() {
		segs = append(segs, segment{segUpdate, updatePrefix + rec.LastUpdate.In(loc).Format("15:04")})
	}
	return segs
}

func compact(segs []segment, maxLen int) string {
	line := join(segs)
	if maxLen <= 0 || ansi.StringWidth(line) <= maxLen {
		return line
	}
	for _, kind := range compactionOrder {
		segs = lo.Reject(segs, func(s segment, _ int) bool { return s.kind == kind })
		line = join(segs)
		if ansi.StringWidth(line) <= maxLen {
			return line
		}
	}
	return ansi.Truncate(line, maxLen, ellipsis)
}

func join(segs []segment) string {
	return strings.Join(lo.Map(segs, func(s segment, _ int) string { return s.text }), separator)
}

// StatusIcon is green below the warning threshold or when there is no limit.
func StatusIcon(rec types.UsageRecord, warning, critical float64) string {
	switch calculator.New(warning, critical).Level(rec) {
	case calculator.LevelCritical:
		return IconCritical
	case calculator.LevelWarning:
		return IconWarning
	default:
		return IconOK
	}
}

// FormatTokens abbreviates with K/M and one decimal, dropping a trailing ".0".
func FormatTokens(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return "0"
	}
	switch {
	case n >= 1_000_000:
		return oneDecimal(n/1_000_000) + "M"
	case n >= 1_000:
		return oneDecimal(n/1_000) + "K"
	default:
		return strconv.FormatInt(int64(n), 10)
	}
}

// FormatMoney prints two decimals, or none for whole amounts.
func FormatMoney(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0"
	}
	r := math.Round(n*100) / 100
	if r == math.Trunc(r) {
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	return strconv.FormatFloat(r, 'f', 2, 64)
}

func oneDecimal(v float64) string {
	r := calculator.Round1(v)
	if r == math.Trunc(r) {
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	return strconv.FormatFloat(r, 'f', 1, 64)
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(calculator.Round1(p), 'f', -1, 64)
}

// ProgressBar draws pct (0-100, clamped) as a width-cell bar.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(math.Round(math.Max(0, math.Min(pct, 100)) / 100 * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseExpiry reads the free-text expiry formats the dashboard is known to
// emit. Zone-less values are taken in loc.
func ParseExpiry(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	colorOK       = mustHex("#22c55e")
	colorWarning  = mustHex("#eab308")
	colorCritical = mustHex("#ef4444")
)

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// CostColor blends green to yellow up to the warning threshold and yellow to
// red up to the critical one.
func CostColor(pct, warning, critical float64) colorful.Color {
	warning, critical = calculator.New(warning, critical).Thresholds()
	switch {
	case pct <= 0:
		return colorOK
	case pct < warning:
		return colorOK.BlendLab(colorWarning, pct/warning).Clamped()
	case pct < critical:
		return colorWarning.BlendLab(colorCritical, (pct-warning)/(critical-warning)).Clamped()
	default:
		return colorCritical
	}
}

// Claude Code reads the status line through a pipe, so the profile is
// forced rather than detected.
var colorRenderer = func() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.TrueColor)
	return r
}()

func colorize(text string, rec types.UsageRecord, warning, critical float64) string {
	if !rec.HasLimit() {
		return text
	}
	c := CostColor(rec.Percentage(), warning, critical)
	return colorRenderer.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render(text)
}
