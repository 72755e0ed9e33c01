package output

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/samber/lo"

	"github.com/sdpower/ccstatusbar-go/internal/calculator"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

// trendWindow is how many trailing snapshots the history footer compares.
const trendWindow = 5

// TableWriterFormatter uses tablewriter for better table formatting
type TableWriterFormatter struct {
	noColor  bool
	timezone *time.Location
}

func NewTableWriterFormatter(noColor bool) *TableWriterFormatter {
	return &TableWriterFormatter{
		noColor:  noColor,
		timezone: time.Local, // Default to local timezone
	}
}

// formatNumberWithCommas formats a number with thousand separators
func formatNumberWithCommas(n int) string {
	if n < 0 {
		return "-" + formatNumberWithCommas(-n)
	}
	if n < 1000 {
		return strconv.Itoa(n)
	}
	return formatNumberWithCommas(n/1000) + "," + fmt.Sprintf("%03d", n%1000)
}

func (f *TableWriterFormatter) SetTimezone(loc *time.Location) {
	if loc != nil {
		f.timezone = loc
	}
}

func (f *TableWriterFormatter) newTable(buf *bytes.Buffer, align tw.Align) *tablewriter.Table {
	return tablewriter.NewTable(buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: align},
			},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off), // Disable auto uppercase
	)
}

func (f *TableWriterFormatter) title(text string) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 2).
		MarginLeft(1)
	if !f.noColor {
		style = style.BorderForeground(lipgloss.Color("240"))
	}
	return "\n" + style.Render(text) + "\n\n"
}

// FormatRecord renders one record as a field/value table.
func (f *TableWriterFormatter) FormatRecord(rec types.UsageRecord) string {
	var buf bytes.Buffer
	table := f.newTable(&buf, tw.AlignLeft)
	table.Header([]string{"Field", "Value"})

	limit, pct := "∞", "-"
	if rec.HasLimit() {
		limit = fmt.Sprintf("$%.2f", rec.CostLimit)
		pct = formatPercent(rec.Percentage()) + "%"
	}
	updated := "-"
	if !rec.LastUpdate.IsZero() {
		updated = rec.LastUpdate.In(f.timezone).Format("2006-01-02 15:04:05")
	}

	rows := [][]string{
		{"API key", lo.CoalesceOrEmpty(rec.APIKeyName, "-")},
		{"Status", lo.CoalesceOrEmpty(rec.APIKeyStatus, "-")},
		{"Requests", formatNumberWithCommas(rec.RequestCount)},
		{"Tokens", formatNumberWithCommas(int(math.Round(rec.TokenCount)))},
		{"Cost (USD)", fmt.Sprintf("$%.2f", rec.TodayCost)},
		{"Daily limit", limit},
		{"Usage", pct},
		{"Expires", lo.CoalesceOrEmpty(rec.ExpiryDate, "-")},
		{"Updated", updated},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()

	return f.title("Claude API Usage - Today") + f.colorize(buf.String())
}

// FormatModels lists the per-model rows behind a report, most expensive first.
func (f *TableWriterFormatter) FormatModels(report types.UsageReport) string {
	if len(report.Models) == 0 {
		return f.title("Claude API Usage - Models") + "No model usage recorded today.\n"
	}

	models := append([]types.ModelUsage(nil), report.Models...)
	sort.SliceStable(models, func(i, j int) bool {
		if models[i].Cost != models[j].Cost {
			return models[i].Cost > models[j].Cost
		}
		return models[i].Model < models[j].Model
	})

	var buf bytes.Buffer
	table := f.newTable(&buf, tw.AlignRight)
	table.Header([]string{"Model", "Requests", "Total\nTokens", "Cost\n(USD)", "Share"})

	rec := report.Record
	for _, m := range models {
		share := "-"
		if rec.TodayCost > 0 {
			share = formatPercent(m.Cost/rec.TodayCost*100) + "%"
		}
		table.Append([]string{
			lo.CoalesceOrEmpty(ShortenModelName(m.Model), "-"),
			f.formatLargeNumber(m.Requests),
			f.formatLargeNumber(int(math.Round(m.Tokens))),
			fmt.Sprintf("$%.2f", m.Cost),
			share,
		})
	}

	table.Footer([]string{
		"Total",
		f.formatLargeNumber(rec.RequestCount),
		f.formatLargeNumber(int(math.Round(rec.TokenCount))),
		fmt.Sprintf("$%.2f", rec.TodayCost),
		"",
	})
	table.Render()

	return f.title("Claude API Usage - Models") + f.colorize(buf.String())
}

// FormatHistory renders stored snapshots oldest first with a cost trend footer.
func (f *TableWriterFormatter) FormatHistory(snaps []types.Snapshot) string {
	if len(snaps) == 0 {
		return f.title("Claude API Usage - History") + "No snapshots recorded for the specified period.\n"
	}

	var buf bytes.Buffer
	table := f.newTable(&buf, tw.AlignRight)
	table.Header([]string{"Time", "Requests", "Total\nTokens", "Cost\n(USD)", "Usage"})

	costs := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		rec := s.Record
		usage := "-"
		if rec.HasLimit() {
			usage = formatPercent(rec.Percentage()) + "%"
		}
		table.Append([]string{
			s.FetchedAt.In(f.timezone).Format("01-02\n15:04:05"),
			f.formatLargeNumber(rec.RequestCount),
			f.formatLargeNumber(int(math.Round(rec.TokenCount))),
			fmt.Sprintf("$%.2f", rec.TodayCost),
			usage,
		})
		costs = append(costs, rec.TodayCost)
	}

	table.Footer([]string{"Trend", "", "", "", calculator.Trend(costs, trendWindow)})
	table.Render()

	return f.title("Claude API Usage - History") + f.colorize(buf.String())
}

// CostGraph plots today's cost across snapshots. Fewer than two points yields "".
func CostGraph(snaps []types.Snapshot, width, height int) string {
	if len(snaps) < 2 {
		return ""
	}
	costs := lo.Map(snaps, func(s types.Snapshot, _ int) float64 { return s.Record.TodayCost })
	opts := []asciigraph.Option{
		asciigraph.Precision(2),
		asciigraph.Caption("cost (USD)"),
	}
	if width > 0 {
		opts = append(opts, asciigraph.Width(width))
	}
	if height > 0 {
		opts = append(opts, asciigraph.Height(height))
	}
	return asciigraph.Plot(costs, opts...)
}

// colorize grays the borders, turns headers cyan and the footer yellow.
func (f *TableWriterFormatter) colorize(tableOutput string) string {
	if f.noColor {
		return tableOutput
	}
	const (
		gray   = "\033[90m"
		cyan   = "\033[36m"
		yellow = "\033[33m"
		reset  = "\033[0m"
	)

	lines := strings.Split(tableOutput, "\n")
	headerDone := false
	var out strings.Builder
	for i, line := range lines {
		if i > 0 {
			out.WriteString("\n")
		}
		switch {
		case line == "":
		case strings.HasPrefix(line, "┌") || strings.HasPrefix(line, "├") || strings.HasPrefix(line, "└"):
			if strings.HasPrefix(line, "├") {
				headerDone = true
			}
			out.WriteString(gray + line + reset)
		case strings.Contains(line, "│"):
			footer := strings.Contains(line, "Total") || strings.Contains(line, "Trend")
			for j, part := range strings.Split(line, "│") {
				if j > 0 {
					out.WriteString(gray + "│" + reset)
				}
				switch {
				case strings.TrimSpace(part) == "":
					out.WriteString(part)
				case !headerDone:
					out.WriteString(cyan + part + reset)
				case footer:
					out.WriteString(yellow + part + reset)
				default:
					out.WriteString(part)
				}
			}
		default:
			out.WriteString(line)
		}
	}
	return out.String()
}

var (
	modelWithMinor = regexp.MustCompile(`^claude-(\w+)-(\d+)-(\d+)-\d+`)
	modelMajor     = regexp.MustCompile(`^claude-(\w+)-(\d+)-\d+`)
)

// ShortenModelName 簡化 model 名稱為顯示格式
// Examples:
// claude-opus-4-1-20250805 -> Opus-4.1
// claude-sonnet-4-20250514 -> Sonnet-4
func ShortenModelName(model string) string {
	if m := modelWithMinor.FindStringSubmatch(model); m != nil {
		return fmt.Sprintf("%s-%s.%s", capitalize(m[1]), m[2], m[3])
	}
	if m := modelMajor.FindStringSubmatch(model); m != nil {
		return fmt.Sprintf("%s-%s", capitalize(m[1]), m[2])
	}

	knownModels := map[string]string{
		"gpt-4o":        "gpt-4o",
		"gpt-4o-mini":   "gpt-4o-mini",
		"gpt-4":         "gpt-4",
		"gpt-3.5-turbo": "gpt-3.5",
	}
	if short, ok := knownModels[model]; ok {
		return short
	}

	if len(model) > 12 {
		return model[:12]
	}
	return model
}

func capitalize(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (f *TableWriterFormatter) formatLargeNumber(n int) string {
	if n == 0 {
		return "-"
	}
	return formatNumberWithCommas(n)
}
