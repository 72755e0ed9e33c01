package output

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sdpower/ccstatusbar-go/internal/types"
)

type Formatter struct {
	options FormatterOptions
}

type FormatterOptions struct {
	Format   string // "summary", "table", "json", "csv"
	NoColor  bool
	Location *time.Location
}

func NewFormatter(opts FormatterOptions) *Formatter {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Formatter{options: opts}
}

func (f *Formatter) FormatRecord(rec types.UsageRecord) (string, error) {
	switch f.options.Format {
	case "json":
		return f.FormatJSON(rec)
	case "csv":
		return f.FormatCSV([][]string{recordCSVHeader, f.recordCSVRow(rec.LastUpdate, rec)})
	case "table":
		return f.tableFormatter().FormatRecord(rec), nil
	default:
		return f.formatSummary(rec), nil
	}
}

func (f *Formatter) FormatReport(report types.UsageReport) (string, error) {
	switch f.options.Format {
	case "json":
		return f.FormatJSON(report)
	case "csv":
		rows := [][]string{{"model", "requests", "tokens", "cost"}}
		for _, m := range report.Models {
			rows = append(rows, []string{
				m.Model,
				strconv.Itoa(m.Requests),
				strconv.FormatFloat(m.Tokens, 'f', -1, 64),
				strconv.FormatFloat(m.Cost, 'f', 6, 64),
			})
		}
		return f.FormatCSV(rows)
	default:
		return f.tableFormatter().FormatModels(report), nil
	}
}

func (f *Formatter) FormatHistory(snaps []types.Snapshot) (string, error) {
	switch f.options.Format {
	case "json":
		return f.FormatJSON(snaps)
	case "csv":
		rows := [][]string{recordCSVHeader}
		for _, s := range snaps {
			rows = append(rows, f.recordCSVRow(s.FetchedAt, s.Record))
		}
		return f.FormatCSV(rows)
	default:
		return f.tableFormatter().FormatHistory(snaps), nil
	}
}

func (f *Formatter) FormatJSON(data interface{}) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (f *Formatter) FormatCSV(data [][]string) (string, error) {
	var output strings.Builder
	for _, row := range data {
		for i, cell := range row {
			if i > 0 {
				output.WriteString(",")
			}
			// Escape quotes in cells
			if strings.ContainsAny(cell, "\",\n") {
				output.WriteString("\"")
				output.WriteString(strings.ReplaceAll(cell, "\"", "\"\""))
				output.WriteString("\"")
			} else {
				output.WriteString(cell)
			}
		}
		output.WriteString("\n")
	}
	return output.String(), nil
}

var recordCSVHeader = []string{"time", "requests", "tokens", "cost", "cost_limit", "cost_percentage", "expiry"}

func (f *Formatter) recordCSVRow(at time.Time, rec types.UsageRecord) []string {
	pct := ""
	if rec.CostPercentage != nil {
		pct = strconv.FormatFloat(*rec.CostPercentage, 'f', -1, 64)
	}
	return []string{
		at.In(f.options.Location).Format(time.RFC3339),
		strconv.Itoa(rec.RequestCount),
		strconv.FormatFloat(rec.TokenCount, 'f', -1, 64),
		strconv.FormatFloat(rec.TodayCost, 'f', 6, 64),
		strconv.FormatFloat(rec.CostLimit, 'f', 2, 64),
		pct,
		rec.ExpiryDate,
	}
}

func (f *Formatter) tableFormatter() *TableWriterFormatter {
	tf := NewTableWriterFormatter(f.options.NoColor)
	tf.SetTimezone(f.options.Location)
	return tf
}

func (f *Formatter) formatSummary(rec types.UsageRecord) string {
	title := "📊 Claude API 使用统计"
	if !f.options.NoColor {
		title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render(title)
	}

	cost := fmt.Sprintf("$%s / ∞", FormatMoney(rec.TodayCost))
	if rec.HasLimit() {
		cost = fmt.Sprintf("$%s / $%s (%s%%)", FormatMoney(rec.TodayCost), FormatMoney(rec.CostLimit), formatPercent(rec.Percentage()))
	}
	updated := "未知"
	if !rec.LastUpdate.IsZero() {
		updated = rec.LastUpdate.In(f.options.Location).Format("2006-01-02 15:04:05")
	}

	lines := []string{
		title,
		fmt.Sprintf("🔑 %s (%s)", orUnknown(rec.APIKeyName), orUnknown(rec.APIKeyStatus)),
		fmt.Sprintf("📈 今日请求: %d", rec.RequestCount),
		fmt.Sprintf("🎯 Token总计: %s", FormatTokens(rec.TokenCount)),
		fmt.Sprintf("💰 今日费用: %s", cost),
		fmt.Sprintf("⏰ 更新时间: %s", updated),
		fmt.Sprintf("📅 过期时间: %s", orUnknown(rec.ExpiryDate)),
	}
	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "未知"
	}
	return s
}
