package output

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sdpower/ccstatusbar-go/internal/calculator"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

func TestShortenModelName(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
		desc     string
	}{
		// 帶小版本號
		{"claude-opus-4-1-20250805", "Opus-4.1", "Opus 4.1 模型"},
		{"claude-sonnet-4-5-20250929", "Sonnet-4.5", "Sonnet 4.5 模型"},
		{"claude-haiku-4-5-20251001", "Haiku-4.5", "Haiku 4.5 模型"},

		// 標準格式
		{"claude-opus-4-20250514", "Opus-4", "Opus 4 標準格式"},
		{"claude-sonnet-4-20250514", "Sonnet-4", "Sonnet 4 標準格式"},

		// 非 Claude 模型
		{"gpt-4o-mini", "gpt-4o-mini", "GPT-4o-mini 模型"},
		{"gpt-3.5-turbo", "gpt-3.5", "GPT-3.5 模型"},

		// 未知模型格式
		{"very-long-model-name-that-exceeds-limit", "very-long-mo", "超長模型名稱"},
		{"", "", "空字串"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, ShortenModelName(tc.input), "輸入 %s", tc.input)
		})
	}
}

func TestFormatNumberWithCommas(t *testing.T) {
	assert.Equal(t, "0", formatNumberWithCommas(0))
	assert.Equal(t, "999", formatNumberWithCommas(999))
	assert.Equal(t, "1,000", formatNumberWithCommas(1000))
	assert.Equal(t, "48,200,000", formatNumberWithCommas(48_200_000))
	assert.Equal(t, "-12,345", formatNumberWithCommas(-12345))
}

func TestFormatRecordTable(t *testing.T) {
	f := NewTableWriterFormatter(true)
	f.SetTimezone(time.UTC)

	out := f.FormatRecord(sampleRecord())
	assert.NotContains(t, out, "\033[")
	for _, want := range []string{"Claude API Usage - Today", "team-key", "1,840", "48,200,000", "$29.22", "$100.00", "29.2%", "2025-09-20 23:23:54"} {
		assert.Contains(t, out, want)
	}
}

func TestFormatRecordTableWithoutLimit(t *testing.T) {
	rec := sampleRecord()
	rec.CostLimit = 0
	rec.CostPercentage = nil

	out := NewTableWriterFormatter(true).FormatRecord(rec)
	assert.Contains(t, out, "∞")
	assert.NotContains(t, out, "29.2%")
}

func TestFormatModels(t *testing.T) {
	report := types.UsageReport{
		Record: types.UsageRecord{RequestCount: 10, TokenCount: 1500, TodayCost: 2},
		Models: []types.ModelUsage{
			{Model: "claude-haiku-4-5-20251001", Requests: 3, Tokens: 300, Cost: 0.5},
			{Model: "claude-sonnet-4-5-20250929", Requests: 7, Tokens: 1200, Cost: 1.5},
		},
	}

	out := NewTableWriterFormatter(true).FormatModels(report)
	sonnet := strings.Index(out, "Sonnet-4.5")
	haiku := strings.Index(out, "Haiku-4.5")
	assert.Positive(t, sonnet)
	assert.Positive(t, haiku)
	assert.Less(t, sonnet, haiku, "most expensive first")
	assert.Contains(t, out, "75%")
	assert.Contains(t, out, "25%")
	assert.Contains(t, out, "Total")
	assert.Contains(t, out, "1,500")

	empty := NewTableWriterFormatter(true).FormatModels(types.UsageReport{})
	assert.Contains(t, empty, "No model usage recorded today.")
}

func TestFormatHistory(t *testing.T) {
	base := time.Date(2025, 9, 20, 8, 0, 0, 0, time.UTC)
	var snaps []types.Snapshot
	for i, cost := range []float64{1, 2.5, 4} {
		snaps = append(snaps, types.Snapshot{
			ID:        int64(i + 1),
			FetchedAt: base.Add(time.Duration(i) * time.Hour),
			Record: types.UsageRecord{
				RequestCount:   (i + 1) * 100,
				TodayCost:      cost,
				CostLimit:      10,
				CostPercentage: calculator.CostPercentage(cost, 10),
			},
		})
	}

	f := NewTableWriterFormatter(true)
	f.SetTimezone(time.UTC)
	out := f.FormatHistory(snaps)
	for _, want := range []string{"08:00:00", "10:00:00", "$2.50", "40%", "Trend", "up"} {
		assert.Contains(t, out, want)
	}

	assert.Contains(t, f.FormatHistory(nil), "No snapshots recorded")
}

func TestColorizeTable(t *testing.T) {
	out := NewTableWriterFormatter(false).FormatModels(types.UsageReport{
		Record: types.UsageRecord{RequestCount: 1, TodayCost: 1},
		Models: []types.ModelUsage{{Model: "gpt-4o", Requests: 1, Cost: 1}},
	})
	assert.Contains(t, out, "\033[36m")
	assert.Contains(t, out, "\033[33m")
	assert.Contains(t, out, "\033[90m")
}

func TestCostGraph(t *testing.T) {
	assert.Empty(t, CostGraph(nil, 40, 5))
	assert.Empty(t, CostGraph([]types.Snapshot{{}}, 40, 5))

	snaps := []types.Snapshot{
		{Record: types.UsageRecord{TodayCost: 1}},
		{Record: types.UsageRecord{TodayCost: 3}},
		{Record: types.UsageRecord{TodayCost: 2}},
	}
	graph := CostGraph(snaps, 20, 4)
	assert.Contains(t, graph, "cost (USD)")
	assert.Contains(t, graph, "3.00")
}
