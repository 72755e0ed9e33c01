package output

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"

	"github.com/sdpower/ccstatusbar-go/internal/calculator"
	"github.com/sdpower/ccstatusbar-go/internal/config"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

func sampleRecord() types.UsageRecord {
	return types.UsageRecord{
		RequestCount:   1840,
		TokenCount:     48_200_000,
		TodayCost:      29.22,
		CostLimit:      100,
		CostPercentage: calculator.CostPercentage(29.22, 100),
		APIKeyName:     "team-key",
		APIKeyStatus:   "active",
		ExpiryDate:     "2025-09-21T01:08:00Z",
		LastUpdate:     time.Date(2025, 9, 20, 23, 23, 54, 0, time.UTC),
	}
}

func sampleOptions() StatusOptions {
	opts := StatusOptionsFromConfig(config.Default())
	opts.Location = time.UTC
	return opts
}

func TestStatusLineFull(t *testing.T) {
	line := StatusLine(sampleRecord(), sampleOptions())
	assert.Equal(t, "🟢 | 1840 Requests | 48.2M Tokens | $29.22(29.2%) | 到期：2025/09/21 01:08 | 更新：23:23", line)
}

func TestStatusLineWithPromptAndBar(t *testing.T) {
	opts := sampleOptions()
	opts.Prompt = "dev@box:api"
	opts.Display.ShowProgressBar = true
	opts.Display.ShowTokens = false
	opts.Display.ShowExpiry = false

	line := StatusLine(sampleRecord(), opts)
	assert.Equal(t, "dev@box:api | 🟢 | 1840 Requests | $29.22(29.2%) | ███░░░░░░░ | 更新：23:23", line)
}

func TestStatusLineIconFollowsThresholds(t *testing.T) {
	tests := []struct {
		cost float64
		icon string
	}{
		{cost: 10, icon: IconOK},
		{cost: 70, icon: IconWarning},
		{cost: 89.9, icon: IconWarning},
		{cost: 90, icon: IconCritical},
		{cost: 140, icon: IconCritical},
	}
	for _, tt := range tests {
		rec := sampleRecord()
		rec.TodayCost = tt.cost
		rec.CostPercentage = calculator.CostPercentage(tt.cost, rec.CostLimit)
		assert.Equal(t, tt.icon, StatusIcon(rec, 70, 90), "cost %v", tt.cost)
	}
}

func TestStatusLineWithoutLimit(t *testing.T) {
	rec := sampleRecord()
	rec.TodayCost = 3
	rec.CostLimit = 0
	rec.CostPercentage = nil
	opts := sampleOptions()
	opts.Display.ShowProgressBar = true
	opts.Color = true

	line := StatusLine(rec, opts)
	assert.Equal(t, "🟢 | 1840 Requests | 48.2M Tokens | $3 | 到期：2025/09/21 01:08 | 更新：23:23", line)
}

func TestStatusLineSkipsUnparseableExpiry(t *testing.T) {
	rec := sampleRecord()
	rec.ExpiryDate = "never"
	line := StatusLine(rec, sampleOptions())
	assert.NotContains(t, line, expiryPrefix)
}

func TestStatusLineCompactionOrder(t *testing.T) {
	stages := []string{
		"🟢 | 1840 Requests | $29.22(29.2%) | 到期：2025/09/21 01:08 | 更新：23:23",
		"🟢 | $29.22(29.2%) | 到期：2025/09/21 01:08 | 更新：23:23",
		"🟢 | $29.22(29.2%) | 更新：23:23",
		"🟢 | $29.22(29.2%)",
	}
	for _, want := range stages {
		opts := sampleOptions()
		opts.MaxLength = ansi.StringWidth(want)
		assert.Equal(t, want, StatusLine(sampleRecord(), opts))
	}
}

func TestStatusLineTruncatesLast(t *testing.T) {
	opts := sampleOptions()
	opts.MaxLength = 10

	line := StatusLine(sampleRecord(), opts)
	assert.LessOrEqual(t, ansi.StringWidth(line), 10)
	assert.True(t, strings.HasSuffix(line, ellipsis))
	assert.True(t, strings.HasPrefix(line, IconOK))
}

func TestStatusLineColor(t *testing.T) {
	opts := sampleOptions()
	opts.Color = true

	line := StatusLine(sampleRecord(), opts)
	assert.Contains(t, line, "\x1b[")
	assert.Equal(t, StatusLine(sampleRecord(), sampleOptions()), ansi.Strip(line))
}

func TestCompactParts(t *testing.T) {
	parts := []string{"🟡", "12 Requests", "1.2K Tokens", "$7.50(75%)", "更新：09:15"}

	assert.Equal(t, "🟡 | 12 Requests | 1.2K Tokens | $7.50(75%) | 更新：09:15", Compact(parts, 0))
	assert.Equal(t, "🟡 | $7.50(75%) | 更新：09:15", Compact(parts, ansi.StringWidth("🟡 | $7.50(75%) | 更新：09:15")))
}

func TestOfflineLine(t *testing.T) {
	assert.Equal(t, "⚠️ CC状态栏错误", OfflineLine(""))
	assert.Equal(t, "dev@box | ⚠️ API离线", OfflineLine("dev@box"))
}

func TestFormatTokens(t *testing.T) {
	tests := map[float64]string{
		-5:         "0",
		0:          "0",
		999:        "999",
		1000:       "1K",
		1234:       "1.2K",
		217_700:    "217.7K",
		1_000_000:  "1M",
		48_200_000: "48.2M",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatTokens(in), "input %v", in)
	}
}

func TestFormatMoney(t *testing.T) {
	tests := map[float64]string{
		0:      "0",
		1:      "1",
		0.5:    "0.50",
		29.22:  "29.22",
		12.346: "12.35",
		100:    "100",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatMoney(in), "input %v", in)
	}
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "███░░░░░░░", ProgressBar(29.2, 10))
	assert.Equal(t, "██████████", ProgressBar(150, 10))
	assert.Equal(t, "░░░░░░░░░░", ProgressBar(-5, 10))
	assert.Equal(t, "", ProgressBar(50, 0))
}

func TestParseExpiry(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)

	got, ok := ParseExpiry("2025/01/31 23:59", loc)
	assert.True(t, ok)
	assert.True(t, got.Equal(time.Date(2025, 1, 31, 23, 59, 0, 0, loc)))

	got, ok = ParseExpiry(" 2025-01-31 ", loc)
	assert.True(t, ok)
	assert.True(t, got.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, loc)))

	_, ok = ParseExpiry("soon", loc)
	assert.False(t, ok)
}

func TestCostColorEndpoints(t *testing.T) {
	assert.Equal(t, "#22c55e", CostColor(0, 70, 90).Hex())
	assert.Equal(t, "#ef4444", CostColor(100, 70, 90).Hex())

	mid := CostColor(35, 70, 90).Hex()
	assert.NotEqual(t, "#22c55e", mid)
	assert.NotEqual(t, "#eab308", mid)
}
