package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeItems(t *testing.T, raw string) []any {
	t.Helper()
	var items []any
	require.NoError(t, json.Unmarshal([]byte(raw), &items))
	return items
}

func TestAggregateModelStats(t *testing.T) {
	tests := []struct {
		name     string
		items    string
		requests int
		tokens   float64
	}{
		{"empty", `[]`, 0, 0},
		{"primary fields", `[{"requests": 3, "tokens": 100}, {"requests": 2, "tokens": 50}]`, 5, 150},
		{"request aliases in priority order", `[{"requestCount": 4}, {"totalRequests": 1}, {"count": 2}, {"reqCount": 3}, {"requests": 1, "count": 99}]`, 11, 0},
		{"token aliases", `[{"tokenCount": 10}, {"totalTokens": 20}, {"tokens": 5, "totalTokens": 1000}]`, 0, 35},
		{"input/output pair", `[{"inputTokens": 100, "outputTokens": 50}]`, 0, 150},
		{"one-sided pair", `[{"outputTokens": 7}]`, 0, 7},
		{"prompt/completion pair", `[{"promptTokens": 30, "completionTokens": 12}]`, 0, 42},
		{"zero pair falls through", `[{"inputTokens": 0, "outputTokens": 0, "promptTokens": 1}]`, 0, 1},
		{"string numbers ignored", `[{"requests": "5", "tokens": "100"}]`, 0, 0},
		{"non-object items skipped", `[1, "x", null, {"requests": 2}]`, 2, 0},
		{"unknown fields under-count", `[{"calls": 9, "usage": 100}]`, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateModelStats(decodeItems(t, tt.items))
			assert.Equal(t, tt.requests, got.Requests)
			assert.Equal(t, tt.tokens, got.Tokens)
		})
	}
}

func TestAggregateWith(t *testing.T) {
	items := decodeItems(t, `[{"hits": "1.5", "used": 10}, {"hits": 1.5, "used": 5}, {"requests": 9}]`)

	got := AggregateWith(items, Loose("hits"), Number("used"))
	assert.Equal(t, 3, got.Requests, "total is rounded once, not per item")
	assert.Equal(t, 15.0, got.Tokens)

	assert.Equal(t, AggregateModelStats(items), AggregateWith(items, RequestCount, TokenCount))
}

func TestExtractors(t *testing.T) {
	item := map[string]any{
		"a":     float64(2),
		"b":     "3.5",
		"c":     float64(-1),
		"d":     nil,
		"n":     json.Number("8"),
		"blank": "  ",
	}

	v, ok := Number("a")(item)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = Number("b")(item)
	assert.False(t, ok, "Number must not coerce strings")

	v, ok = Loose("b")(item)
	assert.True(t, ok)
	assert.Equal(t, 3.5, v)

	_, ok = Loose("blank")(item)
	assert.False(t, ok)

	v, ok = Number("n")(item)
	assert.True(t, ok)
	assert.Equal(t, 8.0, v)

	_, ok = NonNegative(Number("c"))(item)
	assert.False(t, ok)

	_, ok = Number("d")(item)
	assert.False(t, ok)

	v, ok = Sum("a", "b", "missing")(item)
	assert.True(t, ok)
	assert.Equal(t, 5.5, v)

	_, ok = Sum("missing", "other")(item)
	assert.False(t, ok)

	v, ok = Chain(Number("missing"), Number("b"), Loose("b"), Number("a"))(item)
	assert.True(t, ok)
	assert.Equal(t, 3.5, v)
}
