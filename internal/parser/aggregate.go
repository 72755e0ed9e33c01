package parser

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Extractor pulls one numeric value out of a loosely typed usage item.
// The bool is false when the item has nothing usable for this extractor.
type Extractor func(item map[string]any) (float64, bool)

// RequestFields and TokenFields are the aliases seen across dashboard
// versions, highest priority first.
var (
	RequestFields = []string{"requests", "requestCount", "totalRequests", "count", "reqCount"}
	TokenFields   = []string{"tokens", "tokenCount", "totalTokens"}
)

var (
	// RequestCount reads the first numeric request-count alias.
	RequestCount = Chain(lo.Map(RequestFields, func(key string, _ int) Extractor { return Number(key) })...)

	// TokenCount prefers a single aggregate field and falls back to split
	// input/output accounting.
	TokenCount = Chain(
		Chain(lo.Map(TokenFields, func(key string, _ int) Extractor { return Number(key) })...),
		Pair("inputTokens", "outputTokens"),
		Pair("promptTokens", "completionTokens"),
	)
)

// ModelStats is the aggregate of a per-model usage list.
type ModelStats struct {
	Requests int
	Tokens   float64
}

// AggregateModelStats sums request and token counts across items. Items that
// are not objects, or that use field names not listed above, contribute 0.
func AggregateModelStats(items []any) ModelStats {
	return AggregateWith(items, RequestCount, TokenCount)
}

// AggregateWith is AggregateModelStats with caller-supplied extractors.
func AggregateWith(items []any, requestCount, tokenCount Extractor) ModelStats {
	var requests, tokens float64
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := requestCount(item); ok {
			requests += v
		}
		if v, ok := tokenCount(item); ok {
			tokens += v
		}
	}
	return ModelStats{
		Requests: int(math.Round(requests)),
		Tokens:   tokens,
	}
}

// Chain returns the first extractor result that succeeds.
func Chain(extractors ...Extractor) Extractor {
	return func(item map[string]any) (float64, bool) {
		for _, extract := range extractors {
			if v, ok := extract(item); ok {
				return v, true
			}
		}
		return 0, false
	}
}

// Number matches only values that are already numeric in the payload.
func Number(key string) Extractor {
	return func(item map[string]any) (float64, bool) {
		return numeric(item[key])
	}
}

// Loose also accepts numeric strings such as "42".
func Loose(key string) Extractor {
	return func(item map[string]any) (float64, bool) {
		return LooseNumber(item[key])
	}
}

// NonNegative rejects negative results from e.
func NonNegative(e Extractor) Extractor {
	return func(item map[string]any) (float64, bool) {
		v, ok := e(item)
		if !ok || v < 0 {
			return 0, false
		}
		return v, true
	}
}

// Pair sums two numeric fields, accepted when at least one side is nonzero.
func Pair(a, b string) Extractor {
	return func(item map[string]any) (float64, bool) {
		va, _ := numeric(item[a])
		vb, _ := numeric(item[b])
		if va == 0 && vb == 0 {
			return 0, false
		}
		return va + vb, true
	}
}

// Sum adds the loosely numeric values of keys, treating missing ones as 0.
// It succeeds when at least one key is present.
func Sum(keys ...string) Extractor {
	return func(item map[string]any) (float64, bool) {
		var total float64
		found := false
		for _, key := range keys {
			if _, present := item[key]; !present {
				continue
			}
			found = true
			if v, ok := LooseNumber(item[key]); ok {
				total += v
			}
		}
		return total, found
	}
}

// LooseNumber coerces JSON numbers and numeric strings.
func LooseNumber(v any) (float64, bool) {
	if f, ok := numeric(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsInf(n, 0) && !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
