// Package apistats talks to the relay dashboard's JSON endpoints. A source
// URL carrying an apiId query parameter exposes two sibling endpoints that
// together describe today's usage for that key.
package apistats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/sdpower/ccstatusbar-go/internal/calculator"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/parser"
	"github.com/sdpower/ccstatusbar-go/internal/types"
)

const (
	IdentifierParam = "apiId"

	UserStatsPath  = "/apiStats/api/user-stats"
	ModelStatsPath = "/apiStats/api/user-model-stats"

	DefaultUserAgent      = "Mozilla/5.0 (ccstatusbar; +https://github.com/sdpower/ccstatusbar-go)"
	DefaultAcceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"

	maxBodyBytes = 4 << 20
)

// Identifier returns the apiId and origin carried by sourceURL.
func Identifier(sourceURL string) (id, origin string, err error) {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", types.ErrNoIdentifier
	}
	id = strings.TrimSpace(u.Query().Get(IdentifierParam))
	if id == "" {
		return "", "", types.ErrNoIdentifier
	}
	return id, u.Scheme + "://" + u.Host, nil
}

// Endpoints derives the user-stats and model-stats URLs from an origin.
func Endpoints(origin string) (userStats, modelStats string) {
	origin = strings.TrimRight(origin, "/")
	return origin + UserStatsPath, origin + ModelStatsPath
}

type Client struct {
	httpClient *http.Client
	headers    map[string]string
	timeout    time.Duration
}

// NewClient builds a client. A nil httpClient uses http.DefaultClient;
// headers override the defaults key by key.
func NewClient(httpClient *http.Client, headers map[string]string, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		headers:    headers,
		timeout:    timeout,
	}
}

// Fetch issues both POSTs concurrently and maps them into a record. Any
// failure of either request fails the whole call.
func (c *Client) Fetch(ctx context.Context, sourceURL string) (types.UsageRecord, error) {
	report, err := c.FetchReport(ctx, sourceURL)
	if err != nil {
		return types.UsageRecord{}, err
	}
	return report.Record, nil
}

// FetchReport is Fetch keeping the per-model rows.
func (c *Client) FetchReport(ctx context.Context, sourceURL string) (types.UsageReport, error) {
	id, origin, err := Identifier(sourceURL)
	if err != nil {
		return types.UsageReport{}, err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	statsURL, modelsURL := Endpoints(origin)
	headers := c.requestHeaders(origin, sourceURL)

	var stats, models any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = c.post(gctx, statsURL, map[string]any{"apiId": id}, headers)
		return err
	})
	g.Go(func() error {
		var err error
		models, err = c.post(gctx, modelsURL, map[string]any{"apiId": id, "period": "daily"}, headers)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.UsageReport{}, err
	}

	return buildReport(unwrap(stats), unwrap(models))
}

func (c *Client) requestHeaders(origin, referer string) map[string]string {
	h := map[string]string{
		"User-Agent":      DefaultUserAgent,
		"Accept-Language": DefaultAcceptLanguage,
		"Content-Type":    "application/json",
		"Accept":          "application/json",
		"Origin":          origin,
		"Referer":         referer,
	}
	return lo.Assign(h, c.headers)
}

func (c *Client) post(ctx context.Context, endpoint string, body map[string]any, headers map[string]string) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", logger.SafeURL(endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &types.HTTPError{URL: logger.SafeURL(endpoint), StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", logger.SafeURL(endpoint), err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON from %s: %w", logger.SafeURL(endpoint), err)
	}
	return decoded, nil
}

// unwrap strips a { "data": ... } envelope when data is populated.
func unwrap(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if inner, ok := obj["data"]; ok && truthy(inner) {
		return inner
	}
	return v
}

// modelItems finds the item list directly, under items, or under list.
func modelItems(v any) []any {
	if items, ok := v.([]any); ok {
		return items
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range []string{"items", "list"} {
		if items, ok := obj[key].([]any); ok {
			return items
		}
	}
	return nil
}

var (
	itemRequests = parser.Chain(parser.Loose("requests"), parser.RequestCount)
	itemTokens   = parser.Chain(
		parser.NonNegative(parser.Loose("allTokens")),
		parser.Sum("inputTokens", "outputTokens", "cacheCreateTokens", "cacheReadTokens"),
		parser.TokenCount,
	)
)

func buildReport(stats, models any) (types.UsageReport, error) {
	s, ok := stats.(map[string]any)
	if !ok {
		return types.UsageReport{}, fmt.Errorf("user stats: %w", types.ErrUnexpectedShape)
	}

	items := modelItems(models)
	rows := modelRows(items)
	totals := parser.AggregateWith(items, itemRequests, itemTokens)
	var cost float64
	for _, row := range rows {
		cost += row.Cost
	}

	var limit float64
	if limits, ok := s["limits"].(map[string]any); ok {
		limit, _ = parser.Number("dailyCostLimit")(limits)
	}

	rec := types.UsageRecord{
		RequestCount: totals.Requests,
		TokenCount:   totals.Tokens,
		TodayCost:    cost,
		CostLimit:    limit,
		APIKeyName:   firstString(s, "apiKeyName", "keyName"),
		APIKeyStatus: firstString(s, "apiKeyStatus", "keyStatus", "status"),
		ExpiryDate:   stringify(s["expiresAt"]),
	}
	rec.CostPercentage = calculator.CostPercentage(rec.TodayCost, rec.CostLimit)
	return types.UsageReport{Record: rec, Models: rows}, nil
}

// modelRows skips entries that are not objects.
func modelRows(items []any) []types.ModelUsage {
	rows := make([]types.ModelUsage, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		var row types.ModelUsage
		row.Model = firstString(item, "model", "modelName", "name")
		if v, ok := itemRequests(item); ok {
			row.Requests = int(math.Round(v))
		}
		if v, ok := itemTokens(item); ok {
			row.Tokens = v
		}
		if costs, ok := item["costs"].(map[string]any); ok {
			row.Cost, _ = parser.Number("total")(costs)
		}
		rows = append(rows, row)
	}
	return rows
}

func firstString(obj map[string]any, keys ...string) string {
	return lo.CoalesceOrEmpty(lo.Map(keys, func(k string, _ int) string { return stringify(obj[k]) })...)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
