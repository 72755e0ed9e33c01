package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/sdpower/ccstatusbar-go/internal/types"
)

// Extraction is the best-effort result of scanning a dashboard page.
// PagePercentage is whatever percentage the page printed first; the
// normalized record always derives its own from cost and limit.
type Extraction struct {
	types.UsageRecord
	PagePercentage float64
}

// Each field is an ordered list of phrasings; the first match wins and
// capture group 1 carries the value. The dashboard mixes Chinese and
// English labels and its copy changes between releases.
var (
	requestPatterns = compile(
		`今日\s*请求(?:数)?\D*(\d[\d,]*)`,
		`(\d[\d,]*)\s*(?:次)?\s*请求`,
		`(?i)(\d[\d,]*)\s*Requests?`,
	)
	tokenPatterns = compile(
		`(?i)Token(?:s)?\D*(\d+(?:\.\d+)?[KMB]?)`,
	)
	todayCostPatterns = compile(
		`今日\s*费用\D*\$?(\d+(?:\.\d+)?)`,
		`(?i)Today\s*Cost\D*\$?(\d+(?:\.\d+)?)`,
		`(?i)\$\s*(\d+(?:\.\d+)?)(?:\s*Today)?`,
	)
	costLimitPatterns = compile(
		`\$\s*\d+(?:\.\d+)?\s*/\s*\$?\s*(\d+(?:\.\d+)?)`,
		`每日\s*费用\s*限制\D*\$?\s*(\d+(?:\.\d+)?)`,
	)
	percentagePatterns = compile(
		`(\d+(?:\.\d+)?)%`,
	)
	keyNamePatterns = compile(
		`名称\s*([^状态\n]+?)\s*状态`,
	)
	keyStatusPatterns = compile(
		`状态\s*(活跃|禁用|已禁用)`,
		`(?i)Status\s*:\s*(Active|Disabled)`,
	)
	expiryPatterns = compile(
		`过期时间\s*([\d/:\-\s]+\d)`,
		`(?i)Expiry\s*:?\s*([\d/:\-\s]+\d)`,
	)
)

// ExtractHTML flattens doc and applies the pattern chains. Fields with no
// matching phrasing keep their zero value; it never fails.
func ExtractHTML(doc string) Extraction {
	return ExtractText(FlattenHTML(doc))
}

// ExtractText applies the pattern chains to already flattened page text.
func ExtractText(text string) Extraction {
	var x Extraction

	if v, ok := firstMatch(text, requestPatterns); ok {
		n, err := strconv.Atoi(strings.ReplaceAll(v, ",", ""))
		if err == nil {
			x.RequestCount = n
		}
	}
	if v, ok := firstMatch(text, tokenPatterns); ok {
		x.TokenCount = ParseCompactNumber(v)
	}
	if v, ok := firstMatch(text, todayCostPatterns); ok {
		x.TodayCost = ParseCurrencyNumber(v)
	}
	if v, ok := firstMatch(text, costLimitPatterns); ok {
		x.CostLimit = ParseCurrencyNumber(v)
	}
	if v, ok := firstMatch(text, percentagePatterns); ok {
		x.PagePercentage = ParsePercentage(v)
	}
	if v, ok := firstMatch(text, keyNamePatterns); ok {
		x.APIKeyName = strings.TrimSpace(v)
	}
	if v, ok := firstMatch(text, keyStatusPatterns); ok {
		x.APIKeyStatus = v
	}
	if v, ok := firstMatch(text, expiryPatterns); ok {
		x.ExpiryDate = strings.TrimSpace(v)
	}

	return x
}

// FlattenHTML returns the document's text content as one whitespace-collapsed
// line. Text nodes are concatenated as-is, so a value split across inline
// elements stays whole. Script and style bodies are skipped.
func FlattenHTML(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var text strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(text.String()), " ")
		case html.StartTagToken:
			if isRawTextTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawTextTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				text.Write(z.Text())
			}
		}
	}
}

func isRawTextTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

func firstMatch(text string, patterns []*regexp.Regexp) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}
