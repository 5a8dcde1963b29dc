package analytics

import (
	"encoding/json"
	"fmt"
	"strings"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/domain/service"
)

const (
	trendEpsilon     = 0.0001
	recentCandleSpan = 5
)

// TrendLabel classifies the mean of the three slope horizons.
func TrendLabel(s models.ScalarFeatures) string {
	avg := (s.ShortTermSlope + s.MediumTermSlope + s.LongTermSlope) / 3
	switch {
	case avg > trendEpsilon:
		return "UPTREND"
	case avg < -trendEpsilon:
		return "DOWNTREND"
	default:
		return "SIDEWAYS"
	}
}

func VolatilityLabel(ratio float64) string {
	switch {
	case ratio > 1.5:
		return "HIGH"
	case ratio > 0.8:
		return "NORMAL"
	default:
		return "LOW"
	}
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// BuildPrompt renders the analysis request sent to the enrichment service.
func BuildPrompt(req service.EnrichmentRequest) string {
	tags := req.Patterns
	if len(tags) == 0 {
		tags = []string{"none"}
	}
	candles := req.Candles
	if len(candles) > recentCandleSpan {
		candles = candles[len(candles)-recentCandleSpan:]
	}
	summary := make([]string, 0, len(candles))
	for _, c := range candles {
		dir := "DOWN"
		if c.Close > c.Open {
			dir = "UP"
		}
		summary = append(summary, fmt.Sprintf("%s (body: %.5f)", dir, c.Body()))
	}
	s := req.Features.Scalars

	var b strings.Builder
	b.WriteString("You are an expert binary options trading analyst. Analyze the following market data and provide insights.\n\n")
	b.WriteString("**Current Market Context:**\n")
	fmt.Fprintf(&b, "- Symbol: %s\n", req.Symbol)
	fmt.Fprintf(&b, "- Detected Patterns: %s\n", strings.Join(tags, ", "))
	fmt.Fprintf(&b, "- Recent Candles: %s\n", strings.Join(summary, " -> "))
	fmt.Fprintf(&b, "- Overall Trend: %s\n", TrendLabel(s))
	fmt.Fprintf(&b, "- Volatility: %s\n", VolatilityLabel(s.VolatilityRatio))
	fmt.Fprintf(&b, "- Near Support: %s\n", yesNo(s.NearSupport))
	fmt.Fprintf(&b, "- Near Resistance: %s\n", yesNo(s.NearResistance))
	if p := req.Performance; p != nil {
		last := p.Last10
		if last == "" {
			last = "N/A"
		}
		fmt.Fprintf(&b, "\n**Recent Performance:**\n- Win Rate: %.1f%%\n- Last 10 Trades: %s\n", p.WinRate*100, last)
	}
	b.WriteString(`
**Your Task:**
1. Analyze if this looks like broker manipulation (sudden reversals, suspicious patterns)
2. Predict the next likely move (UP or DOWN)
3. Provide confidence level (0.0 to 1.0)
4. Give brief reasoning

**Respond in JSON format:**
{
    "prediction": "UP" or "DOWN",
    "confidence": 0.0-1.0,
    "reasoning": "brief explanation",
    "manipulation_detected": true/false,
    "manipulation_reason": "explanation if detected",
    "risk_level": "LOW", "MEDIUM", or "HIGH"
}

Be concise and data-driven. Focus on technical analysis.`)
	return b.String()
}

// ParseJudgment pulls the outermost JSON object out of free text. Text without a decodable
// object carrying both prediction and confidence comes back as Unparsed.
func ParseJudgment(text string) service.EnrichmentResult {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return service.Unparsed{Raw: text}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return service.Unparsed{Raw: text}
	}
	if _, ok := fields["prediction"]; !ok {
		return service.Unparsed{Raw: text}
	}
	if _, ok := fields["confidence"]; !ok {
		return service.Unparsed{Raw: text}
	}
	var j service.Judgment
	if err := json.Unmarshal([]byte(text[start:end+1]), &j); err != nil {
		return service.Unparsed{Raw: text}
	}
	j.Direction = models.ParseDirection(strings.TrimSpace(j.RawDirection))
	if j.Confidence < 0 {
		j.Confidence = 0
	}
	if j.Confidence > 1 {
		j.Confidence = 1
	}
	return service.Parsed{Judgment: j}
}
