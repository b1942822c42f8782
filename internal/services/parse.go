package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskora/taskora-ai/internal/domain"
)

// analysisSchema is the fixed shape the prompt asks the model for.
type analysisSchema struct {
	Summary             string   `json:"summary"`
	PrimaryCategory     string   `json:"primary_category"`
	SecondaryCategories []string `json:"secondary_categories"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
}

// parseAnalysis extracts the first balanced JSON object from the raw model
// text and maps it onto an AnalysisResult. Unrecognized category strings map
// to the default category rather than failing.
func parseAnalysis(conversationID, raw string, messageCount int, generatedAt time.Time) (domain.AnalysisResult, error) {
	span, ok := extractJSONObject(raw)
	if !ok {
		return domain.AnalysisResult{}, fmt.Errorf("no JSON object in model output")
	}

	var parsed analysisSchema
	if err := json.Unmarshal([]byte(span), &parsed); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode model output: %w", err)
	}
	if parsed.Summary == "" {
		return domain.AnalysisResult{}, fmt.Errorf("model output missing summary")
	}

	secondary := make([]domain.Category, 0, len(parsed.SecondaryCategories))
	for _, category := range parsed.SecondaryCategories {
		secondary = append(secondary, domain.ParseCategory(category))
	}

	metrics := map[string]string{}
	if parsed.Reasoning != "" {
		metrics["reasoning"] = parsed.Reasoning
	}

	return domain.AnalysisResult{
		ConversationID:      conversationID,
		Summary:             parsed.Summary,
		PrimaryCategory:     domain.ParseCategory(parsed.PrimaryCategory),
		SecondaryCategories: secondary,
		Confidence:          parsed.Confidence,
		MessageCount:        messageCount,
		GeneratedAt:         generatedAt,
		Metrics:             metrics,
	}, nil
}

// extractJSONObject locates the first balanced {...} span with a
// depth-counting scan. A regex cannot handle nested braces; the scan also
// ignores braces inside JSON strings.
func extractJSONObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
