package synth

import (
	"encoding/json"
	"strings"
)

// parsedReport holds the four report fields extracted from an LLM response.
type parsedReport struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	Methodology string   `json:"methodology"`
	Limitations string   `json:"limitations"`
}

// parseResponse parses an LLM response, trying JSON first and falling back
// to plain text heuristics when the model ignored the format instructions.
func parseResponse(raw string) parsedReport {
	text := stripFences(strings.TrimSpace(raw))

	if report, ok := parseJSON(text); ok {
		return report
	}
	return parsePlainText(text)
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		first := strings.TrimSpace(text[:idx])
		if len(first) <= 10 {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func parseJSON(text string) (parsedReport, bool) {
	var report parsedReport

	candidate := text
	if !strings.HasPrefix(candidate, "{") {
		// The model may have wrapped the JSON in prose.
		start := strings.IndexByte(candidate, '{')
		end := strings.LastIndexByte(candidate, '}')
		if start < 0 || end <= start {
			return report, false
		}
		candidate = candidate[start : end+1]
	}

	if err := json.Unmarshal([]byte(candidate), &report); err != nil {
		return parsedReport{}, false
	}

	if report.Methodology == "" {
		report.Methodology = "No methodology provided"
	}
	if report.Limitations == "" {
		report.Limitations = "No limitations provided"
	}
	return report, true
}

// parsePlainText salvages a report from a free-form response: the leading
// text becomes the summary and dashed lines become key points.
func parsePlainText(text string) parsedReport {
	summary := text
	if len(summary) > 500 {
		summary = truncateAt(summary, 500) + "..."
	}

	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			points = append(points, strings.TrimSpace(strings.TrimPrefix(line, "- ")))
			if len(points) == 5 {
				break
			}
		}
	}

	return parsedReport{
		Summary:     strings.TrimSpace(summary),
		KeyPoints:   points,
		Methodology: "Analyzed multiple web sources using AI summarization",
		Limitations: "Automated analysis may miss nuanced details",
	}
}
