package synth

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSourceChars caps each source's contribution to the prompt so a handful
// of long pages cannot blow the model's context window.
const maxSourceChars = 3000

const systemPrompt = `You are a research analyst. Create a structured research report based on the provided sources.

Your response should be in the following JSON format:
{
    "summary": "A comprehensive 2-3 paragraph summary of the key findings",
    "key_points": ["Point 1", "Point 2", "Point 3", "Point 4", "Point 5"],
    "methodology": "Brief description of how the research was conducted",
    "limitations": "Any limitations or caveats about the findings"
}

Guidelines:
- Summary should be comprehensive but concise (2-3 paragraphs)
- Include 3-5 key points that are the most important findings
- Be objective and factual
- Note any conflicting information between sources
- If sources are limited or of questionable quality, mention this in limitations`

// buildPrompt formats the query and sources into the user prompt, truncating
// each source to maxSourceChars.
func buildPrompt(query string, sources []SourceText) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research Query: %s\n", query)

	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "\n--- Source %d: %s ---\n", i+1, title)
		fmt.Fprintf(&b, "URL: %s\n", src.URL)

		text := src.Text
		if len(text) > maxSourceChars {
			text = truncateAt(text, maxSourceChars) + "...\n[Content truncated]"
		}
		fmt.Fprintf(&b, "Content: %s\n", text)
	}

	b.WriteString("\nPlease analyze the research content above and create a structured report. Remember to format your response as valid JSON with the specified structure.")
	return b.String()
}

// truncateAt cuts s to at most n bytes without splitting a UTF-8 rune.
func truncateAt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
