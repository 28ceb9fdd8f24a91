package synth

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
)

const textTmpl = `Research Report
---------------
Generated:  {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
Sources:    {{.SourcesAnalyzed}} analyzed

Summary
-------
{{.Summary}}

Key Points
----------
{{- range .KeyPoints}}
  - {{.}}
{{- else}}
  None
{{- end}}

Methodology
-----------
{{.Methodology}}

Limitations
-----------
{{.Limitations}}
`

var reportTemplate = template.Must(template.New("report").Parse(textTmpl))

// WriteText writes a human-readable rendering of the report.
func WriteText(w io.Writer, report *storage.Report) error {
	if err := reportTemplate.Execute(w, report); err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	return nil
}

// WriteJSON writes the report to the provided writer in indented JSON.
func WriteJSON(w io.Writer, report *storage.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	return nil
}
