// Package synth turns extracted source text into a structured research
// report by prompting an LLM. Providers are tried in priority order; the
// first one that returns a usable report wins.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/metrics"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
)

// Provider generates a completion for a synthesis prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SourceText is one extracted source fed into the prompt.
type SourceText struct {
	Title string
	URL   string
	Text  string
}

// Synthesizer drives report generation across a prioritized provider list.
type Synthesizer struct {
	providers []Provider
	logger    *slog.Logger
}

// New creates a Synthesizer. Providers are consulted in the order given.
func New(providers []Provider, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{providers: providers, logger: logger}
}

// Synthesize prompts each provider in turn until one produces a report with
// actual content. It returns an error only when every provider fails.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, sources []SourceText) (*storage.Report, error) {
	if len(s.providers) == 0 {
		return nil, errors.New("synth: no providers configured")
	}
	if len(sources) == 0 {
		return nil, errors.New("synth: no sources to analyze")
	}

	userPrompt := buildPrompt(query, sources)

	var errs []string
	for _, p := range s.providers {
		s.logger.Info("attempting report generation", "provider", p.Name())

		raw, err := p.Generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			s.logger.Warn("provider failed", "provider", p.Name(), "err", err)
			metrics.RecordSynthesis(p.Name(), "error")
			errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}

		parsed := parseResponse(raw)
		if parsed.Summary == "" && len(parsed.KeyPoints) == 0 {
			s.logger.Warn("provider returned empty report", "provider", p.Name())
			metrics.RecordSynthesis(p.Name(), "empty")
			errs = append(errs, fmt.Sprintf("%s: empty report", p.Name()))
			continue
		}

		s.logger.Info("report generated", "provider", p.Name())
		metrics.RecordSynthesis(p.Name(), "success")
		return &storage.Report{
			Summary:         parsed.Summary,
			KeyPoints:       parsed.KeyPoints,
			Methodology:     parsed.Methodology,
			Limitations:     parsed.Limitations,
			SourcesAnalyzed: len(sources),
			GeneratedAt:     time.Now().UTC(),
		}, nil
	}

	return nil, fmt.Errorf("synth: all providers failed: %s", strings.Join(errs, "; "))
}
