package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/extract"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/fingerprint"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/metrics"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/pipeline"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/search"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/synth"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/pkg/proxy"
)

var runOutput string

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Run a research query end to end",
	Long: `Run searches the web for the query, extracts content from the results,
and synthesizes a structured report.

Examples:
  research-agent run "impact of remote work on productivity"
  research-agent run --output json "go garbage collector design"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "text", "report output format (text or json)")
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	queryText := strings.Join(args, " ")

	searcher := buildSearcher()

	extractor, err := buildExtractor()
	if err != nil {
		return err
	}

	synthesizer, err := buildSynthesizer(ctx)
	if err != nil {
		return err
	}

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort)
		defer srv.Stop(context.Background())
	}

	p := pipeline.New(searcher, extractor, synthesizer, store, pipeline.Config{
		MaxSources:     cfg.MaxSources,
		ExtractWorkers: cfg.ExtractWorkers,
		Logger:         logger,
	})

	q, err := p.Run(ctx, queryText)
	if err != nil {
		return err
	}

	if q.Status == storage.StatusFailed {
		return fmt.Errorf("research failed: %s", q.ErrorMessage)
	}

	report, err := store.GetReport(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Query %s completed: %d/%d sources extracted\n",
		q.ID, q.SourcesExtracted, q.SourcesFound)

	if runOutput == "json" {
		return synth.WriteJSON(os.Stdout, report)
	}
	return synth.WriteText(os.Stdout, report)
}

func buildSearcher() search.Provider {
	if cfg.TavilyAPIKey != "" {
		return search.NewTavily(cfg.TavilyAPIKey, cfg.SearchDepth)
	}
	logger.Info("no Tavily API key configured, using DuckDuckGo")
	return search.NewDuckDuckGo()
}

func buildExtractor() (*extract.Extractor, error) {
	var proxyPool *proxy.Pool
	if cfg.ProxyFile != "" {
		proxyPool = proxy.NewPool(proxy.Config{})
		if err := proxyPool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
	}

	return extract.New(extract.Config{
		Timeout:           cfg.ExtractTimeout,
		MaxRedirects:      5,
		Fingerprint:       fingerprint.Profile(cfg.Fingerprint),
		ProxyPool:         proxyPool,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Jitter:            cfg.Jitter,
		RespectRobots:     cfg.RespectRobots,
		Logger:            logger,
	})
}

func buildSynthesizer(ctx context.Context) (*synth.Synthesizer, error) {
	var providers []synth.Provider

	if cfg.OpenAIAPIKey != "" {
		p, err := synth.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.GoogleAPIKey != "" {
		p, err := synth.NewGoogleAI(ctx, cfg.GoogleAPIKey, cfg.GoogleModel)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, errors.New("no LLM provider configured: set OPENAI_API_KEY or GOOGLE_API_KEY")
	}
	return synth.New(providers, logger), nil
}
