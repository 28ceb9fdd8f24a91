package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(18989)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)

	defer srv.Stop(context.Background())

	RecordQuery("completed")
	RecordStage("searching", 2*time.Second)
	RecordExtraction("success")
	RecordExtraction("UNREACHABLE")
	RecordSynthesis("openai", "success")

	resp, err := http.Get("http://localhost:18989/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		"research_queries_total",
		"research_stage_duration_seconds_bucket",
		"research_source_extractions_total",
		"research_synthesis_calls_total",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s metric in output", want)
		}
	}
}

func TestStopWithoutServer(t *testing.T) {
	s := &Server{}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on empty server: %v", err)
	}
}
