package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestTavilySearch(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Go Concurrency", "url": "https://example.com/a", "content": "channels and goroutines", "score": 0.92},
				{"title": "Go Memory Model", "url": "https://example.com/b", "content": "happens before", "score": 0.81},
			},
		})
	}))
	defer srv.Close()

	tv := NewTavily("tvly-test", "")
	tv.endpoint = srv.URL

	results, err := tv.Search(context.Background(), "go concurrency", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].URL != "https://example.com/a" {
		t.Errorf("first URL = %q", results[0].URL)
	}
	if results[0].Score != 0.92 {
		t.Errorf("first Score = %v", results[0].Score)
	}
	if results[1].Snippet != "happens before" {
		t.Errorf("second Snippet = %q", results[1].Snippet)
	}

	if gotBody["search_depth"] != "advanced" {
		t.Errorf("search_depth = %v, want advanced default", gotBody["search_depth"])
	}
	if gotBody["max_results"] != float64(3) {
		t.Errorf("max_results = %v", gotBody["max_results"])
	}
}

func TestTavilySearchLimitCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "a", "url": "https://example.com/1"},
				{"title": "b", "url": "https://example.com/2"},
				{"title": "c", "url": "https://example.com/3"},
			},
		})
	}))
	defer srv.Close()

	tv := NewTavily("tvly-test", "basic")
	tv.endpoint = srv.URL

	results, err := tv.Search(context.Background(), "anything", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestTavilySearchRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"title": "a", "url": "https://example.com/1"}},
		})
	}))
	defer srv.Close()

	tv := NewTavily("tvly-test", "basic")
	tv.endpoint = srv.URL

	results, err := tv.Search(context.Background(), "rate limited", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestTavilySearchMissingKey(t *testing.T) {
	tv := NewTavily("", "basic")
	if _, err := tv.Search(context.Background(), "q", 1); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestTavilySearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tv := NewTavily("tvly-bad", "basic")
	tv.endpoint = srv.URL

	if _, err := tv.Search(context.Background(), "q", 1); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
