package search

import "context"

// Result is a single candidate document returned by a Provider.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Provider abstracts a web search capability returning ordered candidate
// documents for a query. Implementations may use official APIs or scraping.
// The limit parameter caps the number of results returned.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}
