package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsGate caches per-host robots.txt data and answers allow/deny checks.
// Hosts whose robots.txt cannot be fetched or parsed default to allow.
type robotsGate struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.RWMutex
	cache   map[string]*robotstxt.RobotsData
}

func newRobotsGate(fetcher *Fetcher, logger *slog.Logger) *robotsGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &robotsGate{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// allowed reports whether the host's robots.txt permits fetching targetURL
// for the given User-Agent.
func (g *robotsGate) allowed(ctx context.Context, targetURL, userAgent string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	host := u.Scheme + "://" + u.Host

	data, err := g.getOrFetch(ctx, host)
	if err != nil {
		g.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return true
	}
	if data == nil {
		return true
	}

	return data.FindGroup(userAgent).Test(u.Path)
}

func (g *robotsGate) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	g.mu.RLock()
	data, exists := g.cache[host]
	g.mu.RUnlock()
	if exists {
		return data, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if data, exists = g.cache[host]; exists {
		return data, nil
	}

	result, err := g.fetcher.Fetch(ctx, fmt.Sprintf("%s/robots.txt", host))
	if err != nil {
		g.cache[host] = nil
		return nil, fmt.Errorf("fetch error: %w", err)
	}

	if result.StatusCode >= 400 {
		// Missing robots.txt means everything is allowed.
		g.cache[host] = nil
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes(result.Body)
	if err != nil {
		g.cache[host] = nil
		return nil, fmt.Errorf("parse error: %w", err)
	}

	g.cache[host] = parsed
	return parsed, nil
}
