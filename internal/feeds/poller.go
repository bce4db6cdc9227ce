// Package feeds implements a thin, generic ports.SignalSource: the actual
// RSS/HN/social connectors are out-of-scope external collaborators (§1),
// consumed here only through their already-classified JSON polling
// endpoint shape. Adapted from the HTTP client in
// internal/polymarket/gamma_client.go, without its functional options.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/beliefcore/core/internal/domain"
	"github.com/beliefcore/core/internal/ports"
)

// Source is one externally operated feed endpoint: a URL returning a JSON
// array of RawItem-shaped records, tagged with its origin and an optional
// category filter.
type Source struct {
	Name         string
	URL          string
	Origin       string
	Category     *domain.Category
	MinFetchGap  time.Duration // default 5 min per §5's rate-limit note
}

type rawItemJSON struct {
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
}

// Poller fetches every configured Source no more often than its
// MinFetchGap, merging whatever has arrived since the last call.
type Poller struct {
	httpClient *http.Client
	sources    []Source

	mu       sync.Mutex
	lastFetch map[string]time.Time
}

// New constructs a Poller over the given sources.
func New(sources []Source, httpClient *http.Client) *Poller {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	for i := range sources {
		if sources[i].MinFetchGap <= 0 {
			sources[i].MinFetchGap = 5 * time.Minute
		}
	}
	return &Poller{httpClient: httpClient, sources: sources, lastFetch: make(map[string]time.Time)}
}

// FetchRecent implements ports.SignalSource. A per-source fetch failure is
// skipped, not surfaced (§7: ConnectorUnavailable/Timeout recovered
// locally); callers see the union of whatever sources answered.
func (p *Poller) FetchRecent(ctx context.Context, category *domain.Category) ([]ports.RawItem, error) {
	now := time.Now()
	var out []ports.RawItem

	for _, src := range p.sources {
		if category != nil && src.Category != nil && *src.Category != *category {
			continue
		}
		if !p.dueLocked(src, now) {
			continue
		}
		items, err := p.fetchOne(ctx, src)
		if err != nil {
			continue
		}
		p.markFetchedLocked(src, now)
		out = append(out, items...)
	}
	return out, nil
}

func (p *Poller) dueLocked(src Source, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastFetch[src.Name]
	return !ok || now.Sub(last) >= src.MinFetchGap
}

func (p *Poller) markFetchedLocked(src Source, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastFetch[src.Name] = now
}

func (p *Poller) fetchOne(ctx context.Context, src Source) ([]ports.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, domain.NewError(domain.ErrConnectorUnavailable, "feeds.fetchOne", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.ErrConnectorTimeout, "feeds.fetchOne", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewError(domain.ErrConnectorUnavailable, "feeds.fetchOne", fmt.Errorf("status %d", resp.StatusCode))
	}

	var raw []rawItemJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, domain.NewError(domain.ErrParseRejected, "feeds.fetchOne", err)
	}

	out := make([]ports.RawItem, 0, len(raw))
	for _, r := range raw {
		out = append(out, ports.RawItem{
			Source:      src.Name,
			PublishedAt: r.PublishedAt,
			Title:       r.Title,
			Body:        r.Body,
			Origin:      src.Origin,
		})
	}
	return out, nil
}
