package zillow

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
)

const DefaultDiscoveryAttempts = 8

var (
	// ErrNoCandidate means every discovery attempt came back empty.
	ErrNoCandidate = errors.New("zillow: no listing candidate found")
	// ErrNoCities is a configuration error; retrying cannot fix it.
	ErrNoCities = errors.New("zillow: no candidate cities configured")
)

// Fetcher returns a page body or an error for any failed fetch,
// including non-2xx responses and empty bodies.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// VisitedSet remembers detail pages that were already handed out.
type VisitedSet interface {
	Visited(ctx context.Context, url string) bool
}

// Discoverer finds one listing detail URL from a random city index page.
type Discoverer struct {
	Fetcher     Fetcher
	Cities      []string
	BaseURL     string
	MaxAttempts int
	// Intn picks uniformly in [0,n); nil means math/rand/v2.
	Intn func(n int) int
	// Visited only reorders preference; it never empties a page.
	Visited VisitedSet
	Logger  *slog.Logger
}

// Discover absorbs every per-city failure and only reports ErrNoCandidate
// once the attempt budget is spent.
func (d *Discoverer) Discover(ctx context.Context) (string, error) {
	if len(d.Cities) == 0 {
		return "", ErrNoCities
	}
	base := d.baseURL()
	pattern := detailURLPattern(base)
	max := d.MaxAttempts
	if max <= 0 {
		max = DefaultDiscoveryAttempts
	}
	for attempt := 1; attempt <= max; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		city := d.Cities[d.intn(len(d.Cities))]
		cityURL := base + "/" + city + "/"
		body, err := d.Fetcher.Fetch(ctx, cityURL)
		if err != nil {
			d.logger().Debug("city page failed", "attempt", attempt, "city", city, "error", err)
			continue
		}
		candidates := d.unvisited(ctx, findDetailURLs(pattern, body))
		if len(candidates) == 0 {
			d.logger().Debug("city page had no candidates", "attempt", attempt, "city", city)
			continue
		}
		return candidates[d.intn(len(candidates))], nil
	}
	return "", ErrNoCandidate
}

func (d *Discoverer) baseURL() string {
	if d.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(d.BaseURL, "/")
}

func (d *Discoverer) intn(n int) int {
	if d.Intn != nil {
		return d.Intn(n)
	}
	return rand.IntN(n)
}

func (d *Discoverer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// unvisited prefers candidates not handed out before. When every match
// was visited the full list is kept, so a page with matches always
// yields a pick.
func (d *Discoverer) unvisited(ctx context.Context, urls []string) []string {
	if d.Visited == nil || len(urls) == 0 {
		return urls
	}
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !d.Visited.Visited(ctx, u) {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return urls
	}
	return out
}

// Index pages embed search results as JSON: "detailUrl":"https://.../homedetails/...".
func detailURLPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`"detailUrl":"(` + regexp.QuoteMeta(base+"/homedetails/") + `[^"]+)"`)
}

func findDetailURLs(re *regexp.Regexp, body string) []string {
	matches := re.FindAllStringSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
