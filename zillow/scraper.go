package zillow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/guessr-api/internal/retry"
)

const (
	DefaultRoundAttempts = 20
	DefaultRoundDelay    = 300 * time.Millisecond
)

var (
	ErrDetailFetch = errors.New("zillow: detail page fetch failed")
	// ErrNoRecord means the detail page loaded but did not yield a valid
	// listing. It is an expected, frequent outcome.
	ErrNoRecord = errors.New("zillow: page did not yield a listing")
)

// VisitMarker records detail pages that already yielded a listing so
// later discoveries prefer other candidates.
type VisitMarker interface {
	MarkVisited(ctx context.Context, url string)
}

// Scraper composes discovery, the detail fetch and extraction. It holds
// no per-call state, so one Scraper serves concurrent rounds.
type Scraper struct {
	Discoverer *Discoverer
	Fetcher    Fetcher
	Extractor  Extractor
	Policy     retry.Policy
	Marker     VisitMarker
	Logger     *slog.Logger
}

// Attempt runs one discovery, fetch and extraction pass.
func (s *Scraper) Attempt(ctx context.Context) (Listing, error) {
	detailURL, err := s.Discoverer.Discover(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCities) {
			return Listing{}, retry.Permanent(err)
		}
		return Listing{}, err
	}
	html, err := s.Fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %s: %w", ErrDetailFetch, detailURL, err)
	}
	listing, ok := s.Extractor.Extract(html)
	if !ok {
		return Listing{}, fmt.Errorf("%w: %s", ErrNoRecord, detailURL)
	}
	// Only pages that produced a record are marked, so a failed fetch
	// never hides a good candidate from the retry.
	if s.Marker != nil {
		s.Marker.MarkVisited(ctx, detailURL)
	}
	return listing.WithDetailURL(detailURL), nil
}

// FetchListing retries Attempt under the scraper's policy. Only budget
// exhaustion, cancellation or a configuration error come back as errors.
func (s *Scraper) FetchListing(ctx context.Context) (Listing, error) {
	p := s.Policy
	if p.MaxAttempts <= 0 {
		p = retry.Policy{MaxAttempts: DefaultRoundAttempts, Delay: DefaultRoundDelay}
	}
	return retry.Do(ctx, p, func(ctx context.Context, attempt int) (Listing, error) {
		l, err := s.Attempt(ctx)
		if err != nil {
			s.logger().Debug("listing attempt failed", "attempt", attempt, "max", p.MaxAttempts, "error", err)
			return Listing{}, err
		}
		s.logger().Info("listing found", "attempt", attempt, "detail_url", l.DetailURL(), "price", l.Price())
		return l, nil
	})
}

func (s *Scraper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
