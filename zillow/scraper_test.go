package zillow

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/guessr-api/internal/retry"
)

const melodyURL = "https://www.zillow.com/homedetails/4933-W-Melody-Ln-Laveen-AZ-85339/12345678_zpid/"

type recordingMarker struct {
	mu   sync.Mutex
	urls []string
}

func (m *recordingMarker) MarkVisited(_ context.Context, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, url)
}

func newTestScraper(detailHTML func(call int) (string, error)) (*Scraper, *fakeFetcher) {
	details := 0
	var mu sync.Mutex
	f := &fakeFetcher{fn: func(_ int, url string) (string, error) {
		if strings.Contains(url, "/homedetails/") {
			mu.Lock()
			details++
			n := details
			mu.Unlock()
			return detailHTML(n)
		}
		return indexPage(melodyURL), nil
	}}
	s := &Scraper{
		Discoverer: &Discoverer{Fetcher: f, Cities: []string{"laveen-az"}},
		Fetcher:    f,
		Policy:     retry.Policy{MaxAttempts: 5},
	}
	return s, f
}

func TestScraperAttemptAttachesDetailURL(t *testing.T) {
	s, _ := newTestScraper(func(int) (string, error) {
		return detailPage(melodySummary, photoURLs(4)), nil
	})
	m := &recordingMarker{}
	s.Marker = m

	l, err := s.Attempt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, melodyURL, l.DetailURL())
	assert.Equal(t, 375000, l.Price())
	assert.Equal(t, []string{melodyURL}, m.urls)
}

func TestScraperAttemptReportsNoRecord(t *testing.T) {
	s, _ := newTestScraper(func(int) (string, error) {
		return detailPage(melodySummary, photoURLs(2)), nil
	})
	_, err := s.Attempt(context.Background())
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestScraperAttemptReportsDetailFetch(t *testing.T) {
	s, _ := newTestScraper(func(int) (string, error) { return "", errUpstream })
	_, err := s.Attempt(context.Background())
	assert.ErrorIs(t, err, ErrDetailFetch)
	assert.ErrorIs(t, err, errUpstream)
}

func TestScraperFetchListingRetriesUntilValid(t *testing.T) {
	s, f := newTestScraper(func(call int) (string, error) {
		if call < 3 {
			return detailPage(strings.Replace(melodySummary, "$375,000", "$25,000,000", 1), photoURLs(4)), nil
		}
		return detailPage(melodySummary, photoURLs(4)), nil
	})

	l, err := s.FetchListing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 375000, l.Price())
	// index + detail per round, three rounds
	assert.Len(t, f.Calls(), 6)
}

func TestScraperFetchListingExhausts(t *testing.T) {
	s, f := newTestScraper(func(int) (string, error) { return "<html></html>", nil })

	_, err := s.FetchListing(context.Background())
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, ErrNoRecord)
	assert.Len(t, f.Calls(), 10)
}

func TestScraperNoCitiesIsPermanent(t *testing.T) {
	s, f := newTestScraper(func(int) (string, error) { return "", nil })
	s.Discoverer.Cities = nil

	_, err := s.FetchListing(context.Background())
	assert.ErrorIs(t, err, ErrNoCities)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.Empty(t, f.Calls())
}

func TestScraperConcurrentRoundsAreIsolated(t *testing.T) {
	s, _ := newTestScraper(func(int) (string, error) {
		return detailPage(melodySummary, photoURLs(4)), nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.FetchListing(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

// memVisited backs both Discoverer.Visited and Scraper.Marker the way the
// Redis set does in production.
type memVisited struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memVisited) MarkVisited(_ context.Context, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	m.seen[url] = true
}

func (m *memVisited) Visited(_ context.Context, url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[url]
}

func TestScraperRetryAfterDetailFetchFailureReturnsSameListing(t *testing.T) {
	s, f := newTestScraper(func(call int) (string, error) {
		if call == 1 {
			return "", errUpstream
		}
		return detailPage(melodySummary, photoURLs(4)), nil
	})
	v := &memVisited{}
	s.Discoverer.Visited = v
	s.Marker = v

	l, err := s.FetchListing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, melodyURL, l.DetailURL())
	assert.Len(t, f.Calls(), 4)
	assert.True(t, v.Visited(context.Background(), melodyURL))
}

func TestScraperFailedAttemptsLeaveNoMark(t *testing.T) {
	s, _ := newTestScraper(func(int) (string, error) { return "", errUpstream })
	m := &recordingMarker{}
	s.Marker = m

	_, err := s.Attempt(context.Background())
	require.ErrorIs(t, err, ErrDetailFetch)

	s.Fetcher = &fakeFetcher{fn: func(int, string) (string, error) {
		return detailPage(melodySummary, photoURLs(2)), nil
	}}
	_, err = s.Attempt(context.Background())
	require.ErrorIs(t, err, ErrNoRecord)
	assert.Empty(t, m.urls)
}

func TestScraperVisitedListingIsStillServed(t *testing.T) {
	s, _ := newTestScraper(func(int) (string, error) {
		return detailPage(melodySummary, photoURLs(4)), nil
	})
	v := &memVisited{}
	v.MarkVisited(context.Background(), melodyURL)
	s.Discoverer.Visited = v

	l, err := s.FetchListing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, melodyURL, l.DetailURL())
}
