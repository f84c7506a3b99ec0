package zillow

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://www.zillow.com"
	DefaultPhotoHost = "photos.zillowstatic.com"

	// A phone browser gets served the lighter page that still embeds the
	// listing JSON.
	DefaultUserAgent = "Mozilla/5.0 (Linux; Android 8.0.0; SM-G960F Build/R16NW) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/62.0.3202.84 Mobile Safari/537.36"
	DefaultReferer   = "https://www.google.com/"
)

var ErrEmptyBody = errors.New("zillow: empty response body")

// StatusError is returned for any non-2xx response, redirects included.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("zillow: GET %s: status %d", e.URL, e.Status)
}

// Options is the explicit fetch configuration threaded into every request.
type Options struct {
	UserAgent    string
	Referer      string
	Timeout      time.Duration
	RetryMax     int
	RatePerSec   float64 // <= 0 disables pacing
	Burst        int
	MaxBodyBytes int64
	PhotoHost    string
	Logger       *slog.Logger
	// Transport is swapped by tests; nil means a pooled default.
	Transport http.RoundTripper
}

type Client struct {
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	headers   http.Header
	maxBody   int64
	photoHost string
}

func NewClient(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Referer == "" {
		opts.Referer = DefaultReferer
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	if opts.PhotoHost == "" {
		opts.PhotoHost = DefaultPhotoHost
	}

	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = opts.RetryMax
	rc.HTTPClient.Timeout = opts.Timeout
	if opts.Transport != nil {
		rc.HTTPClient.Transport = opts.Transport
	}
	// Redirects usually lead to a captcha wall; treat them as a miss.
	rc.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if opts.Logger != nil {
		rc.Logger = opts.Logger
	} else {
		rc.Logger = nil
	}

	h := http.Header{}
	h.Set("User-Agent", opts.UserAgent)
	h.Set("Referer", opts.Referer)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")

	c := &Client{http: rc, headers: h, maxBody: opts.MaxBodyBytes, photoHost: opts.PhotoHost}
	if opts.RatePerSec > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return c
}

// Fetch returns the decoded body of a page. Non-2xx statuses and empty
// bodies are errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	body, err := c.readBody(resp)
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", ErrEmptyBody
	}
	return string(body), nil
}

// Image is a proxied photo.
type Image struct {
	ContentType string
	Body        []byte
}

var ErrForeignHost = errors.New("zillow: url is not on the photo host")

// FetchImage downloads a listing photo. Only https URLs on the photo host
// are allowed so the proxy cannot be pointed anywhere else.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || !strings.EqualFold(u.Hostname(), c.photoHost) {
		return Image{}, ErrForeignHost
	}
	resp, err := c.get(ctx, u.String())
	if err != nil {
		return Image{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Image{}, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	body, err := c.readBody(resp)
	if err != nil {
		return Image{}, err
	}
	if len(body) == 0 {
		return Image{}, ErrEmptyBody
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	return Image{ContentType: ct, Body: body}, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("zillow: build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = append([]string(nil), v...)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zillow: GET %s: %w", rawURL, err)
	}
	return resp, nil
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zillow: gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}
	body, err := io.ReadAll(io.LimitReader(reader, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("zillow: read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("zillow: body exceeds %d bytes", c.maxBody)
	}
	return body, nil
}
