// Package app holds the wiring shared by the API server and the ingestor.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yourorg/guessr-api/internal/cities"
	"github.com/yourorg/guessr-api/internal/env"
	"github.com/yourorg/guessr-api/internal/redisx"
	"github.com/yourorg/guessr-api/internal/retry"
	"github.com/yourorg/guessr-api/internal/store"
	"github.com/yourorg/guessr-api/zillow"
)

type Config struct {
	CitiesPath        string
	BaseURL           string
	MaxPrice          int
	DiscoveryAttempts int
	RoundAttempts     int
	RoundDelay        time.Duration
	UpstreamTimeout   time.Duration
	UpstreamRetries   int
	UpstreamRPS       float64
	PostgresDSN       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
}

func FromEnv() Config {
	return Config{
		CitiesPath:        env.Get("CITIES_PATH", "cities.txt"),
		BaseURL:           env.Get("ZILLOW_BASE_URL", zillow.DefaultBaseURL),
		MaxPrice:          env.GetInt("MAX_PRICE", zillow.DefaultMaxPrice),
		DiscoveryAttempts: env.GetInt("DISCOVERY_MAX_ATTEMPTS", zillow.DefaultDiscoveryAttempts),
		RoundAttempts:     env.GetInt("ROUND_MAX_ATTEMPTS", zillow.DefaultRoundAttempts),
		RoundDelay:        env.GetDuration("ROUND_RETRY_DELAY", zillow.DefaultRoundDelay),
		UpstreamTimeout:   env.GetDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamRetries:   env.GetInt("UPSTREAM_RETRIES", 1),
		UpstreamRPS:       env.GetFloat("UPSTREAM_RPS", 0),
		PostgresDSN:       env.Get("PG_DSN", ""),
		RedisAddr:         env.Get("REDIS_ADDR", ""),
		RedisPassword:     env.Get("REDIS_PASSWORD", ""),
		RedisDB:           env.GetInt("REDIS_DB", 0),
	}
}

// LoadCities reads the city list. An empty file is returned as an empty
// list so the server still starts and reports the problem per request.
func LoadCities(path string, log *slog.Logger) ([]string, error) {
	list, err := cities.Load(path)
	if errors.Is(err, cities.ErrEmpty) {
		log.Error("city list is empty; listing requests will fail", "path", path)
		return nil, nil
	}
	return list, err
}

// Scraper bundles the fetch client with the scraper built on it.
type Scraper struct {
	Client  *zillow.Client
	Scraper *zillow.Scraper
}

// NewScraper builds the client, discoverer and scraper. rc may be nil,
// in which case visited-page tracking is off.
func NewScraper(cfg Config, cityList []string, rc *redisx.Client, log *slog.Logger) Scraper {
	client := zillow.NewClient(zillow.Options{
		Timeout:    cfg.UpstreamTimeout,
		RetryMax:   cfg.UpstreamRetries,
		RatePerSec: cfg.UpstreamRPS,
		Logger:     log,
	})
	disc := &zillow.Discoverer{
		Fetcher:     client,
		Cities:      cityList,
		BaseURL:     cfg.BaseURL,
		MaxAttempts: cfg.DiscoveryAttempts,
		Logger:      log,
	}
	s := &zillow.Scraper{
		Discoverer: disc,
		Fetcher:    client,
		Extractor:  zillow.Extractor{MaxPrice: cfg.MaxPrice},
		Policy:     retry.Policy{MaxAttempts: cfg.RoundAttempts, Delay: cfg.RoundDelay},
		Logger:     log,
	}
	if rc != nil {
		disc.Visited = rc
		s.Marker = rc
	}
	return Scraper{Client: client, Scraper: s}
}

// OpenStore connects and migrates Postgres. An empty DSN disables the
// store and returns nil.
func OpenStore(ctx context.Context, dsn string) (*store.Store, error) {
	if dsn == "" {
		return nil, nil
	}
	st, err := store.Open(dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// OpenRedis connects to Redis. An empty address returns nil.
func OpenRedis(ctx context.Context, cfg Config) (*redisx.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	rc := redisx.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}
